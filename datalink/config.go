package datalink

import "github.com/fitterbap/fitterbap-go/internal/xlog"

// Config configures a Datalink at construction. Window sizes are rounded
// up to the nearest power of two and clamped to [1, 1024], per the wire
// spec's invariant that slot arrays must be power-of-two sized for cheap
// index masking.
type Config struct {
	// TxWindowSize is the TX slot array's capacity — also the ceiling
	// TxWindowSet may negotiate the in-flight window up to.
	TxWindowSize int
	// RxWindowSize is the RX slot array's capacity (out-of-order
	// reassembly depth).
	RxWindowSize int
	// TxTimeoutTicks is the retransmit timeout, in the caller clock's
	// units.
	TxTimeoutTicks int64
	// TxLinkRingSize is the capacity of the link-frame egress ring.
	TxLinkRingSize int
	// ProcessIntervalMin floors how soon Process may be rescheduled,
	// preventing runaway scheduling when many events are due at once.
	ProcessIntervalMin int64
	// Logger receives reset/retransmit/forced-reset diagnostics. The zero
	// value discards everything.
	Logger xlog.Logger
}

// DefaultConfig returns reasonable defaults: a 16-frame TX/RX window, a
// 10ms-equivalent timeout (in whatever unit the caller's clock ticks),
// an 8-entry link ring, and a 1-unit scheduling floor.
func DefaultConfig() Config {
	return Config{
		TxWindowSize:       16,
		RxWindowSize:       16,
		TxTimeoutTicks:     10,
		TxLinkRingSize:     8,
		ProcessIntervalMin: 1,
	}
}

func (c Config) normalize() Config {
	c.TxWindowSize = roundPow2Clamped(c.TxWindowSize)
	c.RxWindowSize = roundPow2Clamped(c.RxWindowSize)
	if c.TxTimeoutTicks <= 0 {
		c.TxTimeoutTicks = 10
	}
	if c.TxLinkRingSize < 1 {
		c.TxLinkRingSize = 8
	}
	if c.ProcessIntervalMin < 1 {
		c.ProcessIntervalMin = 1
	}
	return c
}

const (
	minWindow = 1
	maxWindow = 1024
)

func roundPow2Clamped(n int) int {
	if n < minWindow {
		n = minWindow
	}
	if n > maxWindow {
		n = maxWindow
	}
	p := 1
	for p < n {
		p <<= 1
	}
	if p > maxWindow {
		p = maxWindow
	}
	return p
}
