// Package bridge is the host-side driver task: it wires a link/serial
// Port to a datalink.Datalink and a transport.Transport, and runs the
// two goroutines the comm core expects a host integration to provide —
// one feeding inbound bytes into ll_recv, one calling process on a fixed
// heartbeat and whenever inbound bytes arrive. A deadline the datalink
// announces through its schedule callback is serviced at the next such
// wake, not at the exact deadline.
//
// Grounded on the teacher's host/mcu/mcu.go (which owns the serial port
// and a protocol transport side by side) and protocol/transport_host.go's
// readLoop (a background goroutine reading the port into a buffer and
// feeding the parser, with a stop/done channel pair for graceful
// shutdown).
package bridge

import (
	"io"
	"sync"
	"time"

	"github.com/fitterbap/fitterbap-go/datalink"
	"github.com/fitterbap/fitterbap-go/eventmgr"
	"github.com/fitterbap/fitterbap-go/internal/xlog"
	"github.com/fitterbap/fitterbap-go/link/serial"
	"github.com/fitterbap/fitterbap-go/transport"
)

// wallClock is the real-time datalink.Clock, measuring in milliseconds
// so Config tick units read naturally as milliseconds.
type wallClock struct{}

func (wallClock) Now() int64 { return time.Now().UnixMilli() }

// Bridge owns one serial link, its Datalink, and the Transport
// demultiplexer above it.
type Bridge struct {
	port serial.Port
	dl   *datalink.Datalink
	tr   *transport.Transport
	log  xlog.Logger

	// em holds the datalink's latest "wake me earlier" deadline as a
	// single event. It is only checked when driverLoop wakes (heartbeat
	// tick or inbound bytes); it has no timer of its own.
	em       *eventmgr.Manager
	wakeCh   chan struct{}
	wakeID   eventmgr.EventID
	hasWake  bool
	wakeMu   sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Bridge at construction.
type Option func(*Bridge)

// WithLogger attaches a logger; the default is xlog.Nop().
func WithLogger(l xlog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// New wires port to a fresh Datalink/Transport pair per cfg.
func New(port serial.Port, cfg datalink.Config, opts ...Option) *Bridge {
	b := &Bridge{
		port:   port,
		log:    xlog.Nop(),
		em:     eventmgr.New(),
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.em.SetMutex(&sync.Mutex{})

	adapter := serial.NewAdapter(port)
	b.dl = datalink.New(cfg, wallClock{}, adapter)
	b.dl.SetMutex(&sync.Mutex{})
	b.tr = transport.New(b.dl)
	b.dl.RegisterUpperLayer(b.tr)
	b.dl.RegisterScheduleCallback(b.onDatalinkSchedule)

	return b
}

// Datalink returns the underlying ARQ engine, for status/diagnostics.
func (b *Bridge) Datalink() *datalink.Datalink { return b.dl }

// Transport returns the port demultiplexer application code registers
// against.
func (b *Bridge) Transport() *transport.Transport { return b.tr }

// onDatalinkSchedule is the datalink's ScheduleCallback: it reschedules
// the bridge's own wakeup event to the new, earlier deadline.
func (b *Bridge) onDatalinkSchedule(deadline int64) {
	b.wakeMu.Lock()
	if b.hasWake {
		b.em.Cancel(b.wakeID)
	}
	b.wakeID = b.em.Schedule(deadline, b.signalWake, nil)
	b.hasWake = true
	b.wakeMu.Unlock()
}

func (b *Bridge) signalWake(any) {
	select {
	case b.wakeCh <- struct{}{}:
	default:
	}
}

// Run starts the read and driver goroutines. Call Close to stop them.
func (b *Bridge) Run() {
	b.wg.Add(2)
	go b.readLoop()
	go b.driverLoop()
}

// Close stops both goroutines and closes the underlying port.
func (b *Bridge) Close() error {
	close(b.stopCh)
	b.wg.Wait()
	b.dl.Finalize()
	return b.port.Close()
}

func (b *Bridge) readLoop() {
	defer b.wg.Done()
	buf := make([]byte, 512)
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}
		n, err := b.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			b.log.Warn().Err(err).Msg("serial read error")
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			b.dl.LLRecv(buf[:n])
			b.signalWake(nil) // newly arrived bytes may have freed window space or queued a reply
		}
	}
}

// heartbeat is the driver loop's fixed wake cadence. Apart from inbound
// bytes it is the only thing that wakes the loop, so it also bounds how
// late a deadline announced through the schedule callback is serviced.
const heartbeat = 20 * time.Millisecond

func (b *Bridge) driverLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.wakeCh:
		case <-ticker.C:
		}
		now := wallClock{}.Now()
		b.em.Process(now)
		b.dl.Process(now)
	}
}
