package datalink

import "github.com/fitterbap/fitterbap-go/framer"

// Status holds cumulative datalink-level counters, plus the framer's own
// byte/frame counters embedded so one call exposes both layers.
type Status struct {
	TxDataFrames      uint64
	TxDataFramesAcked uint64
	RxDataFrames      uint64
	Retransmissions   uint64
	ForcedResets      uint64
	LinkRingDrops     uint64
	Framer            framer.Status
}

// StatusGet returns a snapshot of the cumulative counters.
func (d *Datalink) StatusGet() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.Framer = d.ec.Status()
	return s
}

// StatusClear zeroes all counters, including the framer's.
func (d *Datalink) StatusClear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = Status{}
	d.ec.ResetStatus()
}
