// Package datalink implements the comm core's framed, retransmitting
// sliding-window ARQ engine: the RESET connection handshake, the TX/RX
// slot arrays, retransmit timers, and the link-frame egress ring that
// sits between a framer.Decoder/encoder pair and a byte-oriented lower
// layer.
//
// It is grounded on the teacher's protocol/transport.go — whose atomic
// isSynchronized/nextSequence fields and "always ACK, even on mismatch"
// receive discipline are the direct ancestor of the RX-path case
// analysis below — and on protocol/transport_host.go's pending map /
// waitForAck / dispatchMessage split, which (together with the
// pending/handleACK/handleNAK/Reset shape in the reference ASH
// implementation) is the direct ancestor of the TX slot array's
// SEND -> SENT -> ACK lifecycle.
package datalink

import (
	"context"
	"math"
	"time"

	"github.com/fitterbap/fitterbap-go/eventmgr"
	"github.com/fitterbap/fitterbap-go/framer"
	"github.com/fitterbap/fitterbap-go/internal/xsync"
)

// Datalink is the sliding-window ARQ engine. The zero value is not
// usable; construct with New.
type Datalink struct {
	cfg   Config
	clock Clock
	ll    LowerLayer
	upper UpperLayer

	mu xsync.Mutex
	ec *framer.Decoder

	state connState

	txFrameLastID uint16 // oldest unretired TX frame id
	txFrameNextID uint16 // next id to be assigned by TrySend
	txFrameCount  int    // negotiated window size, 1..len(txSlots)
	txSlotMask    int
	txSlots       []txSlot

	rxNextFrameID uint16 // next in-order id expected
	rxMaxFrameID  uint16 // highest id ever buffered, for diagnostics
	rxSlotMask    int
	rxSlots       []rxSlot

	linkRing           *framer.LinkRing
	lastQueuedIsACKAll bool
	lastQueuedACKAllID uint16

	txResetLast int64

	// hasArmed/armedDeadline track the next moment Process needs to run
	// again; scheduleCB — typically backed by a driver task's own
	// eventmgr.Manager — is notified only when that moment moves
	// earlier, per the "only rearm when new deadline is earlier"
	// scheduling discipline.
	hasArmed      bool
	armedDeadline int64
	scheduleCB    eventmgr.ScheduleCallback

	status Status
}

// New constructs a Datalink wired to ll, using clock for all timing
// decisions. It starts DISCONNECTED and begins sending RESET(0) as soon
// as Process is first called.
func New(cfg Config, clock Clock, ll LowerLayer) *Datalink {
	cfg = cfg.normalize()
	d := &Datalink{
		cfg:        cfg,
		clock:      clock,
		ll:         ll,
		mu:         xsync.NoOp,
		txSlotMask: cfg.TxWindowSize - 1,
		txSlots:    make([]txSlot, cfg.TxWindowSize),
		rxSlotMask: cfg.RxWindowSize - 1,
		rxSlots:    make([]rxSlot, cfg.RxWindowSize),
		linkRing:   framer.NewLinkRing(cfg.TxLinkRingSize),
	}
	d.ec = framer.NewDecoder(d.handleData, d.handleLink, d.handleFramingError)
	d.txFrameCount = 1
	d.txResetLast = math.MinInt64 / 2
	return d
}

// RegisterUpperLayer sets the event/recv sink. Passing nil silences
// delivery (events and messages are simply dropped) — useful while
// wiring up a driver task before the application layer is ready.
func (d *Datalink) RegisterUpperLayer(u UpperLayer) {
	d.mu.Lock()
	d.upper = u
	d.mu.Unlock()
}

// SetMutex registers the lock other goroutines must contend for when
// calling into the Datalink concurrently with the driver task. Passing
// nil restores the no-op default.
func (d *Datalink) SetMutex(mu xsync.Mutex) {
	if mu == nil {
		mu = xsync.NoOp
	}
	d.mu = mu
}

// RegisterScheduleCallback sets the callback invoked whenever Process
// computes a next-wakeup deadline earlier than whatever was last
// notified, so a driver task's external wait (often an
// eventmgr.Manager of its own, merging this with other timers) knows to
// wake sooner.
func (d *Datalink) RegisterScheduleCallback(cb eventmgr.ScheduleCallback) {
	d.mu.Lock()
	d.scheduleCB = cb
	d.mu.Unlock()
}

// TrySend attempts to enqueue metadata+msg as a DATA frame without
// blocking. It is the only safe way to submit from the same goroutine
// that also calls Process: busy-waiting there (as Send does) would
// stall the very loop that frees window space by retiring ACKed slots,
// deadlocking forever.
func (d *Datalink) TrySend(metadata uint16, msg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateConnected {
		return ErrUnavailable
	}
	occupancy := framer.FrameIDSub(d.txFrameNextID, d.txFrameLastID)
	if occupancy >= d.txFrameCount {
		return ErrFull
	}

	frameID := d.txFrameNextID
	idx := int(frameID) & d.txSlotMask
	slot := &d.txSlots[idx]

	out := framer.NewScratchOutput()
	if err := framer.ConstructData(out, frameID, metadata, msg); err != nil {
		return ErrParameterInvalid
	}

	slot.state = txSend
	slot.frameID = frameID
	slot.sendCount = 0
	slot.lastSendTime = 0
	slot.frameBytes = append(slot.frameBytes[:0], out.Bytes()...)

	d.txFrameNextID = framer.FrameIDAdd(d.txFrameNextID, 1)
	d.wakeSoonLocked()
	return nil
}

// Send enqueues metadata+msg, retrying every millisecond until it fits,
// ctx is canceled, or the link becomes unavailable. Call this from any
// goroutine except the one driving Process — see TrySend.
func (d *Datalink) Send(ctx context.Context, metadata uint16, msg []byte) error {
	for {
		err := d.TrySend(metadata, msg)
		if err != ErrFull {
			return err
		}
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return ErrTimedOut
		}
	}
}

// TxWindowSet negotiates the in-flight window size. Valid only while
// the current window is still 1 (the post-connect default), i.e.
// immediately after CONNECTED and before any frame beyond the first has
// been sent and acked.
func (d *Datalink) TxWindowSet(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txFrameCount != 1 {
		return ErrParameterInvalid
	}
	if n < 1 {
		n = 1
	}
	if n > len(d.txSlots) {
		n = len(d.txSlots)
	}
	d.txFrameCount = n
	return nil
}

// LLRecv feeds bytes received from the lower layer into the framer.
func (d *Datalink) LLRecv(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ec.Feed(data)
}

// Finalize clears any armed scheduler notification. Safe to call only
// after the upper layer has ceased submitting work.
func (d *Datalink) Finalize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasArmed = false
}

// Process drives one iteration of the datalink's clock-based logic: it
// retires timed-out SENT slots back to SEND, transmits SEND slots and
// queued link frames that fit in the lower layer's available room,
// drives the RESET handshake while disconnected, and rearms the next
// wakeup.
func (d *Datalink) Process(now int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hasArmed && d.armedDeadline <= now {
		d.hasArmed = false
	}
	d.ec.CheckIdle(now)

	if d.state == stateDisconnected {
		d.maybeSendResetRequest(now)
	}

	occupancy := framer.FrameIDSub(d.txFrameNextID, d.txFrameLastID)
	for o := 0; o < occupancy; o++ {
		id := framer.FrameIDAdd(d.txFrameLastID, o)
		s := &d.txSlots[int(id)&d.txSlotMask]
		if s.state == txSent && s.lastSendTime+d.cfg.TxTimeoutTicks <= now {
			s.state = txSend
		}
	}

	for o := 0; o < occupancy; o++ {
		id := framer.FrameIDAdd(d.txFrameLastID, o)
		s := &d.txSlots[int(id)&d.txSlotMask]
		if s.state != txSend {
			continue
		}
		if d.ll.SendAvailable() < len(s.frameBytes) {
			continue
		}
		if err := d.ll.Send(s.frameBytes); err != nil {
			continue
		}
		s.state = txSent
		s.lastSendTime = now
		s.sendCount++
		d.status.TxDataFrames++
		if s.sendCount > maxRetries {
			d.forceReset(now)
			return
		}
	}

	sentLink := false
	for {
		f, ok := d.linkRing.Peek()
		if !ok {
			break
		}
		if d.ll.SendAvailable() < framer.LinkFrameSize {
			break
		}
		if err := d.ll.Send(f[:]); err != nil {
			break
		}
		d.linkRing.Pop()
		sentLink = true
	}
	if sentLink && d.linkRing.Len() == 0 && d.ll.SendAvailable() >= 1 {
		d.ll.Send([]byte{framer.SOF1})
	}

	d.rearm(now)
}

func (d *Datalink) rearm(now int64) {
	next := int64(math.MaxInt64)

	occupancy := framer.FrameIDSub(d.txFrameNextID, d.txFrameLastID)
	for o := 0; o < occupancy; o++ {
		id := framer.FrameIDAdd(d.txFrameLastID, o)
		s := &d.txSlots[int(id)&d.txSlotMask]
		if s.state == txSent {
			deadline := s.lastSendTime + d.cfg.TxTimeoutTicks
			if deadline < next {
				next = deadline
			}
		}
	}
	if d.state == stateDisconnected {
		deadline := d.txResetLast + d.resetRetryInterval()
		if deadline < next {
			next = deadline
		}
	}
	if d.linkRing.Len() > 0 {
		deadline := now + d.cfg.ProcessIntervalMin
		if deadline < next {
			next = deadline
		}
	}
	if next == math.MaxInt64 {
		next = now + d.cfg.TxTimeoutTicks
	}
	if floor := now + d.cfg.ProcessIntervalMin; next < floor {
		next = floor
	}
	d.arm(next)
}

// arm records deadline as the next moment Process should run and, only
// if that's earlier than whatever was last notified, calls the
// registered schedule callback. It never calls Process itself — the
// caller (a driver task, directly or via its own eventmgr.Manager) owns
// actually invoking Process at that time.
func (d *Datalink) arm(deadline int64) {
	if d.hasArmed && deadline >= d.armedDeadline {
		return
	}
	d.armedDeadline = deadline
	d.hasArmed = true
	if d.scheduleCB != nil {
		cb := d.scheduleCB
		d.mu.Unlock()
		cb(deadline)
		d.mu.Lock()
	}
}

func (d *Datalink) wakeSoonLocked() {
	d.arm(d.clock.Now())
}

func (d *Datalink) resetRetryInterval() int64 {
	return resetRetryMultiple * d.cfg.TxTimeoutTicks
}

func (d *Datalink) maybeSendResetRequest(now int64) {
	if now-d.txResetLast >= d.resetRetryInterval() {
		d.enqueueLink(framer.FrameTypeReset, 0)
		d.txResetLast = now
	}
}

func (d *Datalink) forceReset(now int64) {
	d.cfg.Logger.Warn().Int("forcedResets", int(d.status.ForcedResets+1)).Msg("forced reset after retry exhaustion")
	d.resetLocalState()
	d.state = stateDisconnected
	d.txResetLast = now
	d.status.ForcedResets++
	d.enqueueLink(framer.FrameTypeReset, 0)
	d.fireEvent(EventResetRequest)
}

func (d *Datalink) resetLocalState() {
	d.txFrameLastID = 0
	d.txFrameNextID = 0
	d.txFrameCount = 1
	d.rxNextFrameID = 0
	d.rxMaxFrameID = 0
	for i := range d.txSlots {
		d.txSlots[i] = txSlot{}
	}
	for i := range d.rxSlots {
		d.rxSlots[i] = rxSlot{}
	}
	for d.linkRing.Len() > 0 {
		d.linkRing.Pop()
	}
	d.lastQueuedIsACKAll = false
}

func (d *Datalink) fireEvent(ev Event) {
	if d.upper != nil {
		d.upper.EventFn(ev)
	}
}

func (d *Datalink) deliver(metadata uint16, payload []byte) {
	d.status.RxDataFrames++
	if d.upper != nil {
		d.upper.RecvFn(metadata, payload)
	}
}

func (d *Datalink) enqueueLink(t framer.FrameType, id uint16) {
	if t == framer.FrameTypeACKAll && d.lastQueuedIsACKAll && d.lastQueuedACKAllID == id {
		return
	}
	frame, err := framer.EncodeLinkFrame(t, id)
	if err != nil {
		return
	}
	if !d.linkRing.Push(frame) {
		d.status.LinkRingDrops++
		return
	}
	if t == framer.FrameTypeACKAll {
		d.lastQueuedIsACKAll = true
		d.lastQueuedACKAllID = id
	} else {
		d.lastQueuedIsACKAll = false
	}
}
