package datalink

import "github.com/fitterbap/fitterbap-go/framer"

// handleData is the framer's onData callback. It runs with d.mu already
// held (framer callbacks fire synchronously from within LLRecv's single
// lock scope), so it must never call d.mu.Lock() itself.
func (d *Datalink) handleData(frameID, metadata uint16, payload []byte) {
	switch sub := framer.FrameIDSub(frameID, d.rxNextFrameID); {
	case sub == 0:
		d.deliver(metadata, payload)
		d.rxNextFrameID = framer.FrameIDAdd(d.rxNextFrameID, 1)
		for {
			s := &d.rxSlots[int(d.rxNextFrameID)&d.rxSlotMask]
			if s.state != rxAck || s.frameID != d.rxNextFrameID {
				break
			}
			d.deliver(s.metadata, s.payload)
			*s = rxSlot{}
			d.rxNextFrameID = framer.FrameIDAdd(d.rxNextFrameID, 1)
		}
		d.enqueueLink(framer.FrameTypeACKAll, framer.FrameIDAdd(d.rxNextFrameID, -1))

	case sub < 0:
		// Strictly older than expected: a duplicate the peer missed our
		// earlier ACK for. Re-ACK, don't re-deliver.
		d.enqueueLink(framer.FrameTypeACKAll, framer.FrameIDAdd(d.rxNextFrameID, -1))

	default:
		windowEnd := framer.FrameIDAdd(d.rxNextFrameID, len(d.rxSlots))
		if framer.FrameIDSub(frameID, windowEnd) >= 0 {
			d.enqueueLink(framer.FrameTypeNackFrameID, frameID)
			return
		}

		s := &d.rxSlots[int(frameID)&d.rxSlotMask]
		s.state = rxAck
		s.frameID = frameID
		s.metadata = metadata
		s.payload = append(s.payload[:0], payload...)
		if framer.FrameIDSub(frameID, d.rxMaxFrameID) > 0 {
			d.rxMaxFrameID = frameID
		}

		for g := d.rxNextFrameID; g != frameID; g = framer.FrameIDAdd(g, 1) {
			gs := &d.rxSlots[int(g)&d.rxSlotMask]
			if gs.state == rxIdle {
				d.enqueueLink(framer.FrameTypeNackFrameID, g)
				gs.state = rxNack
			}
		}
		d.enqueueLink(framer.FrameTypeACKOne, frameID)
	}
}

// handleLink is the framer's onLink callback, also running under d.mu.
func (d *Datalink) handleLink(t framer.FrameType, frameID uint16) {
	switch t {
	case framer.FrameTypeACKAll:
		d.retireUpTo(frameID)
	case framer.FrameTypeACKOne:
		d.ackOne(frameID)
	case framer.FrameTypeNackFrameID:
		d.markSendOne(frameID)
	case framer.FrameTypeNackFramingError:
		d.markSendFrom(frameID)
	case framer.FrameTypeReset:
		d.handleReset(frameID)
	}
}

// handleFramingError is the framer's onError callback, also under d.mu.
func (d *Datalink) handleFramingError(kind framer.ErrorKind, frameID uint16, hasFrameID bool) {
	if hasFrameID {
		// Header CRC validated, only the payload is corrupt: we know
		// exactly which frame to ask for again.
		d.enqueueLink(framer.FrameTypeNackFrameID, frameID)
		return
	}
	// Structural corruption with no trustworthy frame id: fall back to
	// a coarse "resend everything from here" request.
	d.enqueueLink(framer.FrameTypeNackFramingError, d.rxNextFrameID)
}

func (d *Datalink) retireUpTo(ackID uint16) {
	for framer.FrameIDSub(d.txFrameNextID, d.txFrameLastID) > 0 &&
		framer.FrameIDSub(ackID, d.txFrameLastID) >= 0 {
		d.txSlots[int(d.txFrameLastID)&d.txSlotMask] = txSlot{}
		d.status.TxDataFramesAcked++
		d.txFrameLastID = framer.FrameIDAdd(d.txFrameLastID, 1)
	}
}

func (d *Datalink) ackOne(frameID uint16) {
	if framer.FrameIDSub(frameID, d.txFrameLastID) < 0 || framer.FrameIDSub(frameID, d.txFrameNextID) >= 0 {
		return
	}
	s := &d.txSlots[int(frameID)&d.txSlotMask]
	if s.state != txIdle && s.frameID == frameID {
		s.state = txAck
	}
}

func (d *Datalink) markSendOne(frameID uint16) {
	if framer.FrameIDSub(frameID, d.txFrameLastID) < 0 || framer.FrameIDSub(frameID, d.txFrameNextID) >= 0 {
		return
	}
	s := &d.txSlots[int(frameID)&d.txSlotMask]
	if s.state == txIdle || s.frameID != frameID {
		return
	}
	s.state = txSend
	d.status.Retransmissions++
	d.wakeSoonLocked()
}

func (d *Datalink) markSendFrom(nextExpected uint16) {
	if framer.FrameIDSub(nextExpected, d.txFrameLastID) < 0 {
		nextExpected = d.txFrameLastID
	}
	for id := nextExpected; framer.FrameIDSub(id, d.txFrameNextID) < 0; id = framer.FrameIDAdd(id, 1) {
		s := &d.txSlots[int(id)&d.txSlotMask]
		if s.state != txIdle && s.frameID == id {
			s.state = txSend
			d.status.Retransmissions++
		}
	}
	d.wakeSoonLocked()
}

// handleReset processes an incoming RESET link frame. frameID's low bit
// carries the role: 0 is a request, 1 is a response.
func (d *Datalink) handleReset(frameIDField uint16) {
	if frameIDField&1 == 0 {
		wasConnected := d.state == stateConnected
		if wasConnected {
			d.cfg.Logger.Debug().Msg("peer reset request received while connected, tearing down")
			d.resetLocalState()
			d.state = stateDisconnected
			d.txResetLast = d.clock.Now() // throttle our own retry so the peer's reply has time to land
			d.fireEvent(EventResetRequest)
		}
		d.enqueueLink(framer.FrameTypeReset, 1)
		return
	}
	if d.state == stateDisconnected {
		d.cfg.Logger.Debug().Msg("reset response received, connecting")
		d.resetLocalState()
		d.state = stateConnected
		d.fireEvent(EventConnected)
	}
}
