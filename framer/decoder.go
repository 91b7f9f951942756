package framer

// DataHandler is invoked for every DATA frame that passes both CRCs.
// payload is owned by the callee; the decoder will not reuse it.
type DataHandler func(frameID uint16, metadata uint16, payload []byte)

// LinkHandler is invoked for every link frame that passes its header CRC.
type LinkHandler func(t FrameType, frameID uint16)

// ErrorHandler is invoked on a structural or CRC failure. frameID is
// only meaningful when hasFrameID is true (payload-CRC failures carry a
// trustworthy frame id from an already-validated header; structural
// failures, including a bad header CRC, do not).
type ErrorHandler func(kind ErrorKind, frameID uint16, hasFrameID bool)

// Decoder turns a byte stream into DATA and link frame events. It is
// stateless across frames except for its internal resync buffer, and it
// is not safe for concurrent use — exactly one task may call Feed.
type Decoder struct {
	buf []byte

	onData  DataHandler
	onLink  LinkHandler
	onError ErrorHandler

	status Status

	// idle-flush support: the decoder itself has no clock (it is fed
	// bytes, not ticks), so the caller drives CheckIdle with its own
	// clock. A nonzero idleTimeout arms the flush.
	idleTimeout  int64
	lastActivity int64
	activitySet  bool
}

// NewDecoder returns an empty Decoder. Handlers are optional; nil
// handlers simply drop the corresponding event (still counted in Status).
func NewDecoder(onData DataHandler, onLink LinkHandler, onError ErrorHandler) *Decoder {
	return &Decoder{
		onData:  onData,
		onLink:  onLink,
		onError: onError,
		buf:     make([]byte, 0, DataFrameMax*2),
	}
}

// SetIdleTimeout arms (timeout > 0) or disarms (timeout == 0) the
// inactivity flush described in SPEC_FULL.md §9: if no byte completes the
// in-progress frame within timeout clock units, CheckIdle discards the
// unconfirmed partial decode. A frame that has already passed both CRCs
// is never affected — only bytes still waiting to become one are.
func (d *Decoder) SetIdleTimeout(timeout int64) { d.idleTimeout = timeout }

// Feed appends newly-received bytes and drives the decode loop, firing
// zero or more of onData/onLink/onError.
func (d *Decoder) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	d.status.TotalBytes += uint64(len(data))
	d.buf = append(d.buf, data...)
	for d.step() {
	}
}

// CheckIdle flushes a stalled partial decode if the decoder has been
// armed with SetIdleTimeout, bytes are pending, and now-lastActivity has
// reached the timeout. now is in the caller's clock units (the datalink
// passes its own monotonic clock through unchanged).
func (d *Decoder) CheckIdle(now int64) {
	if d.idleTimeout <= 0 || len(d.buf) == 0 || !d.activitySet {
		return
	}
	if now-d.lastActivity >= d.idleTimeout {
		// Discard everything except a final, possibly-valid SOF1 that
		// could start the next frame.
		if d.buf[len(d.buf)-1] == SOF1 {
			d.status.IgnoredBytes += uint64(len(d.buf) - 1)
			d.buf = d.buf[len(d.buf)-1:]
		} else {
			d.status.IgnoredBytes += uint64(len(d.buf))
			d.buf = d.buf[:0]
		}
		d.activitySet = false
	}
}

// touch records that now is when the current partial decode last made
// progress; callers that want idle-flush must pass now to Feed via
// TouchAndFeed instead of Feed.
func (d *Decoder) touch(now int64) {
	d.lastActivity = now
	d.activitySet = true
}

// TouchAndFeed is Feed plus recording now as the decoder's last-activity
// clock reading, for use with CheckIdle.
func (d *Decoder) TouchAndFeed(now int64, data []byte) {
	d.touch(now)
	d.Feed(data)
}

// Status returns a snapshot of the monotonic counters.
func (d *Decoder) Status() Status { return d.status }

// ResetStatus zeroes the counters.
func (d *Decoder) ResetStatus() { d.status = Status{} }

// step attempts to make one unit of progress against d.buf: consume a
// complete frame, consume one byte of noise, or register a structural
// failure and consume its leading byte. It returns true if the caller
// should call step again immediately (more progress may be possible
// without new bytes), false if it must wait for more data.
func (d *Decoder) step() bool {
	buf := d.buf
	n := len(buf)
	if n == 0 {
		return false
	}

	if buf[0] != SOF1 {
		d.dropNoise(1)
		return len(d.buf) > 0
	}
	if n < 2 {
		return false
	}
	if buf[1] == SOF1 {
		// Two consecutive SOF1 bytes: an explicit end-of-frame / flush
		// marker. Drop the first (keep the second as the next
		// candidate start) without counting it as noise or an error.
		d.buf = d.buf[1:]
		return true
	}
	if buf[1] != SOF2 {
		d.status.StructuralErrors++
		d.fail(ErrorKindStructural, 0, false)
		d.dropNoise(1)
		return true
	}
	if n < 4 {
		return false
	}

	h := uint16(buf[2])<<8 | uint16(buf[3])
	ftype, fid := splitHeader(h)
	if !validFrameType(ftype) {
		d.status.StructuralErrors++
		d.fail(ErrorKindStructural, 0, false)
		d.dropNoise(1)
		return true
	}

	if ftype == FrameTypeData {
		return d.stepData(buf, fid)
	}
	return d.stepLink(buf, ftype, fid)
}

func (d *Decoder) stepData(buf []byte, fid uint16) bool {
	n := len(buf)
	if n < 5 {
		return false
	}
	length := int(buf[4]) + 1
	if n < 6 {
		return false
	}
	if crc8(buf[2:5]) != buf[5] {
		d.status.HeaderCRCErrors++
		d.fail(ErrorKindStructural, 0, false)
		d.dropNoise(1)
		return true
	}
	if length < 1 || length > PayloadMax {
		d.status.StructuralErrors++
		d.fail(ErrorKindStructural, 0, false)
		d.dropNoise(1)
		return true
	}

	const metaOff = 6
	payloadOff := metaOff + 2
	total := payloadOff + length + 4
	if n < total {
		return false
	}

	crcOff := payloadOff + length
	frameCRC := uint32(buf[crcOff])<<24 | uint32(buf[crcOff+1])<<16 |
		uint32(buf[crcOff+2])<<8 | uint32(buf[crcOff+3])
	computedCRC := crc32Payload(buf[metaOff:crcOff])
	if frameCRC != computedCRC {
		d.status.PayloadCRCErrors++
		d.fail(ErrorKindPayloadCRC, fid, true)
		d.dropNoise(1)
		return true
	}

	metadata := uint16(buf[metaOff])<<8 | uint16(buf[metaOff+1])
	payload := make([]byte, length)
	copy(payload, buf[payloadOff:crcOff])

	d.status.DataFrames++
	d.consume(total)
	if d.onData != nil {
		d.onData(fid, metadata, payload)
	}
	return len(d.buf) > 0
}

func (d *Decoder) stepLink(buf []byte, ftype FrameType, fid uint16) bool {
	n := len(buf)
	if n < 5 {
		return false
	}
	if crc8(buf[2:4]) != buf[4] {
		d.status.HeaderCRCErrors++
		d.fail(ErrorKindStructural, 0, false)
		d.dropNoise(1)
		return true
	}
	if n < LinkFrameSize {
		return false
	}

	d.status.LinkFrames++
	d.consume(LinkFrameSize)
	if d.onLink != nil {
		d.onLink(ftype, fid)
	}
	return len(d.buf) > 0
}

// dropNoise discards n bytes from the front of the buffer as ignored
// (pre-sync garbage or the leading byte of a failed decode attempt).
func (d *Decoder) dropNoise(n int) {
	if n > len(d.buf) {
		n = len(d.buf)
	}
	d.status.IgnoredBytes += uint64(n)
	d.buf = d.buf[n:]
}

// consume discards n bytes that were successfully decoded into a frame.
func (d *Decoder) consume(n int) {
	if n > len(d.buf) {
		n = len(d.buf)
	}
	d.buf = d.buf[n:]
}

func (d *Decoder) fail(kind ErrorKind, frameID uint16, hasFrameID bool) {
	d.status.Resyncs++
	if d.onError != nil {
		d.onError(kind, frameID, hasFrameID)
	}
}
