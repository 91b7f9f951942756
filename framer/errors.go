package framer

import "errors"

// ErrParameterInvalid is returned synchronously when a construct
// operation is asked to build a frame from out-of-range arguments.
var ErrParameterInvalid = errors.New("fitterbap: parameter invalid")

// ErrorKind classifies a framing failure reported through a Decoder's
// error callback. These never escape to a caller as a Go error — they
// become counter movement and, in the datalink, a NACK.
type ErrorKind uint8

const (
	// ErrorKindStructural covers a bad start marker, an out-of-range
	// frame type, a header CRC mismatch, or a length outside
	// [1, PayloadMax].
	ErrorKindStructural ErrorKind = iota
	// ErrorKindPayloadCRC is a header that validated but whose payload
	// CRC did not; the frame id is still known and reported.
	ErrorKindPayloadCRC
)

func (k ErrorKind) String() string {
	if k == ErrorKindPayloadCRC {
		return "payload-crc"
	}
	return "structural"
}
