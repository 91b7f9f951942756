// Package framer implements the fitterbap wire codec: it turns typed
// frames into bytes and an arbitrary byte stream back into typed frames,
// recovering from corruption by resyncing on the start-of-frame markers.
package framer

import "fmt"

// Wire constants, per the fitterbap link layer.
const (
	SOF1 = 0xAA
	SOF2 = 0x55

	// PayloadMax is the largest DATA frame payload, in bytes.
	PayloadMax = 256

	// LinkFrameSize is the fixed size of every non-DATA (link) frame,
	// chosen so a decoder can queue them as machine words.
	LinkFrameSize = 8

	// Overhead is everything surrounding a DATA frame's payload: two SOF
	// bytes, a 2-byte header, a 1-byte length, a 1-byte header CRC, a
	// 2-byte metadata field and a 4-byte payload CRC.
	Overhead = 2 + 2 + 1 + 1 + 2 + 4

	// DataFrameMax is the largest possible on-wire DATA frame.
	DataFrameMax = Overhead + PayloadMax

	// FrameIDBits is the width of the wrapping frame identifier.
	FrameIDBits = 11
	// FrameIDModulo is 2^FrameIDBits.
	FrameIDModulo = 1 << FrameIDBits
	// FrameIDMask masks a value down to the valid FRAME_ID range.
	FrameIDMask = FrameIDModulo - 1

	frameTypeBits = 5
	frameTypeMask = (1 << frameTypeBits) - 1
)

// FrameType identifies the kind of frame carried by a header.
type FrameType uint8

// The frame types fitterbap knows about. DATA carries a payload; the
// rest are fixed-size link frames.
const (
	FrameTypeData FrameType = iota
	FrameTypeACKAll
	FrameTypeACKOne
	FrameTypeNackFrameID
	FrameTypeNackFramingError
	FrameTypeReset
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "DATA"
	case FrameTypeACKAll:
		return "ACK_ALL"
	case FrameTypeACKOne:
		return "ACK_ONE"
	case FrameTypeNackFrameID:
		return "NACK_FRAME_ID"
	case FrameTypeNackFramingError:
		return "NACK_FRAMING_ERROR"
	case FrameTypeReset:
		return "RESET"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

// IsLink reports whether t is a fixed-size link frame (as opposed to DATA).
func (t FrameType) IsLink() bool { return t != FrameTypeData }

func validFrameType(t FrameType) bool {
	switch t {
	case FrameTypeData, FrameTypeACKAll, FrameTypeACKOne,
		FrameTypeNackFrameID, FrameTypeNackFramingError, FrameTypeReset:
		return true
	default:
		return false
	}
}

// FrameIDSub computes the shortest signed distance a-b on the 11-bit
// wrapping frame id space: the value in [-1024, 1023] whose lower 11
// bits equal (a-b) mod 2048.
func FrameIDSub(a, b uint16) int {
	d := (int32(a&FrameIDMask) - int32(b&FrameIDMask)) & FrameIDMask
	if d > FrameIDModulo/2-1 {
		d -= FrameIDModulo
	}
	return int(d)
}

// FrameIDAdd returns (a+delta) wrapped into the 11-bit frame id space.
func FrameIDAdd(a uint16, delta int) uint16 {
	return uint16((int32(a&FrameIDMask) + int32(delta)) & FrameIDMask)
}
