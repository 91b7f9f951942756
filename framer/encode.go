package framer

// header packs a 5-bit frame type and the 11-bit frame id into the
// on-wire 16-bit header word.
func header(t FrameType, frameID uint16) uint16 {
	return uint16(t&frameTypeMask)<<FrameIDBits | (frameID & FrameIDMask)
}

func splitHeader(h uint16) (FrameType, uint16) {
	return FrameType(h >> FrameIDBits & frameTypeMask), h & FrameIDMask
}

// ConstructData encodes a DATA frame into out; the encoded bytes are
// then available from out.Bytes(). frameID must be < FrameIDModulo and payload must be between 1
// and PayloadMax bytes; otherwise ErrParameterInvalid is returned and out
// is left untouched.
func ConstructData(out *ScratchOutput, frameID uint16, metadata uint16, payload []byte) error {
	if frameID >= FrameIDModulo {
		return ErrParameterInvalid
	}
	if len(payload) < 1 || len(payload) > PayloadMax {
		return ErrParameterInvalid
	}

	out.write([]byte{SOF1, SOF2})

	h := header(FrameTypeData, frameID)
	lengthByte := byte(len(payload) - 1)
	headerBytes := []byte{byte(h >> 8), byte(h), lengthByte}
	out.write(headerBytes)
	out.write([]byte{crc8(headerBytes)})

	bodyStart := out.write([]byte{byte(metadata >> 8), byte(metadata)})
	out.write(payload)

	crc := crc32Payload(out.since(bodyStart))
	out.write([]byte{
		byte(crc >> 24), byte(crc >> 16), byte(crc >> 8), byte(crc),
	})
	return nil
}

// ConstructLink encodes a fixed-size link frame (ACK/NACK/RESET) into
// out. frameID (or the role bit, for RESET) must be < FrameIDModulo and t
// must be a recognized link frame type.
func ConstructLink(out *ScratchOutput, t FrameType, frameID uint16) error {
	if !validFrameType(t) || t == FrameTypeData {
		return ErrParameterInvalid
	}
	if frameID >= FrameIDModulo {
		return ErrParameterInvalid
	}

	h := header(t, frameID)
	headerBytes := []byte{byte(h >> 8), byte(h)}
	frame := [LinkFrameSize]byte{
		SOF1, SOF2, headerBytes[0], headerBytes[1], crc8(headerBytes),
	}
	out.write(frame[:])
	return nil
}

// EncodeLinkFrame is ConstructLink specialized to return the fixed-size
// array directly, for callers (the datalink's link egress ring) that
// queue link frames rather than streaming them into a ScratchOutput.
func EncodeLinkFrame(t FrameType, frameID uint16) ([LinkFrameSize]byte, error) {
	var frame [LinkFrameSize]byte
	if !validFrameType(t) || t == FrameTypeData {
		return frame, ErrParameterInvalid
	}
	if frameID >= FrameIDModulo {
		return frame, ErrParameterInvalid
	}
	h := header(t, frameID)
	headerBytes := [2]byte{byte(h >> 8), byte(h)}
	frame[0] = SOF1
	frame[1] = SOF2
	frame[2] = headerBytes[0]
	frame[3] = headerBytes[1]
	frame[4] = crc8(headerBytes[:])
	return frame, nil
}
