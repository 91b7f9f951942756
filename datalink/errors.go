package datalink

import "errors"

var (
	// ErrUnavailable is returned by Send/TrySend when the link is not
	// currently CONNECTED.
	ErrUnavailable = errors.New("datalink: not connected")
	// ErrFull is returned by TrySend when the TX window has no free slot.
	ErrFull = errors.New("datalink: tx window full")
	// ErrTimedOut is returned by Send when ctx expires before a slot
	// frees up.
	ErrTimedOut = errors.New("datalink: send timed out")
	// ErrParameterInvalid is returned when an argument or call is
	// rejected synchronously — a bad message size, or a TxWindowSet call
	// outside its one negotiation window.
	ErrParameterInvalid = errors.New("datalink: parameter invalid")
)
