package datalink

// Event is an upper-layer notification emitted by the datalink's RESET
// handshake, or passed through synthetically by the transport layer
// above it.
type Event int

const (
	// EventConnected fires when the RESET handshake completes and the
	// window resets to its post-connect state.
	EventConnected Event = iota
	// EventDisconnected is reserved for symmetry with the transport's
	// synthetic event set; the datalink itself never emits it directly.
	EventDisconnected
	// EventResetRequest fires when the connection is torn down
	// abnormally: a peer's RESET(0) arrives while CONNECTED, or the
	// local side forces a reset after exhausting retransmit retries.
	EventResetRequest
	// EventTransportConnected and EventAppConnected are synthesized by
	// the transport layer, not the datalink; they are declared here so
	// both layers share one Event type.
	EventTransportConnected
	EventAppConnected
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventResetRequest:
		return "reset_request"
	case EventTransportConnected:
		return "transport_connected"
	case EventAppConnected:
		return "app_connected"
	default:
		return "event(?)"
	}
}

// Clock is the caller-supplied monotonic time source, in the same units
// as Config.TxTimeoutTicks.
type Clock interface {
	Now() int64
}

// LowerLayer is the byte transport beneath the datalink — typically a
// link/serial.Port, but any io-like sink works.
type LowerLayer interface {
	// Send writes frame in full or not at all; callers only invoke it
	// when SendAvailable reported enough room.
	Send(frame []byte) error
	// SendAvailable reports how many bytes may be written right now
	// without blocking.
	SendAvailable() int
}

// UpperLayer receives connection events and in-order message deliveries.
type UpperLayer interface {
	EventFn(ev Event)
	RecvFn(metadata uint16, msg []byte)
}

type connState uint8

const (
	stateDisconnected connState = iota
	stateConnected
)

type txState uint8

const (
	txIdle txState = iota
	txSend
	txSent
	txAck
)

type txSlot struct {
	state        txState
	frameID      uint16
	sendCount    int
	lastSendTime int64
	frameBytes   []byte
}

type rxState uint8

const (
	rxIdle rxState = iota
	rxAck
	rxNack
)

type rxSlot struct {
	state    rxState
	frameID  uint16
	metadata uint16
	payload  []byte
}

// maxRetries is the fixed retransmit cap before a forced reset.
const maxRetries = 25

// resetRetryMultiple sets the RESET(0) retry interval as a multiple of
// the data retransmit timeout.
const resetRetryMultiple = 16
