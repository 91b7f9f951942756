package transport

import (
	"context"

	"github.com/fitterbap/fitterbap-go/datalink"
	"github.com/fitterbap/fitterbap-go/internal/xlog"
	"github.com/fitterbap/fitterbap-go/internal/xsync"
)

// EventFn is a per-port connection-event callback.
type EventFn func(userData any, ev datalink.Event)

// RecvFn is a per-port message-delivery callback.
type RecvFn func(userData any, seq Seq, portData uint8, msg []byte)

type portEntry struct {
	registered bool
	eventFn    EventFn
	recvFn     RecvFn
	userData   any
	metaString string
}

// LowerLayer is the datalink surface the transport sends through.
// *datalink.Datalink satisfies this directly.
type LowerLayer interface {
	TrySend(metadata uint16, msg []byte) error
	Send(ctx context.Context, metadata uint16, msg []byte) error
}

// Transport demultiplexes a single datalink connection into up to
// PortMax+1 independent logical ports, plus a default catch-all. It
// implements datalink.UpperLayer, so RegisterUpperLayer(transport) wires
// it directly beneath a *datalink.Datalink.
type Transport struct {
	mu  xsync.Mutex
	ll  LowerLayer
	log xlog.Logger

	ports [portCount]portEntry
	def   portEntry

	lastEvent    datalink.Event
	hasLastEvent bool
}

// New returns a Transport that sends through ll.
func New(ll LowerLayer) *Transport {
	return &Transport{mu: xsync.NoOp, ll: ll}
}

// SetLogger attaches a logger for port-registration and routing
// diagnostics. The zero value (xlog.Nop()) discards everything.
func (tr *Transport) SetLogger(l xlog.Logger) {
	tr.mu.Lock()
	tr.log = l
	tr.mu.Unlock()
}

// SetMutex registers the lock guarding the port table against concurrent
// registration while the driver task is dispatching events.
func (tr *Transport) SetMutex(mu xsync.Mutex) {
	if mu == nil {
		mu = xsync.NoOp
	}
	tr.mu = mu
}

// PortRegister installs handlers for portID. If a connection state is
// already known, it is replayed to ev immediately so a late registrant
// doesn't miss a connection that happened before it subscribed.
func (tr *Transport) PortRegister(portID uint8, ev EventFn, recv RecvFn, userData any, metaString string) error {
	if portID > PortMax {
		return ErrParameterInvalid
	}
	tr.mu.Lock()
	tr.ports[portID] = portEntry{registered: true, eventFn: ev, recvFn: recv, userData: userData, metaString: metaString}
	tr.replayLastEvent(ev, userData)
	tr.mu.Unlock()
	return nil
}

// DefaultPortRegister installs the catch-all handler for traffic
// addressed to an unregistered port_id.
func (tr *Transport) DefaultPortRegister(ev EventFn, recv RecvFn, userData any) {
	tr.mu.Lock()
	tr.def = portEntry{registered: true, eventFn: ev, recvFn: recv, userData: userData}
	tr.replayLastEvent(ev, userData)
	tr.mu.Unlock()
}

func (tr *Transport) replayLastEvent(ev EventFn, userData any) {
	if tr.hasLastEvent && ev != nil {
		ev(userData, tr.lastEvent)
	}
}

// Send builds the metadata field and forwards to the datalink's Send,
// busy-waiting (per datalink.Send's contract) until the frame fits,
// ctx is done, or the link is unavailable.
func (tr *Transport) Send(ctx context.Context, portID uint8, seq Seq, portData uint8, msg []byte) error {
	if portID > PortMax {
		return ErrParameterInvalid
	}
	return tr.ll.Send(ctx, PackMetadata(portID, seq, portData), msg)
}

// TrySend is Send's non-blocking counterpart — see datalink.TrySend's
// contract for why the driver task must use this instead of Send.
func (tr *Transport) TrySend(portID uint8, seq Seq, portData uint8, msg []byte) error {
	if portID > PortMax {
		return ErrParameterInvalid
	}
	return tr.ll.TrySend(PackMetadata(portID, seq, portData), msg)
}

// EventFn implements datalink.UpperLayer: it caches the connection state
// and fans it out to every registered port plus the default port.
func (tr *Transport) EventFn(ev datalink.Event) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.lastEvent = ev
	tr.hasLastEvent = true
	for i := range tr.ports {
		if tr.ports[i].registered && tr.ports[i].eventFn != nil {
			tr.ports[i].eventFn(tr.ports[i].userData, ev)
		}
	}
	if tr.def.registered && tr.def.eventFn != nil {
		tr.def.eventFn(tr.def.userData, ev)
	}
}

// RecvFn implements datalink.UpperLayer: it unpacks metadata and routes
// the message to its port's handler, falling back to the default port
// for traffic addressed to an unregistered port_id.
func (tr *Transport) RecvFn(metadata uint16, msg []byte) {
	portID, seq, portData := UnpackMetadata(metadata)

	tr.mu.Lock()
	e := tr.ports[portID]
	if !e.registered {
		e = tr.def
	}
	tr.mu.Unlock()

	if e.recvFn == nil {
		tr.log.Debug().Uint8("portId", portID).Int("len", len(msg)).Msg("dropping message, no handler registered")
		return
	}
	e.recvFn(e.userData, seq, portData, msg)
}

// InjectEvent lets a higher layer synthesize TRANSPORT_CONNECTED or
// APP_CONNECTED and have it fan out exactly like a real datalink event.
func (tr *Transport) InjectEvent(ev datalink.Event) {
	tr.EventFn(ev)
}
