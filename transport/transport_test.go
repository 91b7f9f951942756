package transport

import (
	"context"
	"testing"

	"github.com/fitterbap/fitterbap-go/datalink"
)

func TestPackUnpackMetadataRoundTrip(t *testing.T) {
	cases := []struct {
		portID   uint8
		seq      Seq
		portData uint8
	}{
		{0, SeqMiddle, 0},
		{63, SeqSingle, 255},
		{7, SeqStart, 42},
		{1, SeqStop, 1},
	}
	for _, c := range cases {
		m := PackMetadata(c.portID, c.seq, c.portData)
		gotPort, gotSeq, gotData := UnpackMetadata(m)
		if gotPort != c.portID || gotSeq != c.seq || gotData != c.portData {
			t.Errorf("round trip %+v => port=%d seq=%v data=%d", c, gotPort, gotSeq, gotData)
		}
	}
}

type fakeLL struct {
	sent []struct {
		metadata uint16
		msg      []byte
	}
	failTry error
}

func (f *fakeLL) TrySend(metadata uint16, msg []byte) error {
	if f.failTry != nil {
		return f.failTry
	}
	f.sent = append(f.sent, struct {
		metadata uint16
		msg      []byte
	}{metadata, append([]byte(nil), msg...)})
	return nil
}

func (f *fakeLL) Send(_ context.Context, metadata uint16, msg []byte) error {
	return f.TrySend(metadata, msg)
}

func TestSendEnforcesPortMax(t *testing.T) {
	tr := New(&fakeLL{})
	if err := tr.TrySend(PortMax+1, SeqSingle, 0, []byte("x")); err != ErrParameterInvalid {
		t.Fatalf("TrySend with port_id > PortMax = %v, want ErrParameterInvalid", err)
	}
	if err := tr.Send(context.Background(), PortMax+1, SeqSingle, 0, []byte("x")); err != ErrParameterInvalid {
		t.Fatalf("Send with port_id > PortMax = %v, want ErrParameterInvalid", err)
	}
}

func TestSendBuildsMetadataAndForwards(t *testing.T) {
	ll := &fakeLL{}
	tr := New(ll)
	if err := tr.TrySend(5, SeqStart, 9, []byte("payload")); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	if len(ll.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ll.sent))
	}
	gotPort, gotSeq, gotData := UnpackMetadata(ll.sent[0].metadata)
	if gotPort != 5 || gotSeq != SeqStart || gotData != 9 {
		t.Fatalf("metadata mismatch: port=%d seq=%v data=%d", gotPort, gotSeq, gotData)
	}
	if string(ll.sent[0].msg) != "payload" {
		t.Fatalf("msg = %q", ll.sent[0].msg)
	}
}

func TestRecvFnRoutesToRegisteredPort(t *testing.T) {
	tr := New(&fakeLL{})
	var got string
	var gotSeq Seq
	if err := tr.PortRegister(3, nil, func(_ any, seq Seq, _ uint8, msg []byte) {
		got = string(msg)
		gotSeq = seq
	}, nil, "test-port"); err != nil {
		t.Fatalf("PortRegister: %v", err)
	}

	tr.RecvFn(PackMetadata(3, SeqSingle, 0), []byte("hi"))
	if got != "hi" || gotSeq != SeqSingle {
		t.Fatalf("got msg=%q seq=%v", got, gotSeq)
	}
}

func TestRecvFnFallsBackToDefaultPort(t *testing.T) {
	tr := New(&fakeLL{})
	var got string
	tr.DefaultPortRegister(nil, func(_ any, _ Seq, _ uint8, msg []byte) {
		got = string(msg)
	}, nil)

	tr.RecvFn(PackMetadata(40, SeqSingle, 0), []byte("unrouted"))
	if got != "unrouted" {
		t.Fatalf("default port did not receive message, got %q", got)
	}
}

func TestEventFnFansOutAndCachesLastState(t *testing.T) {
	tr := New(&fakeLL{})
	var portEvents, defEvents []datalink.Event

	tr.PortRegister(1, func(_ any, ev datalink.Event) {
		portEvents = append(portEvents, ev)
	}, nil, nil, "")
	tr.DefaultPortRegister(func(_ any, ev datalink.Event) {
		defEvents = append(defEvents, ev)
	}, nil, nil)

	tr.EventFn(datalink.EventConnected)
	if len(portEvents) != 1 || portEvents[0] != datalink.EventConnected {
		t.Fatalf("port events = %v", portEvents)
	}
	if len(defEvents) != 1 || defEvents[0] != datalink.EventConnected {
		t.Fatalf("default events = %v", defEvents)
	}

	// A port registered after the event fires gets it replayed immediately.
	var replayed []datalink.Event
	tr.PortRegister(2, func(_ any, ev datalink.Event) {
		replayed = append(replayed, ev)
	}, nil, nil, "")
	if len(replayed) != 1 || replayed[0] != datalink.EventConnected {
		t.Fatalf("late registrant replay = %v, want [connected]", replayed)
	}
}

func TestInjectEventFansOutSyntheticEvents(t *testing.T) {
	tr := New(&fakeLL{})
	var got datalink.Event
	tr.DefaultPortRegister(func(_ any, ev datalink.Event) { got = ev }, nil, nil)

	tr.InjectEvent(datalink.EventAppConnected)
	if got != datalink.EventAppConnected {
		t.Fatalf("got %v, want app_connected", got)
	}
}
