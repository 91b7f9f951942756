package serial

import (
	"bytes"
	"testing"
)

type mockPort struct {
	bytes.Buffer
}

func (m *mockPort) Close() error { return nil }
func (m *mockPort) Flush() error { return nil }

func TestAdapterSendWritesWholeFrame(t *testing.T) {
	mp := &mockPort{}
	a := NewAdapter(mp)

	if err := a.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := mp.Bytes(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("wrote %v, want [1 2 3]", got)
	}
}

func TestAdapterSendAvailableIsFixedBudget(t *testing.T) {
	a := NewAdapter(&mockPort{})
	if a.SendAvailable() != DefaultSendBudget {
		t.Fatalf("SendAvailable = %d, want %d", a.SendAvailable(), DefaultSendBudget)
	}
}
