package delivery

import (
	"errors"
	"testing"
)

func TestSessionPingUsesPinger(t *testing.T) {
	sink := &recordingSink{}
	s, err := NewSession("u1", sink)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if sink.pings != 1 {
		t.Fatalf("expected one ping, got %d", sink.pings)
	}

	sink.breakSink()
	if err := s.Ping(); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if s.State() != StateClosed {
		t.Fatal("failed ping should close the session")
	}
}

func TestSessionWriteAfterCloseIsRejected(t *testing.T) {
	sink := &recordingSink{}
	s, _ := NewSession("u1", sink)
	if s.Err() != nil {
		t.Fatalf("open session should have no error, got %v", s.Err())
	}
	if !s.Close(nil) {
		t.Fatal("first close should report the transition")
	}
	if s.Close(ErrShutdown) {
		t.Fatal("second close must not transition again")
	}
	if !errors.Is(s.Err(), ErrSessionClosed) {
		t.Fatalf("unexpected cause: %v", s.Err())
	}
	if err := s.Write([]byte(`1`)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("closed session wrote to its sink")
	}
}

func TestSessionInstancesAreUnique(t *testing.T) {
	a, _ := NewSession("u1", &recordingSink{})
	b, _ := NewSession("u1", &recordingSink{})
	if a.Instance() == "" || a.Instance() == b.Instance() {
		t.Fatalf("expected distinct instance ids, got %q and %q", a.Instance(), b.Instance())
	}
	if a.OpenedAt().IsZero() {
		t.Fatal("expected opened timestamp")
	}
}

func TestCloseReasonLabels(t *testing.T) {
	cases := map[error]string{
		ErrClientGone:      "client_gone",
		ErrSessionReplaced: "replaced",
		ErrUnregistered:    "unregistered",
		ErrShutdown:        "shutdown",
		ErrWriteFailed:     "write_failed",
		errors.New("x"):    "other",
	}
	for cause, want := range cases {
		if got := closeReason(cause); got != want {
			t.Fatalf("closeReason(%v) = %q, want %q", cause, got, want)
		}
	}
}
