package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var errSinkBroken = errors.New("broken pipe")

type recordingSink struct {
	mu     sync.Mutex
	frames []string
	pings  int
	fail   bool
}

func (s *recordingSink) WriteMessage(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSinkBroken
	}
	s.frames = append(s.frames, string(payload))
	return nil
}

func (s *recordingSink) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSinkBroken
	}
	s.pings++
	return nil
}

func (s *recordingSink) breakSink() {
	s.mu.Lock()
	s.fail = true
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

type notifyCall struct {
	id      string
	message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, id string, message json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{id: id, message: string(message)})
	return n.err
}

func (n *recordingNotifier) snapshot() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
