package delivery

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AckMessage is the first payload written to every session.
var AckMessage = []byte(`{"message":"connection established"}`)

type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sink is the ordered output channel owned by one session. Implementations
// must bound how long a single write can block.
type Sink interface {
	WriteMessage(payload []byte) error
}

// Pinger is implemented by sinks that support transport-level keepalives.
type Pinger interface {
	Ping() error
}

// Session is one client's open delivery channel. Writes are serialized and
// the Open -> Closed transition happens exactly once.
type Session struct {
	id       string
	instance string
	openedAt time.Time
	sink     Sink

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
	done    chan struct{}
	cause   error

	// stateMu orders the close transition against Register publishing the
	// session; onClose is only read or written under it.
	stateMu sync.Mutex
	onClose func(*Session, error)
}

// NewSession creates an open, unregistered session writing to sink.
func NewSession(id string, sink Sink) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	return &Session{
		id:       id,
		instance: uuid.NewString(),
		openedAt: time.Now().UTC(),
		sink:     sink,
		done:     make(chan struct{}),
	}, nil
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Instance() string    { return s.instance }
func (s *Session) OpenedAt() time.Time { return s.openedAt }

func (s *Session) State() State {
	if s.closed.Load() {
		return StateClosed
	}
	return StateOpen
}

// Done is closed when the session enters StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the close cause, or nil while the session is open.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.cause
	default:
		return nil
	}
}

// Write sends one payload to the sink. A sink failure closes the session.
func (s *Session) Write(payload []byte) error {
	return s.write(func() error { return s.sink.WriteMessage(payload) })
}

// Ping writes a keepalive if the sink supports it.
func (s *Session) Ping() error {
	p, ok := s.sink.(Pinger)
	if !ok {
		return nil
	}
	return s.write(p.Ping)
}

func (s *Session) write(fn func() error) error {
	s.writeMu.Lock()
	if s.closed.Load() {
		s.writeMu.Unlock()
		return ErrSessionClosed
	}
	err := fn()
	s.writeMu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		s.Close(err)
		return err
	}
	return nil
}

// Close moves the session to StateClosed. Only the first call performs the
// transition and reports true; every call returns after any in-flight write
// has finished.
func (s *Session) Close(cause error) bool {
	if cause == nil {
		cause = ErrSessionClosed
	}
	first := false
	s.once.Do(func() {
		first = true
		s.stateMu.Lock()
		s.cause = cause
		s.closed.Store(true)
		close(s.done)
		onClose := s.onClose
		s.stateMu.Unlock()
		if onClose != nil {
			onClose(s, cause)
		}
	})
	// wait out a write that began before the transition
	s.writeMu.Lock()
	s.writeMu.Unlock()
	return first
}
