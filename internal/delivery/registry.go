package delivery

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 32

// Policy decides what Register does when the id already has a live session.
type Policy int

const (
	// PolicyReplace closes the prior session after installing the new one.
	PolicyReplace Policy = iota
	// PolicyReject refuses the new session and keeps the prior one.
	PolicyReject
)

func (p Policy) String() string {
	switch p {
	case PolicyReplace:
		return "replace"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParsePolicy(raw string) (Policy, error) {
	switch raw {
	case "", "replace":
		return PolicyReplace, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyReplace, fmt.Errorf("unknown reconnect policy %q", raw)
	}
}

type RegistryOption func(*Registry)

func WithPolicy(p Policy) RegistryOption {
	return func(r *Registry) { r.policy = p }
}

func WithShards(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.shardCount = n
		}
	}
}

func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry maps client ids to their live session. Keys are spread over
// independently locked shards; all updates to one id go through the same
// shard mutex.
type Registry struct {
	shards     []*registryShard
	shardCount int
	policy     Policy
	metrics    *Metrics
	logger     *slog.Logger
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry; without options it uses the replace
// policy and 32 shards.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		shardCount: defaultShardCount,
		policy:     PolicyReplace,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.shards = make([]*registryShard, r.shardCount)
	for i := range r.shards {
		r.shards[i] = &registryShard{sessions: make(map[string]*Session)}
	}
	return r
}

// Policy reports the collision policy applied by Register.
func (r *Registry) Policy() Policy {
	return r.policy
}

func (r *Registry) shardFor(id string) *registryShard {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

// Open creates a session for id, registers it and writes the connection
// acknowledgment. The session's write lock is held from registration until
// the ack is on the wire, so no delivery can precede it.
func (r *Registry) Open(id string, sink Sink) (*Session, error) {
	s, err := NewSession(id, sink)
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	if err := r.Register(s); err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	err = s.sink.WriteMessage(AckMessage)
	s.writeMu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		s.Close(err)
		return nil, err
	}
	return s, nil
}

// Register installs s as the authoritative session for its id, applying the
// registry's collision policy.
func (r *Registry) Register(s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	sh := r.shardFor(s.id)
	sh.mu.Lock()
	prev, exists := sh.sessions[s.id]
	if exists && prev == s {
		sh.mu.Unlock()
		return nil
	}
	if exists && r.policy == PolicyReject {
		sh.mu.Unlock()
		return ErrAlreadyConnected
	}
	// Lock order is shard then session; Close calls release only after
	// dropping stateMu.
	s.stateMu.Lock()
	if s.closed.Load() {
		s.stateMu.Unlock()
		sh.mu.Unlock()
		return ErrSessionClosed
	}
	s.onClose = r.release
	sh.sessions[s.id] = s
	s.stateMu.Unlock()
	sh.mu.Unlock()

	r.metrics.sessionOpened()
	r.logger.Info("session registered", "client_id", s.id, "session", s.instance, "replaced", exists)
	if exists {
		prev.Close(ErrSessionReplaced)
	}
	return nil
}

// Unregister removes and closes the session for id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if ok {
		s.Close(ErrUnregistered)
	}
}

// Lookup returns the live session for id, if any.
func (r *Registry) Lookup(id string) (*Session, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	return s, ok
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// CloseAll closes every registered session with cause.
func (r *Registry) CloseAll(cause error) int {
	sessions := make([]*Session, 0)
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			sessions = append(sessions, s)
		}
		sh.mu.RUnlock()
	}
	closed := 0
	for _, s := range sessions {
		if s.Close(cause) {
			closed++
		}
	}
	return closed
}

// release runs once per registered session, from inside its close
// transition. It only deletes the entry if it still points at s.
func (r *Registry) release(s *Session, cause error) {
	sh := r.shardFor(s.id)
	sh.mu.Lock()
	if cur, ok := sh.sessions[s.id]; ok && cur == s {
		delete(sh.sessions, s.id)
	}
	sh.mu.Unlock()

	r.metrics.sessionClosed(closeReason(cause))
	r.logger.Info("session closed", "client_id", s.id, "session", s.instance, "reason", cause.Error())
}
