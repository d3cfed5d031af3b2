package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Outcome reports which channel a Deliver call used.
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFallback:
		return "fallback"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Notifier is the out-of-band delivery path used when a client has no live
// session.
type Notifier interface {
	Notify(ctx context.Context, id string, message json.RawMessage) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, id string, message json.RawMessage) error

func (f NotifierFunc) Notify(ctx context.Context, id string, message json.RawMessage) error {
	return f(ctx, id, message)
}

// Router sends each message on the best available channel: the live session
// if there is one, otherwise the fallback notifier. Never both.
type Router struct {
	registry *Registry
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
}

// NewRouter creates a router over registry. A nil notifier makes every
// fallback a logged no-op.
func NewRouter(registry *Registry, notifier Notifier, metrics *Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Deliver routes message to id. The returned error is non-nil only for
// malformed input; liveness problems are reported through the Outcome.
func (r *Router) Deliver(ctx context.Context, id string, message json.RawMessage) (Outcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, ErrEmptyID
	}
	if len(message) == 0 {
		return 0, ErrEmptyMessage
	}

	if s, ok := r.registry.Lookup(id); ok {
		err := s.Write(message)
		if err == nil {
			r.metrics.delivered(OutcomeDelivered)
			return OutcomeDelivered, nil
		}
		if !errors.Is(err, ErrSessionClosed) {
			r.logger.Warn("live delivery failed; falling back", "client_id", id, "session", s.Instance(), "error", err)
		}
	}

	r.fallback(ctx, id, message)
	r.metrics.delivered(OutcomeFallback)
	return OutcomeFallback, nil
}

func (r *Router) fallback(ctx context.Context, id string, message json.RawMessage) {
	if r.notifier == nil {
		r.logger.Warn("no fallback notifier configured", "client_id", id)
		return
	}
	if err := r.notifier.Notify(ctx, id, message); err != nil {
		r.metrics.fallbackFailed()
		r.logger.Error("fallback notify failed", "client_id", id, "error", err)
	}
}
