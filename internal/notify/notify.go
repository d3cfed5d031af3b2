// Package notify provides fallback notifiers used when a client has no live
// delivery session.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"sse-relay/go-backend/internal/delivery"
)

// LogNotifier records fallback triggers in the structured log. It never fails.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier logging to logger, or slog.Default when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, id string, message json.RawMessage) error {
	n.logger.InfoContext(ctx, "client offline; push notification triggered", "client_id", id, "bytes", len(message))
	return nil
}

// Multi invokes every notifier in order and joins their errors.
type Multi []delivery.Notifier

func (m Multi) Notify(ctx context.Context, id string, message json.RawMessage) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, id, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
