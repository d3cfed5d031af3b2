package delivery

import "errors"

var (
	ErrEmptyID          = errors.New("client id is required")
	ErrEmptyMessage     = errors.New("message is required")
	ErrNilSink          = errors.New("session sink is nil")
	ErrNilSession       = errors.New("session is nil")
	ErrSessionClosed    = errors.New("session is closed")
	ErrAlreadyConnected = errors.New("client already has a live session")
	ErrWriteFailed      = errors.New("session write failed")

	// Close causes.
	ErrClientGone      = errors.New("client disconnected")
	ErrSessionReplaced = errors.New("session replaced by a newer connection")
	ErrUnregistered    = errors.New("session unregistered")
	ErrShutdown        = errors.New("server shutting down")
)

// closeReason maps a close cause to a low-cardinality metric label.
func closeReason(cause error) string {
	switch {
	case errors.Is(cause, ErrClientGone):
		return "client_gone"
	case errors.Is(cause, ErrSessionReplaced):
		return "replaced"
	case errors.Is(cause, ErrUnregistered):
		return "unregistered"
	case errors.Is(cause, ErrShutdown):
		return "shutdown"
	case errors.Is(cause, ErrWriteFailed):
		return "write_failed"
	default:
		return "other"
	}
}
