package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"sse-relay/go-backend/internal/delivery"
)

var (
	sseDataPrefix = []byte("data: ")
	sseKeepalive  = []byte(": keepalive\n\n")
)

// streamSink frames payloads as Server-Sent Events on an open response.
// Every write arms a deadline so a stalled client fails instead of blocking.
type streamSink struct {
	w            io.Writer
	rc           *http.ResponseController
	writeTimeout time.Duration
}

func newStreamSink(w http.ResponseWriter, writeTimeout time.Duration) *streamSink {
	return &streamSink{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

func (s *streamSink) WriteMessage(payload []byte) error {
	s.armDeadline()
	if _, err := s.w.Write(encodeSSEData(payload)); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *streamSink) Ping() error {
	s.armDeadline()
	if _, err := s.w.Write(sseKeepalive); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *streamSink) armDeadline() {
	if s.writeTimeout <= 0 {
		return
	}
	// ErrNotSupported from recorders and HTTP/2 shims is fine: writes are
	// then bounded by the server's own timeouts.
	_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
}

func (s *streamSink) clearDeadline() {
	_ = s.rc.SetWriteDeadline(time.Time{})
}

// encodeSSEData renders one event: each payload line gets its own data:
// field and the event ends with a blank line.
func encodeSSEData(payload []byte) []byte {
	var b bytes.Buffer
	for _, line := range bytes.Split(payload, []byte("\n")) {
		b.Write(sseDataPrefix)
		b.Write(bytes.TrimSuffix(line, []byte("\r")))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "client id is required", http.StatusBadRequest)
		return
	}
	release, allowed := s.streams.acquire(remoteHost(r))
	if !allowed {
		http.Error(w, "too many open streams", http.StatusTooManyRequests)
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sink := newStreamSink(w, s.opts.WriteTimeout)
	defer sink.clearDeadline()

	session, err := s.registry.Open(id, sink)
	switch {
	case err == nil:
	case errors.Is(err, delivery.ErrAlreadyConnected):
		http.Error(w, "client already connected", http.StatusConflict)
		return
	case errors.Is(err, delivery.ErrWriteFailed):
		s.logger.Info("client went away during handshake", "client_id", id, "error", err)
		return
	default:
		s.logger.Error("open session failed", "client_id", id, "error", err)
		http.Error(w, "could not open stream", http.StatusInternalServerError)
		return
	}
	// Runs on every exit path: removes the registry entry and waits out any
	// in-flight write before the response writer goes away.
	defer session.Close(delivery.ErrClientGone)

	s.logger.Info("client connected", "client_id", id, "session", session.Instance(), "remote_ip", remoteHost(r))

	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-session.Done():
			return
		case <-heartbeat.C:
			if err := session.Ping(); err != nil {
				return
			}
		}
	}
}
