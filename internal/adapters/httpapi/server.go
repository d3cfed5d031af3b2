package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"sse-relay/go-backend/internal/delivery"
	"sse-relay/go-backend/internal/platform/ratelimiter"
)

const (
	statusSentLive = "Message sent via SSE"
	statusFallback = "Client offline, push notification sent"
)

type Options struct {
	Addr               string
	AllowedOrigins     []string
	MaxSendBytes       int64
	StreamMaxGlobal    int
	StreamMaxPerClient int
	SendRPS            float64
	SendBurst          int
	WriteTimeout       time.Duration
	HeartbeatInterval  time.Duration
	ShutdownTimeout    time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxSendBytes <= 0 {
		o.MaxSendBytes = 1 << 20
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 20 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
}

// Server is the HTTP transport: it opens SSE streams on connect and hands
// send requests to the delivery router.
type Server struct {
	httpServer  *http.Server
	registry    *delivery.Registry
	router      *delivery.Router
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	opts        Options
	streams     *streamLimiter
	sendLimiter *ratelimiter.MapLimiter
}

// NewServer wires the HTTP routes; the listener is only opened by Run.
func NewServer(opts Options, registry *delivery.Registry, router *delivery.Router, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry:    registry,
		router:      router,
		gatherer:    gatherer,
		logger:      logger,
		opts:        opts,
		streams:     newStreamLimiter(opts.StreamMaxGlobal, opts.StreamMaxPerClient),
		sendLimiter: ratelimiter.New(opts.SendRPS, opts.SendBurst, 10*time.Minute),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Shutdown waits for active handlers; streams only end once their
	// sessions are closed. Hooks run after the listeners stop accepting.
	s.httpServer.RegisterOnShutdown(func() {
		closed := s.registry.CloseAll(delivery.ErrShutdown)
		s.logger.Info("closed live sessions for shutdown", "count", closed)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /sse/{id}", s.handleConnect)
	mux.HandleFunc("POST /send/{id}", s.handleSend)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Last-Event-ID"},
	})
	return c.Handler(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", "addr", s.opts.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		s.registry.CloseAll(delivery.ErrShutdown)
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
		"policy":   s.registry.Policy().String(),
		"streams":  s.streams.open(),
	})
}

type sendRequest struct {
	Message json.RawMessage `json:"message"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, delivery.ErrEmptyID.Error())
		return
	}
	if !s.sendLimiter.Allow(id, time.Now()) {
		writeError(w, http.StatusTooManyRequests, "send rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxSendBytes)
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := bytes.TrimSpace(req.Message)
	if len(message) == 0 || bytes.Equal(message, []byte("null")) {
		writeError(w, http.StatusBadRequest, delivery.ErrEmptyMessage.Error())
		return
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, message); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message")
		return
	}

	// A caller hanging up must not cancel a delivery that already started.
	outcome, err := s.router.Deliver(context.WithoutCancel(r.Context()), id, compact.Bytes())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := sendResponse{Status: statusSentLive, Outcome: outcome.String()}
	if outcome == delivery.OutcomeFallback {
		resp.Status = statusFallback
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
