// Package server exposes a Sender over a small JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"wppbot/internal/journal"
	"wppbot/internal/wpp"
)

// Attachments arrive base64 encoded, so the limit is well above a plain
// JSON request.
const maxBodySize = 64 << 20

// History lists past dispatches.
type History interface {
	List(ctx context.Context, f journal.Filter) ([]wpp.Record, error)
}

// HealthChecker reports whether the chat page can take sends.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type Server struct {
	sender  *wpp.Sender
	history History
	health  HealthChecker
	apiKey  string
	limiter *RateLimiter
	maxWait time.Duration
	grace   time.Duration
	addr    string
	logger  *slog.Logger
	handler http.Handler
	server  *http.Server

	inflight sync.WaitGroup
}

type Config struct {
	Host   string
	Port   int
	APIKey string

	Sender  *wpp.Sender
	History History       // optional; /api/history answers 404 without it
	Health  HealthChecker // optional
	Metrics http.Handler  // optional
	// MetricsPath defaults to /metrics.
	MetricsPath string
	// Limiter paces the send routes; nil leaves them unthrottled. A request
	// waits at most MaxWait (default 30s) for its turn.
	Limiter *RateLimiter
	MaxWait time.Duration
	// ShutdownGrace bounds how long in-flight requests get to finish once
	// the server stops. Defaults to 30s.
	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	s := &Server{
		sender:  cfg.Sender,
		history: cfg.History,
		health:  cfg.Health,
		apiKey:  cfg.APIKey,
		limiter: cfg.Limiter,
		maxWait: cfg.MaxWait,
		grace:   cfg.ShutdownGrace,
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		logger:  cfg.Logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/send-text", s.auth(s.throttle(s.handleSendText)))
	mux.HandleFunc("POST /api/send-link", s.auth(s.throttle(s.handleSendLink)))
	mux.HandleFunc("POST /api/send-message", s.auth(s.throttle(s.handleSendMessage)))
	mux.HandleFunc("POST /api/send-image", s.auth(s.throttle(s.handleSendImage)))
	mux.HandleFunc("POST /api/send-file", s.auth(s.throttle(s.handleSendFile)))
	mux.HandleFunc("POST /api/send-location", s.auth(s.throttle(s.handleSendLocation)))
	mux.HandleFunc("POST /api/send-vcard", s.auth(s.throttle(s.handleSendVcard)))
	mux.HandleFunc("POST /api/send-list", s.auth(s.throttle(s.handleSendList)))
	mux.HandleFunc("POST /api/reply", s.auth(s.throttle(s.handleReply)))
	mux.HandleFunc("POST /api/forward", s.auth(s.throttle(s.handleForward)))
	mux.HandleFunc("POST /api/seen", s.auth(s.handleSeen))
	mux.HandleFunc("POST /api/typing", s.auth(s.handleTyping))
	mux.HandleFunc("POST /api/presence", s.auth(s.handlePresence))
	mux.HandleFunc("POST /api/chat-state", s.auth(s.handleChatState))
	mux.HandleFunc("GET /api/history", s.auth(s.handleHistory))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, cfg.Metrics)
	}
	s.handler = s.track(mux)
	return s
}

// Handler returns the routed API, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled. It returns only after every
// in-flight request has finished, so callers may close the sender's
// recorders right after. Requests still running after the grace period
// have their connections closed, which cancels their page round trips.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second, // two-phase sends wait on the page twice
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("API server started", "addr", ln.Addr().String(), "auth", s.apiKey != "")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown expired, closing connections", "err", err)
			s.server.Close()
		}
	}()

	err := s.server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	s.inflight.Wait()
	s.logger.Info("API server stopped")
	return nil
}

// track counts requests so Serve can wait for them.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inflight.Add(1)
		defer s.inflight.Done()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.health.Healthy(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.sender.SessionName()})
}

// decode reads a size limited JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps sender errors onto HTTP statuses. Local validation
// failures are the caller's fault, page failures are upstream's.
func statusOf(err error) int {
	var de *wpp.DispatchError
	switch {
	case errors.Is(err, wpp.ErrNotAttempted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &de):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// reply writes the result of a sender call.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		status := statusOf(err)
		s.logger.Warn("request failed", "path", r.URL.Path, "status", status, "err", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func requireField(w http.ResponseWriter, name, value string) bool {
	if strings.TrimSpace(value) == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", name))
		return false
	}
	return true
}
