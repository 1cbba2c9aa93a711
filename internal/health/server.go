// Package health exposes the probe surface: process liveness, readiness
// derived from the IRC session state, a full status snapshot and the
// Prometheus metrics endpoint. Handlers only read the session's atomic
// snapshot, so a wedged connection can never stall a probe.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ircwatch/internal/irc"
	logx "ircwatch/pkg/logx"
)

type Config struct {
	Addr string // default ":8080"

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SnapshotFunc supplies the current session view. It must be non-blocking.
type SnapshotFunc func() irc.Snapshot

type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	snapshot SnapshotFunc
	version  string
	started  time.Time

	ln  net.Listener
	srv *http.Server
}

func NewServer(cfg Config, snapshot SnapshotFunc, version string, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, snapshot: snapshot, version: version, log: log}
}

// Start binds the listener and serves in a background goroutine. Binding
// happens synchronously so a bad address fails startup instead of being
// discovered by the first probe.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.ln = ln
	s.srv = srv
	s.started = time.Now()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health server stopped with error", logx.Err(err))
		}
	}()

	s.log.Info("health server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down, honoring the ctx deadline.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
}

// Addr reports the bound listen address, e.g. for tests using ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// handleHealthz is pure liveness: the process answering is the check.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Ready bool      `json:"ready"`
	State irc.State `json:"state"`
	Since time.Time `json:"since"`
}

// handleReadyz answers 200 only while the session sits in the monitored
// channel; reconnect loops show up as 503 so supervisors can alert.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	sn := s.snapshot()
	resp := readyResponse{Ready: sn.Joined(), State: sn.State, Since: sn.Since}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type statusResponse struct {
	irc.Snapshot
	Version           string `json:"version,omitempty"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	CooldownRemaining string `json:"cooldown_remaining,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sn := s.snapshot()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	resp := statusResponse{
		Snapshot:      sn,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(started).Seconds()),
	}
	if !sn.CooldownUntil.IsZero() {
		if rem := time.Until(sn.CooldownUntil); rem > 0 {
			resp.CooldownRemaining = rem.Round(time.Second).String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
