// Package server exposes the scoring orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/gzhole/kubeguard/internal/agent"
	"github.com/gzhole/kubeguard/internal/scoring"
)

const (
	// DefaultMaxBatch caps the number of lines accepted by one /score request.
	DefaultMaxBatch = 500
	maxBodyBytes    = 1 << 20
)

// Scorer is the orchestrator surface the server needs.
type Scorer interface {
	ScoreAll(ctx context.Context, lines []string) scoring.Response
	Health() scoring.Health
}

// EventSource provides the agent event feed served on /events.
type EventSource interface {
	Snapshot() []agent.Event
}

// Config holds the server's dependencies. Scorer or Events may be nil, in
// which case the matching routes answer 404.
type Config struct {
	// ListenAddr defaults to ":8000".
	ListenAddr string
	MaxBatch   int
	Scorer     Scorer
	Events     EventSource
	Metrics    http.Handler
}

// Server serves /score, /health, /events and /metrics.
type Server struct {
	cfg      Config
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

type scoreRequest struct {
	Lines *[]string `json:"lines"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	scoring.Health
}

func New(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8000"
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	return &Server{cfg: cfg}
}

// Handler returns the route mux. Useful for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfg.Scorer != nil {
		mux.HandleFunc("/score", s.handleScore)
		mux.HandleFunc("/health", s.handleHealth)
	}
	if s.cfg.Events != nil {
		mux.HandleFunc("/events", s.handleEvents)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}
	return mux
}

// ListenAddr returns the address the server is bound to, or "" before
// ListenAndServe has opened its listener.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ListenAndServe blocks until the server is shut down. A clean shutdown
// returns nil.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	log.WithField("addr", ln.Addr().String()).Info("listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Lines == nil {
		writeError(w, http.StatusBadRequest, `missing "lines"`)
		return
	}
	lines := *req.Lines
	if len(lines) > s.cfg.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("batch of %d lines exceeds limit of %d", len(lines), s.cfg.MaxBatch))
		return
	}

	resp := s.cfg.Scorer.ScoreAll(r.Context(), lines)
	log.WithFields(log.Fields{
		"lines":  len(lines),
		"source": resp.Source,
	}).Debug("scored")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Health: s.cfg.Scorer.Health()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Events.Snapshot())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
