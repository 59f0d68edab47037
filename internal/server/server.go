// Package server exposes dialogue generation, audio downloads, the voice
// test harness and telemetry over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/daikw/banter/internal/debuglog"
	"github.com/daikw/banter/internal/generate"
	"github.com/daikw/banter/internal/harness"
	"github.com/daikw/banter/internal/metrics"
	"github.com/daikw/banter/internal/persona"
	"github.com/daikw/banter/internal/voice"
	"github.com/daikw/banter/internal/voice/provider"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 1 << 20
)

// PersonaLoader loads persona templates by name.
type PersonaLoader interface {
	Load(name string) (*persona.Template, error)
}

// Deps are the services the server routes to. Harness, Debug and Metrics
// are optional; their routes are not registered when nil.
type Deps struct {
	Registry        *provider.Registry
	Orchestrator    *generate.Orchestrator
	Personas        PersonaLoader
	Profiles        *voice.ProfileTable
	DefaultProvider string

	Harness *harness.Harness
	Debug   *debuglog.Log
	Metrics *metrics.Metrics
}

// Server is the HTTP API.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	mu     sync.Mutex
	server *http.Server
}

// New creates a server and registers its routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/providers", s.handleProviders)
	s.mux.HandleFunc("GET /api/providers/{name}/voices", s.handleVoices)

	s.mux.HandleFunc("POST /api/conversations", s.handleGenerate)
	s.mux.HandleFunc("GET /api/conversations/{id}", s.handleConversation)
	s.mux.HandleFunc("GET /api/conversations/{id}/audio", s.handleConversationAudio)
	s.mux.HandleFunc("GET /api/audio/{handle}", s.handleAudio)

	if s.deps.Harness != nil {
		s.mux.HandleFunc("GET /api/voice-tests/models", s.handleModels)
		s.mux.HandleFunc("POST /api/voice-tests", s.handleStartVoiceTest)
		s.mux.HandleFunc("GET /api/voice-tests/{id}", s.handleVoiceTest)
		s.mux.HandleFunc("GET /api/voice-tests/{id}/export", s.handleExportVoiceTest)
	}
	if s.deps.Debug != nil {
		s.mux.HandleFunc("GET /api/debug/log", s.handleDebugLog)
		s.mux.HandleFunc("DELETE /api/debug/log", s.handleClearDebugLog)
	}
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("HTTP request")
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if s.deps.Orchestrator != nil {
		s.deps.Orchestrator.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

// resolver builds the voice lookup for a persona. An empty name uses the
// profile table alone.
func (s *Server) resolver(name string) (*voice.Resolver, *persona.Template, error) {
	if name == "" || s.deps.Personas == nil {
		return voice.NewResolver(s.deps.Profiles, voice.PersonaVoices{}), nil, nil
	}
	tmpl, err := s.deps.Personas.Load(name)
	if err != nil {
		return nil, nil, err
	}
	return voice.NewResolver(s.deps.Profiles, tmpl.VoiceMaps()), tmpl, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
