// Package server exposes the dispatcher over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
)

const maxRequestBytes = 1 << 20

// DefaultAllowedOrigin is the front-end origin allowed when none is configured.
const DefaultAllowedOrigin = "http://localhost:8000"

// Decomposer is the part of the dispatcher the server needs.
type Decomposer interface {
	Decompose(ctx context.Context, req decomposer.Request) decomposer.Envelope
	Registry() *decomposer.Registry
}

// Server serves /decompose, /models and /healthz.
type Server struct {
	dispatcher Decomposer
	log        *zap.Logger
	origins    []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithAllowedOrigins sets the CORS origins. An empty list disables CORS.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a Server around dispatcher.
func New(dispatcher Decomposer, opts ...Option) *Server {
	s := &Server{
		dispatcher: dispatcher,
		log:        zap.NewNop(),
		origins:    []string{DefaultAllowedOrigin},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	// cors treats an empty origin list as allow-all.
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}

	r.Post("/decompose", s.handleDecompose)
	r.Get("/models", s.handleModels)
	r.Get("/healthz", s.handleHealth)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleDecompose(w http.ResponseWriter, r *http.Request) {
	var req decomposer.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		// An undecodable body never becomes a dispatch, so it has no request
		// id and no audit record.
		respondJSON(w, http.StatusBadRequest, decomposer.Envelope{
			Status:  decomposer.StatusError,
			Message: "invalid request: malformed body: " + err.Error(),
			Kind:    decomposer.ErrorKindInvalidRequest,
		})
		return
	}

	env := s.dispatcher.Decompose(r.Context(), req)
	respondJSON(w, statusFor(env), env)
}

type modelsResponse struct {
	Default string             `json:"default"`
	Models  []decomposer.Entry `json:"models"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, modelsResponse{
		Default: decomposer.DefaultModel,
		Models:  s.dispatcher.Registry().Entries(),
	})
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an envelope to its HTTP status.
func statusFor(env decomposer.Envelope) int {
	if env.Succeeded() {
		return http.StatusOK
	}
	switch env.Kind {
	case decomposer.ErrorKindInvalidRequest, decomposer.ErrorKindUnknownModel:
		return http.StatusBadRequest
	case decomposer.ErrorKindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
