// Package httpapi exposes extraction runs over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"listing-agent/internal/application/port/input"
	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
)

const maxBatchSize = 50

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxPages       int
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RequestTimeout: 15 * time.Minute,
		MaxPages:       200,
	}
}

type Server struct {
	runner  input.BatchRunner
	store   output.RunStore
	metrics http.Handler
	logger  output.LoggerPort
	cfg     Config
	router  chi.Router
}

// New wires the routes. store and metrics may be nil.
func New(runner input.BatchRunner, store output.RunStore, metrics http.Handler, logger output.LoggerPort, cfg Config) *Server {
	s := &Server{
		runner:  runner,
		store:   store,
		metrics: metrics,
		logger:  logger.WithField("component", "http_api"),
		cfg:     cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(httplog.NewLogger("listing-agent", httplog.Options{JSON: true, Concise: true})))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extractions", s.handleRun)
		r.Get("/extractions/{runID}", s.handleGetRun)
		r.Post("/batches", s.handleBatch)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type runResponse struct {
	Report *entity.RunReport `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req input.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res := s.runner.RunAll(ctx, []input.RunRequest{req})[0]
	writeJSON(w, statusFor(res), toResponse(res))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []input.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Errorf("batch must hold 1..%d jobs", maxBatchSize))
		return
	}
	for i := range reqs {
		if err := s.validate(&reqs[i]); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("job %d: %w", i, err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	results := s.runner.RunAll(ctx, reqs)
	out := make([]runResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, errors.New("run store is not configured"))
		return
	}

	report, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, output.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error("Failed to load run", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) validate(req *input.RunRequest) error {
	req.URL = strings.TrimSpace(req.URL)
	u, err := url.Parse(req.URL)
	if req.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", entity.ErrInvalidRequest)
	}
	if req.MaxPages < 0 || (s.cfg.MaxPages > 0 && req.MaxPages > s.cfg.MaxPages) {
		return fmt.Errorf("%w: max_pages must be within 0..%d", entity.ErrInvalidRequest, s.cfg.MaxPages)
	}
	return nil
}

func toResponse(res input.BatchResult) runResponse {
	out := runResponse{Report: res.Report}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// statusFor maps a run outcome: aborted runs with a report are still a
// successful response carrying partial results.
func statusFor(res input.BatchResult) int {
	switch {
	case res.Err == nil:
		return http.StatusOK
	case errors.Is(res.Err, entity.ErrInvalidRequest):
		return http.StatusBadRequest
	case res.Report != nil:
		return http.StatusOK
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
