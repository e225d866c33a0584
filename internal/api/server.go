//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package api serves the report aggregates and the enrichment workflow as
// JSON over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/filter"
	"github.com/pgEdge/cstore-insights/internal/logging"
	"github.com/pgEdge/cstore-insights/internal/reports"
	"github.com/pgEdge/cstore-insights/pkg/version"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server holds the state shared by every handler.
type Server struct {
	session  *filter.Session
	pipeline *enrich.Pipeline
	defaults reports.Options
	log      zerolog.Logger

	// base bounds stage runs; it is cancelled when the server shuts down.
	base context.Context
}

// NewServer creates a Server. defaults supplies report parameters that a
// request does not set.
func NewServer(session *filter.Session, pipeline *enrich.Pipeline, defaults reports.Options) *Server {
	return &Server{
		session:  session,
		pipeline: pipeline,
		defaults: defaults,
		log:      logging.With("api"),
		base:     context.Background(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/reports", s.handleListReports)
		r.Get("/overview", s.handleReport("overview"))
		r.Get("/top-products", s.handleReport("top-products"))
		r.Get("/beverages", s.handleReport("beverages"))
		r.Get("/payments", s.handleReport("payments"))
		r.Get("/demographics", s.handleReport("demographics"))

		r.Get("/enrichment", s.handleEnrichmentStatus)
		r.Post("/enrichment/{stage}", s.handleEnrichmentStage)
		r.Delete("/enrichment/cache", s.handleEnrichmentClear)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, filter.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, reports.ErrUnknownReport):
		return http.StatusNotFound
	case errors.Is(err, enrich.ErrStageNotReady), errors.Is(err, enrich.ErrEnrichmentIncomplete):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	ev := s.log.Warn()
	if code >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("Request failed")
	writeError(w, code, err.Error())
}
