// Package httpadapter exposes the query API plus health, readiness, and
// metrics endpoints. Handlers are thin: parse parameters, call the service,
// shape JSON. The service guarantees well-formed responses, so no handler
// ever surfaces a storage error to a client.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/floodwatch/floodcounts/internal/domain"
	"github.com/floodwatch/floodcounts/internal/service"
)

const dateLayout = "2006-01-02"

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// QueryService is the serving surface backing the API routes.
type QueryService interface {
	Current(ctx context.Context) domain.CountRecord
	Historical(ctx context.Context, start, end time.Time, page, perPage int) []domain.CountRecord
	WeeklySummary(ctx context.Context, now time.Time) service.Summary
}

// Server exposes the count query API over HTTP.
type Server struct {
	httpServer *http.Server
	svc        QueryService
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API, health, readiness, and
// metrics routes. Pass a nil clock to use the shared domain time source.
func NewServer(addr string, svc QueryService, ready ReadinessChecker, clock clockwork.Clock, logger *slog.Logger) *Server {
	if clock == nil {
		clock = domain.Clock()
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		clock:  clock,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/current", s.handleCurrent)
	mux.HandleFunc("GET /api/historical", s.handleHistorical)
	mux.HandleFunc("GET /api/summary", s.handleSummary)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Current(r.Context()))
}

// handleHistorical serves /api/historical?start_date&end_date&page&per_page.
// Dates are YYYY-MM-DD; the window defaults to the trailing 24 hours.
func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	end := s.clock.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if raw := q.Get("start_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date, want YYYY-MM-DD"})
			return
		}
		start = parsed
	}
	if raw := q.Get("end_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date, want YYYY-MM-DD"})
			return
		}
		end = parsed
	}

	page, ok := parsePositiveInt(q.Get("page"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page, want integer >= 1"})
		return
	}
	perPage, ok := parsePositiveInt(q.Get("per_page"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid per_page, want integer >= 1"})
		return
	}

	writeJSON(w, http.StatusOK, s.svc.Historical(r.Context(), start, end, page, perPage))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.WeeklySummary(r.Context(), s.clock.Now().UTC()))
}

// parsePositiveInt parses an optional positive integer parameter. An absent
// parameter is valid and parses to zero (feature not requested).
func parsePositiveInt(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
