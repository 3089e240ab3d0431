// Package api exposes the HTTP admin and observability surface for the
// contact-crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
)

// Pinger reports whether the backing database is reachable. pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the queue stores.
type Server struct {
	router   chi.Router
	claims   core.ClaimStore
	retries  core.RetryQueue
	searches core.SearchQueue
	db       Pinger
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. db may be nil,
// in which case readiness only reflects process liveness.
func NewServer(claims core.ClaimStore, retries core.RetryQueue, searches core.SearchQueue, db Pinger, logger *zap.Logger) (*Server, error) {
	if claims == nil || retries == nil || searches == nil {
		return nil, errors.New("claim store, retry queue and search queue are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		claims:   claims,
		retries:  retries,
		searches: searches,
		db:       db,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search/usage", s.searchUsage)
		r.Post("/search/enqueue", s.enqueueSearch)
		r.Post("/retry/enqueue", s.enqueueRetry)
		r.Post("/employers/{employer_id}/requeue", s.requeueEmployer)
	})

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) searchUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.searches.Usage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute usage")
		return
	}
	writeJSON(w, http.StatusOK, searchUsageResponse{
		Queries:     usage.Queries,
		Cost:        usage.Cost,
		Remaining:   usage.Remaining,
		CanContinue: usage.CanContinue,
		Warning:     usage.Warning,
	})
}

func (s *Server) enqueueSearch(w http.ResponseWriter, r *http.Request) {
	var req searchEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.EmployerName == "" {
		writeError(w, http.StatusBadRequest, "employer_name required")
		return
	}
	item := core.SearchItem{
		EmployerName: req.EmployerName,
		Reference:    req.Reference,
		PostalCode:   req.PostalCode,
	}
	if err := s.searches.Enqueue(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) enqueueRetry(w http.ResponseWriter, r *http.Request) {
	var req retryEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain required")
		return
	}
	if req.Category == "" {
		req.Category = "manual"
	}
	if err := s.retries.Enqueue(r.Context(), req.Domain, req.URL, req.Category); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) requeueEmployer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "employer_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid employer id")
		return
	}
	if err := s.claims.Requeue(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "employer not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employer_id": id, "status": "requeued"})
}

type searchUsageResponse struct {
	Queries     int     `json:"queries"`
	Cost        float64 `json:"cost"`
	Remaining   float64 `json:"remaining"`
	CanContinue bool    `json:"can_continue"`
	Warning     bool    `json:"warning"`
}

type searchEnqueueRequest struct {
	EmployerName string `json:"employer_name"`
	Reference    string `json:"reference"`
	PostalCode   string `json:"postal_code"`
}

type retryEnqueueRequest struct {
	Domain   string `json:"domain"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
