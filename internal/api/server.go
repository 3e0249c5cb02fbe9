// Package api serves stored trials over a read-only HTTP interface for the
// analytics dashboard.
package api

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"eutrials/internal/logger"
	"eutrials/internal/models"
	"eutrials/internal/storage"
	"eutrials/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// Querier is the read side of storage.Manager.
type Querier interface {
	Connected() bool
	FindByKey(ctx context.Context, key string) models.Record
	FindByCountry(ctx context.Context, country string, limit int) []models.Record
	FindByCondition(ctx context.Context, pattern string, limit int) []models.Record
	Statistics(ctx context.Context) storage.Stats
}

// Server routes query requests to a Querier.
type Server struct {
	q        Querier
	log      *logger.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	timeout  time.Duration
}

// New creates a server. registry may be nil, in which case a fresh one is
// used; /metrics serves it.
func New(q Querier, log *logger.Logger, registry *prometheus.Registry) *Server {
	if log == nil {
		log = logger.Discard()
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trials_api_requests_total",
			Help: "API requests served, by route and status code.",
		},
		[]string{"route", "code"},
	)
	registry.MustRegister(requests)

	return &Server{q: q, log: log, registry: registry, requests: requests, timeout: DefaultTimeout}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireStorage)

		r.Get("/trials", s.handleFind)
		r.Get("/trials/{euct}", s.handleTrial)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// observe logs each request and counts it by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.log.Debug("request served",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) requireStorage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.q.Connected() {
			utils.WriteError(w, http.StatusServiceUnavailable, storage.ErrNotConnected.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": s.q.Connected(),
	})
}

func (s *Server) handleTrial(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "euct")

	rec := s.q.FindByKey(r.Context(), key)
	if rec == nil {
		utils.WriteError(w, http.StatusNotFound, storage.ErrNotFound.Error()+": "+key)
		return
	}

	utils.WriteJSON(w, http.StatusOK, rec)
}

// handleFind answers ?country=<name> or ?condition=<regex>, bounded by
// ?limit=<n>.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	country, condition := q.Get("country"), q.Get("condition")
	limit := utils.QueryInt(r, "limit", storage.DefaultLimit)

	var recs []models.Record

	switch {
	case country != "" && condition != "":
		utils.WriteError(w, http.StatusBadRequest, "country and condition cannot be combined")
		return
	case country != "":
		recs = s.q.FindByCountry(r.Context(), country, limit)
	case condition != "":
		if _, err := regexp.Compile(condition); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid condition pattern: "+err.Error())
			return
		}

		recs = s.q.FindByCondition(r.Context(), condition, limit)
	default:
		utils.WriteError(w, http.StatusBadRequest, "country or condition is required")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"count":  len(recs),
		"trials": recs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, s.q.Statistics(r.Context()))
}
