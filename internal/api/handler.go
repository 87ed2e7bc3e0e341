// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custom_errors "github-events-monitor/internal/errors"
	"github-events-monitor/internal/model"
)

// maxTrendingLimit caps the trending result size at this boundary; the
// metrics engine itself accepts any positive limit.
const maxTrendingLimit = 50

// MetricsProvider is the slice of the metrics engine the API depends on.
type MetricsProvider interface {
	EventCounts(ctx context.Context, offsetMinutes int, typeFilter string) (model.EventCounts, error)
	PRInterval(ctx context.Context, repo string) (model.PRIntervalStat, error)
	RepositoryActivity(ctx context.Context, repo string, hours int) (model.RepoActivity, error)
	Trending(ctx context.Context, hours, limit int) (model.TrendingReport, error)
}

// Collector triggers an out-of-cadence collection cycle.
type Collector interface {
	TriggerCollect(perPage int) bool
	ConsecutiveTransientErrors() int64
}

// Handler is the container for API dependencies.
type Handler struct {
	metrics   MetricsProvider
	collector Collector
	logger    *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(metrics MetricsProvider, collector Collector, logger *slog.Logger) http.Handler {
	h := &Handler{
		metrics:   metrics,
		collector: collector,
		logger:    logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/event-counts", h.getEventCounts)
		r.Get("/metrics/trending", h.getTrending)
		r.Get("/repos/{owner}/{name}/pr-interval", h.getPRInterval)
		r.Get("/repos/{owner}/{name}/activity", h.getRepositoryActivity)
		r.Post("/collect", h.postCollect)
	})

	return r
}

// healthCheck reports liveness and the ingestion loop's error streak.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":                       "ok",
		"consecutive_transient_errors": h.collector.ConsecutiveTransientErrors(),
	})
}

// getEventCounts handles windowed event counts.
// GET /v1/metrics/event-counts?offset=60[&type=WatchEvent]
func (h *Handler) getEventCounts(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 60)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'offset' parameter. Must be a positive integer of minutes.")
		return
	}

	counts, err := h.metrics.EventCounts(r.Context(), offset, r.URL.Query().Get("type"))
	if err != nil {
		h.respondMetricError(w, "event counts", err)
		return
	}
	respondWithJSON(w, http.StatusOK, counts)
}

// getPRInterval handles opened-PR interval statistics.
// GET /v1/repos/{owner}/{name}/pr-interval
func (h *Handler) getPRInterval(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	stat, err := h.metrics.PRInterval(r.Context(), repo)
	if err != nil {
		h.respondMetricError(w, "PR interval", err)
		return
	}
	if !stat.HasData() {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"repo":     stat.Repo,
			"pr_count": stat.PRCount,
			"message":  "not enough opened pull requests to compute intervals",
		})
		return
	}
	respondWithJSON(w, http.StatusOK, stat)
}

// getRepositoryActivity handles per-repo windowed activity.
// GET /v1/repos/{owner}/{name}/activity?hours=24
func (h *Handler) getRepositoryActivity(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	hours, err := queryInt(r, "hours", 24)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'hours' parameter. Must be a positive integer.")
		return
	}

	activity, err := h.metrics.RepositoryActivity(r.Context(), repo, hours)
	if err != nil {
		h.respondMetricError(w, "repository activity", err)
		return
	}
	respondWithJSON(w, http.StatusOK, activity)
}

// getTrending handles the trending ranking.
// GET /v1/metrics/trending?hours=24&limit=10
func (h *Handler) getTrending(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'hours' parameter. Must be a positive integer.")
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be a positive integer.")
		return
	}
	if limit > maxTrendingLimit {
		limit = maxTrendingLimit
	}

	report, err := h.metrics.Trending(r.Context(), hours, limit)
	if err != nil {
		h.respondMetricError(w, "trending", err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// postCollect handles the manual collection trigger.
// POST /v1/collect?limit=N
func (h *Handler) postCollect(w http.ResponseWriter, r *http.Request) {
	perPage := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
			return
		}
		perPage = n
	}

	triggered := h.collector.TriggerCollect(perPage)
	if !triggered {
		h.logger.Info("Collection trigger ignored, one already pending")
	}
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"triggered": triggered})
}

// respondMetricError maps caller-input errors to 400 and everything else to
// an opaque 500.
func (h *Handler) respondMetricError(w http.ResponseWriter, metric string, err error) {
	var repoErr *custom_errors.ErrInvalidRepoFormat
	var winErr *custom_errors.ErrInvalidWindow
	var typeErr *custom_errors.ErrUnknownEventType
	if errors.As(err, &repoErr) || errors.As(err, &winErr) || errors.As(err, &typeErr) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("Failed to compute metric", "metric", metric, "error", err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

// queryInt parses a positive integer query parameter, falling back to def
// when the parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &custom_errors.ErrInvalidWindow{Param: name, Value: n}
	}
	return n, nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response payload", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
