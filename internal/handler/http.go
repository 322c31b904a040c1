package handler

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

	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
	"github.com/bracket-live/internal/edge"
	"github.com/bracket-live/internal/stream"
)

// VoteService is the match and vote business logic behind the API
type VoteService interface {
	CastVote(ctx context.Context, vote domain.Vote) error
	CreateMatch(ctx context.Context, req domain.CreateMatchRequest) (*domain.MatchRecord, error)
	GetMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error)
	ListMatches(ctx context.Context, status domain.MatchStatus) ([]domain.MatchRecord, error)
	UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error
}

// ActivityReader serves the live activity document through the edge cache
type ActivityReader interface {
	Read(ctx context.Context) edge.Result
	Frame(ctx context.Context) []byte
}

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the bracket live API
type Handler struct {
	votes    VoteService
	activity ActivityReader
	hub      *stream.Hub
	edge     *config.EdgeConfig
	checks   map[string]Pinger
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(votes VoteService, activity ActivityReader, hub *stream.Hub, edgeCfg *config.EdgeConfig, logger *slog.Logger) *Handler {
	return &Handler{
		votes:    votes,
		activity: activity,
		hub:      hub,
		edge:     edgeCfg,
		checks:   make(map[string]Pinger),
		logger:   logger,
	}
}

// AddReadinessCheck makes /ready depend on p
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Method(http.MethodGet, "/ws/live-activity",
		stream.NewWebSocketHandler(h.hub, h.activity, h.edge.StreamInterval, h.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/live-activity", h.GetLiveActivity)
		r.Method(http.MethodGet, "/live-activity/stream",
			stream.NewSSEHandler(h.hub, h.activity, h.edge.StreamInterval, h.logger))
		r.Get("/stream/stats", h.GetStreamStats)

		r.Post("/votes", h.CastVote)

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.CreateMatch)
			r.Get("/", h.ListMatches)

			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", h.GetMatch)
				r.Put("/status", h.UpdateMatchStatus)
			})
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Cache, X-Cache-Age")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps a service error onto a status code. Unknown errors
// are logged and hidden behind ErrInternalError.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidVote),
		errors.Is(err, domain.ErrInvalidMatch),
		errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// GetLiveActivity serves the hot matches snapshot. It always answers 200;
// when the snapshot cannot be read the body is the degraded document and
// the cache hint is shortened.
func (h *Handler) GetLiveActivity(w http.ResponseWriter, r *http.Request) {
	res := h.activity.Read(r.Context())

	header := w.Header()
	header.Set("Content-Type", "application/json")
	switch res.Status {
	case edge.StatusHit:
		header.Set("X-Cache", string(edge.StatusHit))
		header.Set("X-Cache-Age", strconv.FormatInt(int64(res.Age/time.Second), 10))
		header.Set("Cache-Control", maxAge(h.edge.FreshnessWindow))
	case edge.StatusMiss:
		header.Set("X-Cache", string(edge.StatusMiss))
		header.Set("Cache-Control", maxAge(h.edge.FreshnessWindow))
	default:
		header.Set("X-Cache", string(edge.StatusMiss))
		header.Set("Cache-Control", maxAge(h.edge.DegradedMaxAge))
	}

	w.WriteHeader(http.StatusOK)
	w.Write(res.Payload)
}

func maxAge(d time.Duration) string {
	return "public, max-age=" + strconv.Itoa(int(d/time.Second))
}

// GetStreamStats returns open stream session counts
func (h *Handler) GetStreamStats(w http.ResponseWriter, r *http.Request) {
	counts := h.hub.Count()
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.Total(),
		"sse":               counts[stream.TransportSSE],
		"websocket":         counts[stream.TransportWebSocket],
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = "unreachable"
		}
	}

	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   "not ready",
		})
		return
	}

	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// CastVote records a vote for a live match
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	var vote domain.Vote
	if err := json.NewDecoder(r.Body).Decode(&vote); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	// cast time is assigned server side
	vote.CastAt = time.Time{}

	if err := h.votes.CastVote(r.Context(), vote); err != nil {
		h.writeDomainError(w, "cast vote", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "accepted"})
}

// CreateMatch handles match creation
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	match, err := h.votes.CreateMatch(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, "create match", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    match,
	})
}

// ListMatches returns matches, optionally filtered by ?status=
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	status := domain.MatchStatus(r.URL.Query().Get("status"))

	matches, err := h.votes.ListMatches(r.Context(), status)
	if err != nil {
		h.writeDomainError(w, "list matches", err)
		return
	}

	h.writeSuccess(w, matches)
}

// GetMatch returns a match by ID
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if matchID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	match, err := h.votes.GetMatch(r.Context(), matchID)
	if err != nil {
		h.writeDomainError(w, "get match", err)
		return
	}

	h.writeSuccess(w, match)
}

// UpdateMatchStatus moves a match between upcoming, live and completed
func (h *Handler) UpdateMatchStatus(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if matchID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req domain.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.votes.UpdateMatchStatus(r.Context(), matchID, req.Status); err != nil {
		h.writeDomainError(w, "update match status", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": string(req.Status)})
}
