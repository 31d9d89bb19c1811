package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
	"github.com/leaderboard-live/internal/service"
	"github.com/leaderboard-live/internal/websocket"
)

// JobRunner triggers the ranking jobs by hand
type JobRunner interface {
	RunSnapshot(ctx context.Context) (int, error)
	RunDistribution(ctx context.Context) (*domain.Distribution, error)
}

// ReadinessCheck reports whether the backing stores are reachable
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the leaderboard API
type Handler struct {
	service  *service.LeaderboardService
	jobs     JobRunner
	hub      *websocket.Hub
	ident    websocket.Identifier
	sessions *config.SessionConfig
	ready    ReadinessCheck
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	service *service.LeaderboardService,
	jobs JobRunner,
	hub *websocket.Hub,
	ident websocket.Identifier,
	sessions *config.SessionConfig,
	ready ReadinessCheck,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		jobs:     jobs,
		hub:      hub,
		ident:    ident,
		sessions: sessions,
		ready:    ready,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AwardRequest is the body of an award submission. Name and country
// register the player if they have never connected.
type AwardRequest struct {
	Amount  *int64 `json:"amount"`
	GameID  string `json:"game_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Country string `json:"country,omitempty"`
}

// BatchAwardRequest is the body of a batch award submission
type BatchAwardRequest struct {
	Awards []domain.ScoreAward `json:"awards"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/leaderboard/top", h.GetTop)

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/view", h.GetView)
			r.Post("/awards", h.SubmitAward)
		})
		r.Post("/awards/batch", h.SubmitAwardBatch)

		// Manual job triggers
		r.Route("/admin", func(r chi.Router) {
			r.Post("/snapshot", h.RunSnapshot)
			r.Post("/distribute", h.RunDistribution)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

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

// writeServiceError maps a service error onto a status code. Internal
// failures are logged and hidden behind ErrInternalError.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsClientError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrJobRunning):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.service, h.ident, h.sessions, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, errors.New("not ready"))
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetTop returns the hydrated top segment
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Top(r.Context())
	if err != nil {
		h.writeServiceError(w, "get top", err)
		return
	}

	h.writeSuccess(w, view)
}

// GetView returns the leaderboard as the player sees it
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	view, err := h.service.ComputeView(r.Context(), playerID)
	if err != nil {
		h.writeServiceError(w, "get view", err)
		return
	}

	h.writeSuccess(w, view)
}

// SubmitAward handles a single award for a player
func (h *Handler) SubmitAward(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidScore)
		return
	}

	award := domain.ScoreAward{
		PlayerID:  playerID,
		Name:      req.Name,
		Country:   req.Country,
		Amount:    amount,
		GameID:    req.GameID,
		Source:    domain.AwardSourceHTTP,
		Timestamp: time.Now(),
	}
	money, err := h.service.AwardPlayer(r.Context(), award)
	if err != nil {
		h.writeServiceError(w, "submit award", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status": "accepted",
		"amount": amount,
		"money":  money,
	})
}

// SubmitAwardBatch handles batch award submission
func (h *Handler) SubmitAwardBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchAwardRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if len(batch.Awards) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	now := time.Now()
	for i := range batch.Awards {
		batch.Awards[i].Source = domain.AwardSourceHTTP
		if batch.Awards[i].Timestamp.IsZero() {
			batch.Awards[i].Timestamp = now
		}
	}

	if err := h.service.AwardScoreBatch(r.Context(), batch.Awards); err != nil {
		h.writeServiceError(w, "submit award batch", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":   "accepted",
		"received": len(batch.Awards),
	})
}

// RunSnapshot copies the current ranks into the daily store
func (h *Handler) RunSnapshot(w http.ResponseWriter, r *http.Request) {
	count, err := h.jobs.RunSnapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, "run snapshot", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":      "completed",
		"snapshotted": count,
	})
}

// RunDistribution pays out the prize pool and resets the rankings
func (h *Handler) RunDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.jobs.RunDistribution(r.Context())
	if err != nil {
		h.writeServiceError(w, "run distribution", err)
		return
	}
	if dist == nil {
		h.writeSuccess(w, map[string]string{"status": "skipped"})
		return
	}

	h.writeSuccess(w, dist)
}
