package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/request"
	"github.com/studyhub/dashboard-api/internal/stats"
)

// StatsProvider is the slice of the aggregator the HTTP layer needs.
type StatsProvider interface {
	Fetch(ctx context.Context, userID uuid.UUID, force bool) (*models.DashboardStats, error)
	State(userID uuid.UUID) stats.FetchState
}

// StatsHandler serves dashboard statistics endpoints
type StatsHandler struct {
	provider StatsProvider
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(provider StatsProvider, c *cache.Cache, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		provider: provider,
		cache:    c,
		logger:   logger,
	}
}

type statsResponse struct {
	Stats    *models.DashboardStats `json:"stats"`
	Loading  bool                   `json:"loading"`
	Progress int                    `json:"progress"`
	Error    string                 `json:"error,omitempty"`
}

// GetStats handles GET /api/v1/dashboard/stats.
// Pass ?refresh=true to bypass a fresh cached snapshot.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	principal := request.PrincipalFromContext(r)
	if principal == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No authenticated user in request")
		return
	}

	force := r.URL.Query().Get("refresh") == "true"

	snap, err := h.provider.Fetch(r.Context(), principal.UserID, force)
	if err != nil {
		h.logger.Error("failed_to_fetch_stats",
			zap.String("user_id", principal.UserID.String()),
			zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Failed to fetch stats", err.Error())
		return
	}

	state := h.provider.State(principal.UserID)
	resp := statsResponse{
		Stats:    snap,
		Loading:  state.Loading,
		Progress: state.Progress,
	}
	if state.Err != nil {
		resp.Error = sanitizeErrorMessage(state.Err.Error())
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetFetchState handles GET /api/v1/dashboard/stats/state
func (h *StatsHandler) GetFetchState(w http.ResponseWriter, r *http.Request) {
	principal := request.PrincipalFromContext(r)
	if principal == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No authenticated user in request")
		return
	}

	state := h.provider.State(principal.UserID)
	data := map[string]any{
		"loading":  state.Loading,
		"progress": state.Progress,
	}
	if state.Err != nil {
		data["error"] = sanitizeErrorMessage(state.Err.Error())
	}

	respondJSON(w, http.StatusOK, data)
}

// ClearCache handles DELETE /api/v1/dashboard/cache.
// It drops the caller's cached snapshot so the next fetch recomputes.
func (h *StatsHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	principal := request.PrincipalFromContext(r)
	if principal == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No authenticated user in request")
		return
	}

	h.cache.Clear(r.Context(), principal.UserID)
	h.logger.Info("stats_cache_cleared",
		zap.String("user_id", principal.UserID.String()))

	w.WriteHeader(http.StatusNoContent)
}
