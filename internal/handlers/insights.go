package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/request"
	"github.com/studyhub/dashboard-api/internal/services/ai"
)

// InsightsHandler serves AI-generated study insights
type InsightsHandler struct {
	provider ai.InsightsProvider
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewInsightsHandler creates a new insights handler. The provider may be
// nil when no AI backend is configured; requests then get a 503.
func NewInsightsHandler(provider ai.InsightsProvider, c *cache.Cache, logger *zap.Logger) *InsightsHandler {
	return &InsightsHandler{
		provider: provider,
		cache:    c,
		logger:   logger,
	}
}

// GetInsights handles GET /api/v1/dashboard/insights.
// Insights are generated from the cached snapshot; callers without one
// should fetch their stats first.
func (h *InsightsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	principal := request.PrincipalFromContext(r)
	if principal == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No authenticated user in request")
		return
	}

	if h.provider == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Insights unavailable", "No AI provider is configured")
		return
	}

	snap, ok := h.cache.Get(r.Context(), principal.UserID)
	if !ok {
		respondJSONError(w, http.StatusNotFound, "No stats available", "Fetch dashboard stats before requesting insights")
		return
	}

	insights, err := h.provider.StudyInsights(r.Context(), snap)
	if err != nil {
		h.logger.Error("failed_to_generate_insights",
			zap.String("user_id", principal.UserID.String()),
			zap.Error(err))

		status := http.StatusInternalServerError
		if ai.IsRateLimitError(err) || ai.IsQuotaError(err) {
			status = http.StatusServiceUnavailable
		}
		respondJSONError(w, status, "Failed to generate insights", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, insights)
}
