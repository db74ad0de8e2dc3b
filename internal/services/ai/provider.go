package ai

import (
	"context"

	"github.com/studyhub/dashboard-api/internal/models"
)

// Insights is a set of AI-generated study suggestions derived from a
// user's dashboard snapshot
type Insights struct {
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
}

// InsightsProvider is the interface for AI insight providers
type InsightsProvider interface {
	// StudyInsights summarizes a dashboard snapshot into study suggestions
	StudyInsights(ctx context.Context, snap *models.DashboardStats) (*Insights, error)
}
