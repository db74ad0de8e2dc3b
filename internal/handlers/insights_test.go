package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/services/ai"
)

type mockInsightsProvider struct {
	studyInsightsFunc func(ctx context.Context, snap *models.DashboardStats) (*ai.Insights, error)
}

func (m *mockInsightsProvider) StudyInsights(ctx context.Context, snap *models.DashboardStats) (*ai.Insights, error) {
	if m.studyInsightsFunc != nil {
		return m.studyInsightsFunc(ctx, snap)
	}
	return &ai.Insights{Summary: "ok"}, nil
}

var _ ai.InsightsProvider = (*mockInsightsProvider)(nil)

func TestGetInsightsWithoutProviderIs503(t *testing.T) {
	t.Parallel()

	handler := NewInsightsHandler(nil, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetInsights(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/insights", uuid.New()))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestGetInsightsWithoutSnapshotIs404(t *testing.T) {
	t.Parallel()

	handler := NewInsightsHandler(&mockInsightsProvider{}, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetInsights(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/insights", uuid.New()))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetInsightsReturnsProviderOutput(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	c := cache.New(nil, time.Hour, nil)
	snap := models.NewDashboardStats(userID)
	snap.TotalNotes = 3
	snap.LastFetched = time.Now().UTC()
	c.Put(context.Background(), userID, snap)

	provider := &mockInsightsProvider{
		studyInsightsFunc: func(ctx context.Context, got *models.DashboardStats) (*ai.Insights, error) {
			if got.TotalNotes != 3 {
				t.Errorf("provider received wrong snapshot: %+v", got)
			}
			return &ai.Insights{
				Summary:     "Solid progress this week.",
				Suggestions: []string{"Keep the streak going"},
			}, nil
		},
	}
	handler := NewInsightsHandler(provider, c, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetInsights(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/insights", userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data ai.Insights `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Data.Summary != "Solid progress this week." {
		t.Errorf("unexpected summary: %q", body.Data.Summary)
	}
	if len(body.Data.Suggestions) != 1 {
		t.Errorf("unexpected suggestions: %v", body.Data.Suggestions)
	}
}

func TestGetInsightsQuotaErrorIs503(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	c := cache.New(nil, time.Hour, nil)
	snap := models.NewDashboardStats(userID)
	snap.LastFetched = time.Now().UTC()
	c.Put(context.Background(), userID, snap)

	provider := &mockInsightsProvider{
		studyInsightsFunc: func(ctx context.Context, got *models.DashboardStats) (*ai.Insights, error) {
			return nil, &ai.APIError{StatusCode: 429, Code: "insufficient_quota", IsPermanent: true}
		},
	}
	handler := NewInsightsHandler(provider, c, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetInsights(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/insights", userID))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
