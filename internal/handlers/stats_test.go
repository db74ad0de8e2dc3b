package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/request"
	"github.com/studyhub/dashboard-api/internal/stats"
)

type mockStatsProvider struct {
	fetchFunc func(ctx context.Context, userID uuid.UUID, force bool) (*models.DashboardStats, error)
	stateFunc func(userID uuid.UUID) stats.FetchState
}

func (m *mockStatsProvider) Fetch(ctx context.Context, userID uuid.UUID, force bool) (*models.DashboardStats, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, userID, force)
	}
	return models.NewDashboardStats(userID), nil
}

func (m *mockStatsProvider) State(userID uuid.UUID) stats.FetchState {
	if m.stateFunc != nil {
		return m.stateFunc(userID)
	}
	return stats.FetchState{Progress: 100}
}

var _ StatsProvider = (*mockStatsProvider)(nil)

func authedRequest(method, target string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	principal := &models.Principal{UserID: userID, Subject: userID.String()}
	return req.WithContext(request.WithPrincipal(req.Context(), principal))
}

func TestGetStatsReturnsSnapshotAndState(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	snap := models.NewDashboardStats(userID)
	snap.TotalNotes = 7
	snap.LastFetched = time.Now().UTC()

	provider := &mockStatsProvider{
		fetchFunc: func(ctx context.Context, id uuid.UUID, force bool) (*models.DashboardStats, error) {
			if id != userID {
				t.Errorf("expected fetch for %s, got %s", userID, id)
			}
			if force {
				t.Error("expected force=false without refresh param")
			}
			return snap, nil
		},
		stateFunc: func(id uuid.UUID) stats.FetchState {
			return stats.FetchState{Loading: true, Progress: 40}
		},
	}

	handler := NewStatsHandler(provider, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetStats(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/stats", userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool          `json:"success"`
		Data    statsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Success {
		t.Error("expected success=true")
	}
	if body.Data.Stats == nil || body.Data.Stats.TotalNotes != 7 {
		t.Errorf("unexpected stats payload: %+v", body.Data.Stats)
	}
	if !body.Data.Loading || body.Data.Progress != 40 {
		t.Errorf("expected loading state to pass through, got %+v", body.Data)
	}
}

func TestGetStatsRefreshParamForcesFetch(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	var sawForce bool
	provider := &mockStatsProvider{
		fetchFunc: func(ctx context.Context, id uuid.UUID, force bool) (*models.DashboardStats, error) {
			sawForce = force
			return models.NewDashboardStats(id), nil
		},
	}

	handler := NewStatsHandler(provider, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetStats(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/stats?refresh=true", userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !sawForce {
		t.Error("expected refresh=true to force the fetch")
	}
}

func TestGetStatsWithoutPrincipalIsUnauthorized(t *testing.T) {
	t.Parallel()

	handler := NewStatsHandler(&mockStatsProvider{}, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestGetStatsFetchErrorIs500(t *testing.T) {
	t.Parallel()

	provider := &mockStatsProvider{
		fetchFunc: func(ctx context.Context, id uuid.UUID, force bool) (*models.DashboardStats, error) {
			return nil, errors.New("database unavailable")
		},
	}
	handler := NewStatsHandler(provider, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetStats(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/stats", uuid.New()))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestGetFetchStateIncludesError(t *testing.T) {
	t.Parallel()

	provider := &mockStatsProvider{
		stateFunc: func(id uuid.UUID) stats.FetchState {
			return stats.FetchState{Progress: 100, Err: errors.New("aggregate step failed")}
		},
	}
	handler := NewStatsHandler(provider, cache.New(nil, time.Hour, nil), zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetFetchState(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/stats/state", uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Data["error"] != "aggregate step failed" {
		t.Errorf("expected error in state payload, got %v", body.Data)
	}
	if body.Data["loading"] != false {
		t.Errorf("expected loading=false, got %v", body.Data["loading"])
	}
}

func TestClearCacheDropsSnapshot(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	c := cache.New(nil, time.Hour, nil)
	snap := models.NewDashboardStats(userID)
	snap.LastFetched = time.Now().UTC()
	c.Put(context.Background(), userID, snap)

	handler := NewStatsHandler(&mockStatsProvider{}, c, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ClearCache(rec, authedRequest(http.MethodDelete, "/api/v1/dashboard/cache", userID))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := c.Get(context.Background(), userID); ok {
		t.Error("expected cached snapshot to be cleared")
	}
}
