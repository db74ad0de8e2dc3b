// Package cache holds dashboard snapshots in two tiers: a process-local
// in-memory map and a durable mirror (Redis), so a restart can serve the
// last known snapshot without touching the database.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studyhub/dashboard-api/internal/models"
	"go.uber.org/zap"
)

// Store is the durable mirror tier. Load returns (nil, nil) on a miss.
type Store interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.DashboardStats, error)
	Save(ctx context.Context, userID uuid.UUID, snap *models.DashboardStats) error
	Delete(ctx context.Context, userID uuid.UUID) error
	DeleteAll(ctx context.Context) error
}

// Cache is the snapshot cache. It is an injected service, not module-level
// state; binaries construct one instance and pass it down.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*models.DashboardStats

	durable Store
	ttl     time.Duration
	logger  *zap.Logger
}

// New creates a cache over the given durable store. durable may be nil for
// a memory-only cache (tests).
func New(durable Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: make(map[uuid.UUID]*models.DashboardStats),
		durable: durable,
		ttl:     ttl,
		logger:  logger,
	}
}

// TTL returns the configured cache duration
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached snapshot for a user. A memory miss falls through
// to the durable store and backfills memory on a hit.
func (c *Cache) Get(ctx context.Context, userID uuid.UUID) (*models.DashboardStats, bool) {
	c.mu.RLock()
	snap, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok {
		return snap, true
	}

	if c.durable == nil {
		return nil, false
	}

	snap, err := c.durable.Load(ctx, userID)
	if err != nil {
		c.logger.Warn("failed_to_load_snapshot_from_durable_store",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, false
	}
	if snap == nil {
		return nil, false
	}

	c.mu.Lock()
	// A Put may have raced the durable load; keep the newer snapshot
	if existing, ok := c.entries[userID]; ok && existing.LastFetched.After(snap.LastFetched) {
		snap = existing
	} else {
		c.entries[userID] = snap
	}
	c.mu.Unlock()

	return snap, true
}

// Put stores a snapshot in both tiers. A snapshot older than the cached one
// (by LastFetched) is rejected so the timestamp never moves backwards.
func (c *Cache) Put(ctx context.Context, userID uuid.UUID, snap *models.DashboardStats) {
	c.mu.Lock()
	if existing, ok := c.entries[userID]; ok && existing.LastFetched.After(snap.LastFetched) {
		c.mu.Unlock()
		c.logger.Debug("rejected_stale_snapshot",
			zap.String("user_id", userID.String()),
			zap.Time("cached", existing.LastFetched),
			zap.Time("offered", snap.LastFetched),
		)
		return
	}
	c.entries[userID] = snap
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	if err := c.durable.Save(ctx, userID, snap); err != nil {
		// Durable mirror is best effort; memory remains authoritative
		c.logger.Warn("failed_to_persist_snapshot",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

// IsFresh reports whether a snapshot is younger than the cache TTL
func (c *Cache) IsFresh(snap *models.DashboardStats) bool {
	if snap == nil {
		return false
	}
	return snap.IsFresh(c.ttl, time.Now())
}

// Clear evicts one user's snapshot from both tiers
func (c *Cache) Clear(ctx context.Context, userID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	if err := c.durable.Delete(ctx, userID); err != nil {
		c.logger.Warn("failed_to_delete_persisted_snapshot",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

// ClearAll evicts every snapshot from both tiers
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[uuid.UUID]*models.DashboardStats)
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	if err := c.durable.DeleteAll(ctx); err != nil {
		c.logger.Warn("failed_to_clear_persisted_snapshots", zap.Error(err))
	}
}

// Users returns the user ids currently held in memory
func (c *Cache) Users() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	return out
}
