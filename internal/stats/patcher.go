package stats

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/models"
	"github.com/studyhub/dashboard-api/internal/validation"
)

// dedupRingSize bounds the set of recently applied event ids
const dedupRingSize = 512

// RefreshFunc triggers a full snapshot refresh for a user
type RefreshFunc func(userID uuid.UUID)

// Patcher applies change events to cached snapshots incrementally. Events
// it cannot patch safely fall back to a debounced full refresh so a burst
// of changes coalesces into one recompute.
type Patcher struct {
	cache    *cache.Cache
	refresh  RefreshFunc
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
	seen   *eventRing
}

// NewPatcher creates a patcher. refresh is called (debounced per user)
// whenever an event cannot be applied as an incremental patch.
func NewPatcher(c *cache.Cache, refresh RefreshFunc, debounce time.Duration, logger *zap.Logger) *Patcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 800 * time.Millisecond
	}
	return &Patcher{
		cache:    c,
		refresh:  refresh,
		debounce: debounce,
		logger:   logger,
		timers:   make(map[uuid.UUID]*time.Timer),
		seen:     newEventRing(dedupRingSize),
	}
}

// Close stops all pending refresh timers
func (p *Patcher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, t := range p.timers {
		t.Stop()
		delete(p.timers, userID)
	}
}

// Apply routes one change event: INSERT and DELETE on known tables patch
// the cached snapshot in place; everything else schedules a debounced full
// refresh. Events carrying an id are applied at most once.
func (p *Patcher) Apply(ctx context.Context, ev *models.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		p.logger.Warn("invalid_change_event", zap.Error(err))
		p.scheduleRefresh(ev.UserID)
		return err
	}

	if ev.EventID != "" && !p.seen.add(ev.EventID) {
		p.logger.Debug("duplicate_event_skipped",
			zap.String("event_id", ev.EventID),
			zap.String("user_id", ev.UserID.String()),
		)
		return nil
	}

	if !ev.Table.Known() || ev.Type == models.EventUpdate {
		p.scheduleRefresh(ev.UserID)
		return nil
	}

	snap, ok := p.cache.Get(ctx, ev.UserID)
	if !ok {
		// Nothing cached to patch; the next fetch computes from scratch
		return nil
	}

	patched := snap.Clone()
	switch ev.Type {
	case models.EventInsert:
		applyInsert(patched, ev)
	case models.EventDelete:
		applyDelete(patched, ev)
	}

	if err := patched.Validate(); err != nil {
		p.logger.Warn("patched_snapshot_invalid",
			zap.String("user_id", ev.UserID.String()),
			zap.Error(err),
		)
		p.scheduleRefresh(ev.UserID)
		return nil
	}

	p.cache.Put(ctx, ev.UserID, patched)
	return nil
}

// scheduleRefresh arms (or re-arms) the user's debounced full refresh
func (p *Patcher) scheduleRefresh(userID uuid.UUID) {
	if userID == uuid.Nil || p.refresh == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[userID]; ok {
		t.Reset(p.debounce)
		return
	}
	p.timers[userID] = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		delete(p.timers, userID)
		p.mu.Unlock()

		p.logger.Info("debounced_refresh_fired", zap.String("user_id", userID.String()))
		p.refresh(userID)
	})
}

func applyInsert(snap *models.DashboardStats, ev *models.ChangeEvent) {
	// Event titles come from outside this process; strip control characters
	// before they reach the recent lists.
	row := *ev.New
	row.Title = validation.SanitizeText(row.Title)

	switch ev.Table {
	case models.TableNotes:
		snap.TotalNotes++
		snap.RecentNotes = prependCapped(snap.RecentNotes, row)
	case models.TableRecordings:
		snap.TotalRecordings++
		snap.RecentRecordings = prependCapped(snap.RecentRecordings, row)
	case models.TableDocuments:
		snap.TotalDocuments++
		snap.RecentDocuments = prependCapped(snap.RecentDocuments, row)
	case models.TableMessages:
		snap.TotalMessages++
	case models.TableScheduleItems:
		snap.TotalScheduleItems++
	}
}

func applyDelete(snap *models.DashboardStats, ev *models.ChangeEvent) {
	switch ev.Table {
	case models.TableNotes:
		snap.TotalNotes = floorDec(snap.TotalNotes)
		snap.RecentNotes = removeByID(snap.RecentNotes, ev.Old.ID)
	case models.TableRecordings:
		snap.TotalRecordings = floorDec(snap.TotalRecordings)
		snap.RecentRecordings = removeByID(snap.RecentRecordings, ev.Old.ID)
	case models.TableDocuments:
		snap.TotalDocuments = floorDec(snap.TotalDocuments)
		snap.RecentDocuments = removeByID(snap.RecentDocuments, ev.Old.ID)
	case models.TableMessages:
		snap.TotalMessages = floorDec(snap.TotalMessages)
	case models.TableScheduleItems:
		snap.TotalScheduleItems = floorDec(snap.TotalScheduleItems)
	}
}

func floorDec(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

func prependCapped(items []models.ItemSummary, item models.ItemSummary) []models.ItemSummary {
	out := append([]models.ItemSummary{item}, items...)
	if len(out) > models.RecentItemLimit {
		out = out[:models.RecentItemLimit]
	}
	return out
}

func removeByID(items []models.ItemSummary, id uuid.UUID) []models.ItemSummary {
	out := items[:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

// eventRing is a fixed-size set of recently seen event ids. When full, the
// oldest id is evicted.
type eventRing struct {
	mu    sync.Mutex
	ids   []string
	index map[string]struct{}
	next  int
}

func newEventRing(size int) *eventRing {
	return &eventRing{
		ids:   make([]string, size),
		index: make(map[string]struct{}, size),
	}
}

// add records an id, returning false if it was already present
func (r *eventRing) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; ok {
		return false
	}
	if old := r.ids[r.next]; old != "" {
		delete(r.index, old)
	}
	r.ids[r.next] = id
	r.index[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ids)
	return true
}
