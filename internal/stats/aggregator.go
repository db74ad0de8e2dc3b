package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/models"
)

const (
	// topCategoryLimit is how many categories the distribution keeps
	topCategoryLimit = 5
	// velocityWeeks is the length of the learning-velocity series
	velocityWeeks = 12
	// fallbackWindowDays bounds the raw-row window used for client-side
	// aggregation when a server-side aggregate is unavailable
	fallbackWindowDays = 90
	// stateRetention is how long a settled fetch state stays visible
	// through State before it is pruned
	stateRetention = 10 * time.Minute
)

// FetchState describes the progress of a user's snapshot fetch. Loading
// stays true until the background aggregate phase settles.
type FetchState struct {
	Loading  bool
	Progress int
	Err      error

	settledAt time.Time
}

// Options tunes the aggregator's timing and fallback behavior
type Options struct {
	StepTimeout      time.Duration
	StepDelay        time.Duration
	CountRetryDelay  time.Duration
	FallbackRowLimit int
}

func (o *Options) applyDefaults() {
	if o.StepTimeout <= 0 {
		o.StepTimeout = 5 * time.Second
	}
	if o.CountRetryDelay <= 0 {
		o.CountRetryDelay = 250 * time.Millisecond
	}
	if o.FallbackRowLimit <= 0 {
		o.FallbackRowLimit = 5000
	}
}

// Aggregator produces dashboard snapshots in two phases: a blocking
// parallel count phase and a background sequential aggregate phase.
type Aggregator struct {
	activity   database.ActivityRepositoryInterface
	aggregates database.AggregateRepositoryInterface
	cache      *cache.Cache
	logger     *zap.Logger
	opts       Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	state map[uuid.UUID]*FetchState

	now func() time.Time
}

// NewAggregator creates an aggregator. Close must be called to stop
// background aggregate work.
func NewAggregator(activity database.ActivityRepositoryInterface, aggregates database.AggregateRepositoryInterface, c *cache.Cache, opts Options, logger *zap.Logger) *Aggregator {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		activity:   activity,
		aggregates: aggregates,
		cache:      c,
		logger:     logger,
		opts:       opts,
		baseCtx:    baseCtx,
		cancel:     cancel,
		state:      make(map[uuid.UUID]*FetchState),
		now:        time.Now,
	}
}

// Close cancels background aggregate work and waits for it to finish
func (a *Aggregator) Close() {
	a.cancel()
	a.wg.Wait()
}

// State returns the current fetch state for a user
func (a *Aggregator) State(userID uuid.UUID) FetchState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.state[userID]; ok {
		return *st
	}
	return FetchState{}
}

// Fetch returns the user's dashboard snapshot. A fresh cached snapshot is
// returned without queries unless force is set. If a fetch for the user is
// already in flight the current cached snapshot (possibly nil) is returned
// instead of starting another. Otherwise the count phase runs, its minimal
// snapshot is cached and returned, and the aggregate phase continues in the
// background.
func (a *Aggregator) Fetch(ctx context.Context, userID uuid.UUID, force bool) (*models.DashboardStats, error) {
	if snap, ok := a.cache.Get(ctx, userID); ok && !force && a.cache.IsFresh(snap) {
		return snap, nil
	}

	a.mu.Lock()
	if st, ok := a.state[userID]; ok && st.Loading {
		a.mu.Unlock()
		a.logger.Debug("fetch_already_in_flight", zap.String("user_id", userID.String()))
		snap, _ := a.cache.Get(ctx, userID)
		return snap, nil
	}
	a.pruneSettledLocked()
	a.state[userID] = &FetchState{Loading: true}
	a.mu.Unlock()

	snap, err := a.fetchCounts(ctx, userID)
	if err != nil {
		a.settle(userID, err)
		return nil, fmt.Errorf("failed to fetch counts: %w", err)
	}
	a.cache.Put(ctx, userID, snap)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runAggregates(userID, snap.Clone())
	}()

	return snap, nil
}

// settle marks the user's fetch finished, keeping the outcome visible
// through State
func (a *Aggregator) settle(userID uuid.UUID, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.state[userID]
	if !ok {
		return
	}
	st.Loading = false
	st.Err = err
	st.settledAt = a.now()
	if err == nil {
		st.Progress = 100
	}
}

// pruneSettledLocked drops fetch states that settled longer than
// stateRetention ago, so the map does not grow with every user id ever
// fetched. Caller holds a.mu.
func (a *Aggregator) pruneSettledLocked() {
	cutoff := a.now().Add(-stateRetention)
	for id, st := range a.state {
		if !st.Loading && !st.settledAt.IsZero() && st.settledAt.Before(cutoff) {
			delete(a.state, id)
		}
	}
}

func (a *Aggregator) setProgress(userID uuid.UUID, progress int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.state[userID]; ok {
		st.Progress = progress
	}
}

// fetchCounts runs the count phase: all counters and recent lists in
// parallel. A failed query is retried once; a persistent failure defaults
// its field to zero/empty rather than failing the fetch.
func (a *Aggregator) fetchCounts(ctx context.Context, userID uuid.UUID) (*models.DashboardStats, error) {
	snap := models.NewDashboardStats(userID)

	counts := []struct {
		name string
		dst  *int
		fn   func(context.Context, uuid.UUID) (int, error)
	}{
		{"notes", &snap.TotalNotes, a.activity.CountNotes},
		{"notes_with_ai", &snap.NotesWithAI, a.activity.CountNotesWithAI},
		{"recordings", &snap.TotalRecordings, a.activity.CountRecordings},
		{"documents", &snap.TotalDocuments, a.activity.CountDocuments},
		{"messages", &snap.TotalMessages, a.activity.CountMessages},
		{"schedule_items", &snap.TotalScheduleItems, a.activity.CountScheduleItems},
		{"quizzes", &snap.TotalQuizzes, a.activity.CountQuizzes},
	}
	recents := []struct {
		name string
		dst  *[]models.ItemSummary
		fn   func(context.Context, uuid.UUID, int) ([]models.ItemSummary, error)
	}{
		{"recent_notes", &snap.RecentNotes, a.activity.RecentNotes},
		{"recent_recordings", &snap.RecentRecordings, a.activity.RecentRecordings},
		{"recent_documents", &snap.RecentDocuments, a.activity.RecentDocuments},
	}

	var wg sync.WaitGroup
	for _, c := range counts {
		wg.Add(1)
		go func(name string, dst *int, fn func(context.Context, uuid.UUID) (int, error)) {
			defer wg.Done()
			n, err := a.countWithRetry(ctx, userID, fn)
			if err != nil {
				a.logger.Warn("count_query_failed",
					zap.String("query", name),
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				return
			}
			*dst = n
		}(c.name, c.dst, c.fn)
	}
	for _, r := range recents {
		wg.Add(1)
		go func(name string, dst *[]models.ItemSummary, fn func(context.Context, uuid.UUID, int) ([]models.ItemSummary, error)) {
			defer wg.Done()
			items, err := fn(ctx, userID, models.RecentItemLimit)
			if err != nil {
				a.logger.Warn("recent_query_failed",
					zap.String("query", name),
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				return
			}
			*dst = items
		}(r.name, r.dst, r.fn)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Rates stay zero here; the aggregate phase derives them once the
	// series are in
	snap.LastFetched = a.now().UTC()
	return snap, nil
}

// countWithRetry runs a count query, retrying once after a fixed delay
func (a *Aggregator) countWithRetry(ctx context.Context, userID uuid.UUID, fn func(context.Context, uuid.UUID) (int, error)) (int, error) {
	n, err := fn(ctx, userID)
	if err == nil {
		return n, nil
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(a.opts.CountRetryDelay):
	}
	return fn(ctx, userID)
}

// aggregateStep is one sequential step of the background phase. run fills
// its slice of the snapshot; on error the field keeps its empty default.
type aggregateStep struct {
	name string
	run  func(ctx context.Context, snap *models.DashboardStats, rows *rowLoader) error
}

// runAggregates executes the background aggregate phase over a private
// copy of the count-phase snapshot, then publishes the merged result
func (a *Aggregator) runAggregates(userID uuid.UUID, snap *models.DashboardStats) {
	rows := &rowLoader{agg: a, userID: userID}

	steps := []aggregateStep{
		{"daily_7", func(ctx context.Context, s *models.DashboardStats, rl *rowLoader) error {
			buckets, err := a.aggregates.ActivityStats(ctx, userID, models.DailySeriesShort)
			if err != nil {
				buckets, err = rl.daily(ctx, models.DailySeriesShort)
			}
			if err != nil {
				return err
			}
			s.Daily7 = buckets
			return nil
		}},
		{"daily_30", func(ctx context.Context, s *models.DashboardStats, rl *rowLoader) error {
			buckets, err := a.aggregates.ActivityStats(ctx, userID, models.DailySeriesLong)
			if err != nil {
				buckets, err = rl.daily(ctx, models.DailySeriesLong)
			}
			if err != nil {
				return err
			}
			s.Daily30 = buckets
			return nil
		}},
		{"hourly", func(ctx context.Context, s *models.DashboardStats, rl *rowLoader) error {
			buckets, err := a.aggregates.HourlyHistogram(ctx, userID)
			if err != nil {
				var raw []database.ActivityRow
				if raw, err = rl.load(ctx); err == nil {
					buckets = hourlyFromRows(raw)
				}
			}
			if err != nil {
				return err
			}
			s.Hourly = buckets
			return nil
		}},
		{"weekday", func(ctx context.Context, s *models.DashboardStats, rl *rowLoader) error {
			buckets, err := a.aggregates.WeekdayHistogram(ctx, userID)
			if err != nil {
				var raw []database.ActivityRow
				if raw, err = rl.load(ctx); err == nil {
					buckets = weekdayFromRows(raw)
				}
			}
			if err != nil {
				return err
			}
			s.Weekday = buckets
			return nil
		}},
		{"streak", func(ctx context.Context, s *models.DashboardStats, rl *rowLoader) error {
			days, err := a.aggregates.Streak(ctx, userID)
			if err != nil {
				var raw []database.ActivityRow
				if raw, err = rl.load(ctx); err == nil {
					days = streakFromRows(raw, a.now())
				}
			}
			if err != nil {
				return err
			}
			s.StreakDays = days
			return nil
		}},
		{"document_status", func(ctx context.Context, s *models.DashboardStats, _ *rowLoader) error {
			// No raw-row fallback: rows carry no status column
			breakdown, err := a.aggregates.DocumentStatusBreakdown(ctx, userID)
			if err != nil {
				return err
			}
			s.DocumentStatus = breakdown
			return nil
		}},
		{"top_categories", func(ctx context.Context, s *models.DashboardStats, _ *rowLoader) error {
			dist, err := a.aggregates.CategoryDistribution(ctx, userID, topCategoryLimit)
			if err != nil {
				dist = topCategoriesFromCounters(s, topCategoryLimit)
			}
			s.TopCategories = dist
			return nil
		}},
		{"learning_velocity", func(ctx context.Context, s *models.DashboardStats, rl *rowLoader) error {
			points, err := a.aggregates.LearningVelocity(ctx, userID, velocityWeeks)
			if err != nil {
				var raw []database.ActivityRow
				if raw, err = rl.load(ctx); err == nil {
					points = velocityFromRows(raw, velocityWeeks, a.now())
				}
			}
			if err != nil {
				return err
			}
			s.LearningVelocity = points
			return nil
		}},
	}

	for i, step := range steps {
		if i > 0 && a.opts.StepDelay > 0 {
			select {
			case <-a.baseCtx.Done():
				a.settle(userID, nil)
				return
			case <-time.After(a.opts.StepDelay):
			}
		}

		stepCtx, cancel := context.WithTimeout(a.baseCtx, a.opts.StepTimeout)
		err := step.run(stepCtx, snap, rows)
		cancel()
		if err != nil {
			// The field keeps its empty default; charts render "no data"
			a.logger.Warn("aggregate_step_failed",
				zap.String("step", step.name),
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		a.setProgress(userID, (i+1)*100/len(steps))

		if a.baseCtx.Err() != nil {
			break
		}
	}

	deriveRates(snap, models.DailySeriesLong)
	a.cache.Put(a.baseCtx, userID, snap)
	a.settle(userID, nil)

	a.logger.Info("snapshot_published",
		zap.String("user_id", userID.String()),
		zap.Time("last_fetched", snap.LastFetched),
	)
}

// rowLoader lazily fetches the capped raw-row window shared by the
// client-side aggregation fallbacks, so at most one raw query runs per
// aggregate phase. The query runs under its own timeout: the step context
// that triggered the fallback may already be expired.
type rowLoader struct {
	agg    *Aggregator
	userID uuid.UUID

	once sync.Once
	rows []database.ActivityRow
	err  error
}

func (rl *rowLoader) load(context.Context) ([]database.ActivityRow, error) {
	rl.once.Do(func() {
		ctx, cancel := context.WithTimeout(rl.agg.baseCtx, rl.agg.opts.StepTimeout)
		defer cancel()
		since := rl.agg.now().UTC().AddDate(0, 0, -fallbackWindowDays)
		rl.rows, rl.err = rl.agg.activity.ActivityRows(ctx, rl.userID, since, rl.agg.opts.FallbackRowLimit)
	})
	return rl.rows, rl.err
}

func (rl *rowLoader) daily(ctx context.Context, days int) ([]models.ActivityBucket, error) {
	rows, err := rl.load(ctx)
	if err != nil {
		return nil, err
	}
	return dailyFromRows(rows, days, rl.agg.now()), nil
}
