package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/studyhub/dashboard-api/internal/models"
)

// AggregateRepository runs the server-side aggregate functions. Callers are
// expected to fall back to client-side aggregation over ActivityRows when a
// function is missing or errors.
type AggregateRepository struct {
	db *DB
}

// NewAggregateRepository creates a new aggregate repository
func NewAggregateRepository(db *DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// ActivityStats returns per-day activity buckets for the last `days` days
// from the get_user_activity_stats function, oldest first
func (r *AggregateRepository) ActivityStats(ctx context.Context, userID uuid.UUID, days int) ([]models.ActivityBucket, error) {
	query := `SELECT day, notes, recordings, documents, messages FROM get_user_activity_stats($1, $2)`

	rows, err := r.db.QueryContext(ctx, query, userID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity stats: %w", err)
	}
	defer rows.Close()

	var buckets []models.ActivityBucket
	for rows.Next() {
		var b models.ActivityBucket
		if err := rows.Scan(&b.Label, &b.Notes, &b.Recordings, &b.Documents, &b.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan activity stats row: %w", err)
		}
		b.Recompute()
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity stats: %w", err)
	}

	return buckets, nil
}

// LearningVelocity returns weekly creation/study-time points for the last
// `weeks` weeks from the get_learning_velocity function, oldest first
func (r *AggregateRepository) LearningVelocity(ctx context.Context, userID uuid.UUID, weeks int) ([]models.VelocityPoint, error) {
	query := `SELECT week_start, items_created, study_minutes FROM get_learning_velocity($1, $2)`

	rows, err := r.db.QueryContext(ctx, query, userID, weeks)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning velocity: %w", err)
	}
	defer rows.Close()

	var points []models.VelocityPoint
	for rows.Next() {
		var p models.VelocityPoint
		if err := rows.Scan(&p.WeekStart, &p.ItemsCreated, &p.StudyMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan velocity row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate velocity rows: %w", err)
	}

	return points, nil
}

// Streak returns the user's current consecutive-day activity streak from
// the get_user_streak function
func (r *AggregateRepository) Streak(ctx context.Context, userID uuid.UUID) (int, error) {
	var streak int
	if err := r.db.QueryRowContext(ctx, `SELECT get_user_streak($1)`, userID).Scan(&streak); err != nil {
		return 0, fmt.Errorf("failed to query streak: %w", err)
	}
	return streak, nil
}

// HourlyHistogram returns activity counts bucketed by hour of day (0-23)
func (r *AggregateRepository) HourlyHistogram(ctx context.Context, userID uuid.UUID) ([]models.ActivityBucket, error) {
	query := `SELECT hour, notes, recordings, documents, messages FROM get_user_hourly_activity($1)`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly histogram: %w", err)
	}
	defer rows.Close()

	var buckets []models.ActivityBucket
	for rows.Next() {
		var b models.ActivityBucket
		if err := rows.Scan(&b.Label, &b.Notes, &b.Recordings, &b.Documents, &b.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan hourly bucket: %w", err)
		}
		b.Recompute()
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hourly buckets: %w", err)
	}

	return buckets, nil
}

// WeekdayHistogram returns activity counts bucketed by day of week (Mon-Sun)
func (r *AggregateRepository) WeekdayHistogram(ctx context.Context, userID uuid.UUID) ([]models.ActivityBucket, error) {
	query := `SELECT weekday, notes, recordings, documents, messages FROM get_user_weekday_activity($1)`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekday histogram: %w", err)
	}
	defer rows.Close()

	var buckets []models.ActivityBucket
	for rows.Next() {
		var b models.ActivityBucket
		if err := rows.Scan(&b.Label, &b.Notes, &b.Recordings, &b.Documents, &b.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan weekday bucket: %w", err)
		}
		b.Recompute()
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate weekday buckets: %w", err)
	}

	return buckets, nil
}

// CategoryDistribution returns the user's top note categories by count
func (r *AggregateRepository) CategoryDistribution(ctx context.Context, userID uuid.UUID, limit int) ([]models.CategoryCount, error) {
	query := `
		SELECT COALESCE(category, 'uncategorized'), count(*)
		FROM notes
		WHERE user_id = $1
		GROUP BY 1
		ORDER BY 2 DESC, 1 ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query category distribution: %w", err)
	}
	defer rows.Close()

	var counts []models.CategoryCount
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category counts: %w", err)
	}

	return counts, nil
}

// DocumentStatusBreakdown returns document counts grouped by processing status
func (r *AggregateRepository) DocumentStatusBreakdown(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	query := `
		SELECT status, count(*)
		FROM documents
		WHERE user_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query document status breakdown: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan document status row: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document status rows: %w", err)
	}

	return out, nil
}
