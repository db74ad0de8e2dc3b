package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studyhub/dashboard-api/internal/models"
)

// ActivityRow is one raw content row used by the client-side aggregation
// fallback when a server-side aggregate is unavailable
type ActivityRow struct {
	Category  models.Category
	CreatedAt time.Time
	Minutes   int
}

// ActivityRepository handles per-table count and recent-item queries
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// count runs a count(*) query scoped to a user
func (r *ActivityRepository) count(ctx context.Context, query string, userID uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// CountNotes returns the user's total note count
func (r *ActivityRepository) CountNotes(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM notes WHERE user_id = $1`, userID)
}

// CountNotesWithAI returns the user's count of AI-assisted notes
func (r *ActivityRepository) CountNotesWithAI(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM notes WHERE user_id = $1 AND ai_generated = true`, userID)
}

// CountRecordings returns the user's total recording count
func (r *ActivityRepository) CountRecordings(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM recordings WHERE user_id = $1`, userID)
}

// CountDocuments returns the user's total document count
func (r *ActivityRepository) CountDocuments(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM documents WHERE user_id = $1`, userID)
}

// CountMessages returns the user's total chat message count
func (r *ActivityRepository) CountMessages(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM messages WHERE user_id = $1`, userID)
}

// CountScheduleItems returns the user's total schedule item count
func (r *ActivityRepository) CountScheduleItems(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM schedule_items WHERE user_id = $1`, userID)
}

// CountQuizzes returns the user's count of quizzes taken
func (r *ActivityRepository) CountQuizzes(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM quiz_attempts WHERE user_id = $1`, userID)
}

// recent runs a most-recent-items query scoped to a user
func (r *ActivityRepository) recent(ctx context.Context, query string, userID uuid.UUID, limit int) ([]models.ItemSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent items: %w", err)
	}
	defer rows.Close()

	items := []models.ItemSummary{}
	for rows.Next() {
		var item models.ItemSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent items: %w", err)
	}

	return items, nil
}

// RecentNotes returns the user's most recently created notes, newest first
func (r *ActivityRepository) RecentNotes(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemSummary, error) {
	query := `
		SELECT id, title, created_at
		FROM notes
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.recent(ctx, query, userID, limit)
}

// RecentRecordings returns the user's most recent recordings, newest first
func (r *ActivityRepository) RecentRecordings(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemSummary, error) {
	query := `
		SELECT id, title, created_at
		FROM recordings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.recent(ctx, query, userID, limit)
}

// RecentDocuments returns the user's most recent documents, newest first
func (r *ActivityRepository) RecentDocuments(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemSummary, error) {
	query := `
		SELECT id, file_name, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.recent(ctx, query, userID, limit)
}

// ActivityRows returns raw content rows since the given time, capped at
// limit, for client-side aggregation. Recordings and schedule items carry
// their duration in minutes; other categories report zero minutes.
func (r *ActivityRepository) ActivityRows(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]ActivityRow, error) {
	query := `
		SELECT category, created_at, minutes FROM (
			SELECT 'notes' AS category, created_at, 0 AS minutes
			FROM notes WHERE user_id = $1 AND created_at >= $2
			UNION ALL
			SELECT 'recordings', created_at, COALESCE(duration_minutes, 0)
			FROM recordings WHERE user_id = $1 AND created_at >= $2
			UNION ALL
			SELECT 'documents', created_at, 0
			FROM documents WHERE user_id = $1 AND created_at >= $2
			UNION ALL
			SELECT 'messages', created_at, 0
			FROM messages WHERE user_id = $1 AND created_at >= $2
			UNION ALL
			SELECT 'schedule_items', created_at, COALESCE(duration_minutes, 0)
			FROM schedule_items WHERE user_id = $1 AND created_at >= $2
		) activity
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity rows: %w", err)
	}
	defer rows.Close()

	var out []ActivityRow
	for rows.Next() {
		var row ActivityRow
		if err := rows.Scan(&row.Category, &row.CreatedAt, &row.Minutes); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity rows: %w", err)
	}

	return out, nil
}
