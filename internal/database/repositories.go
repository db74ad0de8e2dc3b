package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/studyhub/dashboard-api/internal/models"
)

// ActivityRepositoryInterface defines the count and recent-item operations
// This interface enables better testability by allowing mock implementations
type ActivityRepositoryInterface interface {
	CountNotes(ctx context.Context, userID uuid.UUID) (int, error)
	CountNotesWithAI(ctx context.Context, userID uuid.UUID) (int, error)
	CountRecordings(ctx context.Context, userID uuid.UUID) (int, error)
	CountDocuments(ctx context.Context, userID uuid.UUID) (int, error)
	CountMessages(ctx context.Context, userID uuid.UUID) (int, error)
	CountScheduleItems(ctx context.Context, userID uuid.UUID) (int, error)
	CountQuizzes(ctx context.Context, userID uuid.UUID) (int, error)
	RecentNotes(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemSummary, error)
	RecentRecordings(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemSummary, error)
	RecentDocuments(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemSummary, error)
	ActivityRows(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]ActivityRow, error)
}

// AggregateRepositoryInterface defines the server-side aggregate operations
type AggregateRepositoryInterface interface {
	ActivityStats(ctx context.Context, userID uuid.UUID, days int) ([]models.ActivityBucket, error)
	LearningVelocity(ctx context.Context, userID uuid.UUID, weeks int) ([]models.VelocityPoint, error)
	Streak(ctx context.Context, userID uuid.UUID) (int, error)
	HourlyHistogram(ctx context.Context, userID uuid.UUID) ([]models.ActivityBucket, error)
	WeekdayHistogram(ctx context.Context, userID uuid.UUID) ([]models.ActivityBucket, error)
	CategoryDistribution(ctx context.Context, userID uuid.UUID, limit int) ([]models.CategoryCount, error)
	DocumentStatusBreakdown(ctx context.Context, userID uuid.UUID) (map[string]int, error)
}

// Ensure concrete types implement the interfaces
var (
	_ ActivityRepositoryInterface  = (*ActivityRepository)(nil)
	_ AggregateRepositoryInterface = (*AggregateRepository)(nil)
)
