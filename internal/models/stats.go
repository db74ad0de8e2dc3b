package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// RecentItemLimit is the maximum length of the recent-item lists
	RecentItemLimit = 3
	// DailySeriesShort is the length of the short daily activity series
	DailySeriesShort = 7
	// DailySeriesLong is the length of the long daily activity series
	DailySeriesLong = 30
	// HourlyBucketCount is the number of hour-of-day buckets
	HourlyBucketCount = 24
	// WeekdayBucketCount is the number of day-of-week buckets
	WeekdayBucketCount = 7
)

// Category identifies a content category tracked on the dashboard
type Category string

const (
	// CategoryNotes is the notes category
	CategoryNotes Category = "notes"
	// CategoryRecordings is the recordings category
	CategoryRecordings Category = "recordings"
	// CategoryDocuments is the documents category
	CategoryDocuments Category = "documents"
	// CategoryMessages is the chat messages category
	CategoryMessages Category = "messages"
	// CategoryScheduleItems is the schedule items category
	CategoryScheduleItems Category = "schedule_items"
	// CategoryQuizzes is the quizzes category
	CategoryQuizzes Category = "quizzes"
)

// ItemSummary is a compact reference to a recently created item
type ItemSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityBucket holds per-category counts for one time bucket
// (a day, an hour of day, or a day of week)
type ActivityBucket struct {
	Label      string `json:"label"`
	Notes      int    `json:"notes"`
	Recordings int    `json:"recordings"`
	Documents  int    `json:"documents"`
	Messages   int    `json:"messages"`
	Total      int    `json:"total"`
}

// Sum returns the sum of the per-category counts
func (b ActivityBucket) Sum() int {
	return b.Notes + b.Recordings + b.Documents + b.Messages
}

// Recompute sets Total to the sum of the per-category counts
func (b *ActivityBucket) Recompute() {
	b.Total = b.Sum()
}

// CategoryCount is one entry of the top-categories distribution
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// VelocityPoint is one week of the learning-velocity series
type VelocityPoint struct {
	WeekStart    string `json:"week_start"` // YYYY-MM-DD, Monday
	ItemsCreated int    `json:"items_created"`
	StudyMinutes int    `json:"study_minutes"`
}

// DashboardStats is one immutable snapshot of a user's activity.
// Snapshots are produced by a full fetch, optionally patched in place by
// change events, and replaced wholesale by the next full fetch.
type DashboardStats struct {
	UserID uuid.UUID `json:"user_id"`

	// Counters
	TotalNotes         int `json:"total_notes"`
	TotalRecordings    int `json:"total_recordings"`
	TotalDocuments     int `json:"total_documents"`
	TotalMessages      int `json:"total_messages"`
	TotalScheduleItems int `json:"total_schedule_items"`
	TotalQuizzes       int `json:"total_quizzes"`
	NotesWithAI        int `json:"notes_with_ai"`

	// Derived rates
	AIUsageRate          float64 `json:"ai_usage_rate"`
	EngagementScore      float64 `json:"engagement_score"`
	AvgNotesPerDay       float64 `json:"avg_notes_per_day"`
	AvgDailyStudyMinutes float64 `json:"avg_daily_study_minutes"`
	StreakDays           int     `json:"streak_days"`

	// Time series
	Daily7  []ActivityBucket `json:"daily_7"`
	Daily30 []ActivityBucket `json:"daily_30"`
	Hourly  []ActivityBucket `json:"hourly"`
	Weekday []ActivityBucket `json:"weekday"`

	// Snapshots
	RecentNotes      []ItemSummary   `json:"recent_notes"`
	RecentRecordings []ItemSummary   `json:"recent_recordings"`
	RecentDocuments  []ItemSummary   `json:"recent_documents"`
	TopCategories    []CategoryCount `json:"top_categories"`
	LearningVelocity []VelocityPoint `json:"learning_velocity"`
	DocumentStatus   map[string]int  `json:"document_status"`

	LastFetched time.Time `json:"last_fetched"`
}

// NewDashboardStats returns a zeroed snapshot for a user. Series are empty
// until the aggregate phase fills them; charts render "no data" for empty
// slices.
func NewDashboardStats(userID uuid.UUID) *DashboardStats {
	return &DashboardStats{
		UserID:           userID,
		Daily7:           []ActivityBucket{},
		Daily30:          []ActivityBucket{},
		Hourly:           []ActivityBucket{},
		Weekday:          []ActivityBucket{},
		RecentNotes:      []ItemSummary{},
		RecentRecordings: []ItemSummary{},
		RecentDocuments:  []ItemSummary{},
		TopCategories:    []CategoryCount{},
		LearningVelocity: []VelocityPoint{},
		DocumentStatus:   map[string]int{},
	}
}

// Clone returns a deep copy of the snapshot
func (s *DashboardStats) Clone() *DashboardStats {
	out := *s
	out.Daily7 = append([]ActivityBucket(nil), s.Daily7...)
	out.Daily30 = append([]ActivityBucket(nil), s.Daily30...)
	out.Hourly = append([]ActivityBucket(nil), s.Hourly...)
	out.Weekday = append([]ActivityBucket(nil), s.Weekday...)
	out.RecentNotes = append([]ItemSummary(nil), s.RecentNotes...)
	out.RecentRecordings = append([]ItemSummary(nil), s.RecentRecordings...)
	out.RecentDocuments = append([]ItemSummary(nil), s.RecentDocuments...)
	out.TopCategories = append([]CategoryCount(nil), s.TopCategories...)
	out.LearningVelocity = append([]VelocityPoint(nil), s.LearningVelocity...)
	out.DocumentStatus = make(map[string]int, len(s.DocumentStatus))
	for k, v := range s.DocumentStatus {
		out.DocumentStatus[k] = v
	}
	return &out
}

// Validate checks the snapshot invariants: non-negative counters, bucket
// totals equal to the sum of their category counts, and recent lists within
// the size cap
func (s *DashboardStats) Validate() error {
	counters := map[string]int{
		"total_notes":          s.TotalNotes,
		"total_recordings":     s.TotalRecordings,
		"total_documents":      s.TotalDocuments,
		"total_messages":       s.TotalMessages,
		"total_schedule_items": s.TotalScheduleItems,
		"total_quizzes":        s.TotalQuizzes,
		"notes_with_ai":        s.NotesWithAI,
	}
	for name, v := range counters {
		if v < 0 {
			return fmt.Errorf("counter %s is negative: %d", name, v)
		}
	}

	series := map[string][]ActivityBucket{
		"daily_7":  s.Daily7,
		"daily_30": s.Daily30,
		"hourly":   s.Hourly,
		"weekday":  s.Weekday,
	}
	for name, buckets := range series {
		for i, b := range buckets {
			if b.Total != b.Sum() {
				return fmt.Errorf("series %s bucket %d: total %d does not match sum %d", name, i, b.Total, b.Sum())
			}
		}
	}

	recents := map[string][]ItemSummary{
		"recent_notes":      s.RecentNotes,
		"recent_recordings": s.RecentRecordings,
		"recent_documents":  s.RecentDocuments,
	}
	for name, items := range recents {
		if len(items) > RecentItemLimit {
			return fmt.Errorf("%s exceeds cap: %d > %d", name, len(items), RecentItemLimit)
		}
	}

	return nil
}

// IsFresh reports whether the snapshot is younger than ttl
func (s *DashboardStats) IsFresh(ttl time.Duration, now time.Time) bool {
	if s.LastFetched.IsZero() {
		return false
	}
	return now.Sub(s.LastFetched) < ttl
}
