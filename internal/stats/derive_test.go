package stats

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/models"
)

var testNow = time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC) // a Wednesday

func row(category models.Category, at time.Time, minutes int) database.ActivityRow {
	return database.ActivityRow{Category: category, CreatedAt: at, Minutes: minutes}
}

func TestDailyFromRows(t *testing.T) {
	rows := []database.ActivityRow{
		row(models.CategoryNotes, testNow, 0),
		row(models.CategoryNotes, testNow.Add(-2*time.Hour), 0),
		row(models.CategoryMessages, testNow.AddDate(0, 0, -1), 0),
		row(models.CategoryRecordings, testNow.AddDate(0, 0, -6), 30),
		// Outside the 7-day window, must be dropped
		row(models.CategoryNotes, testNow.AddDate(0, 0, -10), 0),
	}

	buckets := dailyFromRows(rows, models.DailySeriesShort, testNow)
	if len(buckets) != models.DailySeriesShort {
		t.Fatalf("expected %d buckets, got %d", models.DailySeriesShort, len(buckets))
	}

	// Oldest first
	if buckets[0].Label != "2026-08-20" {
		t.Errorf("expected first bucket 2026-08-20, got %s", buckets[0].Label)
	}
	last := buckets[len(buckets)-1]
	if last.Label != "2026-08-26" || last.Notes != 2 {
		t.Errorf("expected 2 notes on 2026-08-26, got %+v", last)
	}
	if buckets[5].Messages != 1 {
		t.Errorf("expected 1 message on 2026-08-25, got %+v", buckets[5])
	}
	if buckets[0].Recordings != 1 {
		t.Errorf("expected 1 recording on 2026-08-20, got %+v", buckets[0])
	}

	total := 0
	for _, b := range buckets {
		if b.Total != b.Sum() {
			t.Errorf("bucket %s total %d does not match sum %d", b.Label, b.Total, b.Sum())
		}
		total += b.Total
	}
	if total != 4 {
		t.Errorf("expected 4 rows inside the window, got %d", total)
	}
}

func TestHourlyFromRows(t *testing.T) {
	rows := []database.ActivityRow{
		row(models.CategoryNotes, time.Date(2026, 8, 25, 9, 15, 0, 0, time.UTC), 0),
		row(models.CategoryNotes, time.Date(2026, 8, 24, 9, 45, 0, 0, time.UTC), 0),
		row(models.CategoryDocuments, time.Date(2026, 8, 24, 23, 5, 0, 0, time.UTC), 0),
	}

	buckets := hourlyFromRows(rows)
	if len(buckets) != models.HourlyBucketCount {
		t.Fatalf("expected %d buckets, got %d", models.HourlyBucketCount, len(buckets))
	}
	if buckets[9].Notes != 2 || buckets[9].Total != 2 {
		t.Errorf("expected 2 notes at hour 09, got %+v", buckets[9])
	}
	if buckets[23].Documents != 1 {
		t.Errorf("expected 1 document at hour 23, got %+v", buckets[23])
	}
	if buckets[0].Label != "00" || buckets[9].Label != "09" {
		t.Errorf("unexpected hour labels: %q %q", buckets[0].Label, buckets[9].Label)
	}
}

func TestWeekdayFromRows(t *testing.T) {
	rows := []database.ActivityRow{
		row(models.CategoryNotes, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), 0),    // Monday
		row(models.CategoryMessages, time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC), 0), // Sunday
	}

	buckets := weekdayFromRows(rows)
	if len(buckets) != models.WeekdayBucketCount {
		t.Fatalf("expected %d buckets, got %d", models.WeekdayBucketCount, len(buckets))
	}
	if buckets[0].Label != "Mon" || buckets[0].Notes != 1 {
		t.Errorf("expected Monday note first, got %+v", buckets[0])
	}
	if buckets[6].Label != "Sun" || buckets[6].Messages != 1 {
		t.Errorf("expected Sunday message last, got %+v", buckets[6])
	}
}

func TestStreakFromRows(t *testing.T) {
	tests := []struct {
		name string
		days []int // offsets back from testNow with activity
		want int
	}{
		{"no activity", nil, 0},
		{"active today only", []int{0}, 1},
		{"three day run ending today", []int{0, 1, 2}, 3},
		{"run ending yesterday still counts", []int{1, 2, 3}, 3},
		{"gap two days ago breaks the run", []int{0, 1, 3, 4}, 2},
		{"stale activity only", []int{5, 6}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows []database.ActivityRow
			for _, d := range tt.days {
				rows = append(rows, row(models.CategoryNotes, testNow.AddDate(0, 0, -d), 0))
			}
			if got := streakFromRows(rows, testNow); got != tt.want {
				t.Errorf("expected streak %d, got %d", tt.want, got)
			}
		})
	}
}

func TestVelocityFromRows(t *testing.T) {
	rows := []database.ActivityRow{
		row(models.CategoryNotes, testNow, 0),                            // current week (Mon 2026-08-24)
		row(models.CategoryRecordings, testNow.AddDate(0, 0, -2), 45),    // same week
		row(models.CategoryScheduleItems, testNow.AddDate(0, 0, -7), 60), // previous week
	}

	points := velocityFromRows(rows, 4, testNow)
	if len(points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(points))
	}
	if points[0].WeekStart != "2026-08-03" {
		t.Errorf("expected oldest week 2026-08-03, got %s", points[0].WeekStart)
	}

	current := points[3]
	if current.WeekStart != "2026-08-24" || current.ItemsCreated != 2 || current.StudyMinutes != 45 {
		t.Errorf("unexpected current week point: %+v", current)
	}
	prev := points[2]
	if prev.ItemsCreated != 1 || prev.StudyMinutes != 60 {
		t.Errorf("unexpected previous week point: %+v", prev)
	}
}

func TestDeriveRatesEmptySnapshot(t *testing.T) {
	snap := models.NewDashboardStats(uuid.New())
	deriveRates(snap, models.DailySeriesLong)

	if snap.AIUsageRate != 0 || snap.AvgNotesPerDay != 0 || snap.AvgDailyStudyMinutes != 0 {
		t.Errorf("empty snapshot should have zero rates: %+v", snap)
	}
	if snap.EngagementScore != 0 {
		t.Errorf("empty snapshot should have zero engagement score, got %f", snap.EngagementScore)
	}
}

func TestDeriveRates(t *testing.T) {
	snap := models.NewDashboardStats(uuid.New())
	snap.TotalNotes = 10
	snap.NotesWithAI = 4
	snap.Daily30 = []models.ActivityBucket{
		{Label: "2026-08-25", Notes: 15, Total: 15},
		{Label: "2026-08-26", Notes: 15, Total: 15},
	}
	snap.LearningVelocity = []models.VelocityPoint{
		{WeekStart: "2026-08-17", ItemsCreated: 3, StudyMinutes: 210},
		{WeekStart: "2026-08-24", ItemsCreated: 5, StudyMinutes: 420},
	}

	deriveRates(snap, models.DailySeriesLong)

	if snap.AIUsageRate != 0.4 {
		t.Errorf("expected AI usage rate 0.4, got %f", snap.AIUsageRate)
	}
	if snap.AvgNotesPerDay != 1.0 {
		t.Errorf("expected 1 note per day over 30 days, got %f", snap.AvgNotesPerDay)
	}
	// 630 minutes over 2 weeks = 45/day
	if snap.AvgDailyStudyMinutes != 45.0 {
		t.Errorf("expected 45 study minutes per day, got %f", snap.AvgDailyStudyMinutes)
	}
	if snap.EngagementScore <= 0 || snap.EngagementScore > 100 {
		t.Errorf("engagement score out of range: %f", snap.EngagementScore)
	}
}

func TestEngagementScoreClamped(t *testing.T) {
	snap := models.NewDashboardStats(uuid.New())
	snap.TotalNotes = 10000
	snap.NotesWithAI = 10000
	snap.TotalRecordings = 500
	snap.TotalDocuments = 500
	snap.TotalMessages = 500
	snap.TotalScheduleItems = 500
	snap.StreakDays = 365
	snap.AvgNotesPerDay = 50
	snap.AvgDailyStudyMinutes = 600
	snap.AIUsageRate = 1
	snap.LearningVelocity = []models.VelocityPoint{{WeekStart: "2026-08-24", ItemsCreated: 100, StudyMinutes: 4000}}

	if score := engagementScore(snap); score > 100 {
		t.Errorf("score should be clamped to 100, got %f", score)
	}
}

func TestTopCategoriesFromCounters(t *testing.T) {
	snap := models.NewDashboardStats(uuid.New())
	snap.TotalNotes = 10
	snap.TotalMessages = 25
	snap.TotalQuizzes = 3

	got := topCategoriesFromCounters(snap, 5)
	if len(got) != 3 {
		t.Fatalf("zero-count categories should be skipped, got %d entries", len(got))
	}
	if got[0].Category != "messages" || got[0].Count != 25 {
		t.Errorf("expected messages first, got %+v", got[0])
	}
	if got[1].Category != "notes" || got[2].Category != "quizzes" {
		t.Errorf("unexpected order: %+v", got)
	}

	if capped := topCategoriesFromCounters(snap, 2); len(capped) != 2 {
		t.Errorf("expected limit to cap output, got %d entries", len(capped))
	}
}
