package stats

import (
	"fmt"
	"time"

	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/models"
)

// dateLabel formats a day the way the dashboard charts expect
const dateLabel = "2006-01-02"

// engagement score component caps. Each component contributes up to its
// cap and the capped sum is the final 0-100 score.
const (
	engagementStreakCap      = 25.0
	engagementNotesCap       = 20.0
	engagementAICap          = 15.0
	engagementStudyCap       = 20.0
	engagementVarietyCap     = 10.0
	engagementConsistencyCap = 10.0
)

// deriveRates fills the snapshot's derived-rate fields from its counters
// and series. Must run after the counters and series are final.
func deriveRates(snap *models.DashboardStats, windowDays int) {
	if snap.TotalNotes > 0 {
		snap.AIUsageRate = float64(snap.NotesWithAI) / float64(snap.TotalNotes)
	} else {
		snap.AIUsageRate = 0
	}

	if windowDays > 0 {
		notesInWindow := 0
		for _, b := range snap.Daily30 {
			notesInWindow += b.Notes
		}
		snap.AvgNotesPerDay = float64(notesInWindow) / float64(windowDays)
	}

	totalMinutes := 0
	for _, p := range snap.LearningVelocity {
		totalMinutes += p.StudyMinutes
	}
	if weeks := len(snap.LearningVelocity); weeks > 0 {
		snap.AvgDailyStudyMinutes = float64(totalMinutes) / float64(weeks*7)
	}

	snap.EngagementScore = engagementScore(snap)
}

// engagementScore combines streak, note volume, AI usage, study time,
// content variety, and weekly consistency into a 0-100 score
func engagementScore(snap *models.DashboardStats) float64 {
	score := 0.0

	// Streak: full credit at a 2-week streak
	score += capAt(float64(snap.StreakDays)/14.0*engagementStreakCap, engagementStreakCap)

	// Note volume: full credit at 2 notes per day
	score += capAt(snap.AvgNotesPerDay/2.0*engagementNotesCap, engagementNotesCap)

	// AI usage rate is already 0-1
	score += capAt(snap.AIUsageRate*engagementAICap, engagementAICap)

	// Study time: full credit at 60 minutes per day
	score += capAt(snap.AvgDailyStudyMinutes/60.0*engagementStudyCap, engagementStudyCap)

	// Variety: credit per distinct content type in use
	variety := 0
	for _, n := range []int{snap.TotalNotes, snap.TotalRecordings, snap.TotalDocuments, snap.TotalMessages, snap.TotalScheduleItems} {
		if n > 0 {
			variety++
		}
	}
	score += capAt(float64(variety)/5.0*engagementVarietyCap, engagementVarietyCap)

	// Consistency: share of recent weeks with any activity
	if weeks := len(snap.LearningVelocity); weeks > 0 {
		active := 0
		for _, p := range snap.LearningVelocity {
			if p.ItemsCreated > 0 || p.StudyMinutes > 0 {
				active++
			}
		}
		score += float64(active) / float64(weeks) * engagementConsistencyCap
	}

	return capAt(score, 100)
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

// bucketAdd increments a bucket's per-category count and total
func bucketAdd(b *models.ActivityBucket, category models.Category) {
	switch category {
	case models.CategoryNotes:
		b.Notes++
	case models.CategoryRecordings:
		b.Recordings++
	case models.CategoryDocuments:
		b.Documents++
	case models.CategoryMessages:
		b.Messages++
	}
	b.Recompute()
}

// dailyFromRows builds an n-day daily series from raw rows, oldest day
// first, one bucket per day including zero days
func dailyFromRows(rows []database.ActivityRow, days int, now time.Time) []models.ActivityBucket {
	start := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	buckets := make([]models.ActivityBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		label := start.AddDate(0, 0, i).Format(dateLabel)
		buckets[i] = models.ActivityBucket{Label: label}
		index[label] = i
	}

	for _, row := range rows {
		label := row.CreatedAt.UTC().Format(dateLabel)
		if i, ok := index[label]; ok {
			bucketAdd(&buckets[i], row.Category)
		}
	}
	return buckets
}

// hourlyFromRows builds a 24-bucket hour-of-day histogram from raw rows
func hourlyFromRows(rows []database.ActivityRow) []models.ActivityBucket {
	buckets := make([]models.ActivityBucket, models.HourlyBucketCount)
	for i := range buckets {
		buckets[i].Label = fmt.Sprintf("%02d", i)
	}
	for _, row := range rows {
		bucketAdd(&buckets[row.CreatedAt.UTC().Hour()], row.Category)
	}
	return buckets
}

// weekdayFromRows builds a 7-bucket day-of-week histogram, Monday first
func weekdayFromRows(rows []database.ActivityRow) []models.ActivityBucket {
	labels := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	buckets := make([]models.ActivityBucket, models.WeekdayBucketCount)
	for i := range buckets {
		buckets[i].Label = labels[i]
	}
	for _, row := range rows {
		// time.Weekday is Sunday-based; shift to Monday-based
		i := (int(row.CreatedAt.UTC().Weekday()) + 6) % 7
		bucketAdd(&buckets[i], row.Category)
	}
	return buckets
}

// streakFromRows counts consecutive days with activity ending today or
// yesterday. A gap of one day is allowed at the head so an early-morning
// check does not zero an unbroken streak.
func streakFromRows(rows []database.ActivityRow, now time.Time) int {
	if len(rows) == 0 {
		return 0
	}

	active := make(map[string]bool, len(rows))
	for _, row := range rows {
		active[row.CreatedAt.UTC().Format(dateLabel)] = true
	}

	day := now.UTC().Truncate(24 * time.Hour)
	if !active[day.Format(dateLabel)] {
		day = day.AddDate(0, 0, -1)
		if !active[day.Format(dateLabel)] {
			return 0
		}
	}

	streak := 0
	for active[day.Format(dateLabel)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// velocityFromRows builds the weekly learning-velocity series from raw
// rows, oldest week first, one point per week including empty weeks
func velocityFromRows(rows []database.ActivityRow, weeks int, now time.Time) []models.VelocityPoint {
	// Walk back to Monday of the current week
	day := now.UTC().Truncate(24 * time.Hour)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, -1)
	}
	start := day.AddDate(0, 0, -7*(weeks-1))

	points := make([]models.VelocityPoint, weeks)
	index := make(map[string]int, weeks)
	for i := 0; i < weeks; i++ {
		label := start.AddDate(0, 0, 7*i).Format(dateLabel)
		points[i] = models.VelocityPoint{WeekStart: label}
		index[label] = i
	}

	for _, row := range rows {
		d := row.CreatedAt.UTC().Truncate(24 * time.Hour)
		for d.Weekday() != time.Monday {
			d = d.AddDate(0, 0, -1)
		}
		if i, ok := index[d.Format(dateLabel)]; ok {
			points[i].ItemsCreated++
			points[i].StudyMinutes += row.Minutes
		}
	}
	return points
}

// topCategoriesFromCounters derives the category distribution from the
// snapshot's own counters when the server-side aggregate is unavailable
func topCategoriesFromCounters(snap *models.DashboardStats, limit int) []models.CategoryCount {
	all := []models.CategoryCount{
		{Category: string(models.CategoryNotes), Count: snap.TotalNotes},
		{Category: string(models.CategoryRecordings), Count: snap.TotalRecordings},
		{Category: string(models.CategoryDocuments), Count: snap.TotalDocuments},
		{Category: string(models.CategoryMessages), Count: snap.TotalMessages},
		{Category: string(models.CategoryScheduleItems), Count: snap.TotalScheduleItems},
		{Category: string(models.CategoryQuizzes), Count: snap.TotalQuizzes},
	}

	// Insertion sort keeps ties in declaration order
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Count > all[j-1].Count; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	out := make([]models.CategoryCount, 0, limit)
	for _, c := range all {
		if c.Count == 0 || len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out
}
