package stats

import (
	"math"
	"time"

	"github.com/example/kanadeck/pkg/models"
)

// WindowDays is the number of days covered by an activity summary
const WindowDays = 28

// WindowStart returns midnight of the first day of the window ending on the day of now
func WindowStart(now time.Time, loc *time.Location) time.Time {
	return startOfDay(now, loc).AddDate(0, 0, -(WindowDays - 1))
}

// Summarize buckets reviews into calendar days of loc and derives totals,
// the daily average and the current streak. Reviews outside the window are ignored.
func Summarize(reviews []models.Review, now time.Time, loc *time.Location) models.Activity {
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now, loc)

	days := make([]int, WindowDays)
	for _, review := range reviews {
		age := daysBetween(startOfDay(review.ReviewedAt, loc), today)
		if age < 0 || age >= WindowDays {
			continue
		}
		days[WindowDays-1-age]++
	}

	activity := models.Activity{
		Days:   days,
		Levels: make([]int, WindowDays),
	}
	for i, count := range days {
		activity.TotalReviews += count
		activity.Levels[i] = Level(count)
	}
	activity.AveragePerDay = float64(activity.TotalReviews) / WindowDays
	activity.Streak = Streak(days)
	return activity
}

// Streak counts consecutive non-zero days backwards from the last entry
func Streak(days []int) int {
	streak := 0
	for i := len(days) - 1; i >= 0 && days[i] > 0; i-- {
		streak++
	}
	return streak
}

// Level maps a daily review count to an intensity from 0 to 4
func Level(count int) int {
	switch {
	case count <= 0:
		return 0
	case count < 2:
		return 1
	case count < 4:
		return 2
	case count < 6:
		return 3
	default:
		return 4
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days from a to b; rounding absorbs DST shifts
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
