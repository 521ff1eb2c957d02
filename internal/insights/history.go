package insights

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize/english"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

// HistoryDays is how many days before today the history covers.
const HistoryDays = 6

// DaySummary is one past day of the history strip.
type DaySummary struct {
	Date      string       `json:"date"`
	Weekday   string       `json:"day_name"`
	Grade     grade.Letter `json:"grade"`
	MealCount int          `json:"meal_count"`
	Statement string       `json:"statement"`
}

// History is the past week as of Today, newest day first. Days with nothing
// logged are left out.
type History struct {
	Today string       `json:"today"`
	Days  []DaySummary `json:"days"`
}

// PastDays lists the HistoryDays dates before today, newest first.
func PastDays(today string) ([]string, error) {
	t, err := time.Parse(model.DateLayout, today)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", today, err)
	}
	days := make([]string, 0, HistoryDays)
	for i := 1; i <= HistoryDays; i++ {
		days = append(days, t.AddDate(0, 0, -i).Format(model.DateLayout))
	}
	return days, nil
}

// Summarize describes a stored daily grade.
func Summarize(d model.DailyGrade) DaySummary {
	s := DaySummary{
		Date:      d.Date,
		Grade:     d.AverageGrade,
		MealCount: d.MealCount,
	}
	if t, err := time.Parse(model.DateLayout, d.Date); err == nil {
		s.Weekday = t.Format("Mon")
	}
	if d.MealCount == 0 {
		s.Statement = "Nothing logged"
		return s
	}
	s.Statement = fmt.Sprintf("%s-grade day across %s", d.AverageGrade, english.Plural(d.MealCount, "meal", ""))
	return s
}
