package meals

import (
	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

func asMeals(v any) []model.MealRecord {
	list, _ := v.([]model.MealRecord)
	return list
}

func prepend(list []model.MealRecord, m model.MealRecord) []model.MealRecord {
	out := make([]model.MealRecord, 0, len(list)+1)
	out = append(out, m)
	return append(out, list...)
}

// settlePlaceholder swaps the optimistic entry tempID for the saved row. If
// the realtime echo already put the saved row in the list, the placeholder is
// dropped instead so the meal appears once.
func settlePlaceholder(list []model.MealRecord, tempID string, saved model.MealRecord) []model.MealRecord {
	echoed := false
	for _, m := range list {
		if m.ID != 0 && m.ID == saved.ID {
			echoed = true
			break
		}
	}

	out := make([]model.MealRecord, 0, len(list))
	for _, m := range list {
		switch {
		case m.TempID != "" && m.TempID == tempID:
			if !echoed {
				out = append(out, saved)
			}
		case m.ID != 0 && m.ID == saved.ID:
			out = append(out, saved)
		default:
			out = append(out, m)
		}
	}
	return out
}

func updateByID(list []model.MealRecord, id int64, fn func(model.MealRecord) model.MealRecord) []model.MealRecord {
	out := make([]model.MealRecord, len(list))
	for i, m := range list {
		if m.ID == id {
			m = fn(m)
		}
		out[i] = m
	}
	return out
}

func removeByID(list []model.MealRecord, id int64) []model.MealRecord {
	out := make([]model.MealRecord, 0, len(list))
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// addGrade returns the cached daily grade with one more meal of grade g.
func addGrade(old any, day string, g grade.Letter) any {
	prev, _ := old.(model.DailyGrade)
	letters := append(append([]grade.Letter(nil), prev.Grades...), g)
	summary := grade.Daily(day, letters)
	return model.DailyGrade{
		ID:           prev.ID,
		Date:         day,
		AverageGrade: summary.AverageGrade,
		MealCount:    summary.MealCount,
		Grades:       summary.Grades,
	}
}
