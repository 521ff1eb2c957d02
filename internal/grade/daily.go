package grade

import "math"

// DailySummary is the average of all meal grades logged on one day.
type DailySummary struct {
	Date         string   `json:"date"`
	AverageGrade Letter   `json:"average_grade"`
	MealCount    int      `json:"meal_count"`
	Grades       []Letter `json:"grades"`
}

var letterValues = map[Letter]int{A: 5, B: 4, C: 3, D: 2, E: 1}

var valueLetters = [...]Letter{E, D, C, B, A}

// Daily averages the grades of a day's meals. Unknown letters count as C and
// halves round up. It returns nil when there are no meals.
func Daily(date string, grades []Letter) *DailySummary {
	if len(grades) == 0 {
		return nil
	}

	total := 0
	for _, g := range grades {
		v, ok := letterValues[g]
		if !ok {
			v = letterValues[C]
		}
		total += v
	}

	avg := int(math.Floor(float64(total)/float64(len(grades)) + 0.5))
	avgLetter := C
	if avg >= 1 && avg <= len(valueLetters) {
		avgLetter = valueLetters[avg-1]
	}

	return &DailySummary{
		Date:         date,
		AverageGrade: avgLetter,
		MealCount:    len(grades),
		Grades:       append([]Letter(nil), grades...),
	}
}
