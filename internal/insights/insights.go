// Package insights turns a day's grade and the past week of meals into short,
// ranked suggestions.
package insights

import (
	"fmt"
	"sort"
	"time"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

// MaxInsights is the number of insights Generate returns at most.
const MaxInsights = 4

// Category groups insights for display.
type Category string

const (
	CategoryNutrition Category = "nutrition"
	CategoryLifestyle Category = "lifestyle"
	CategoryHealth    Category = "health"
)

// Insight is one suggestion. Higher Priority ranks first.
type Insight struct {
	ID          string   `json:"id"`
	Emoji       string   `json:"emoji"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actionable  bool     `json:"actionable"`
	Category    Category `json:"category"`
	Priority    int      `json:"priority"`
}

// Input is what insights are derived from.
type Input struct {
	// Date is the day the insights are for (YYYY-MM-DD, UTC).
	Date string
	// Daily is the day's grade summary; a zero MealCount means nothing was
	// logged.
	Daily model.DailyGrade
	// Meals are recent meals, newest first. Meals outside the week ending on
	// Date are ignored.
	Meals []model.MealRecord
	// Now drives the time-of-day and weekend rules.
	Now time.Time
}

// Generate builds every applicable insight and returns the highest ranked.
func Generate(in Input) []Insight {
	week := weekOf(in.Date, in.Meals)

	var out []Insight
	out = append(out, gradeInsights(in.Daily)...)
	out = append(out, nutritionInsights(in.Daily, dayTotals(in.Date, in.Meals))...)
	out = append(out, patternInsights(week, in.Now.Location())...)
	out = append(out, motivationalInsights(in.Daily, week, in.Now)...)

	rank(out)
	if len(out) > MaxInsights {
		out = out[:MaxInsights]
	}
	return out
}

// Fallback is shown when no data could be loaded.
func Fallback() []Insight {
	return []Insight{
		{ID: "general-tip-1", Emoji: "🥬", Title: "Eat the rainbow", Description: "Include colorful vegetables in your meals for diverse nutrients.", Actionable: true, Category: CategoryNutrition, Priority: 7},
		{ID: "general-tip-2", Emoji: "💧", Title: "Stay hydrated", Description: "Drink water throughout the day to support overall health.", Actionable: true, Category: CategoryLifestyle, Priority: 6},
		{ID: "general-tip-3", Emoji: "🏃", Title: "Move after meals", Description: "A short walk after eating can help with digestion.", Actionable: true, Category: CategoryHealth, Priority: 5},
	}
}

// rank orders by priority, then actionable first. Ties keep their order.
func rank(list []Insight) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		return list[i].Actionable && !list[j].Actionable
	})
}

func gradeInsights(d model.DailyGrade) []Insight {
	if d.MealCount == 0 {
		return []Insight{{ID: "start-tracking", Emoji: "🚀", Title: "Start your journey", Description: "Log your first meal today to get personalized insights!", Actionable: true, Category: CategoryLifestyle, Priority: 8}}
	}

	var out []Insight
	switch d.AverageGrade {
	case grade.A:
		out = append(out, Insight{ID: "maintain-excellence", Emoji: "🌟", Title: "Excellent choices today!", Description: "You're crushing it with an A-grade day. Keep up the amazing work!", Category: CategoryNutrition, Priority: 9})
	case grade.B:
		out = append(out, Insight{ID: "push-to-a", Emoji: "💪", Title: "So close to an A!", Description: "Add more fiber-rich foods to your next meal to reach A-grade.", Actionable: true, Category: CategoryNutrition, Priority: 8})
	case grade.C:
		out = append(out, Insight{ID: "improve-grade", Emoji: "🥗", Title: "Room for improvement", Description: "Try adding more vegetables and lean protein to boost your grade.", Actionable: true, Category: CategoryNutrition, Priority: 7})
	case grade.D, grade.E:
		out = append(out, Insight{ID: "course-correction", Emoji: "🔄", Title: "Let's turn this around", Description: "Focus on whole foods and vegetables for your next meal.", Actionable: true, Category: CategoryNutrition, Priority: 9})
	}

	switch {
	case d.MealCount == 1:
		out = append(out, Insight{ID: "meal-frequency", Emoji: "⏰", Title: "Plan your next meal", Description: "Regular meals help maintain steady energy and better choices.", Actionable: true, Category: CategoryLifestyle, Priority: 6})
	case d.MealCount >= 4:
		out = append(out, Insight{ID: "frequent-eating", Emoji: "🍽️", Title: "Mindful eating", Description: "You've logged several meals. Consider meal sizes and hunger cues.", Actionable: true, Category: CategoryHealth, Priority: 5})
	}
	return out
}

// totals sums the macro columns of a day's meals.
type totals struct {
	calories, protein, carbs, fat, sugar, fiber, sodium float64
}

func dayTotals(date string, meals []model.MealRecord) totals {
	var t totals
	for _, m := range meals {
		if m.Day() != date {
			continue
		}
		t.calories += m.Calories
		t.protein += m.Protein
		t.carbs += m.Carbs
		t.fat += m.Fat
		t.sugar += m.Sugar
		t.fiber += m.Fiber
		t.sodium += m.Sodium
	}
	return t
}

func nutritionInsights(d model.DailyGrade, t totals) []Insight {
	if d.MealCount == 0 {
		return nil
	}

	var out []Insight
	switch {
	case t.fiber < 5:
		out = append(out, Insight{ID: "low-fiber", Emoji: "🥦", Title: "Boost your fiber", Description: "Add beans, vegetables, or whole grains to reach your fiber goals.", Actionable: true, Category: CategoryNutrition, Priority: 8})
	case t.fiber >= 25:
		out = append(out, Insight{ID: "high-fiber", Emoji: "🌾", Title: "Fiber champion!", Description: "Great job getting plenty of fiber today. Your gut health will thank you!", Category: CategoryNutrition, Priority: 7})
	}

	switch {
	case t.protein < 50:
		out = append(out, Insight{ID: "low-protein", Emoji: "🍳", Title: "More protein needed", Description: "Add eggs, fish, or legumes to support your muscle health.", Actionable: true, Category: CategoryNutrition, Priority: 7})
	case t.protein >= 100:
		out = append(out, Insight{ID: "good-protein", Emoji: "💪", Title: "Protein powerhouse", Description: "Excellent protein intake today! Perfect for muscle maintenance.", Category: CategoryNutrition, Priority: 6})
	}

	switch {
	case t.carbs < 100:
		out = append(out, Insight{ID: "low-carbs", Emoji: "🍠", Title: "Energy boost needed", Description: "Consider adding complex carbs like sweet potatoes or quinoa for sustained energy.", Actionable: true, Category: CategoryNutrition, Priority: 6})
	case t.carbs > 300:
		out = append(out, Insight{ID: "high-carbs", Emoji: "🌾", Title: "Carb balance", Description: "Focus on complex carbs and consider pairing with protein to balance blood sugar.", Actionable: true, Category: CategoryNutrition, Priority: 7})
	}

	switch {
	case t.fat < 30:
		out = append(out, Insight{ID: "low-fat", Emoji: "🥑", Title: "Healthy fats needed", Description: "Add avocado, nuts, or olive oil for hormone health and nutrient absorption.", Actionable: true, Category: CategoryNutrition, Priority: 7})
	case t.fat > 100:
		out = append(out, Insight{ID: "high-fat", Emoji: "⚖️", Title: "Fat balance", Description: "Consider lighter cooking methods and focus on lean proteins for balance.", Actionable: true, Category: CategoryNutrition, Priority: 6})
	}

	if t.sugar > 50 {
		out = append(out, Insight{ID: "high-sugar", Emoji: "🍯", Title: "Watch the sugar", Description: "Consider reducing added sugars and opt for natural sweetness from fruits.", Actionable: true, Category: CategoryNutrition, Priority: 8})
	}
	if t.sodium > 2300 {
		out = append(out, Insight{ID: "high-sodium", Emoji: "🧂", Title: "Sodium check", Description: "Try fresh herbs and spices instead of salt for flavor.", Actionable: true, Category: CategoryNutrition, Priority: 7})
	}

	switch {
	case t.calories <= 0:
	case t.calories < 1200:
		out = append(out, Insight{ID: "low-calories", Emoji: "⚡", Title: "Fuel your body", Description: "Consider adding nutrient-dense foods to meet your energy needs.", Actionable: true, Category: CategoryNutrition, Priority: 8})
	case t.calories > 3000:
		out = append(out, Insight{ID: "high-calories", Emoji: "🎯", Title: "Mindful portions", Description: "Focus on nutrient-dense, lower-calorie foods like vegetables and lean proteins.", Actionable: true, Category: CategoryNutrition, Priority: 6})
	}
	return out
}

// weekOf keeps the meals dated within the seven days ending on date.
func weekOf(date string, meals []model.MealRecord) []model.MealRecord {
	end, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil
	}
	from := end.AddDate(0, 0, -7).Format(model.DateLayout)

	var out []model.MealRecord
	for _, m := range meals {
		if d := m.Day(); d != "" && d >= from && d <= date {
			out = append(out, m)
		}
	}
	return out
}

func averageScore(meals []model.MealRecord) float64 {
	sum := 0
	for _, m := range meals {
		sum += letterValue(m.MealGrade)
	}
	return float64(sum) / float64(len(meals))
}

// letterValue maps A..E to 5..1.
func letterValue(l grade.Letter) int {
	switch l {
	case grade.A:
		return 5
	case grade.B:
		return 4
	case grade.C:
		return 3
	case grade.D:
		return 2
	case grade.E:
		return 1
	}
	return 0
}

func patternInsights(week []model.MealRecord, loc *time.Location) []Insight {
	if len(week) < 3 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []Insight
	recent := week[:min(5, len(week))]
	if len(week) > 5 {
		older := week[5:min(10, len(week))]
		recentAvg, olderAvg := averageScore(recent), averageScore(older)
		switch {
		case recentAvg > olderAvg+0.5:
			out = append(out, Insight{ID: "improving-trend", Emoji: "📈", Title: "Trending upward!", Description: "Your meal quality has improved this week. Keep up the momentum!", Category: CategoryHealth, Priority: 8})
		case recentAvg < olderAvg-0.5:
			out = append(out, Insight{ID: "declining-trend", Emoji: "📉", Title: "Let's refocus", Description: "Your recent meals could use some attention. Back to basics with whole foods.", Actionable: true, Category: CategoryHealth, Priority: 9})
		}
	}

	allA := true
	for _, m := range recent {
		if m.MealGrade != grade.A {
			allA = false
			break
		}
	}
	if allA {
		out = append(out, Insight{ID: "consistency-champion", Emoji: "🏆", Title: "Consistency champion", Description: "Amazing! You've maintained A-grade meals consistently.", Category: CategoryHealth, Priority: 9})
	}

	late := 0
	for _, m := range week {
		if m.MealDate.In(loc).Hour() >= 22 {
			late++
		}
	}
	if late >= 3 {
		out = append(out, Insight{ID: "late-eating", Emoji: "🌙", Title: "Earlier dinner timing", Description: "Try eating dinner earlier for better sleep and digestion.", Actionable: true, Category: CategoryLifestyle, Priority: 6})
	}
	return out
}

func motivationalInsights(d model.DailyGrade, week []model.MealRecord, now time.Time) []Insight {
	var out []Insight
	if len(week) >= 7 {
		var as, bs int
		for _, m := range week[:7] {
			switch m.MealGrade {
			case grade.A:
				as++
			case grade.B:
				bs++
			}
		}
		switch {
		case as >= 4:
			out = append(out, Insight{ID: "weekly-winner", Emoji: "🎯", Title: "Weekly winner!", Description: fmt.Sprintf("%d A-grade meals this week! You're building healthy habits.", as), Category: CategoryHealth, Priority: 8})
		case as+bs >= 5:
			out = append(out, Insight{ID: "solid-week", Emoji: "✨", Title: "Solid week", Description: "Most of your meals this week were B-grade or better. Great progress!", Category: CategoryHealth, Priority: 7})
		}
	}

	if h := now.Hour(); h >= 14 && h <= 16 {
		out = append(out, Insight{ID: "hydration-reminder", Emoji: "💧", Title: "Hydration check", Description: "Mid-afternoon is perfect for a water break. Stay hydrated!", Actionable: true, Category: CategoryLifestyle, Priority: 5})
	}

	weekend := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	if weekend && d.MealCount > 0 && letterValue(d.AverageGrade) <= letterValue(grade.C) {
		out = append(out, Insight{ID: "weekend-planning", Emoji: "📅", Title: "Weekend meal prep", Description: "Use weekend time to prep healthy meals for the busy week ahead.", Actionable: true, Category: CategoryLifestyle, Priority: 6})
	}
	return out
}
