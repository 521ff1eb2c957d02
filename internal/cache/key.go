package cache

import (
	"strconv"
	"strings"
)

// Kind names a family of cached queries.
type Kind string

const (
	KindMeals           Kind = "meals"
	KindMeal            Kind = "meal"
	KindMealIngredients Kind = "mealIngredients"
	KindMealNutrition   Kind = "mealNutrition"
	KindDailyGrade      Kind = "dailyGrade"
	KindInsights        Kind = "insights"
	KindHistory         Kind = "storedExplanationsHistory"
)

// Key identifies one cached query: a kind plus an optional id and date.
type Key struct {
	Kind Kind
	ID   int64
	Date string
}

func Meals() Key { return Key{Kind: KindMeals} }
func Meal(id int64) Key { return Key{Kind: KindMeal, ID: id} }
func Ingredients(mealID int64) Key { return Key{Kind: KindMealIngredients, ID: mealID} }
func Nutrition(mealID int64) Key { return Key{Kind: KindMealNutrition, ID: mealID} }
func DailyGrade(date string) Key { return Key{Kind: KindDailyGrade, Date: date} }
func Insights(date string) Key { return Key{Kind: KindInsights, Date: date} }
func History() Key { return Key{Kind: KindHistory} }

// String renders the key as "kind/id/date", omitting unset parts.
func (k Key) String() string {
	parts := []string{string(k.Kind)}
	if k.ID != 0 {
		parts = append(parts, strconv.FormatInt(k.ID, 10))
	}
	if k.Date != "" {
		parts = append(parts, k.Date)
	}
	return strings.Join(parts, "/")
}
