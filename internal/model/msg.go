package model

// Bubble Tea message types

// ErrorMsg represents an error message.
type ErrorMsg struct {
	Err error
}

// MealsLoadedMsg is sent when the meal list is read from the cache.
type MealsLoadedMsg struct {
	Meals []MealRecord
	Today DailyGrade
}

// MealDetailLoadedMsg is sent when a meal and its details are loaded.
type MealDetailLoadedMsg struct {
	Meal        MealRecord
	Ingredients []Ingredient
	Nutrition   *MealNutrition
}

// FormCancelledMsg is sent when a form is cancelled.
type FormCancelledMsg struct{}

// Screen represents different app screens.
type Screen int

const (
	ScreenMeals Screen = iota
	ScreenMealDetail
	ScreenLogMeal
)

// Mode represents the current interaction mode.
type Mode int

const (
	ModeNav Mode = iota
	ModeInsert
)
