package store

import (
	"context"
	"errors"

	"nutrilog/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the authoritative home of meals and their related rows. Writes
// are published as change events to subscribers of the feed.
type Store interface {
	// ListMeals returns every meal, newest first.
	ListMeals(ctx context.Context) ([]model.MealRecord, error)
	// ListMealsByDate returns the meals of one day (YYYY-MM-DD), oldest first.
	ListMealsByDate(ctx context.Context, date string) ([]model.MealRecord, error)
	GetMeal(ctx context.Context, id int64) (model.MealRecord, error)
	CreateMeal(ctx context.Context, m model.MealRecord) (model.MealRecord, error)
	UpdateMeal(ctx context.Context, id int64, u model.MealUpdate) (model.MealRecord, error)
	DeleteMeal(ctx context.Context, id int64) error

	ListIngredients(ctx context.Context, mealID int64) ([]model.Ingredient, error)
	CreateIngredient(ctx context.Context, in model.Ingredient) (model.Ingredient, error)
	UpdateIngredient(ctx context.Context, id int64, u model.IngredientUpdate) (model.Ingredient, error)
	DeleteIngredient(ctx context.Context, id int64) error

	GetNutrition(ctx context.Context, mealID int64) (model.MealNutrition, error)
	CreateNutrition(ctx context.Context, n model.MealNutrition) (model.MealNutrition, error)
	UpdateNutrition(ctx context.Context, id int64, totals model.NutritionTotals) (model.MealNutrition, error)
	DeleteNutrition(ctx context.Context, id int64) error

	GetDailyGrade(ctx context.Context, date string) (model.DailyGrade, error)
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Client)(nil)
)
