package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var day = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testMeal(name string, g grade.Letter, at time.Time) model.MealRecord {
	return model.MealRecord{
		MealName:        name,
		MealDescription: "had " + name,
		MealGrade:       g,
		OriginalGrade:   g,
		Comment:         "ok",
		MealDate:        at,
		Calories:        400,
		Protein:         20,
	}
}

// drain collects the events currently buffered on sub.
func drain(sub *Subscription) []model.ChangeEvent {
	var out []model.ChangeEvent
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCreateMealPublishesInsertAndDailyGrade(t *testing.T) {
	s := openTestStore(t)
	sub := s.Feed().Subscribe(nil, 0)
	ctx := context.Background()

	created, err := s.CreateMeal(ctx, testMeal("oats", grade.A, day))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, grade.A, created.MealGrade)
	assert.Equal(t, "2024-05-01", created.Day())

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, model.TableMealLogs, events[0].Table)
	assert.Equal(t, model.EventInsert, events[0].EventType)
	assert.Empty(t, events[0].Old)

	var row model.MealRecord
	require.NoError(t, json.Unmarshal(events[0].New, &row))
	assert.Equal(t, created.ID, row.ID)

	assert.Equal(t, model.TableDailyGrades, events[1].Table)
	assert.Equal(t, model.EventInsert, events[1].EventType)

	daily, err := s.GetDailyGrade(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, grade.A, daily.AverageGrade)
	assert.Equal(t, 1, daily.MealCount)
}

func TestDailyGradeRecomputedOnEveryMealWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateMeal(ctx, testMeal("salad", grade.A, day))
	require.NoError(t, err)
	_, err = s.CreateMeal(ctx, testMeal("fries", grade.D, day.Add(time.Hour)))
	require.NoError(t, err)

	// A=5, D=2 => 3.5 rounds up to B
	daily, err := s.GetDailyGrade(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, grade.B, daily.AverageGrade)
	assert.Equal(t, []grade.Letter{grade.A, grade.D}, daily.Grades)

	e := grade.E
	_, err = s.UpdateMeal(ctx, a.ID, model.MealUpdate{MealGrade: &e})
	require.NoError(t, err)
	daily, err = s.GetDailyGrade(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, grade.D, daily.AverageGrade, "E=1, D=2 => 1.5 rounds up to D")

	require.NoError(t, s.DeleteMeal(ctx, a.ID))
	daily, err = s.GetDailyGrade(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, daily.MealCount)
}

func TestDeleteLastMealRemovesDailyGrade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMeal(ctx, testMeal("toast", grade.C, day))
	require.NoError(t, err)

	sub := s.Feed().Subscribe([]string{model.TableMealLogs, model.TableDailyGrades}, 0)
	require.NoError(t, s.DeleteMeal(ctx, m.ID))

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventDelete, events[0].EventType)
	assert.Empty(t, events[0].New)

	var old model.MealRecord
	require.NoError(t, json.Unmarshal(events[0].Old, &old))
	assert.Equal(t, m.ID, old.ID)
	assert.Equal(t, model.TableDailyGrades, events[1].Table)
	assert.Equal(t, model.EventDelete, events[1].EventType)

	_, err = s.GetDailyGrade(ctx, "2024-05-01")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMeal(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMealPublishesOldAndNew(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m, err := s.CreateMeal(ctx, testMeal("toast", grade.C, day))
	require.NoError(t, err)

	sub := s.Feed().Subscribe([]string{model.TableMealLogs}, 0)
	followed := true
	b := grade.B
	updated, err := s.UpdateMeal(ctx, m.ID, model.MealUpdate{MealGrade: &b, TipFollowed: &followed})
	require.NoError(t, err)
	assert.Equal(t, grade.B, updated.MealGrade)
	assert.Equal(t, grade.C, updated.OriginalGrade)
	assert.True(t, updated.TipFollowed)

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventUpdate, events[0].EventType)
	assert.NotEmpty(t, events[0].Old)
	assert.NotEmpty(t, events[0].New)
}

func TestListMealsOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateMeal(ctx, testMeal("breakfast", grade.B, day))
	require.NoError(t, err)
	_, err = s.CreateMeal(ctx, testMeal("dinner", grade.C, day.Add(8*time.Hour)))
	require.NoError(t, err)
	_, err = s.CreateMeal(ctx, testMeal("yesterday", grade.A, day.Add(-24*time.Hour)))
	require.NoError(t, err)

	all, err := s.ListMeals(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dinner", all[0].MealName)
	assert.Equal(t, "yesterday", all[2].MealName)

	today, err := s.ListMealsByDate(ctx, "2024-05-01")
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, "breakfast", today[0].MealName)
}

func TestIngredientsAndNutrition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m, err := s.CreateMeal(ctx, testMeal("curry", grade.B, day))
	require.NoError(t, err)

	_, err = s.CreateIngredient(ctx, model.Ingredient{MealID: m.ID, Name: "rice", Quantity: 1, Unit: "cup", Emoji: "🍚", Position: 1})
	require.NoError(t, err)
	first, err := s.CreateIngredient(ctx, model.Ingredient{MealID: m.ID, Name: "dal", Quantity: 200, Unit: "g", Emoji: "🍛", IsEstimated: true})
	require.NoError(t, err)

	list, err := s.ListIngredients(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dal", list[0].Name)
	assert.True(t, list[0].IsEstimated)

	qty := 250.0
	updated, err := s.UpdateIngredient(ctx, first.ID, model.IngredientUpdate{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 250.0, updated.Quantity)
	assert.Equal(t, "dal", updated.Name)

	n, err := s.CreateNutrition(ctx, model.MealNutrition{MealID: m.ID, NutritionTotals: model.NutritionTotals{Calories: 600, ProteinG: 20}})
	require.NoError(t, err)
	got, err := s.GetNutrition(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got)

	_, err = s.CreateNutrition(ctx, model.MealNutrition{MealID: m.ID})
	assert.Error(t, err, "one nutrition row per meal")

	sub := s.Feed().Subscribe([]string{model.TableMealIngredients, model.TableMealNutrition}, 0)
	require.NoError(t, s.DeleteMeal(ctx, m.ID))
	events := drain(sub)
	assert.Len(t, events, 3)

	list, err = s.ListIngredients(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.GetNutrition(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChildRowsRequireMeal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateIngredient(ctx, model.Ingredient{MealID: 42, Name: "x", Quantity: 1, Unit: "g"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.CreateNutrition(ctx, model.MealNutrition{MealID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteIngredient(ctx, 1), ErrNotFound)
	assert.ErrorIs(t, s.DeleteNutrition(ctx, 1), ErrNotFound)
	_, err = s.UpdateMeal(ctx, 1, model.MealUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMealRejectsInvalidGrade(t *testing.T) {
	s := openTestStore(t)
	sub := s.Feed().Subscribe(nil, 0)

	_, err := s.CreateMeal(context.Background(), testMeal("x", grade.Letter("F"), day))
	assert.Error(t, err)
	assert.Empty(t, drain(sub))
}

func TestDeletedIDsAreNotReused(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateMeal(ctx, testMeal("toast", grade.C, day))
	require.NoError(t, err)
	in, err := s.CreateIngredient(ctx, model.Ingredient{MealID: first.ID, Name: "bread", Quantity: 1, Unit: "slice"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteMeal(ctx, first.ID))

	second, err := s.CreateMeal(ctx, testMeal("toast", grade.C, day))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	in2, err := s.CreateIngredient(ctx, model.Ingredient{MealID: second.ID, Name: "bread", Quantity: 1, Unit: "slice"})
	require.NoError(t, err)
	assert.Greater(t, in2.ID, in.ID)

	_, err = s.GetMeal(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
