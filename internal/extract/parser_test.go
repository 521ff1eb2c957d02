package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

type fakeCompleter struct {
	response string
	err      error
	calls    []FunctionCall
}

func (f *fakeCompleter) CallFunction(ctx context.Context, call FunctionCall) (json.RawMessage, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

const validResponse = `{
  "dishes": [
    {"name": "paneer tikka", "quantity": 150, "unit": "g", "emoji": "🧀", "isEstimated": false,
     "nutrition": {"calories": 350, "protein_g": 25, "fat_g": 28, "carbohydrates_g": 5, "fiber_g": 0, "sugar_g": 2, "sodium_mg": 600}},
    {"name": "roti", "quantity": 2, "unit": "piece", "emoji": "🫓", "isEstimated": true,
     "nutrition": {"calories": 160, "protein_g": 4, "fat_g": 2, "carbohydrates_g": 30, "fiber_g": 2, "sugar_g": 0, "sodium_mg": 200}}
  ],
  "totalNutrition": {"calories": 510, "protein_g": 29, "fat_g": 30, "carbohydrates_g": 35, "fiber_g": 2, "sugar_g": 2, "sodium_mg": 800},
  "gradeComment": "Great protein, add some vegetables for fiber."
}`

func mutate(t *testing.T, fn func(root map[string]any)) string {
	t.Helper()
	var root map[string]any
	require.NoError(t, json.Unmarshal([]byte(validResponse), &root))
	fn(root)
	out, err := json.Marshal(root)
	require.NoError(t, err)
	return string(out)
}

func firstDish(root map[string]any) map[string]any {
	return root["dishes"].([]any)[0].(map[string]any)
}

func TestParseAndAnalyzeMeal(t *testing.T) {
	fc := &fakeCompleter{response: validResponse}
	p := NewParser(fc, nil)

	res, err := p.ParseAndAnalyzeMeal(context.Background(), "  150g paneer tikka with 2 rotis ")
	require.NoError(t, err)

	require.Len(t, res.ParsedMeal.Dishes, 2)
	assert.Equal(t, "paneer tikka", res.ParsedMeal.Dishes[0].Name)
	assert.Equal(t, "roti", res.ParsedMeal.Dishes[1].Name)
	assert.True(t, res.ParsedMeal.Dishes[1].IsEstimated)
	assert.Equal(t, "150 g paneer tikka, 2 piece roti", res.ParsedMeal.Name())
	assert.Equal(t, "150g paneer tikka with 2 rotis", res.Description)

	// protein 29 (+10), sugar 2, fat 30 (-10) => 60
	assert.Equal(t, 60, res.Analysis.Score)
	assert.Equal(t, grade.C, res.Analysis.Grade)
	assert.Equal(t, []string{"High protein", "High saturated fat"}, res.DriverReasons)
	assert.Equal(t, "Great protein, add some vegetables for fiber.", res.GradeComment)

	require.Len(t, fc.calls, 1)
	call := fc.calls[0]
	assert.Equal(t, FunctionName, call.Name)
	assert.Equal(t, "150g paneer tikka with 2 rotis", call.User)
	assert.Contains(t, call.System, "gradeComment")
}

func TestParseClassifiesErrorSignals(t *testing.T) {
	tests := []struct {
		name     string
		response string
		nonFood  bool
		kind     ErrorKind
	}{
		{"non food", `{"error": "That is about the weather", "errorType": "NON_FOOD_INPUT"}`, true, KindNonFoodInput},
		{"unclear", `{"error": "too vague", "errorType": "UNCLEAR_FOOD_DESCRIPTION"}`, false, KindUnclearDescription},
		{"unrecognized", `{"error": "unknown item", "errorType": "UNRECOGNIZED_FOOD"}`, false, KindUnrecognizedFood},
		{"untyped", `{"error": "cannot parse"}`, false, KindUnrecognizedFood},
		{"object message", `{"error": {"reason": "weather"}, "errorType": "NON_FOOD_INPUT"}`, true, KindNonFoodInput},
		{"error wins over dishes", mutateRaw(`"error": "nope", "errorType": "NON_FOOD_INPUT",`), true, KindNonFoodInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(&fakeCompleter{response: tt.response}, nil)
			_, err := p.ParseAndAnalyzeMeal(context.Background(), "something")
			require.Error(t, err)
			assert.True(t, IsDomainError(err))
			assert.False(t, errors.Is(err, ErrInvalidResponse))

			var nonFood *NonFoodInputError
			var recognition *FoodRecognitionError
			if tt.nonFood {
				assert.ErrorAs(t, err, &nonFood)
			} else {
				require.ErrorAs(t, err, &recognition)
				assert.Equal(t, tt.kind, recognition.Kind)
			}
		})
	}
}

func mutateRaw(prefix string) string {
	return "{" + prefix + strings.TrimPrefix(validResponse, "{")
}

func TestParseRejectsMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		edit func(root map[string]any)
	}{
		{"missing emoji", func(r map[string]any) { delete(firstDish(r), "emoji") }},
		{"two emoji", func(r map[string]any) { firstDish(r)["emoji"] = "🧀🍞" }},
		{"empty name", func(r map[string]any) { firstDish(r)["name"] = " " }},
		{"string quantity", func(r map[string]any) { firstDish(r)["quantity"] = "150" }},
		{"zero quantity", func(r map[string]any) { firstDish(r)["quantity"] = 0 }},
		{"missing unit", func(r map[string]any) { delete(firstDish(r), "unit") }},
		{"string isEstimated", func(r map[string]any) { firstDish(r)["isEstimated"] = "no" }},
		{"missing nutrition", func(r map[string]any) { delete(firstDish(r), "nutrition") }},
		{"missing sodium", func(r map[string]any) {
			delete(firstDish(r)["nutrition"].(map[string]any), "sodium_mg")
		}},
		{"null fiber in total", func(r map[string]any) {
			r["totalNutrition"].(map[string]any)["fiber_g"] = nil
		}},
		{"negative calories", func(r map[string]any) {
			r["totalNutrition"].(map[string]any)["calories"] = -1
		}},
		{"missing total", func(r map[string]any) { delete(r, "totalNutrition") }},
		{"empty comment", func(r map[string]any) { r["gradeComment"] = "" }},
		{"missing comment", func(r map[string]any) { delete(r, "gradeComment") }},
		{"dishes not array", func(r map[string]any) { r["dishes"] = map[string]any{} }},
		{"no dishes", func(r map[string]any) { r["dishes"] = []any{} }},
		{"numeric errorType", func(r map[string]any) { r["errorType"] = 3 }},
		{"object errorType", func(r map[string]any) {
			r["error"] = "not food"
			r["errorType"] = map[string]any{"kind": "NON_FOOD_INPUT"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(&fakeCompleter{response: mutate(t, tt.edit)}, nil)
			_, err := p.ParseAndAnalyzeMeal(context.Background(), "a meal")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.False(t, IsDomainError(err))

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestParseWithoutNutritionNeedsOnlyDishBasics(t *testing.T) {
	resp := `{"dishes": [{"name": "pizza", "quantity": 2, "unit": "slices", "emoji": "🍕"}]}`
	p := NewParser(&fakeCompleter{response: resp}, nil)

	meal, err := p.ParseMealDescription(context.Background(), "two slices of pizza", false)
	require.NoError(t, err)
	require.Len(t, meal.Dishes, 1)
	assert.Equal(t, "2 slices pizza", meal.Dishes[0].Label())
}

func TestParseSurfacesTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	fc := &fakeCompleter{err: boom}
	p := NewParser(fc, nil)

	_, err := p.ParseAndAnalyzeMeal(context.Background(), "toast")
	require.ErrorIs(t, err, boom)
	assert.False(t, IsDomainError(err))
	assert.Len(t, fc.calls, 1, "no retries")
}

func TestParseEmptyTextSkipsService(t *testing.T) {
	fc := &fakeCompleter{response: validResponse}
	p := NewParser(fc, nil)

	_, err := p.ParseAndAnalyzeMeal(context.Background(), "   ")
	var nonFood *NonFoodInputError
	assert.ErrorAs(t, err, &nonFood)
	assert.Empty(t, fc.calls)
}

func TestNutrientsFromTotalsMapping(t *testing.T) {
	n := NutrientsFromTotals(mustTotals(t))
	assert.Equal(t, 30.0, n.SaturatedFat)
	assert.Equal(t, 2.0, n.AddedSugar)
	assert.Equal(t, 35.0, n.Carbs)
	assert.Equal(t, 800.0, n.Sodium)
	assert.Zero(t, n.UltraProcessedPercentage)
}

func mustTotals(t *testing.T) model.NutritionTotals {
	t.Helper()
	meal, err := decodeResponse(json.RawMessage(validResponse), true)
	require.NoError(t, err)
	return meal.TotalNutrition
}
