package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"

	"nutrilog/internal/model"
)

type object map[string]json.RawMessage

// decodeResponse checks the raw function arguments field by field and builds
// the parsed meal. Missing fields are rejected, never defaulted.
func decodeResponse(raw json.RawMessage, includeNutrition bool) (*model.ParsedMeal, error) {
	var root object
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, invalid("response", "is not a JSON object")
	}
	if root == nil {
		return nil, invalid("response", "is null")
	}

	msg, typ, ok, err := errorSignal(root)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, classify(msg, typ)
	}

	dishesRaw, ok := present(root, "dishes")
	if !ok {
		return nil, invalid("dishes", "is missing")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(dishesRaw, &items); err != nil {
		return nil, invalid("dishes", "is not an array")
	}
	if len(items) == 0 {
		return nil, invalid("dishes", "is empty")
	}

	meal := &model.ParsedMeal{Dishes: make([]model.Dish, 0, len(items))}
	for i, item := range items {
		dish, err := decodeDish(item, fmt.Sprintf("dishes[%d]", i), includeNutrition)
		if err != nil {
			return nil, err
		}
		meal.Dishes = append(meal.Dishes, dish)
	}

	if includeNutrition {
		totals, err := decodeNutrition(root, "totalNutrition", "totalNutrition")
		if err != nil {
			return nil, err
		}
		meal.TotalNutrition = totals

		comment, err := nonEmptyString(root, "gradeComment", "gradeComment")
		if err != nil {
			return nil, err
		}
		meal.GradeComment = comment
	}

	return meal, nil
}

// errorSignal reports an explicit error from the service. An errorType on
// its own counts as a signal too. A non-string error message is kept as raw
// JSON text; a non-string errorType breaks the contract.
func errorSignal(root object) (message, errorType string, ok bool, err error) {
	if raw, has := present(root, "error"); has {
		if jerr := json.Unmarshal(raw, &message); jerr != nil {
			message = string(raw)
		}
	}
	if raw, has := present(root, "errorType"); has {
		if jerr := json.Unmarshal(raw, &errorType); jerr != nil {
			return "", "", false, invalid("errorType", "is not a string")
		}
	}
	message = strings.TrimSpace(message)
	return message, errorType, message != "" || errorType != "", nil
}

func decodeDish(raw json.RawMessage, path string, includeNutrition bool) (model.Dish, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return model.Dish{}, invalid(path, "is not an object")
	}

	var d model.Dish
	var err error
	if d.Name, err = nonEmptyString(obj, "name", path+".name"); err != nil {
		return model.Dish{}, err
	}
	if d.Quantity, err = number(obj, "quantity", path+".quantity"); err != nil {
		return model.Dish{}, err
	}
	if d.Quantity <= 0 {
		return model.Dish{}, invalid(path+".quantity", "must be positive")
	}
	if d.Unit, err = nonEmptyString(obj, "unit", path+".unit"); err != nil {
		return model.Dish{}, err
	}
	if d.Emoji, err = nonEmptyString(obj, "emoji", path+".emoji"); err != nil {
		return model.Dish{}, err
	}
	if uniseg.GraphemeClusterCount(d.Emoji) != 1 {
		return model.Dish{}, invalid(path+".emoji", "must be a single glyph")
	}

	if !includeNutrition {
		return d, nil
	}

	if d.IsEstimated, err = boolean(obj, "isEstimated", path+".isEstimated"); err != nil {
		return model.Dish{}, err
	}
	if d.Nutrition, err = decodeNutrition(obj, "nutrition", path+".nutrition"); err != nil {
		return model.Dish{}, err
	}
	return d, nil
}

func decodeNutrition(parent object, field, path string) (model.NutritionTotals, error) {
	raw, ok := present(parent, field)
	if !ok {
		return model.NutritionTotals{}, invalid(path, "is missing")
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return model.NutritionTotals{}, invalid(path, "is not an object")
	}

	values := make(map[string]float64, len(nutritionFields))
	for _, f := range nutritionFields {
		v, err := number(obj, f, path+"."+f)
		if err != nil {
			return model.NutritionTotals{}, err
		}
		if v < 0 {
			return model.NutritionTotals{}, invalid(path+"."+f, "must not be negative")
		}
		values[f] = v
	}

	return model.NutritionTotals{
		Calories:      values["calories"],
		ProteinG:      values["protein_g"],
		FatG:          values["fat_g"],
		CarbohydrateG: values["carbohydrates_g"],
		FiberG:        values["fiber_g"],
		SugarG:        values["sugar_g"],
		SodiumMg:      values["sodium_mg"],
	}, nil
}

// present returns a field's raw value, treating JSON null as absent.
func present(obj object, field string) (json.RawMessage, bool) {
	raw, ok := obj[field]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	return trimmed, true
}

func nonEmptyString(obj object, field, path string) (string, error) {
	raw, ok := present(obj, field)
	if !ok {
		return "", invalid(path, "is missing")
	}
	if raw[0] != '"' {
		return "", invalid(path, "is not a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(path, "is not a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(path, "is empty")
	}
	return s, nil
}

func number(obj object, field, path string) (float64, error) {
	raw, ok := present(obj, field)
	if !ok {
		return 0, invalid(path, "is missing")
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, invalid(path, "is not a number")
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, invalid(path, "is not a number")
	}
	return v, nil
}

func boolean(obj object, field, path string) (bool, error) {
	raw, ok := present(obj, field)
	if !ok {
		return false, invalid(path, "is missing")
	}
	var v bool
	if raw[0] != 't' && raw[0] != 'f' {
		return false, invalid(path, "is not a boolean")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, invalid(path, "is not a boolean")
	}
	return v, nil
}
