package extract

import "strings"

// FunctionName is the function the model is forced to call.
const FunctionName = "extract_foods"

var nutritionFields = []string{
	"calories",
	"protein_g",
	"fat_g",
	"carbohydrates_g",
	"fiber_g",
	"sugar_g",
	"sodium_mg",
}

func nutritionSchema() map[string]any {
	props := make(map[string]any, len(nutritionFields))
	for _, f := range nutritionFields {
		props[f] = map[string]any{"type": "number"}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   nutritionFields,
	}
}

// FunctionSchema is the JSON schema of the extract_foods arguments.
func FunctionSchema() map[string]any {
	dish := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Name of the food or dish.",
			},
			"quantity": map[string]any{
				"type":        "number",
				"description": "Quantity as a number.",
			},
			"unit": map[string]any{
				"type":        "string",
				"description": "Unit like slices, cups, glass, g.",
			},
			"emoji": map[string]any{
				"type":        "string",
				"description": "A single emoji that best depicts the dish.",
			},
			"isEstimated": map[string]any{
				"type":        "boolean",
				"description": "True if the portion was estimated rather than stated by the user.",
			},
			"nutrition": nutritionSchema(),
		},
		"required": []string{"name", "quantity", "unit", "emoji", "isEstimated", "nutrition"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dishes": map[string]any{
				"type":  "array",
				"items": dish,
			},
			"totalNutrition": nutritionSchema(),
			"gradeComment": map[string]any{
				"type":        "string",
				"description": "One short sentence (max 15 words) of feedback on the meal's nutritional quality.",
			},
			"error": map[string]any{
				"type":        "string",
				"description": "Set only when the input cannot be parsed as food.",
			},
			"errorType": map[string]any{
				"type": "string",
				"enum": []string{"NON_FOOD_INPUT", "UNCLEAR_FOOD_DESCRIPTION", "UNRECOGNIZED_FOOD"},
			},
		},
		"required": []string{"dishes", "totalNutrition", "gradeComment"},
	}
}

const functionDescription = "Extracts food items, quantities, units and nutrition from a meal description. Separate each dish."

// SystemPrompt returns the instructions sent ahead of the user's text.
func SystemPrompt(includeNutrition bool) string {
	var b strings.Builder
	b.WriteString("You are a meal parser that returns food items in JSON format. Be precise and consistent.\n")
	b.WriteString("First decide whether the input describes food or a meal.\n")
	b.WriteString("- If it is not about food at all, set error to a short explanation and errorType to NON_FOOD_INPUT.\n")
	b.WriteString("- If it mentions food but too vaguely to identify items, set errorType to UNCLEAR_FOOD_DESCRIPTION.\n")
	b.WriteString("- If an item cannot be identified as a known food, set errorType to UNRECOGNIZED_FOOD.\n")
	b.WriteString("Give every dish exactly one emoji.\n")
	if includeNutrition {
		b.WriteString("\nWhen analyzing nutrition:\n")
		b.WriteString("1. If a specific amount is mentioned (e.g. \"150g paneer\"), use that exact amount and set isEstimated to false.\n")
		b.WriteString("2. If no amount is given, estimate a common serving size and set isEstimated to true.\n")
		b.WriteString("3. Break multi-component meals into individual dishes.\n")
		b.WriteString("4. Calculate nutrition for each dish separately from standard food databases.\n")
		b.WriteString("5. totalNutrition must be the sum over all dishes.\n")
		b.WriteString("\nFor gradeComment write one encouraging sentence of at most 15 words about the meal's ")
		b.WriteString("nutritional quality, naming its strongest positive or the single most useful improvement.\n")
	}
	return b.String()
}
