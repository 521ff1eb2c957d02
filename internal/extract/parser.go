package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

// Result is a parsed and graded meal.
type Result struct {
	ParsedMeal    model.ParsedMeal
	Analysis      grade.Analysis
	GradeComment  string
	DriverReasons []string
	Description   string
}

// Parser turns meal descriptions into structured, graded meals.
type Parser struct {
	completer Completer
	log       *slog.Logger
}

// NewParser creates a parser backed by completer.
func NewParser(completer Completer, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{completer: completer, log: logger}
}

// ParseMealDescription extracts dishes from text. With includeNutrition the
// per-dish and total nutrition and the grade comment are required as well.
// It makes exactly one service call and never returns a partial meal.
func (p *Parser) ParseMealDescription(ctx context.Context, text string, includeNutrition bool) (*model.ParsedMeal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &NonFoodInputError{Message: "empty description"}
	}

	raw, err := p.completer.CallFunction(ctx, FunctionCall{
		System:      SystemPrompt(includeNutrition),
		User:        text,
		Name:        FunctionName,
		Description: functionDescription,
		Parameters:  FunctionSchema(),
	})
	if err != nil {
		p.log.Error("extract: service call failed", "err", err)
		return nil, fmt.Errorf("failed to call extraction service: %w", err)
	}

	meal, err := decodeResponse(raw, includeNutrition)
	if err != nil {
		if errors.Is(err, ErrInvalidResponse) {
			p.log.Error("extract: malformed response", "err", err)
		} else {
			p.log.Info("extract: input rejected", "err", err)
		}
		return nil, err
	}
	return meal, nil
}

// ParseAndAnalyzeMeal parses text with nutrition and grades the totals.
func (p *Parser) ParseAndAnalyzeMeal(ctx context.Context, text string) (*Result, error) {
	meal, err := p.ParseMealDescription(ctx, text, true)
	if err != nil {
		return nil, err
	}

	analysis := grade.Analyze(NutrientsFromTotals(meal.TotalNutrition))

	return &Result{
		ParsedMeal:    *meal,
		Analysis:      analysis,
		GradeComment:  meal.GradeComment,
		DriverReasons: analysis.DriverReasons,
		Description:   strings.TrimSpace(text),
	}, nil
}

// NutrientsFromTotals maps extracted totals onto the grading inputs. Total
// fat stands in for saturated fat and total sugar for added sugar; no
// ultra-processed share is extracted, so it grades as zero.
func NutrientsFromTotals(t model.NutritionTotals) *grade.Nutrients {
	return &grade.Nutrients{
		Calories:     t.Calories,
		Protein:      t.ProteinG,
		Carbs:        t.CarbohydrateG,
		Fat:          t.FatG,
		Sugar:        t.SugarG,
		Fiber:        t.FiberG,
		Sodium:       t.SodiumMg,
		AddedSugar:   t.SugarG,
		SaturatedFat: t.FatG,
	}
}
