package grade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeNilMeal(t *testing.T) {
	got := Analyze(nil)
	assert.Equal(t, 60, got.Score)
	assert.Equal(t, C, got.Grade)
	assert.Empty(t, got.DriverReasons)
	assert.NotNil(t, got.DriverReasons)
}

func TestAnalyzeEmptyMealIsNeutral(t *testing.T) {
	got := Analyze(&Nutrients{})
	assert.Equal(t, 60, got.Score)
	assert.Equal(t, C, got.Grade)
	assert.Empty(t, got.DriverReasons)
}

func TestAnalyzeHealthyMeal(t *testing.T) {
	got := Analyze(&Nutrients{Fiber: 6, Protein: 25})
	assert.Equal(t, 80, got.Score)
	assert.Equal(t, B, got.Grade)
	assert.Equal(t, []string{"High fiber", "High protein"}, got.DriverReasons)
}

func TestAnalyzeUnhealthyMeal(t *testing.T) {
	got := Analyze(&Nutrients{
		AddedSugar:               20,
		SaturatedFat:             15,
		Sodium:                   900,
		UltraProcessedPercentage: 60,
	})
	assert.Equal(t, 5, got.Score)
	assert.Equal(t, E, got.Grade)
	assert.Equal(t, []string{
		"High added sugar",
		"High saturated fat",
		"High sodium",
		"Ultra-processed",
	}, got.DriverReasons)
}

func TestAnalyzeMutuallyExclusiveTiers(t *testing.T) {
	tests := []struct {
		name    string
		in      Nutrients
		score   int
		reasons []string
	}{
		{"fiber high wins", Nutrients{Fiber: 5}, 70, []string{"High fiber"}},
		{"fiber moderate", Nutrients{Fiber: 3}, 60, []string{"Moderate fiber"}},
		{"fiber below moderate", Nutrients{Fiber: 2.9}, 60, []string{}},
		{"sugar high", Nutrients{AddedSugar: 15.1}, 45, []string{"High added sugar"}},
		{"sugar at high threshold is moderate", Nutrients{AddedSugar: 15}, 55, []string{"Moderate added sugar"}},
		{"sugar moderate", Nutrients{AddedSugar: 5}, 55, []string{"Moderate added sugar"}},
		{"fat at threshold", Nutrients{SaturatedFat: 10}, 60, []string{}},
		{"sodium at threshold", Nutrients{Sodium: 800}, 60, []string{}},
		{"ultra processed at threshold", Nutrients{UltraProcessedPercentage: 50}, 60, []string{}},
		{"protein at threshold", Nutrients{Protein: 20}, 70, []string{"High protein"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(&tt.in)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.reasons, got.DriverReasons)
		})
	}
}

func TestAnalyzeReasonOrder(t *testing.T) {
	got := Analyze(&Nutrients{
		Fiber:                    3,
		Protein:                  30,
		AddedSugar:               6,
		SaturatedFat:             11,
		Sodium:                   801,
		UltraProcessedPercentage: 51,
	})
	require.Equal(t, []string{
		"Moderate fiber",
		"High protein",
		"Moderate added sugar",
		"High saturated fat",
		"High sodium",
		"Ultra-processed",
	}, got.DriverReasons)
	assert.Equal(t, 25, got.Score)
}

func TestAnalyzeClampsToZero(t *testing.T) {
	got := Analyze(&Nutrients{
		AddedSugar:               100,
		SaturatedFat:             100,
		Sodium:                   5000,
		UltraProcessedPercentage: 100,
	})
	assert.GreaterOrEqual(t, got.Score, 0)
	assert.LessOrEqual(t, got.Score, 100)
	assert.Equal(t, E, got.Grade)
}

func TestForScoreBreakpoints(t *testing.T) {
	tests := map[int]Letter{
		100: A, 85: A, 84: B, 70: B, 69: C, 50: C, 49: D, 30: D, 29: E, 0: E,
	}
	for score, want := range tests {
		assert.Equal(t, want, ForScore(score), "score %d", score)
	}
}

func TestUpgrade(t *testing.T) {
	assert.Equal(t, A, A.Upgrade())
	assert.Equal(t, A, B.Upgrade())
	assert.Equal(t, B, C.Upgrade())
	assert.Equal(t, C, D.Upgrade())
	assert.Equal(t, D, E.Upgrade())
	assert.Equal(t, Letter("X"), Letter("X").Upgrade())
}

func TestDaily(t *testing.T) {
	assert.Nil(t, Daily("2024-05-01", nil))

	got := Daily("2024-05-01", []Letter{A, B})
	require.NotNil(t, got)
	assert.Equal(t, A, got.AverageGrade, "4.5 rounds up")
	assert.Equal(t, 2, got.MealCount)

	got = Daily("2024-05-01", []Letter{E, D, "bogus"})
	require.NotNil(t, got)
	assert.Equal(t, D, got.AverageGrade)
	assert.Equal(t, []Letter{E, D, "bogus"}, got.Grades)
}
