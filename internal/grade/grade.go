package grade

// Letter is a meal or daily grade, A (best) through E.
type Letter string

const (
	A Letter = "A"
	B Letter = "B"
	C Letter = "C"
	D Letter = "D"
	E Letter = "E"
)

// Nutrients is the subset of a meal's nutrition the grading rules look at.
// Unset fields grade as zero.
type Nutrients struct {
	Calories                 float64
	Protein                  float64
	Carbs                    float64
	Fat                      float64
	Sugar                    float64
	Fiber                    float64
	Sodium                   float64
	AddedSugar               float64
	SaturatedFat             float64
	UltraProcessedPercentage float64
}

// Analysis is the result of grading one meal.
type Analysis struct {
	Score         int      `json:"score"`
	Grade         Letter   `json:"grade"`
	DriverReasons []string `json:"driverReasons"`
}

const baseScore = 60

// Analyze scores a meal against fixed nutrient thresholds. A nil meal yields
// the neutral C analysis with no reasons.
func Analyze(n *Nutrients) Analysis {
	if n == nil {
		return Analysis{Score: baseScore, Grade: C, DriverReasons: []string{}}
	}

	score := baseScore
	reasons := []string{}

	if n.Fiber >= 5 {
		score += 10
		reasons = append(reasons, "High fiber")
	} else if n.Fiber >= 3 {
		reasons = append(reasons, "Moderate fiber")
	}

	if n.Protein >= 20 {
		score += 10
		reasons = append(reasons, "High protein")
	}

	if n.AddedSugar > 15 {
		score -= 15
		reasons = append(reasons, "High added sugar")
	} else if n.AddedSugar >= 5 {
		score -= 5
		reasons = append(reasons, "Moderate added sugar")
	}

	if n.SaturatedFat > 10 {
		score -= 10
		reasons = append(reasons, "High saturated fat")
	}

	if n.Sodium > 800 {
		score -= 10
		reasons = append(reasons, "High sodium")
	}

	if n.UltraProcessedPercentage > 50 {
		score -= 20
		reasons = append(reasons, "Ultra-processed")
	}

	score = max(0, min(100, score))

	return Analysis{
		Score:         score,
		Grade:         ForScore(score),
		DriverReasons: reasons,
	}
}

// ForScore maps a 0-100 score onto a letter.
func ForScore(score int) Letter {
	switch {
	case score >= 85:
		return A
	case score >= 70:
		return B
	case score >= 50:
		return C
	case score >= 30:
		return D
	default:
		return E
	}
}

// Valid reports whether l is one of A-E.
func (l Letter) Valid() bool {
	switch l {
	case A, B, C, D, E:
		return true
	}
	return false
}

// Upgrade returns the next better letter. A stays A.
func (l Letter) Upgrade() Letter {
	switch l {
	case B:
		return A
	case C:
		return B
	case D:
		return C
	case E:
		return D
	default:
		return l
	}
}

// Color returns the display color for a letter.
func (l Letter) Color() string {
	switch l {
	case A:
		return "#24C08B"
	case B:
		return "#8BC34A"
	case C:
		return "#FFC107"
	case D:
		return "#FF9800"
	case E:
		return "#F44336"
	default:
		return "#757575"
	}
}

// ScoreFor returns a representative score for a letter, for gauges.
func ScoreFor(l Letter) int {
	switch l {
	case A:
		return 90
	case B:
		return 75
	case D:
		return 40
	case E:
		return 20
	default:
		return 60
	}
}
