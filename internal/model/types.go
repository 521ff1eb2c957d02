package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nutrilog/internal/grade"
)

// Table names of the remote store.
const (
	TableMealLogs        = "meal_logs"
	TableMealIngredients = "meal_ingredients"
	TableMealNutrition   = "meal_nutrition"
	TableDailyGrades     = "daily_grades"
)

// Tables lists every table the change feed carries.
var Tables = []string{TableMealLogs, TableMealIngredients, TableMealNutrition, TableDailyGrades}

// DateLayout is the day format used by date-scoped keys and daily grades.
const DateLayout = "2006-01-02"

// NutritionTotals holds the nutrient amounts of a dish or a whole meal.
type NutritionTotals struct {
	Calories      float64 `json:"calories"`
	ProteinG      float64 `json:"protein_g"`
	FatG          float64 `json:"fat_g"`
	CarbohydrateG float64 `json:"carbohydrates_g"`
	FiberG        float64 `json:"fiber_g"`
	SugarG        float64 `json:"sugar_g"`
	SodiumMg      float64 `json:"sodium_mg"`
}

// Dish is one food item of a parsed meal.
type Dish struct {
	Name        string          `json:"name"`
	Quantity    float64         `json:"quantity"`
	Unit        string          `json:"unit"`
	Emoji       string          `json:"emoji"`
	IsEstimated bool            `json:"isEstimated"`
	Nutrition   NutritionTotals `json:"nutrition"`
}

// Label renders the dish as "2 slices pizza".
func (d Dish) Label() string {
	return fmt.Sprintf("%s %s %s", formatQuantity(d.Quantity), d.Unit, d.Name)
}

// ParsedMeal is the structured form of a meal description, before it is saved.
type ParsedMeal struct {
	Dishes         []Dish          `json:"dishes"`
	TotalNutrition NutritionTotals `json:"totalNutrition"`
	GradeComment   string          `json:"gradeComment"`
}

// Name joins the dish labels in extraction order.
func (p ParsedMeal) Name() string {
	labels := make([]string, 0, len(p.Dishes))
	for _, d := range p.Dishes {
		labels = append(labels, d.Label())
	}
	return strings.Join(labels, ", ")
}

// MealRecord is a row of meal_logs.
type MealRecord struct {
	ID              int64        `json:"id,omitempty"`
	MealName        string       `json:"meal_name"`
	MealDescription string       `json:"meal_description"`
	MealGrade       grade.Letter `json:"meal_grade"`
	OriginalGrade   grade.Letter `json:"original_grade"`
	Comment         string       `json:"comment"`
	MealDate        time.Time    `json:"meal_date"`
	Calories        float64      `json:"calories"`
	Protein         float64      `json:"protein"`
	Carbs           float64      `json:"carbs"`
	Fat             float64      `json:"fat"`
	Sugar           float64      `json:"sugar"`
	Fiber           float64      `json:"fiber"`
	Sodium          float64      `json:"sodium"`
	TipFollowed     bool         `json:"tip_followed"`

	// TempID marks an optimistic placeholder that has no server id yet.
	TempID string `json:"-"`
}

// Day returns the UTC date of the meal, or "" if it has no date.
func (m MealRecord) Day() string {
	if m.MealDate.IsZero() {
		return ""
	}
	return m.MealDate.UTC().Format(DateLayout)
}

// MealUpdate is a partial update of a meal record. Nil fields are unchanged.
type MealUpdate struct {
	MealName        *string       `json:"meal_name,omitempty"`
	MealDescription *string       `json:"meal_description,omitempty"`
	MealGrade       *grade.Letter `json:"meal_grade,omitempty"`
	OriginalGrade   *grade.Letter `json:"original_grade,omitempty"`
	Comment         *string       `json:"comment,omitempty"`
	TipFollowed     *bool         `json:"tip_followed,omitempty"`
}

// Apply returns a copy of m with the update applied.
func (u MealUpdate) Apply(m MealRecord) MealRecord {
	if u.MealName != nil {
		m.MealName = *u.MealName
	}
	if u.MealDescription != nil {
		m.MealDescription = *u.MealDescription
	}
	if u.MealGrade != nil {
		m.MealGrade = *u.MealGrade
	}
	if u.OriginalGrade != nil {
		m.OriginalGrade = *u.OriginalGrade
	}
	if u.Comment != nil {
		m.Comment = *u.Comment
	}
	if u.TipFollowed != nil {
		m.TipFollowed = *u.TipFollowed
	}
	return m
}

// Ingredient is a row of meal_ingredients: one dish of a saved meal.
type Ingredient struct {
	ID          int64   `json:"id,omitempty"`
	MealID      int64   `json:"meal_id"`
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Emoji       string  `json:"emoji"`
	IsEstimated bool    `json:"is_estimated"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	Sugar       float64 `json:"sugar"`
	Fiber       float64 `json:"fiber"`
	Sodium      float64 `json:"sodium"`
	Position    int     `json:"position"`
}

// IngredientUpdate is a partial update of an ingredient.
type IngredientUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     *string  `json:"unit,omitempty"`
}

// MealNutrition is a row of meal_nutrition: the totals of one saved meal.
type MealNutrition struct {
	ID     int64 `json:"id,omitempty"`
	MealID int64 `json:"meal_id"`
	NutritionTotals
}

// DailyGrade is a row of daily_grades.
type DailyGrade struct {
	ID           int64          `json:"id,omitempty"`
	Date         string         `json:"date"`
	AverageGrade grade.Letter   `json:"average_grade"`
	MealCount    int            `json:"meal_count"`
	Grades       []grade.Letter `json:"grades"`
}

// EventType is the kind of row change carried by a ChangeEvent.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is a row-level change notification. New is empty for deletes
// and Old is empty for inserts.
type ChangeEvent struct {
	Table     string          `json:"table"`
	EventType EventType       `json:"eventType"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
}

// NewChangeEvent marshals the before and after rows of a change.
func NewChangeEvent(table string, typ EventType, newRow, oldRow any) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, EventType: typ}
	if newRow != nil {
		data, err := json.Marshal(newRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal new row: %w", err)
		}
		ev.New = data
	}
	if oldRow != nil {
		data, err := json.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal old row: %w", err)
		}
		ev.Old = data
	}
	return ev, nil
}

func formatQuantity(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%d", int64(q))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", q), "0"), ".")
}

// Frame types of the realtime websocket protocol.
const (
	FrameSubscribe  = "subscribe"
	FrameSubscribed = "subscribed"
	FrameChange     = "change"
	FrameError      = "error"
)

// Frame is one message of the realtime websocket protocol. A client sends a
// subscribe frame listing tables; the server answers subscribed and then
// streams change frames.
type Frame struct {
	Type      string          `json:"type"`
	Tables    []string        `json:"tables,omitempty"`
	Table     string          `json:"table,omitempty"`
	EventType EventType       `json:"eventType,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Event returns the change carried by a change frame.
func (f Frame) Event() ChangeEvent {
	return ChangeEvent{Table: f.Table, EventType: f.EventType, New: f.New, Old: f.Old}
}

// ChangeFrame wraps ev for the wire.
func ChangeFrame(ev ChangeEvent) Frame {
	return Frame{Type: FrameChange, Table: ev.Table, EventType: ev.EventType, New: ev.New, Old: ev.Old}
}
