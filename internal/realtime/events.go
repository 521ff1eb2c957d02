package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"nutrilog/internal/cache"
	"nutrilog/internal/model"
)

// Handler applies change events to the cache.
type Handler struct {
	cache *cache.Cache
	log   *slog.Logger
}

// NewHandler creates a handler for c.
func NewHandler(c *cache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: c, log: logger}
}

// Handle applies one event. Malformed or unknown events are logged and
// dropped.
func (h *Handler) Handle(ev model.ChangeEvent) {
	var err error
	switch ev.Table {
	case model.TableMealLogs:
		err = h.mealChanged(ev)
	case model.TableMealIngredients:
		err = h.childChanged(ev, cache.Ingredients)
	case model.TableMealNutrition:
		err = h.childChanged(ev, cache.Nutrition)
	case model.TableDailyGrades:
		err = h.dailyGradeChanged(ev)
	default:
		err = fmt.Errorf("unknown table %q", ev.Table)
	}
	if err != nil {
		h.log.Warn("realtime: dropping event", "table", ev.Table, "type", ev.EventType, "err", err)
	}
}

// decodeRows decodes the before and after rows into T. A missing row decodes
// to nil.
func decodeRows[T any](ev model.ChangeEvent) (newRow, oldRow *T, err error) {
	if len(ev.New) > 0 && string(ev.New) != "null" {
		newRow = new(T)
		if err := json.Unmarshal(ev.New, newRow); err != nil {
			return nil, nil, fmt.Errorf("decode new row: %w", err)
		}
	}
	if len(ev.Old) > 0 && string(ev.Old) != "null" {
		oldRow = new(T)
		if err := json.Unmarshal(ev.Old, oldRow); err != nil {
			return nil, nil, fmt.Errorf("decode old row: %w", err)
		}
	}
	return newRow, oldRow, nil
}

func (h *Handler) mealChanged(ev model.ChangeEvent) error {
	newRow, oldRow, err := decodeRows[model.MealRecord](ev)
	if err != nil {
		return err
	}

	var id int64
	switch {
	case newRow != nil && newRow.ID != 0:
		id = newRow.ID
	case oldRow != nil && oldRow.ID != 0:
		id = oldRow.ID
	default:
		return fmt.Errorf("meal event without id")
	}

	switch ev.EventType {
	case model.EventInsert:
		if newRow == nil {
			return fmt.Errorf("insert without new row")
		}
		h.cache.UpdateIfCached(cache.Meals(), func(old any) any {
			return upsertHead(asMeals(old), *newRow)
		})
	case model.EventUpdate:
		if newRow == nil {
			return fmt.Errorf("update without new row")
		}
		h.cache.UpdateIfCached(cache.Meals(), func(old any) any {
			return replaceByID(asMeals(old), *newRow)
		})
	case model.EventDelete:
		h.cache.UpdateIfCached(cache.Meals(), func(old any) any {
			return removeByID(asMeals(old), id)
		})
	default:
		return fmt.Errorf("unknown event type %q", ev.EventType)
	}

	h.cache.Invalidate(cache.Meals())
	h.cache.Invalidate(cache.Meal(id))
	if oldRow != nil && oldRow.ID != 0 && oldRow.ID != id {
		h.cache.Invalidate(cache.Meal(oldRow.ID))
	}

	dates := map[string]bool{}
	for _, row := range []*model.MealRecord{newRow, oldRow} {
		if row != nil && row.Day() != "" {
			dates[row.Day()] = true
		}
	}
	for d := range dates {
		h.cache.Invalidate(cache.DailyGrade(d))
		h.cache.Invalidate(cache.Insights(d))
	}
	if len(dates) > 0 {
		h.cache.Invalidate(cache.History())
	}
	return nil
}

type childRow struct {
	ID     int64 `json:"id"`
	MealID int64 `json:"meal_id"`
}

func (h *Handler) childChanged(ev model.ChangeEvent, key func(mealID int64) cache.Key) error {
	newRow, oldRow, err := decodeRows[childRow](ev)
	if err != nil {
		return err
	}

	ids := map[int64]bool{}
	for _, row := range []*childRow{newRow, oldRow} {
		if row != nil && row.MealID != 0 {
			ids[row.MealID] = true
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("event without meal_id")
	}

	for mealID := range ids {
		h.cache.Invalidate(key(mealID))
		h.cache.Invalidate(cache.Meal(mealID))
	}
	return nil
}

func (h *Handler) dailyGradeChanged(ev model.ChangeEvent) error {
	newRow, oldRow, err := decodeRows[model.DailyGrade](ev)
	if err != nil {
		return err
	}

	dates := map[string]bool{}
	for _, row := range []*model.DailyGrade{newRow, oldRow} {
		if row != nil && row.Date != "" {
			dates[row.Date] = true
		}
	}
	if len(dates) == 0 {
		return fmt.Errorf("daily grade event without date")
	}

	for d := range dates {
		h.cache.Invalidate(cache.DailyGrade(d))
		h.cache.Invalidate(cache.Insights(d))
	}
	h.cache.Invalidate(cache.History())
	return nil
}

func asMeals(v any) []model.MealRecord {
	list, _ := v.([]model.MealRecord)
	return list
}

// upsertHead puts m at the head of list, or replaces the entry with its id.
func upsertHead(list []model.MealRecord, m model.MealRecord) []model.MealRecord {
	for _, existing := range list {
		if existing.ID == m.ID {
			return replaceByID(list, m)
		}
	}
	out := make([]model.MealRecord, 0, len(list)+1)
	out = append(out, m)
	return append(out, list...)
}

func replaceByID(list []model.MealRecord, m model.MealRecord) []model.MealRecord {
	out := make([]model.MealRecord, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID == m.ID {
			out[i] = m
		}
	}
	return out
}

func removeByID(list []model.MealRecord, id int64) []model.MealRecord {
	out := make([]model.MealRecord, 0, len(list))
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
