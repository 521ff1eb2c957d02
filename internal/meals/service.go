package meals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nutrilog/internal/cache"
	"nutrilog/internal/extract"
	"nutrilog/internal/grade"
	"nutrilog/internal/insights"
	"nutrilog/internal/model"
	"nutrilog/internal/store"
	"nutrilog/internal/transcribe"
)

var (
	// ErrSaveFailed wraps every non-domain failure of a save.
	ErrSaveFailed = errors.New("failed to save meal")
	// ErrTranscriptionFailed wraps transcription service failures.
	ErrTranscriptionFailed = errors.New("failed to transcribe recording")
)

// MealParser extracts and grades a meal description.
type MealParser interface {
	ParseAndAnalyzeMeal(ctx context.Context, text string) (*extract.Result, error)
}

// SaveResult describes a saved meal.
type SaveResult struct {
	Meal          model.MealRecord
	Parsed        model.ParsedMeal
	Analysis      grade.Analysis
	GradeComment  string
	DriverReasons []string

	// Transcript is set for meals saved from a recording.
	Transcript string
	// NoSpeech is set when the recording held no speech; nothing is saved.
	NoSpeech bool
	// DetailsSaved reports whether every ingredient and the nutrition row
	// were stored along with the meal.
	DetailsSaved bool
}

// Service saves and edits meals through the cache.
type Service struct {
	parser      MealParser
	transcriber transcribe.Transcriber
	store       store.Store
	cache       *cache.Cache
	log         *slog.Logger
	now         func() time.Time
}

// NewService wires the pipeline. transcriber may be nil when recordings are
// not supported.
func NewService(parser MealParser, transcriber transcribe.Transcriber, st store.Store, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		parser:      parser,
		transcriber: transcriber,
		store:       st,
		cache:       c,
		log:         logger,
		now:         time.Now,
	}
}

// SaveMeal parses and grades description and saves it. The meal shows up in
// the cached list and today's grade immediately and is rolled back if the
// store rejects it. Domain errors from extraction are returned unchanged;
// any other failure wraps ErrSaveFailed.
func (s *Service) SaveMeal(ctx context.Context, description string) (*SaveResult, error) {
	res, err := s.parser.ParseAndAnalyzeMeal(ctx, description)
	if err != nil {
		if extract.IsDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	totals := res.ParsedMeal.TotalNutrition
	record := model.MealRecord{
		MealName:        res.ParsedMeal.Name(),
		MealDescription: res.Description,
		MealGrade:       res.Analysis.Grade,
		OriginalGrade:   res.Analysis.Grade,
		Comment:         res.GradeComment,
		MealDate:        s.now().UTC(),
		Calories:        totals.Calories,
		Protein:         totals.ProteinG,
		Carbs:           totals.CarbohydrateG,
		Fat:             totals.FatG,
		Sugar:           totals.SugarG,
		Fiber:           totals.FiberG,
		Sodium:          totals.SodiumMg,
		TempID:          uuid.NewString(),
	}
	saved, err := s.createMeal(ctx, record)
	if err != nil {
		return nil, err
	}
	s.log.Info("meals: saved", "id", saved.ID, "grade", saved.MealGrade)

	out := &SaveResult{
		Meal:          saved,
		Parsed:        res.ParsedMeal,
		Analysis:      res.Analysis,
		GradeComment:  res.GradeComment,
		DriverReasons: res.DriverReasons,
		DetailsSaved:  true,
	}
	if err := s.saveDetails(ctx, saved.ID, res.ParsedMeal); err != nil {
		s.log.Error("meals: failed to save meal details", "id", saved.ID, "err", err)
		out.DetailsSaved = false
	}
	return out, nil
}

// createMeal writes record through the cache: the list and the day's grade
// show it at once, and both are restored if the store rejects it.
func (s *Service) createMeal(ctx context.Context, record model.MealRecord, invalidate ...cache.Key) (model.MealRecord, error) {
	day := record.Day()
	placeholder := record
	result, err := s.cache.Mutate(ctx, cache.Mutation{
		Patches: []cache.Patch{
			{Key: cache.Meals(), IfCached: true, Apply: func(old any) any {
				return prepend(asMeals(old), placeholder)
			}},
			{Key: cache.DailyGrade(day), IfCached: true, Apply: func(old any) any {
				return addGrade(old, day, placeholder.MealGrade)
			}},
		},
		Commit: func(ctx context.Context) (any, error) {
			return s.store.CreateMeal(ctx, record)
		},
		Settle: func(result any) []cache.Patch {
			saved := result.(model.MealRecord)
			return []cache.Patch{
				{Key: cache.Meals(), IfCached: true, Apply: func(old any) any {
					return settlePlaceholder(asMeals(old), placeholder.TempID, saved)
				}},
				{Key: cache.Meal(saved.ID), Apply: func(any) any { return saved }},
			}
		},
		Invalidate: append([]cache.Key{cache.DailyGrade(day), cache.Insights(day), cache.History()}, invalidate...),
	})
	if err != nil {
		s.log.Error("meals: save failed", "name", record.MealName, "err", err)
		return model.MealRecord{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return result.(model.MealRecord), nil
}

// Snapshot is everything stored for one meal.
type Snapshot struct {
	Meal        model.MealRecord
	Ingredients []model.Ingredient
	Nutrition   *model.MealNutrition
}

// Snapshot reads a meal with its details, for restoring it after a delete.
func (s *Service) Snapshot(ctx context.Context, id int64) (Snapshot, error) {
	meal, err := s.Meal(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	ingredients, err := s.Ingredients(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Meal: meal, Ingredients: ingredients}
	n, err := s.Nutrition(ctx, id)
	switch {
	case err == nil:
		snap.Nutrition = &n
	case !errors.Is(err, store.ErrNotFound):
		return Snapshot{}, err
	}
	return snap, nil
}

// Restore saves a deleted meal again with its details. The store assigns a
// new id, which the returned record carries.
func (s *Service) Restore(ctx context.Context, snap Snapshot) (model.MealRecord, error) {
	record := snap.Meal
	record.ID = 0
	record.TempID = uuid.NewString()

	saved, err := s.createMeal(ctx, record, cache.Meals())
	if err != nil {
		return model.MealRecord{}, err
	}

	defer func() {
		s.cache.Invalidate(cache.Ingredients(saved.ID))
		s.cache.Invalidate(cache.Nutrition(saved.ID))
	}()
	for _, in := range snap.Ingredients {
		in.ID = 0
		in.MealID = saved.ID
		if _, err := s.store.CreateIngredient(ctx, in); err != nil {
			return saved, fmt.Errorf("failed to restore ingredient %q: %w", in.Name, err)
		}
	}
	if snap.Nutrition != nil {
		n := *snap.Nutrition
		n.ID = 0
		n.MealID = saved.ID
		if _, err := s.store.CreateNutrition(ctx, n); err != nil {
			return saved, fmt.Errorf("failed to restore nutrition: %w", err)
		}
	}
	s.log.Info("meals: restored", "id", saved.ID, "was", snap.Meal.ID)
	return saved, nil
}

// saveDetails stores one ingredient per dish, in dish order, and the totals.
func (s *Service) saveDetails(ctx context.Context, mealID int64, parsed model.ParsedMeal) error {
	defer func() {
		s.cache.Invalidate(cache.Ingredients(mealID))
		s.cache.Invalidate(cache.Nutrition(mealID))
	}()

	for i, d := range parsed.Dishes {
		_, err := s.store.CreateIngredient(ctx, model.Ingredient{
			MealID:      mealID,
			Name:        d.Name,
			Quantity:    d.Quantity,
			Unit:        d.Unit,
			Emoji:       d.Emoji,
			IsEstimated: d.IsEstimated,
			Calories:    d.Nutrition.Calories,
			Protein:     d.Nutrition.ProteinG,
			Carbs:       d.Nutrition.CarbohydrateG,
			Fat:         d.Nutrition.FatG,
			Sugar:       d.Nutrition.SugarG,
			Fiber:       d.Nutrition.FiberG,
			Sodium:      d.Nutrition.SodiumMg,
			Position:    i,
		})
		if err != nil {
			return fmt.Errorf("failed to save ingredient %q: %w", d.Name, err)
		}
	}

	_, err := s.store.CreateNutrition(ctx, model.MealNutrition{MealID: mealID, NutritionTotals: parsed.TotalNutrition})
	if err != nil {
		return fmt.Errorf("failed to save nutrition: %w", err)
	}
	return nil
}

// SaveFromAudio transcribes a recording and saves the meal it describes. A
// recording without speech returns a result with NoSpeech set and saves
// nothing.
func (s *Service) SaveFromAudio(ctx context.Context, audio []byte, filename string) (*SaveResult, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("%w: no transcriber configured", ErrTranscriptionFailed)
	}
	transcript, err := s.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		s.log.Error("meals: transcription failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if transcript.NoSpeech() {
		return &SaveResult{NoSpeech: true}, nil
	}

	res, err := s.SaveMeal(ctx, transcript.Text)
	if err != nil {
		return nil, err
	}
	res.Transcript = transcript.Text
	return res, nil
}

// FollowTip raises the meal's grade by one letter and marks its tip as
// followed. The computed grade stays in original_grade. Meals already at A or
// whose tip was already followed are returned unchanged.
func (s *Service) FollowTip(ctx context.Context, id int64) (model.MealRecord, error) {
	meal, err := s.Meal(ctx, id)
	if err != nil {
		return model.MealRecord{}, err
	}
	if meal.TipFollowed || meal.MealGrade == grade.A {
		return meal, nil
	}

	upgraded := meal.MealGrade.Upgrade()
	original := meal.OriginalGrade
	if original == "" {
		original = meal.MealGrade
	}
	followed := true
	return s.UpdateMeal(ctx, id, model.MealUpdate{
		MealGrade:     &upgraded,
		OriginalGrade: &original,
		TipFollowed:   &followed,
	})
}

// UpdateMeal applies u optimistically to the cached list and meal and
// persists it.
func (s *Service) UpdateMeal(ctx context.Context, id int64, u model.MealUpdate) (model.MealRecord, error) {
	result, err := s.cache.Mutate(ctx, cache.Mutation{
		Patches: []cache.Patch{
			{Key: cache.Meals(), IfCached: true, Apply: func(old any) any {
				return updateByID(asMeals(old), id, u.Apply)
			}},
			{Key: cache.Meal(id), IfCached: true, Apply: func(old any) any {
				m, ok := old.(model.MealRecord)
				if !ok {
					return old
				}
				return u.Apply(m)
			}},
		},
		Commit: func(ctx context.Context) (any, error) {
			return s.store.UpdateMeal(ctx, id, u)
		},
		Settle: func(result any) []cache.Patch {
			saved := result.(model.MealRecord)
			return []cache.Patch{
				{Key: cache.Meals(), IfCached: true, Apply: func(old any) any {
					return updateByID(asMeals(old), id, func(model.MealRecord) model.MealRecord { return saved })
				}},
				{Key: cache.Meal(id), Apply: func(any) any { return saved }},
			}
		},
	})
	if err != nil {
		s.log.Error("meals: update failed", "id", id, "err", err)
		return model.MealRecord{}, fmt.Errorf("failed to update meal: %w", err)
	}

	saved := result.(model.MealRecord)
	if u.MealGrade != nil {
		s.invalidateDay(saved.Day())
	}
	return saved, nil
}

// DeleteMeal removes the meal from the cached list at once and deletes it.
func (s *Service) DeleteMeal(ctx context.Context, id int64) error {
	var day string
	if m, ok := s.cache.Peek(cache.Meal(id)); ok {
		if rec, ok := m.(model.MealRecord); ok {
			day = rec.Day()
		}
	}
	for _, m := range s.cachedMeals() {
		if m.ID == id {
			day = m.Day()
		}
	}

	_, err := s.cache.Mutate(ctx, cache.Mutation{
		Patches: []cache.Patch{
			{Key: cache.Meals(), IfCached: true, Apply: func(old any) any {
				return removeByID(asMeals(old), id)
			}},
		},
		Commit: func(ctx context.Context) (any, error) {
			return nil, s.store.DeleteMeal(ctx, id)
		},
	})
	if err != nil {
		s.log.Error("meals: delete failed", "id", id, "err", err)
		return fmt.Errorf("failed to delete meal: %w", err)
	}

	s.cache.Remove(cache.Meal(id))
	s.cache.Remove(cache.Ingredients(id))
	s.cache.Remove(cache.Nutrition(id))
	if day != "" {
		s.invalidateDay(day)
	} else {
		s.cache.InvalidateKind(cache.KindDailyGrade)
		s.cache.InvalidateKind(cache.KindInsights)
		s.cache.Invalidate(cache.History())
	}
	return nil
}

func (s *Service) invalidateDay(day string) {
	if day == "" {
		return
	}
	s.cache.Invalidate(cache.DailyGrade(day))
	s.cache.Invalidate(cache.Insights(day))
	s.cache.Invalidate(cache.History())
}

func (s *Service) cachedMeals() []model.MealRecord {
	v, _ := s.cache.Peek(cache.Meals())
	return asMeals(v)
}

// Queries

// Meals returns every meal, newest first.
func (s *Service) Meals(ctx context.Context) ([]model.MealRecord, error) {
	return cache.Get(ctx, s.cache, cache.Meals(), s.store.ListMeals)
}

// Meal returns one meal.
func (s *Service) Meal(ctx context.Context, id int64) (model.MealRecord, error) {
	return cache.Get(ctx, s.cache, cache.Meal(id), func(ctx context.Context) (model.MealRecord, error) {
		return s.store.GetMeal(ctx, id)
	})
}

// Ingredients returns a meal's ingredients in dish order.
func (s *Service) Ingredients(ctx context.Context, mealID int64) ([]model.Ingredient, error) {
	return cache.Get(ctx, s.cache, cache.Ingredients(mealID), func(ctx context.Context) ([]model.Ingredient, error) {
		return s.store.ListIngredients(ctx, mealID)
	})
}

// Nutrition returns a meal's nutrition totals.
func (s *Service) Nutrition(ctx context.Context, mealID int64) (model.MealNutrition, error) {
	return cache.Get(ctx, s.cache, cache.Nutrition(mealID), func(ctx context.Context) (model.MealNutrition, error) {
		return s.store.GetNutrition(ctx, mealID)
	})
}

// DailyGrade returns the summary of date. A day without meals has a zero
// MealCount and no average grade.
func (s *Service) DailyGrade(ctx context.Context, date string) (model.DailyGrade, error) {
	return cache.Get(ctx, s.cache, cache.DailyGrade(date), func(ctx context.Context) (model.DailyGrade, error) {
		d, err := s.store.GetDailyGrade(ctx, date)
		if errors.Is(err, store.ErrNotFound) {
			return model.DailyGrade{Date: date}, nil
		}
		return d, err
	})
}

// Insights ranks suggestions for date from its daily grade and the past
// week of meals. When that data cannot be loaded it falls back to general
// tips, which are not cached.
func (s *Service) Insights(ctx context.Context, date string) ([]insights.Insight, error) {
	list, err := cache.Get(ctx, s.cache, cache.Insights(date), func(ctx context.Context) ([]insights.Insight, error) {
		daily, err := s.DailyGrade(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("failed to load daily grade: %w", err)
		}
		recent, err := s.Meals(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load meals: %w", err)
		}
		return insights.Generate(insights.Input{
			Date:  date,
			Daily: daily,
			Meals: recent,
			Now:   s.now(),
		}), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("insights unavailable, using general tips", "date", date, "error", err)
		return insights.Fallback(), nil
	}
	return list, nil
}

// History summarizes the graded days of the past week, newest first. A page
// cached on an earlier day is refetched.
func (s *Service) History(ctx context.Context) (insights.History, error) {
	today := s.Today()
	h, err := cache.Get(ctx, s.cache, cache.History(), s.fetchHistory)
	if err == nil && h.Today != today {
		s.cache.Invalidate(cache.History())
		h, err = cache.Get(ctx, s.cache, cache.History(), s.fetchHistory)
	}
	return h, err
}

func (s *Service) fetchHistory(ctx context.Context) (insights.History, error) {
	today := s.Today()
	dates, err := insights.PastDays(today)
	if err != nil {
		return insights.History{}, err
	}

	found := make([]*model.DailyGrade, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			d, err := s.store.GetDailyGrade(gctx, date)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to load grade for %s: %w", date, err)
			}
			found[i] = &d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return insights.History{}, err
	}

	h := insights.History{Today: today, Days: []insights.DaySummary{}}
	for _, d := range found {
		if d != nil && d.MealCount > 0 {
			h.Days = append(h.Days, insights.Summarize(*d))
		}
	}
	return h, nil
}

// Today returns the current UTC date in the layout used by daily grades.
func (s *Service) Today() string {
	return s.now().UTC().Format(model.DateLayout)
}

// UserMessage turns err into text fit for the user. The extraction domain
// errors carry their own prompt.
func UserMessage(err error) string {
	var nonFood *extract.NonFoodInputError
	if errors.As(err, &nonFood) {
		return nonFood.UserMessage()
	}
	var recognition *extract.FoodRecognitionError
	if errors.As(err, &recognition) {
		return recognition.UserMessage()
	}
	if errors.Is(err, ErrTranscriptionFailed) {
		return "Couldn't transcribe that recording. Try again or type what you ate."
	}
	return "Something went wrong. Please try again."
}
