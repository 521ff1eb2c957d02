package ui

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/internal/cache"
	"nutrilog/internal/extract"
	"nutrilog/internal/grade"
	"nutrilog/internal/meals"
	"nutrilog/internal/model"
	"nutrilog/internal/realtime"
	"nutrilog/internal/store"
)

type stubParser struct{}

func (stubParser) ParseAndAnalyzeMeal(ctx context.Context, text string) (*extract.Result, error) {
	return nil, errors.New("not used")
}

type harness struct {
	db *store.SQLite
	rt *realtime.Manager
	m  Model
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	feed := store.NewFeed(nil)
	db, err := store.Open(":memory:", feed, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := cache.New()
	require.NoError(t, err)

	rt := realtime.NewManager(realtime.FeedDialer{Feed: feed}, c)
	t.Cleanup(rt.Disconnect)

	svc := meals.NewService(stubParser{}, nil, db, c, nil)
	m := New(Options{
		Service:   svc,
		Cache:     c,
		Realtime:  rt,
		PrefsPath: filepath.Join(t.TempDir(), "ui_prefs.json"),
	})
	t.Cleanup(m.Close)
	return &harness{db: db, rt: rt, m: m}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

func (h *harness) press(k string) tea.Cmd {
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	msg := loadMealsCmd(h.m.svc)()
	require.IsType(t, model.MealsLoadedMsg{}, msg)
	h.send(msg)
}

func TestLifecycleDisconnectsInBackground(t *testing.T) {
	h := newHarness(t)

	cmd := h.send(tea.FocusMsg{})
	require.NotNil(t, cmd)
	cmd()
	require.Eventually(t, func() bool {
		return h.rt.State().Status == realtime.Connected
	}, time.Second, 5*time.Millisecond)

	h.send(tea.BlurMsg{})
	assert.Equal(t, realtime.Disconnected, h.rt.State().Status)

	h.send(tea.FocusMsg{})()
	require.Eventually(t, func() bool {
		return h.rt.State().Status == realtime.Connected
	}, time.Second, 5*time.Millisecond)
}

func TestStaleSaveResultIsDropped(t *testing.T) {
	h := newHarness(t)

	h.press("a")
	require.NotNil(t, h.m.form)
	h.send(logSubmitMsg{text: "toast"})
	stale := h.m.saveSeq

	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	h.send(model.FormCancelledMsg{})
	assert.Nil(t, h.m.form)

	h.press("a")
	h.send(mealSavedMsg{seq: stale, err: &extract.NonFoodInputError{Message: "weather"}})
	require.NotNil(t, h.m.form)
	assert.Empty(t, h.m.form.error)
	assert.Equal(t, model.ScreenLogMeal, h.m.screen)
}

func TestSaveErrorShowsUserMessage(t *testing.T) {
	h := newHarness(t)

	h.press("a")
	h.send(logSubmitMsg{text: "what's the weather"})
	err := &extract.NonFoodInputError{Message: "weather"}
	h.send(mealSavedMsg{seq: h.m.saveSeq, err: err})

	require.NotNil(t, h.m.form)
	assert.Equal(t, meals.UserMessage(err), h.m.form.error)
	assert.False(t, h.m.form.saving)
}

func TestSaveSuccessClosesForm(t *testing.T) {
	h := newHarness(t)

	h.press("a")
	h.send(logSubmitMsg{text: "eggs"})
	h.send(mealSavedMsg{seq: h.m.saveSeq, result: &meals.SaveResult{
		Meal:          model.MealRecord{ID: 7, MealName: "2 large eggs", MealGrade: grade.B},
		DriverReasons: []string{"High protein"},
		DetailsSaved:  true,
	}})

	assert.Nil(t, h.m.form)
	assert.Equal(t, model.ScreenMeals, h.m.screen)
	assert.Contains(t, h.m.info, "2 large eggs")
	assert.Contains(t, h.m.info, "High protein")
	assert.Empty(t, h.m.error)
}

func TestFollowTipAndUndo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	meal, err := h.db.CreateMeal(ctx, model.MealRecord{
		MealName: "fries", MealGrade: grade.D, OriginalGrade: grade.D, MealDate: time.Now(),
	})
	require.NoError(t, err)
	h.load(t)
	require.NotNil(t, h.m.meals.Selected())

	cmd := h.press("t")
	require.NotNil(t, cmd)
	h.send(cmd())
	assert.Contains(t, h.m.info, "D → C")
	require.Len(t, h.m.undoStack, 1)

	stored, err := h.db.GetMeal(ctx, meal.ID)
	require.NoError(t, err)
	assert.Equal(t, grade.C, stored.MealGrade)
	assert.True(t, stored.TipFollowed)

	cmd = h.press("u")
	require.NotNil(t, cmd)
	h.send(cmd())
	assert.Empty(t, h.m.undoStack)
	assert.Len(t, h.m.redoStack, 1)

	stored, err = h.db.GetMeal(ctx, meal.ID)
	require.NoError(t, err)
	assert.Equal(t, grade.D, stored.MealGrade)
	assert.False(t, stored.TipFollowed)
}

func TestDeleteAndUndoRestoresMeal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	meal, err := h.db.CreateMeal(ctx, model.MealRecord{
		MealName: "salad", MealGrade: grade.A, OriginalGrade: grade.A, MealDate: time.Now(),
	})
	require.NoError(t, err)
	h.load(t)

	cmd := h.press("d")
	require.NotNil(t, cmd)
	h.send(cmd())
	assert.Contains(t, h.m.info, "deleted")

	list, err := h.db.ListMeals(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	h.send(h.press("u")())
	list, err = h.db.ListMeals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "salad", list[0].MealName)
	assert.NotEqual(t, meal.ID, list[0].ID)
}

func TestFollowTipSkipsGradeA(t *testing.T) {
	h := newHarness(t)
	_, err := h.db.CreateMeal(context.Background(), model.MealRecord{
		MealName: "salad", MealGrade: grade.A, OriginalGrade: grade.A, MealDate: time.Now(),
	})
	require.NoError(t, err)
	h.load(t)

	assert.Nil(t, h.press("t"))
	assert.Contains(t, h.m.info, "Already an A")
}

func TestMealListShowsInsightsAndPastWeek(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.db.CreateMeal(ctx, model.MealRecord{
		MealName: "stew", MealGrade: grade.B, OriginalGrade: grade.B, MealDate: time.Now().UTC().AddDate(0, 0, -2),
	})
	require.NoError(t, err)
	h.send(tea.WindowSizeMsg{Width: 160, Height: 40})
	h.load(t)

	msg := loadInsightsCmd(h.m.svc)()
	require.IsType(t, insightsLoadedMsg{}, msg)
	h.send(msg)

	require.NotEmpty(t, h.m.insights)
	assert.Equal(t, "start-tracking", h.m.insights[0].ID)
	require.Len(t, h.m.history.Days, 1)

	view := h.m.View()
	assert.Contains(t, view, "Start your journey")
	assert.Contains(t, view, "Past week")
}
