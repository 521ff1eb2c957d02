package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nutrilog/internal/cache"
	"nutrilog/internal/grade"
	"nutrilog/internal/insights"
	"nutrilog/internal/meals"
	"nutrilog/internal/model"
	"nutrilog/internal/realtime"
	"nutrilog/internal/store"
)

const (
	requestTimeout = 30 * time.Second
	// Extraction plus transcription can take a while on long recordings.
	saveTimeout = 2 * time.Minute
)

// Options wires the front end to the meal pipeline.
type Options struct {
	Service   *meals.Service
	Cache     *cache.Cache
	Realtime  *realtime.Manager
	PrefsPath string
	Logger    *slog.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	svc    *meals.Service
	cache  *cache.Cache
	rt     *realtime.Manager
	bridge *syncBridge
	log    *slog.Logger
	now    func() time.Time

	screen model.Screen
	mode   model.Mode
	gState GState

	width  int
	height int

	error       string
	info        string
	showingHelp bool
	columnJump  bool

	meals    *MealsModel
	today    model.DailyGrade
	insights []insights.Insight
	history  insights.History
	todayKey string
	detail   *MealDetailModel
	detailID int64
	form     *LogFormModel
	status   realtime.State

	// saveSeq identifies the save the form is waiting for. Results of older
	// saves are dropped.
	saveSeq int

	keys      KeyMap
	formKeys  FormKeyMap
	prefs     UIPreferences
	prefsPath string
	undoStack []undoAction
	redoStack []undoAction
}

// New creates a new root model.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := Model{
		svc:       opts.Service,
		cache:     opts.Cache,
		rt:        opts.Realtime,
		bridge:    newSyncBridge(opts.Realtime),
		log:       logger,
		now:       time.Now,
		screen:    model.ScreenMeals,
		mode:      model.ModeNav,
		gState:    GStateIdle,
		keys:      DefaultKeyMap(),
		formKeys:  DefaultFormKeyMap(),
		prefs:     loadUIPreferences(opts.PrefsPath),
		prefsPath: opts.PrefsPath,
	}
	if m.rt != nil {
		m.status = m.rt.State()
	}
	m.todayKey = m.svc.Today()
	m.bridge.watch(m.cache, "list", listKeys(m.todayKey)...)
	return m
}

// Init starts the realtime connection and loads the meal list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.connectCmd(),
		loadMealsCmd(m.svc),
		loadInsightsCmd(m.svc),
		m.bridge.waitForState(),
		m.bridge.waitForChange(),
	)
}

// Close releases the cache and realtime subscriptions held by the model.
func (m Model) Close() {
	m.bridge.close()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	// The terminal reports focus changes when the program is started with
	// tea.WithReportFocus. A backgrounded app holds no live connection.
	case tea.FocusMsg:
		return m, m.connectCmd()

	case tea.BlurMsg:
		if m.rt != nil {
			m.rt.Disconnect()
		}
		return m, nil

	case realtimeStateMsg:
		m.status = realtime.State(msg)
		return m, m.bridge.waitForState()

	case cacheChangedMsg:
		cmds := []tea.Cmd{loadMealsCmd(m.svc), loadInsightsCmd(m.svc), m.bridge.waitForChange()}
		if m.screen == model.ScreenMealDetail && m.detailID != 0 {
			cmds = append(cmds, loadMealDetailCmd(m.svc, m.detailID))
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.mode == model.ModeNav && m.columnJump {
			if msg.String() == "esc" {
				m.columnJump = false
				m.info = ""
				return m, nil
			}
			if n, err := strconv.Atoi(msg.String()); err == nil {
				if m.meals != nil && m.meals.JumpToColumn(n) {
					m.columnJump = false
					m.info = fmt.Sprintf("Jumped to column %d", n)
					m.persistTablePrefs()
					return m, nil
				}
				m.info = fmt.Sprintf("Column %d unavailable", n)
				return m, nil
			}
		}

		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.mode == model.ModeNav && key.Matches(msg, m.keys.Help) {
			m.showingHelp = !m.showingHelp
			return m, nil
		}

		if m.showingHelp {
			if msg.String() == "esc" {
				m.showingHelp = false
			}
			return m, nil
		}

		if m.mode == model.ModeNav {
			return m.handleNavMode(msg)
		}
		return m.handleInsertMode(msg)

	case model.ErrorMsg:
		m.error = msg.Err.Error()
		return m, nil

	case model.MealsLoadedMsg:
		if m.meals == nil {
			m.meals = NewMealsModel(msg.Meals)
			m.meals.now = m.now
			m.meals.ApplyPrefs(m.prefs.Meals)
		} else {
			m.meals.SetRows(msg.Meals)
		}
		m.today = msg.Today
		if msg.Today.Date != "" && msg.Today.Date != m.todayKey {
			m.todayKey = msg.Today.Date
			m.bridge.watch(m.cache, "list", listKeys(m.todayKey)...)
		}
		return m, nil

	case insightsLoadedMsg:
		if msg.date == m.todayKey {
			m.insights = msg.insights
		}
		m.history = msg.history
		return m, nil

	case model.MealDetailLoadedMsg:
		if msg.Meal.ID != m.detailID {
			return m, nil
		}
		m.detail = NewMealDetailModel(msg)
		m.screen = model.ScreenMealDetail
		m.error = ""
		return m, nil

	case mealGoneMsg:
		if msg.id == m.detailID && m.screen == model.ScreenMealDetail {
			m.leaveDetail()
			m.info = "That meal was deleted"
		}
		return m, nil

	case logSubmitMsg:
		if m.form == nil {
			return m, nil
		}
		m.saveSeq++
		return m, tea.Batch(m.form.startSaving(), saveMealCmd(m.svc, m.saveSeq, msg))

	case mealSavedMsg:
		return m.handleMealSaved(msg)

	case model.FormCancelledMsg:
		// A save still running completes in the background; its result is
		// no longer shown.
		m.saveSeq++
		m.mode = model.ModeNav
		m.screen = model.ScreenMeals
		m.form = nil
		return m, nil

	case mealDeletedMsg:
		if msg.err != nil {
			m.error = meals.UserMessage(msg.err)
			return m, nil
		}
		m.pushUndoAction(m.buildDeleteAction(msg.snap))
		if m.detailID == msg.snap.Meal.ID {
			m.leaveDetail()
		}
		m.info = "Meal deleted (u to undo)"
		m.error = ""
		return m, nil

	case tipFollowedMsg:
		if msg.err != nil {
			m.error = meals.UserMessage(msg.err)
			return m, nil
		}
		m.pushUndoAction(m.buildFollowTipAction(msg.before))
		m.info = fmt.Sprintf("Nice! %s → %s (u to undo)", msg.before.MealGrade, msg.after.MealGrade)
		m.error = ""
		return m, nil

	case undoAppliedMsg:
		cmd := m.applyUndoResult(msg)
		return m, cmd

	default:
		if m.mode == model.ModeInsert {
			return m.handleInsertMode(msg)
		}
	}

	return m, nil
}

func (m Model) handleMealSaved(msg mealSavedMsg) (tea.Model, tea.Cmd) {
	if m.form == nil || msg.seq != m.saveSeq {
		m.log.Debug("ui: dropped stale save result", "seq", msg.seq, "current", m.saveSeq)
		return m, nil
	}

	switch {
	case msg.err != nil:
		m.form.finishSaving(meals.UserMessage(msg.err))
		return m, nil
	case msg.result.NoSpeech:
		m.form.finishSaving("No speech detected in that recording. Try again.")
		return m, nil
	}

	res := msg.result
	m.mode = model.ModeNav
	m.screen = model.ScreenMeals
	m.form = nil
	m.error = ""
	m.info = fmt.Sprintf("Logged %s · grade %s", res.Meal.MealName, res.Meal.MealGrade)
	if len(res.DriverReasons) > 0 {
		m.info += " (" + strings.Join(res.DriverReasons, ", ") + ")"
	}
	if !res.DetailsSaved {
		m.error = "Meal saved, but its dish breakdown could not be stored"
	}
	return m, loadMealsCmd(m.svc)
}

func (m *Model) leaveDetail() {
	m.screen = model.ScreenMeals
	m.detail = nil
	m.detailID = 0
	m.bridge.watch(m.cache, "detail")
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	if m.showingHelp {
		return RenderFullHelp(m.width, m.height)
	}

	var content string
	var breadcrumbParts []string

	contentHeight := m.height - 4
	if m.error != "" {
		contentHeight--
	}
	if m.info != "" {
		contentHeight--
	}

	switch m.screen {
	case model.ScreenMeals:
		breadcrumbParts = []string{"Meals"}
		if m.meals != nil {
			content = m.meals.View(dashboard{today: m.today, insights: m.insights, history: m.history}, m.width, contentHeight)
		} else {
			content = EmptyStateStyle.Render("Loading meals…")
		}
	case model.ScreenMealDetail:
		breadcrumbParts = []string{"Meals", "Detail"}
		if m.detail != nil {
			breadcrumbParts = []string{"Meals", mealAge(m.detail.meal, m.now())}
			content = m.detail.View(m.width, contentHeight, m.now())
		}
	case model.ScreenLogMeal:
		breadcrumbParts = []string{"Meals", "Log"}
		if m.form != nil {
			content = m.form.View(m.width, contentHeight)
		}
	}

	header := renderHeader(breadcrumbParts, m.status, m.now(), m.width)
	footer := RenderHelp(m.screen, m.mode, m.keys, m.formKeys, m.width)

	content = lipgloss.NewStyle().
		Width(m.width).
		Height(contentHeight).
		Render(content)

	parts := []string{header}
	if m.error != "" {
		parts = append(parts, ErrorStyle.Width(m.width).Render("Error: "+m.error))
	}
	if m.info != "" {
		parts = append(parts, SuccessStyle.Width(m.width).Render(m.info))
	}
	parts = append(parts, content, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderHeader(breadcrumbParts []string, status realtime.State, now time.Time, width int) string {
	title := HeaderStyle.Render("nutrilog")

	var breadcrumb string
	if len(breadcrumbParts) > 0 {
		separator := BreadcrumbStyle.Render(" › ")
		parts := make([]string, len(breadcrumbParts))
		for i, part := range breadcrumbParts {
			if i == len(breadcrumbParts)-1 {
				parts[i] = BreadcrumbActiveStyle.Render(part)
			} else {
				parts[i] = BreadcrumbStyle.Render(part)
			}
		}
		breadcrumb = separator + strings.Join(parts, separator)
	}

	left := "  " + title + breadcrumb
	right := renderStatus(status) + "  " + BreadcrumbStyle.Render(now.Format("Mon 02 Jan")) + "  "

	padding := max(0, width-lipgloss.Width(left)-lipgloss.Width(right))
	return TitleStyle.Width(width).Render(left + strings.Repeat(" ", padding) + right)
}

// handleNavMode handles navigation mode input.
func (m Model) handleNavMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.screen == model.ScreenMeals && m.meals != nil {
		if handled := m.handleTableKeys(msg); handled {
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Undo):
		if len(m.undoStack) == 0 {
			m.info = "Nothing to undo"
			return m, nil
		}
		cmd := m.undoCmd()
		return m, cmd
	case key.Matches(msg, m.keys.Redo):
		if len(m.redoStack) == 0 {
			m.info = "Nothing to redo"
			return m, nil
		}
		cmd := m.redoCmd()
		return m, cmd
	case key.Matches(msg, m.keys.Reconnect):
		m.info = "Reconnecting live updates…"
		return m, m.connectCmd()
	case key.Matches(msg, m.keys.Refresh):
		for _, k := range listKeys(m.todayKey) {
			m.cache.Invalidate(k)
		}
		if m.detailID != 0 {
			m.cache.Invalidate(cache.Meal(m.detailID))
			m.cache.Invalidate(cache.Ingredients(m.detailID))
			m.cache.Invalidate(cache.Nutrition(m.detailID))
		}
		return m, nil
	}

	if msg.String() == "g" {
		if m.gState == GStateIdle {
			m.gState = GStateFirstG
			return m, nil
		}
		m.gState = GStateIdle
		if m.meals != nil && m.screen == model.ScreenMeals {
			m.meals.JumpToTop()
		}
		return m, nil
	}
	m.gState = GStateIdle

	switch m.screen {
	case model.ScreenMeals:
		return m.handleMealsNav(msg)
	case model.ScreenMealDetail:
		return m.handleMealDetailNav(msg)
	}
	return m, nil
}

func (m *Model) handleTableKeys(msg tea.KeyMsg) bool {
	t := m.meals
	switch {
	case key.Matches(msg, m.keys.NextColumn):
		t.NextColumn()
	case key.Matches(msg, m.keys.PrevColumn):
		t.PrevColumn()
	case key.Matches(msg, m.keys.ColumnJump):
		m.columnJump = true
		m.info = "Jump to column: press 1-9 (esc to cancel)"
		return true
	case key.Matches(msg, m.keys.SortAsc):
		t.SortActiveColumn(false)
		m.info = "Sorted ascending"
	case key.Matches(msg, m.keys.SortDesc):
		t.SortActiveColumn(true)
		m.info = "Sorted descending"
	case key.Matches(msg, m.keys.HideColumn):
		if !t.HideActiveColumn() {
			m.info = "Cannot hide last visible column"
			return true
		}
		m.info = "Column hidden"
	case key.Matches(msg, m.keys.ShowColumns):
		t.ShowAllColumns()
		m.info = "All columns shown"
	case key.Matches(msg, m.keys.FilterValue):
		if !t.FilterBySelectedValue() {
			m.info = "No filterable value in selected cell"
			return true
		}
		m.info = "Filter applied from selected value"
	case key.Matches(msg, m.keys.ClearFilter):
		if !t.ClearFilter() {
			return true
		}
		m.info = "Filter cleared"
	default:
		return false
	}
	m.persistTablePrefs()
	return true
}

func (m *Model) persistTablePrefs() {
	if m.meals == nil {
		return
	}
	m.prefs.Meals = m.meals.Prefs()
	if err := saveUIPreferences(m.prefsPath, m.prefs); err != nil {
		m.log.Warn("ui: failed to save preferences", "err", err)
	}
}

func (m Model) handleMealsNav(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Log):
		m.mode = model.ModeInsert
		m.screen = model.ScreenLogMeal
		m.form = NewLogFormModel(m.formKeys)
		m.info = ""
		m.error = ""
		return m, nil
	}

	if m.meals == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Select):
		if sel := m.meals.Selected(); sel != nil {
			if sel.ID == 0 {
				m.info = "Still saving that meal"
				return m, nil
			}
			cmd := m.openDetail(sel.ID)
			return m, cmd
		}
	case key.Matches(msg, m.keys.FollowTip):
		if sel := m.meals.Selected(); sel != nil {
			return m.followTip(*sel)
		}
	case key.Matches(msg, m.keys.Delete):
		if sel := m.meals.Selected(); sel != nil {
			if sel.ID == 0 {
				m.info = "Still saving that meal"
				return m, nil
			}
			return m, deleteMealCmd(m.svc, sel.ID)
		}
	case key.Matches(msg, m.keys.Down):
		m.meals.MoveDown()
	case key.Matches(msg, m.keys.Up):
		m.meals.MoveUp()
	case key.Matches(msg, m.keys.Bottom):
		m.meals.JumpToBottom()
	case key.Matches(msg, m.keys.HalfPageDown):
		m.meals.HalfPageDown()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.meals.HalfPageUp()
	}
	return m, nil
}

func (m Model) handleMealDetailNav(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detail == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Back):
		m.leaveDetail()
	case key.Matches(msg, m.keys.FollowTip):
		return m.followTip(m.detail.meal)
	case key.Matches(msg, m.keys.Delete):
		return m, deleteMealCmd(m.svc, m.detail.meal.ID)
	}
	return m, nil
}

func (m *Model) openDetail(id int64) tea.Cmd {
	m.detailID = id
	m.bridge.watch(m.cache, "detail", cache.Meal(id), cache.Ingredients(id), cache.Nutrition(id))
	return loadMealDetailCmd(m.svc, id)
}

func (m Model) followTip(meal model.MealRecord) (tea.Model, tea.Cmd) {
	switch {
	case meal.ID == 0:
		m.info = "Still saving that meal"
		return m, nil
	case meal.TipFollowed:
		m.info = "You already followed the tip for this meal"
		return m, nil
	case meal.MealGrade == grade.A:
		m.info = "Already an A, nothing to improve"
		return m, nil
	}
	return m, followTipCmd(m.svc, meal)
}

// handleInsertMode routes input to the log form.
func (m Model) handleInsertMode(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	form, cmd := m.form.Update(msg)
	m.form = &form
	return m, cmd
}

func (m Model) connectCmd() tea.Cmd {
	rt := m.rt
	if rt == nil {
		return nil
	}
	return func() tea.Msg {
		rt.Connect()
		return nil
	}
}

// Commands

type mealSavedMsg struct {
	seq    int
	result *meals.SaveResult
	err    error
}

type mealDeletedMsg struct {
	snap meals.Snapshot
	err  error
}

type tipFollowedMsg struct {
	before model.MealRecord
	after  model.MealRecord
	err    error
}

type mealGoneMsg struct {
	id int64
}

func loadMealsCmd(svc *meals.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		list, err := svc.Meals(ctx)
		if err != nil {
			return model.ErrorMsg{Err: fmt.Errorf("failed to load meals: %w", err)}
		}
		today, err := svc.DailyGrade(ctx, svc.Today())
		if err != nil {
			return model.ErrorMsg{Err: fmt.Errorf("failed to load today's grade: %w", err)}
		}
		return model.MealsLoadedMsg{Meals: list, Today: today}
	}
}

// insightsLoadedMsg carries the suggestions for date and the past week.
type insightsLoadedMsg struct {
	date     string
	insights []insights.Insight
	history  insights.History
}

// listKeys are the cached queries the meal list screen renders.
func listKeys(today string) []cache.Key {
	return []cache.Key{cache.Meals(), cache.DailyGrade(today), cache.Insights(today), cache.History()}
}

func loadInsightsCmd(svc *meals.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		date := svc.Today()
		list, err := svc.Insights(ctx, date)
		if err != nil {
			return model.ErrorMsg{Err: fmt.Errorf("failed to load insights: %w", err)}
		}
		history, err := svc.History(ctx)
		if err != nil {
			return model.ErrorMsg{Err: fmt.Errorf("failed to load past week: %w", err)}
		}
		return insightsLoadedMsg{date: date, insights: list, history: history}
	}
}

func loadMealDetailCmd(svc *meals.Service, id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		meal, err := svc.Meal(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return mealGoneMsg{id: id}
		}
		if err != nil {
			return model.ErrorMsg{Err: fmt.Errorf("failed to load meal: %w", err)}
		}
		ingredients, err := svc.Ingredients(ctx, id)
		if err != nil {
			return model.ErrorMsg{Err: fmt.Errorf("failed to load dishes: %w", err)}
		}
		msg := model.MealDetailLoadedMsg{Meal: meal, Ingredients: ingredients}
		n, err := svc.Nutrition(ctx, id)
		switch {
		case err == nil:
			msg.Nutrition = &n
		case !errors.Is(err, store.ErrNotFound):
			return model.ErrorMsg{Err: fmt.Errorf("failed to load nutrition: %w", err)}
		}
		return msg
	}
}

func saveMealCmd(svc *meals.Service, seq int, req logSubmitMsg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		if req.audioPath == "" {
			res, err := svc.SaveMeal(ctx, req.text)
			return mealSavedMsg{seq: seq, result: res, err: err}
		}

		audio, err := os.ReadFile(req.audioPath)
		if err != nil {
			return mealSavedMsg{seq: seq, err: fmt.Errorf("failed to read recording: %w", err)}
		}
		res, err := svc.SaveFromAudio(ctx, audio, filepath.Base(req.audioPath))
		return mealSavedMsg{seq: seq, result: res, err: err}
	}
}

func deleteMealCmd(svc *meals.Service, id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		snap, err := svc.Snapshot(ctx, id)
		if err != nil {
			return mealDeletedMsg{err: fmt.Errorf("failed to load meal before delete: %w", err)}
		}
		if err := svc.DeleteMeal(ctx, id); err != nil {
			return mealDeletedMsg{err: err}
		}
		return mealDeletedMsg{snap: snap}
	}
}

func followTipCmd(svc *meals.Service, before model.MealRecord) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		after, err := svc.FollowTip(ctx, before.ID)
		return tipFollowedMsg{before: before, after: after, err: err}
	}
}
