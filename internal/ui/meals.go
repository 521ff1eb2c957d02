package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"nutrilog/internal/grade"
	"nutrilog/internal/insights"
	"nutrilog/internal/model"
	"nutrilog/internal/util"
)

type mealColumn struct {
	key    string
	label  string
	width  int
	hidden bool
}

// MealsModel represents the meal list screen.
type MealsModel struct {
	allRows []model.MealRecord
	rows    []model.MealRecord
	cursor  int
	offset  int
	page    int
	now     func() time.Time

	columns      []mealColumn
	activeColumn int
	sortKey      string
	sortDesc     bool
	filterKey    string
	filterValue  string
}

// NewMealsModel creates a new meals model.
func NewMealsModel(rows []model.MealRecord) *MealsModel {
	m := &MealsModel{
		page: 10,
		now:  time.Now,
		columns: []mealColumn{
			{key: "time", label: "when", width: 16},
			{key: "grade", label: "grade", width: 8},
			{key: "name", label: "meal", width: 32},
			{key: "calories", label: "kcal", width: 12},
			{key: "protein", label: "protein", width: 10},
			{key: "carbs", label: "carbs", width: 9},
			{key: "fat", label: "fat", width: 8},
			{key: "tip", label: "tip", width: 6},
		},
	}
	m.SetRows(rows)
	return m
}

// SetRows replaces the rows, keeping the cursor on the same meal when it is
// still present.
func (m *MealsModel) SetRows(rows []model.MealRecord) {
	var selected int64
	if sel := m.Selected(); sel != nil {
		selected = sel.ID
	}
	m.allRows = append([]model.MealRecord(nil), rows...)
	m.rebuild()
	if selected == 0 {
		return
	}
	for i, r := range m.rows {
		if r.ID == selected {
			m.cursor = i
			m.clampCursor()
			return
		}
	}
}

// Selected returns the meal under the cursor.
func (m *MealsModel) Selected() *model.MealRecord {
	if m == nil || len(m.rows) == 0 || m.cursor >= len(m.rows) {
		return nil
	}
	r := m.rows[m.cursor]
	return &r
}

func (m *MealsModel) ApplyPrefs(prefs TablePrefs) {
	if prefs.SortKey != "" {
		m.sortKey = prefs.SortKey
		m.sortDesc = prefs.SortDesc
	}
	hidden := make(map[string]bool, len(prefs.HiddenColumns))
	for _, c := range prefs.HiddenColumns {
		hidden[c] = true
	}
	for i := range m.columns {
		m.columns[i].hidden = hidden[m.columns[i].key]
	}
	if prefs.ActiveColumn != "" {
		for i, c := range m.columns {
			if c.key == prefs.ActiveColumn {
				m.activeColumn = i
				break
			}
		}
	}
	m.ensureVisibleActiveColumn()
	m.rebuild()
}

func (m *MealsModel) Prefs() TablePrefs {
	var hidden []string
	for _, c := range m.columns {
		if c.hidden {
			hidden = append(hidden, c.key)
		}
	}
	return TablePrefs{
		SortKey:       m.sortKey,
		SortDesc:      m.sortDesc,
		HiddenColumns: hidden,
		ActiveColumn:  m.columns[m.activeColumn].key,
	}
}

func (m *MealsModel) rebuild() {
	rows := append([]model.MealRecord(nil), m.allRows...)

	if m.filterKey != "" && m.filterValue != "" {
		filtered := make([]model.MealRecord, 0, len(rows))
		target := strings.ToLower(strings.TrimSpace(m.filterValue))
		for _, r := range rows {
			if strings.EqualFold(strings.TrimSpace(m.getValue(r, m.filterKey)), target) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	if m.sortKey != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			left := strings.ToLower(m.getValue(rows[i], m.sortKey))
			right := strings.ToLower(m.getValue(rows[j], m.sortKey))
			if left == right {
				return rows[i].MealDate.After(rows[j].MealDate)
			}
			if m.sortDesc {
				return left > right
			}
			return left < right
		})
	}

	m.rows = rows
	m.clampCursor()
}

func (m *MealsModel) clampCursor() {
	if len(m.rows) == 0 {
		m.cursor = 0
		m.offset = 0
		return
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.offset > m.cursor {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.page {
		m.offset = m.cursor - m.page + 1
	}
}

func (m *MealsModel) getValue(row model.MealRecord, key string) string {
	switch key {
	case "time":
		return row.MealDate.UTC().Format(time.RFC3339)
	case "grade":
		return string(row.MealGrade)
	case "name":
		return row.MealName
	case "calories":
		return fmt.Sprintf("%08.1f", row.Calories)
	case "protein":
		return fmt.Sprintf("%06.1f", row.Protein)
	case "carbs":
		return fmt.Sprintf("%06.1f", row.Carbs)
	case "fat":
		return fmt.Sprintf("%06.1f", row.Fat)
	case "tip":
		if row.TipFollowed {
			return "yes"
		}
		return "no"
	default:
		return ""
	}
}

func (m *MealsModel) NextColumn() {
	start := m.activeColumn
	for {
		m.activeColumn = (m.activeColumn + 1) % len(m.columns)
		if !m.columns[m.activeColumn].hidden || m.activeColumn == start {
			return
		}
	}
}

func (m *MealsModel) PrevColumn() {
	start := m.activeColumn
	for {
		m.activeColumn--
		if m.activeColumn < 0 {
			m.activeColumn = len(m.columns) - 1
		}
		if !m.columns[m.activeColumn].hidden || m.activeColumn == start {
			return
		}
	}
}

func (m *MealsModel) JumpToColumn(number int) bool {
	if number < 1 || number > len(m.columns) {
		return false
	}
	idx := number - 1
	if m.columns[idx].hidden {
		return false
	}
	m.activeColumn = idx
	return true
}

func (m *MealsModel) SortActiveColumn(desc bool) {
	m.sortKey = m.columns[m.activeColumn].key
	m.sortDesc = desc
	m.rebuild()
}

func (m *MealsModel) HideActiveColumn() bool {
	if len(m.visibleColumnIndexes()) <= 1 {
		return false
	}
	m.columns[m.activeColumn].hidden = true
	m.ensureVisibleActiveColumn()
	return true
}

func (m *MealsModel) ShowAllColumns() {
	for i := range m.columns {
		m.columns[i].hidden = false
	}
}

func (m *MealsModel) FilterBySelectedValue() bool {
	if len(m.rows) == 0 {
		return false
	}
	key := m.columns[m.activeColumn].key
	value := strings.TrimSpace(m.getValue(m.rows[m.cursor], key))
	if value == "" {
		return false
	}
	m.filterKey = key
	m.filterValue = value
	m.rebuild()
	return true
}

func (m *MealsModel) ClearFilter() bool {
	if m.filterKey == "" {
		return false
	}
	m.filterKey = ""
	m.filterValue = ""
	m.rebuild()
	return true
}

func (m *MealsModel) TableMeta() string {
	col := strings.ToUpper(m.columns[m.activeColumn].label)
	parts := []string{fmt.Sprintf("col %s", col)}
	if m.sortKey != "" {
		order := "asc"
		if m.sortDesc {
			order = "desc"
		}
		parts = append(parts, fmt.Sprintf("sort %s %s", strings.ToUpper(m.sortKey), order))
	}
	if m.filterKey != "" {
		parts = append(parts, fmt.Sprintf("filter %s=%q", strings.ToUpper(m.filterKey), m.filterValue))
	}
	return strings.Join(parts, "  ·  ")
}

func (m *MealsModel) visibleColumnIndexes() []int {
	var idxs []int
	for i, c := range m.columns {
		if !c.hidden {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func (m *MealsModel) ensureVisibleActiveColumn() {
	if !m.columns[m.activeColumn].hidden {
		return
	}
	for i := range m.columns {
		if !m.columns[i].hidden {
			m.activeColumn = i
			return
		}
	}
	m.columns[0].hidden = false
	m.activeColumn = 0
}

// dashboard is what the meal list shows above its table.
type dashboard struct {
	today    model.DailyGrade
	insights []insights.Insight
	history  insights.History
}

// View renders the meal list under today's summary.
func (m *MealsModel) View(d dashboard, width, height int) string {
	summary := renderDailySummary(d.today)
	if tips := renderInsights(d.insights, width); tips != "" {
		summary = lipgloss.JoinVertical(lipgloss.Left, summary, tips)
	}
	if week := renderHistory(d.history); week != "" {
		summary = lipgloss.JoinVertical(lipgloss.Left, summary, week)
	}
	height -= lipgloss.Height(summary) + 1

	if len(m.rows) == 0 {
		emptyMsg := `    No meals yet.
    Press  a  to log your first meal.`
		if len(m.allRows) > 0 {
			emptyMsg = "    No meals match the filter. Press  N  to clear it."
		}
		return lipgloss.JoinVertical(lipgloss.Left, summary, "",
			EmptyStateStyle.Width(width).Height(height).Render(emptyMsg))
	}

	visible := m.visibleColumnIndexes()
	widths := make([]int, 0, len(visible))
	headers := make([]string, 0, len(visible))
	totalFixed := 0
	for _, idx := range visible {
		col := m.columns[idx]
		label := strings.ToUpper(col.label)
		if idx == m.activeColumn {
			label = "❋ " + label
		}
		if m.sortKey == col.key {
			if m.sortDesc {
				label += " ↓"
			} else {
				label += " ↑"
			}
		}
		cellWidth := max(col.width, lipgloss.Width(label)+2)
		totalFixed += cellWidth
		widths = append(widths, cellWidth)
		headers = append(headers, label)
	}

	if extra := width - totalFixed - 4; extra > 0 && len(widths) > 0 {
		widths[len(widths)-1] += extra
	}

	header := renderTableRow(headers, widths, TableHeaderStyle)

	m.page = max(1, height-3)
	m.clampCursor()
	now := m.now()

	var rows []string
	for i := m.offset; i < len(m.rows) && i < m.offset+m.page; i++ {
		row := m.rows[i]
		pending := row.ID == 0
		style := NormalRowStyle
		if i%2 == 1 {
			style = style.Background(ColorStripe)
		}
		if pending {
			style = PendingRowStyle
		}
		if i == m.cursor {
			style = SelectedRowStyle
		}

		cells := make([]string, 0, len(visible))
		for _, idx := range visible {
			col := m.columns[idx]
			switch col.key {
			case "time":
				when := util.FormatMealTime(row.MealDate, now)
				if pending {
					when = "saving…"
				}
				cells = append(cells, when)
			case "grade":
				cells = append(cells, renderGrade(row.MealGrade, row.OriginalGrade))
			case "name":
				cells = append(cells, util.TruncateString(row.MealName, col.width-2))
			case "calories":
				cells = append(cells, util.FormatCalories(row.Calories))
			case "protein":
				cells = append(cells, util.FormatAmount(row.Protein, "g"))
			case "carbs":
				cells = append(cells, util.FormatAmount(row.Carbs, "g"))
			case "fat":
				cells = append(cells, util.FormatAmount(row.Fat, "g"))
			case "tip":
				tip := HelpDescStyle.Render("–")
				if row.TipFollowed {
					tip = lipgloss.NewStyle().Foreground(ColorGreen).Render("✓")
				}
				cells = append(cells, tip)
			}
		}

		rows = append(rows, renderTableRow(cells, widths, style))
	}

	filterInfo := ""
	if m.filterKey != "" {
		filterInfo = fmt.Sprintf("  ·  filtered: %d/%d", len(m.rows), len(m.allRows))
	}
	status := StatusBarStyle.Render(fmt.Sprintf("Total: %s%s  ·  %s",
		util.FormatCount(len(m.rows), "meal"), filterInfo, m.TableMeta()))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		summary,
		"",
		header,
		strings.Join(rows, "\n"),
		"",
		status,
	)
}

func renderGrade(current, original grade.Letter) string {
	if current == "" {
		return HelpDescStyle.Render("?")
	}
	out := GradeStyle(current).Render(string(current))
	if original != "" && original != current {
		out += HelpDescStyle.Render(" ←" + string(original))
	}
	return out
}

func renderDailySummary(d model.DailyGrade) string {
	title := LabelStyle.Render("Today")
	if d.MealCount == 0 {
		return title + "  " + HelpDescStyle.Render("nothing logged yet")
	}
	letters := make([]string, 0, len(d.Grades))
	for _, g := range d.Grades {
		letters = append(letters, GradeStyle(g).Render(string(g)))
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		title,
		GradeStyle(d.AverageGrade).Render(string(d.AverageGrade)),
		HelpDescStyle.Render(util.FormatCount(d.MealCount, "meal")),
		strings.Join(letters, " "),
	)
}

func renderInsights(list []insights.Insight, width int) string {
	if len(list) == 0 {
		return ""
	}
	lines := make([]string, 0, len(list))
	for _, in := range list {
		title := in.Title
		if in.Actionable {
			title = LabelStyle.Render(title)
		}
		line := fmt.Sprintf("%s %s  %s", in.Emoji, title, HelpDescStyle.Render(in.Description))
		lines = append(lines, lipgloss.NewStyle().MaxWidth(width).Render(line))
	}
	return strings.Join(lines, "\n")
}

func renderHistory(h insights.History) string {
	if len(h.Days) == 0 {
		return ""
	}
	days := make([]string, 0, len(h.Days))
	for _, d := range h.Days {
		days = append(days, HelpDescStyle.Render(d.Weekday)+" "+GradeStyle(d.Grade).Render(string(d.Grade)))
	}
	return LabelStyle.Render("Past week") + "  " + strings.Join(days, "  ")
}

// MoveDown moves the cursor down.
func (m *MealsModel) MoveDown() {
	if m.cursor < len(m.rows)-1 {
		m.cursor++
		m.clampCursor()
	}
}

// MoveUp moves the cursor up.
func (m *MealsModel) MoveUp() {
	if m.cursor > 0 {
		m.cursor--
		m.clampCursor()
	}
}

// JumpToTop jumps to the first item.
func (m *MealsModel) JumpToTop() {
	m.cursor = 0
	m.offset = 0
}

// JumpToBottom jumps to the last item.
func (m *MealsModel) JumpToBottom() {
	if len(m.rows) > 0 {
		m.cursor = len(m.rows) - 1
		m.clampCursor()
	}
}

// HalfPageDown moves down half a page.
func (m *MealsModel) HalfPageDown() {
	m.cursor = min(m.cursor+max(1, m.page/2), len(m.rows)-1)
	m.clampCursor()
}

// HalfPageUp moves up half a page.
func (m *MealsModel) HalfPageUp() {
	m.cursor -= max(1, m.page/2)
	m.clampCursor()
}

func renderTableRow(cells []string, widths []int, style lipgloss.Style) string {
	var parts []string
	for i, cell := range cells {
		if i >= len(widths) {
			continue
		}
		parts = append(parts, style.Width(widths[i]).Render(cell))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}
