package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"nutrilog/internal/model"
)

// RenderHelp renders context-sensitive help footer.
func RenderHelp(screen model.Screen, mode model.Mode, keys KeyMap, formKeys FormKeyMap, width int) string {
	if mode == model.ModeInsert {
		return renderHelpLine(bindings(formKeys.Submit, formKeys.ToggleSource, formKeys.Cancel), width)
	}

	switch screen {
	case model.ScreenMeals:
		return renderHelpLine([]string{
			helpKey("j/k", "navigate"),
			helpKey("tab", "next col"),
			helpKey("s/S", "sort"),
			helpKey("n/N", "filter"),
			helpBinding(keys.Log),
			helpBinding(keys.FollowTip),
			helpBinding(keys.Delete),
			helpBinding(keys.Select),
			helpKey("u/ctrl+r", "undo/redo"),
		}, width)
	case model.ScreenMealDetail:
		return renderHelpLine(bindings(keys.Back, keys.FollowTip, keys.Delete, keys.Refresh), width)
	default:
		return renderHelpLine(bindings(keys.Up, keys.Down, keys.Quit), width)
	}
}

func bindings(bs ...key.Binding) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, helpBinding(b))
	}
	return out
}

func helpBinding(b key.Binding) string {
	h := b.Help()
	return helpKey(h.Key, h.Desc)
}

func helpKey(key, desc string) string {
	return HelpKeyStyle.Render(key) + " " + HelpDescStyle.Render(desc)
}

func renderHelpLine(keys []string, width int) string {
	line := strings.Join(keys, "  ")
	return FooterStyle.Width(width).Render(line)
}

// RenderFullHelp renders the full help screen.
func RenderFullHelp(width, height int) string {
	content := lipgloss.NewStyle().
		Width(width-4).
		Height(height-6).
		Padding(1, 2)

	sections := []string{
		titleSection("Navigation"),
		helpSection([]helpItem{
			{"j / ↓", "Move down"},
			{"k / ↑", "Move up"},
			{"h / ← / b", "Go back"},
			{"l / → / enter", "Open meal"},
			{"tab / shift+tab", "Cycle active column"},
			{"/ then 1-9", "Jump to column"},
			{"s / S", "Sort active column asc/desc"},
			{"c / C", "Hide active column / show all"},
			{"n / N", "Filter by selected value / clear"},
			{"gg", "Jump to top"},
			{"G", "Jump to bottom"},
			{"ctrl+d", "Half page down"},
			{"ctrl+u", "Half page up"},
			{"esc", "Cancel / close"},
			{"q", "Quit (from top-level)"},
			{"?", "Toggle help"},
		}),
		titleSection("Meals"),
		helpSection([]helpItem{
			{"a", "Log a meal"},
			{"t", "I followed the tip (raises the grade one letter)"},
			{"d", "Delete meal"},
			{"u / ctrl+r", "Undo / redo"},
			{"r", "Refresh"},
			{"R", "Reconnect live updates"},
		}),
		titleSection("Log Meal"),
		helpSection([]helpItem{
			{"enter", "Analyze and save"},
			{"tab", "Switch between description and recording file"},
			{"esc", "Cancel"},
		}),
	}

	helpText := content.Render(strings.Join(sections, "\n\n"))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		TitleStyle.Width(width).Render("Help"),
		helpText,
		FooterStyle.Width(width).Render(HelpKeyStyle.Render("esc")+" "+HelpDescStyle.Render("close help")),
	)
}

type helpItem struct {
	key  string
	desc string
}

func titleSection(title string) string {
	return LabelStyle.Render(title)
}

func helpSection(items []helpItem) string {
	var lines []string
	for _, item := range items {
		lines = append(lines, "  "+HelpKeyStyle.Render(item.key)+" - "+HelpDescStyle.Render(item.desc))
	}
	return strings.Join(lines, "\n")
}
