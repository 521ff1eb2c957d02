package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
	"nutrilog/internal/util"
)

// MealDetailModel represents the meal detail screen.
type MealDetailModel struct {
	meal        model.MealRecord
	ingredients []model.Ingredient
	nutrition   *model.MealNutrition
}

// NewMealDetailModel creates a new meal detail model.
func NewMealDetailModel(msg model.MealDetailLoadedMsg) *MealDetailModel {
	return &MealDetailModel{
		meal:        msg.Meal,
		ingredients: msg.Ingredients,
		nutrition:   msg.Nutrition,
	}
}

// View renders the meal detail.
func (m *MealDetailModel) View(width, height int, now time.Time) string {
	var sections []string

	var fields []string
	fields = append(fields, renderField("Meal", m.meal.MealName))
	fields = append(fields, renderField("Described as", m.meal.MealDescription))
	eaten := m.meal.MealDate.Local()
	fields = append(fields, renderField("Eaten", util.FormatDateHuman(eaten.Format(model.DateLayout), now)+" "+eaten.Format("15:04")))

	gradeValue := renderGrade(m.meal.MealGrade, m.meal.OriginalGrade)
	if m.meal.TipFollowed {
		gradeValue += "  " + lipgloss.NewStyle().Foreground(ColorGreen).Render("✓ tip followed")
	} else if m.meal.MealGrade != grade.A && m.meal.MealGrade != "" {
		gradeValue += "  " + HelpDescStyle.Render("t: followed the tip → "+string(m.meal.MealGrade.Upgrade()))
	}
	fields = append(fields, LabelStyle.Render("Grade:")+" "+gradeValue)
	sections = append(sections, strings.Join(fields, "\n"))

	if m.meal.Comment != "" {
		sections = append(sections, LabelStyle.Render("Tip:")+"\n"+NormalRowStyle.Render(m.meal.Comment))
	}

	divider := lipgloss.NewStyle().
		Foreground(ColorMuted).
		Render(strings.Repeat("─", max(0, width-8)))
	sections = append(sections, divider)

	if len(m.ingredients) > 0 {
		lines := []string{LabelStyle.Render("Dishes:")}
		for _, in := range m.ingredients {
			label := (model.Dish{Name: in.Name, Quantity: in.Quantity, Unit: in.Unit}).Label()
			line := fmt.Sprintf("  %s %s  %s", in.Emoji, label, HelpDescStyle.Render(util.FormatCalories(in.Calories)))
			if in.IsEstimated {
				line += HelpDescStyle.Render("  (estimated)")
			}
			lines = append(lines, line)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	} else {
		sections = append(sections, HelpDescStyle.Render("No dish breakdown for this meal"))
	}

	sections = append(sections, m.renderNutrition())

	content := PanelStyle.
		Width(width - 4).
		Render(strings.Join(sections, "\n\n"))

	header := lipgloss.NewStyle().
		Width(width - 4).
		Align(lipgloss.Right).
		Render(HelpDescStyle.Render("t tip  d delete  h back"))

	return lipgloss.JoinVertical(lipgloss.Left, header, content)
}

func (m *MealDetailModel) renderNutrition() string {
	t := model.NutritionTotals{
		Calories:      m.meal.Calories,
		ProteinG:      m.meal.Protein,
		FatG:          m.meal.Fat,
		CarbohydrateG: m.meal.Carbs,
		FiberG:        m.meal.Fiber,
		SugarG:        m.meal.Sugar,
		SodiumMg:      m.meal.Sodium,
	}
	if m.nutrition != nil {
		t = m.nutrition.NutritionTotals
	}
	cells := []string{
		renderField("Energy", util.FormatCalories(t.Calories)),
		renderField("Protein", util.FormatAmount(t.ProteinG, "g")),
		renderField("Carbs", util.FormatAmount(t.CarbohydrateG, "g")),
		renderField("Fat", util.FormatAmount(t.FatG, "g")),
		renderField("Fiber", util.FormatAmount(t.FiberG, "g")),
		renderField("Sugar", util.FormatAmount(t.SugarG, "g")),
		renderField("Sodium", util.FormatAmount(t.SodiumMg, "mg")),
	}
	return LabelStyle.Render("Nutrition:") + "\n  " + strings.Join(cells, "\n  ")
}

func renderField(label, value string) string {
	if value == "" {
		value = "—"
	}
	return LabelStyle.Render(label+":") + " " + NormalRowStyle.Render(value)
}

// mealAge is used in the detail breadcrumb.
func mealAge(m model.MealRecord, now time.Time) string {
	return util.FormatMealTime(m.MealDate, now)
}
