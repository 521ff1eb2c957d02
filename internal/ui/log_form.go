package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nutrilog/internal/model"
)

type logSource int

const (
	sourceText logSource = iota
	sourceRecording
)

// logSubmitMsg asks the root model to analyze and save a meal.
type logSubmitMsg struct {
	text      string
	audioPath string
}

// LogFormModel is the meal entry form: a description, or the path of a
// recording to transcribe.
type LogFormModel struct {
	keys    FormKeyMap
	source  logSource
	inputs  [2]textinput.Model
	spinner spinner.Model
	saving  bool
	error   string
}

// NewLogFormModel creates an empty form focused on the description.
func NewLogFormModel(keys FormKeyMap) *LogFormModel {
	text := textinput.New()
	text.Placeholder = "e.g. 2 eggs, a slice of sourdough and a flat white"
	text.CharLimit = 500
	text.Focus()

	audio := textinput.New()
	audio.Placeholder = "path to a recording (.m4a, .mp3, .wav)"
	audio.CharLimit = 1024

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &LogFormModel{
		keys:    keys,
		inputs:  [2]textinput.Model{text, audio},
		spinner: sp,
	}
}

// Update handles input.
func (m LogFormModel) Update(msg tea.Msg) (LogFormModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.saving {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			return m, func() tea.Msg { return model.FormCancelledMsg{} }
		case m.saving:
			return m, nil
		case key.Matches(msg, m.keys.ToggleSource):
			m.inputs[m.source].Blur()
			m.source = (m.source + 1) % 2
			m.inputs[m.source].Focus()
			m.error = ""
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			return m.submit()
		}
		var cmd tea.Cmd
		m.inputs[m.source], cmd = m.inputs[m.source].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m LogFormModel) submit() (LogFormModel, tea.Cmd) {
	value := strings.TrimSpace(m.inputs[m.source].Value())
	if value == "" {
		if m.source == sourceText {
			m.error = "Describe what you ate first"
		} else {
			m.error = "Enter the path of a recording"
		}
		return m, nil
	}
	req := logSubmitMsg{text: value}
	if m.source == sourceRecording {
		req = logSubmitMsg{audioPath: value}
	}
	return m, func() tea.Msg { return req }
}

// startSaving shows the spinner until finishSaving is called.
func (m *LogFormModel) startSaving() tea.Cmd {
	m.saving = true
	m.error = ""
	return m.spinner.Tick
}

func (m *LogFormModel) finishSaving(errText string) {
	m.saving = false
	m.error = errText
}

// View renders the form.
func (m *LogFormModel) View(width, height int) string {
	var fields []string
	fields = append(fields, renderFormField("What did you eat?", m.inputs[sourceText], m.source == sourceText))
	fields = append(fields, renderFormField("…or a recording", m.inputs[sourceRecording], m.source == sourceRecording))

	if m.saving {
		label := " Analyzing your meal…"
		if m.source == sourceRecording {
			label = " Transcribing and analyzing…"
		}
		fields = append(fields, HelpDescStyle.Render(m.spinner.View()+label))
	}
	if m.error != "" {
		fields = append(fields, ErrorStyle.Render(m.error))
	}

	return PanelStyle.
		Width(width - 4).
		Height(max(0, height-4)).
		Render(strings.Join(fields, "\n\n"))
}

func renderFormField(label string, input textinput.Model, focused bool) string {
	labelStyle := HelpDescStyle
	if focused {
		labelStyle = LabelStyle
	}
	return lipgloss.JoinVertical(lipgloss.Left, labelStyle.Render(label), InputStyle.Render(input.View()))
}
