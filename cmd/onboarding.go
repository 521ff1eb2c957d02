package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// OnboardingSettings records the answers from first-run setup.
type OnboardingSettings struct {
	Completed    bool `json:"completed"`
	VoiceEnabled bool `json:"voice_enabled"`
}

func onboardingPath(dataDir string) string {
	return filepath.Join(dataDir, "setup.json")
}

func loadOnboardingSettings(dataDir string) (OnboardingSettings, error) {
	data, err := os.ReadFile(onboardingPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return OnboardingSettings{}, nil
		}
		return OnboardingSettings{}, err
	}

	var settings OnboardingSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return OnboardingSettings{}, err
	}
	return settings, nil
}

func saveOnboardingSettings(dataDir string, settings OnboardingSettings) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(onboardingPath(dataDir), data, 0644)
}

func secureKeyPath(dataDir string) string {
	return filepath.Join(dataDir, "openai_api_key")
}

func saveSecureAPIKey(dataDir, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return err
	}
	// Owner read/write only.
	return os.WriteFile(secureKeyPath(dataDir), []byte(key+"\n"), 0600)
}

func loadSecureAPIKey(dataDir string) (string, error) {
	data, err := os.ReadFile(secureKeyPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func shouldRunOnboarding(settings OnboardingSettings) bool {
	if settings.Completed {
		return false
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

type onboardingStep int

const (
	stepKey onboardingStep = iota
	stepVoice
	stepDone
)

type onboardingModel struct {
	step        onboardingStep
	voice       bool
	keyInput    textinput.Model
	capturedKey string
	settings    OnboardingSettings
	status      string
	failed      bool
	width       int
	height      int
}

var (
	obColorMuted  = lipgloss.Color("#7E8C80")
	obColorText   = lipgloss.Color("#D6E0D3")
	obColorAccent = lipgloss.Color("#8FA082")
	obColorDanger = lipgloss.Color("#f38ba8")

	obTitleStyle = lipgloss.NewStyle().Foreground(obColorAccent).Bold(true)

	obHeaderStyle = lipgloss.NewStyle().
			Foreground(obColorAccent).
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(obColorMuted)

	obPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(obColorMuted).
			Padding(1, 2)

	obInputStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(obColorAccent).
			Padding(0, 1)

	obLabelStyle     = lipgloss.NewStyle().Foreground(obColorAccent).Bold(true)
	obMutedStyle     = lipgloss.NewStyle().Foreground(obColorMuted)
	obOptionStyle    = lipgloss.NewStyle().Foreground(obColorText)
	obOptionSelected = lipgloss.NewStyle().Foreground(obColorAccent).Bold(true)
	obWarnStyle      = lipgloss.NewStyle().Foreground(obColorDanger)

	obFooterStyle = lipgloss.NewStyle().
			Foreground(obColorMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(obColorMuted)
)

func newOnboardingModel(existingKey string) onboardingModel {
	in := textinput.New()
	in.Placeholder = "sk-..."
	in.CharLimit = 300
	in.Prompt = "key> "
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.TextStyle = lipgloss.NewStyle().Foreground(obColorText)
	in.PlaceholderStyle = lipgloss.NewStyle().Foreground(obColorMuted)
	in.Focus()

	m := onboardingModel{
		step:     stepKey,
		voice:    true,
		keyInput: in,
	}
	if strings.TrimSpace(existingKey) != "" {
		m.step = stepVoice
	}
	return m
}

func (m onboardingModel) Init() tea.Cmd { return textinput.Blink }

func (m onboardingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.failed = true
			m.status = "Setup canceled."
			m.step = stepDone
			return m, tea.Quit
		}
		switch m.step {
		case stepKey:
			switch msg.String() {
			case "enter":
				key := strings.TrimSpace(m.keyInput.Value())
				if key == "" {
					m.status = "A key is needed to analyze meals."
					return m, nil
				}
				m.capturedKey = key
				m.status = ""
				m.step = stepVoice
				return m, nil
			case "esc":
				m.failed = true
				m.status = "Skipped. Set OPENAI_API_KEY before the next run."
				m.step = stepDone
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.keyInput, cmd = m.keyInput.Update(msg)
			return m, cmd
		case stepVoice:
			switch msg.String() {
			case "y", "Y":
				m.voice = true
				return m.finish()
			case "n", "N":
				m.voice = false
				return m.finish()
			case "up", "k", "left", "h":
				m.voice = true
			case "down", "j", "right", "l":
				m.voice = false
			case "enter":
				return m.finish()
			}
			return m, nil
		}
	}
	return m, nil
}

func (m onboardingModel) finish() (tea.Model, tea.Cmd) {
	m.settings = OnboardingSettings{Completed: true, VoiceEnabled: m.voice}
	m.status = "Setup complete."
	m.step = stepDone
	return m, tea.Quit
}

func (m onboardingModel) View() string {
	width := m.width
	height := m.height
	if width <= 0 {
		width = 100
	}
	if height <= 0 {
		height = 28
	}

	header := m.renderHeader(width)
	footer := m.renderFooter(width)
	content := m.renderContent(width, max(8, height-4))
	ui := lipgloss.JoinVertical(lipgloss.Left, header, content, footer)

	return lipgloss.NewStyle().
		Foreground(obColorText).
		Width(width).
		Height(height).
		Render(ui)
}

func (m onboardingModel) renderHeader(width int) string {
	left := "  " + obTitleStyle.Render("nutrilog") + " " + obMutedStyle.Render("› Setup")
	right := obMutedStyle.Render(time.Now().Format("Mon 02 Jan")) + "  "
	padding := max(0, width-lipgloss.Width(left)-lipgloss.Width(right))
	return obHeaderStyle.Width(width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m onboardingModel) renderFooter(width int) string {
	switch m.step {
	case stepKey:
		return obFooterStyle.Width(width).Render("enter continue  esc skip  ctrl+c cancel")
	case stepVoice:
		return obFooterStyle.Width(width).Render("↑↓/jk choose  y/n enter confirm")
	default:
		return obFooterStyle.Width(width).Render(m.status)
	}
}

func (m onboardingModel) renderContent(width, height int) string {
	cardWidth := min(92, width-6)
	if cardWidth < 40 {
		cardWidth = width - 2
	}

	var body string
	switch m.step {
	case stepKey:
		input := obInputStyle.Width(max(30, cardWidth-14)).Render(m.keyInput.View())
		lines := []string{
			obLabelStyle.Render("OpenAI API key"),
			"",
			obMutedStyle.Render("Meals are analyzed by a language model. Create a key at"),
			obMutedStyle.Render("https://platform.openai.com/api-keys"),
			"",
			input,
			"",
			obMutedStyle.Render("The key is stored in " + secureKeyPath("~/.nutrilog") + " (mode 0600)."),
		}
		if m.status != "" {
			lines = append(lines, "", obWarnStyle.Render(m.status))
		}
		body = lipgloss.JoinVertical(lipgloss.Left, lines...)
	case stepVoice:
		on, off := "Transcribe recordings", "Text descriptions only"
		onDisplay := "    " + obOptionStyle.Render(on)
		offDisplay := "    " + obOptionStyle.Render(off)
		if m.voice {
			onDisplay = "  " + obOptionSelected.Render("→ "+on)
		} else {
			offDisplay = "  " + obOptionSelected.Render("→ "+off)
		}
		body = lipgloss.JoinVertical(
			lipgloss.Left,
			obLabelStyle.Render("Log meals from voice recordings?"),
			"",
			onDisplay,
			offDisplay,
			"",
			obMutedStyle.Render("Recordings are sent to the transcription API."),
			obMutedStyle.Render("You can change this later in ~/.nutrilog/setup.json"),
		)
	default:
		msg := obMutedStyle.Render(m.status)
		if m.failed {
			msg = obWarnStyle.Render(m.status)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, obLabelStyle.Render("Setup"), "", msg)
	}

	card := obPanelStyle.Width(cardWidth).Render(body)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Top, card)
}

func runOnboarding(dataDir string, existingKey string) (OnboardingSettings, error) {
	prog := tea.NewProgram(newOnboardingModel(existingKey), tea.WithAltScreen())
	finalModel, err := prog.Run()
	if err != nil {
		return OnboardingSettings{}, fmt.Errorf("onboarding tui failed: %w", err)
	}
	m, ok := finalModel.(onboardingModel)
	if !ok {
		return OnboardingSettings{}, fmt.Errorf("unexpected onboarding model type")
	}
	if m.failed {
		return OnboardingSettings{}, nil
	}
	if err := saveSecureAPIKey(dataDir, m.capturedKey); err != nil {
		return OnboardingSettings{}, err
	}
	if err := saveOnboardingSettings(dataDir, m.settings); err != nil {
		return OnboardingSettings{}, err
	}
	return m.settings, nil
}
