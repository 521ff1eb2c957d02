package cmd

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("nutrilog", flag.ContinueOnError)
}

func keyMsg(k string) tea.KeyMsg {
	if k == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestParseServeSkipsKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NUTRILOG_HOME", home)
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := parse(newFlagSet(), []string{"-serve", ":9000"}, "test")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ServeAddr)
	assert.Equal(t, filepath.Join(home, "nutrilog.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(home, "ui_prefs.json"), cfg.PrefsPath)
	assert.Empty(t, cfg.OpenAIKey)
}

func TestParseEnvFallbacks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NUTRILOG_HOME", home)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("NUTRILOG_REMOTE", "http://localhost:8080")
	t.Setenv("NUTRILOG_MODEL", "gpt-4o")
	require.NoError(t, saveOnboardingSettings(home, OnboardingSettings{Completed: true}))

	cfg, err := parse(newFlagSet(), nil, "test")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.OpenAIKey)
	assert.Equal(t, "http://localhost:8080", cfg.RemoteURL)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.False(t, cfg.VoiceEnabled)
}

func TestParseFlagWinsOverEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NUTRILOG_HOME", home)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("NUTRILOG_MODEL", "gpt-4o")
	require.NoError(t, saveOnboardingSettings(home, OnboardingSettings{Completed: true}))

	cfg, err := parse(newFlagSet(), []string{"-openai-key", "sk-flag", "-model", "gpt-4o-mini"}, "test")
	require.NoError(t, err)
	assert.Equal(t, "sk-flag", cfg.OpenAIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestParseStoredKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NUTRILOG_HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	require.NoError(t, saveSecureAPIKey(home, "  sk-stored "))
	require.NoError(t, saveOnboardingSettings(home, OnboardingSettings{Completed: true, VoiceEnabled: true}))

	info, err := os.Stat(secureKeyPath(home))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := parse(newFlagSet(), nil, "test")
	require.NoError(t, err)
	assert.Equal(t, "sk-stored", cfg.OpenAIKey)
	assert.True(t, cfg.VoiceEnabled)
}

func TestParseMissingKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NUTRILOG_HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	require.NoError(t, saveOnboardingSettings(home, OnboardingSettings{Completed: true}))

	_, err := parse(newFlagSet(), nil, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestOnboardingFlow(t *testing.T) {
	m := newOnboardingModel("")
	assert.Equal(t, stepKey, m.step)

	next, _ := m.Update(keyMsg("enter"))
	m = next.(onboardingModel)
	assert.Equal(t, stepKey, m.step)
	assert.NotEmpty(t, m.status)

	m.keyInput.SetValue("sk-typed")
	next, _ = m.Update(keyMsg("enter"))
	m = next.(onboardingModel)
	assert.Equal(t, stepVoice, m.step)
	assert.Equal(t, "sk-typed", m.capturedKey)

	next, cmd := m.Update(keyMsg("n"))
	m = next.(onboardingModel)
	assert.NotNil(t, cmd)
	assert.Equal(t, stepDone, m.step)
	assert.Equal(t, OnboardingSettings{Completed: true, VoiceEnabled: false}, m.settings)
}

func TestOnboardingSkipsKeyWhenKnown(t *testing.T) {
	m := newOnboardingModel("sk-env")
	assert.Equal(t, stepVoice, m.step)
}
