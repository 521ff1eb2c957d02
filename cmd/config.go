package cmd

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds CLI configuration.
type Config struct {
	DataDir   string
	DBPath    string
	PrefsPath string
	LogPath   string

	// ServeAddr runs the store server instead of the terminal UI.
	ServeAddr string
	// RemoteURL points the terminal UI at a running store server.
	RemoteURL string

	OpenAIKey    string
	Model        string
	VoiceEnabled bool
	ShowVersion  bool
}

// ParseFlags parses command-line flags and returns configuration.
func ParseFlags(version string) (*Config, error) {
	return parse(flag.CommandLine, os.Args[1:], version)
}

func parse(fs *flag.FlagSet, args []string, version string) (*Config, error) {
	// Load .env files first so env-based defaults work with flag parsing.
	// Existing environment variables win.
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	config := &Config{}
	fs.StringVar(&config.DBPath, "db", envOr("NUTRILOG_DB", ""), "Path to SQLite database file (default: ~/.nutrilog/nutrilog.db)")
	fs.StringVar(&config.ServeAddr, "serve", envOr("NUTRILOG_SERVE", ""), "Run the store server on this address, e.g. :8080")
	fs.StringVar(&config.RemoteURL, "remote", envOr("NUTRILOG_REMOTE", ""), "Use the store server at this URL instead of a local database")
	fs.StringVar(&config.OpenAIKey, "openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	fs.StringVar(&config.Model, "model", envOr("NUTRILOG_MODEL", ""), "Chat model used for meal analysis")
	fs.StringVar(&config.LogPath, "log", envOr("NUTRILOG_LOG", ""), "Log file for the terminal UI (default: ~/.nutrilog/nutrilog.log)")
	fs.BoolVar(&config.ShowVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if config.ShowVersion {
		fmt.Println("nutrilog", version)
		return config, nil
	}

	if config.OpenAIKey == "" {
		config.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}

	dataDir := os.Getenv("NUTRILOG_HOME")
	if dataDir == "" {
		if config.DBPath != "" {
			dataDir = filepath.Dir(config.DBPath)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".nutrilog")
		}
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	config.DataDir = dataDir
	if config.DBPath == "" {
		config.DBPath = filepath.Join(dataDir, "nutrilog.db")
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(dataDir, "nutrilog.log")
	}
	config.PrefsPath = filepath.Join(dataDir, "ui_prefs.json")

	// The server never analyzes meals, so it needs no key or setup.
	if config.ServeAddr != "" {
		return config, nil
	}

	settings, err := loadOnboardingSettings(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load onboarding settings: %w", err)
	}
	if shouldRunOnboarding(settings) {
		settings, err = runOnboarding(dataDir, config.OpenAIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to run onboarding: %w", err)
		}
	}
	config.VoiceEnabled = settings.VoiceEnabled || !settings.Completed

	if config.OpenAIKey == "" {
		key, err := loadSecureAPIKey(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored API key: %w", err)
		}
		config.OpenAIKey = strings.TrimSpace(key)
	}
	if config.OpenAIKey == "" {
		return nil, fmt.Errorf("no OpenAI API key: pass -openai-key, set OPENAI_API_KEY or rerun setup by deleting %s", onboardingPath(dataDir))
	}
	return config, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
