package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".discord-archiver"

const (
	defaultRequestInterval = 250 * time.Millisecond
	defaultMaxRetries      = 4
)

//go:embed config/settings.yaml
var defaultSettings string

// ConfigOverrides holds command line values that replace settings
type ConfigOverrides struct {
	SettingsPath    *string
	ThemesDirectory *string
	OutputDirectory *string
	Bot             *bool
	Markdown        *bool
}

// HistorySettings tunes history retrieval
type HistorySettings struct {
	PageSize        int           `yaml:"page_size"`
	ProgressEvery   int           `yaml:"progress_every"`
	RequestInterval time.Duration `yaml:"request_interval"`
	MaxRetries      int           `yaml:"max_retries"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	ThemesDirectory string          `yaml:"themes_directory"`
	OutputDirectory string          `yaml:"output_directory"`
	APIBaseURL      string          `yaml:"api_base_url"`
	GatewayURL      string          `yaml:"gateway_url"`
	BotToken        bool            `yaml:"bot_token"`
	ExportMarkdown  bool            `yaml:"export_markdown"`
	History         HistorySettings `yaml:"history"`
}

// Config holds the effective settings after overrides and environment
type Config struct {
	Settings *Settings
	// Traceback enables full error chains and panic stacks in reports
	Traceback bool
}

// NewConfig loads settings and applies overrides. Without an explicit
// settings path the default file is created on first run.
func NewConfig(overrides *ConfigOverrides, log zerolog.Logger) (*Config, error) {
	var settings *Settings
	var err error
	if overrides != nil && overrides.SettingsPath != nil {
		// Explicit settings file must exist
		settings, err = loadSettings(*overrides.SettingsPath, log)
	} else {
		if err := ensureConfigExists(); err != nil {
			return nil, fmt.Errorf("ensuring config files exist: %w", err)
		}
		settings, err = loadSettings(getConfigPath("settings.yaml"), log)
	}
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		if overrides.ThemesDirectory != nil {
			settings.ThemesDirectory = *overrides.ThemesDirectory
		}
		if overrides.OutputDirectory != nil {
			settings.OutputDirectory = *overrides.OutputDirectory
		}
		if overrides.Bot != nil {
			settings.BotToken = *overrides.Bot
		}
		if overrides.Markdown != nil {
			settings.ExportMarkdown = *overrides.Markdown
		}
	}

	return &Config{
		Settings:  settings,
		Traceback: envEnabled(os.Getenv("DUMPER_TRACEBACK")),
	}, nil
}

// ThemesRoot resolves the themes directory. A relative path that does not
// exist in the working directory is looked up next to the executable.
func (c *Config) ThemesRoot() string {
	dir := c.Settings.ThemesDirectory
	if filepath.IsAbs(dir) {
		return dir
	}
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return dir
	}
	return filepath.Join(filepath.Dir(exe), dir)
}

// CoordinatorOptions derives the connection options from settings
func (c *Config) CoordinatorOptions() CoordinatorOptions {
	s := c.Settings
	return CoordinatorOptions{
		GatewayURL: s.GatewayURL,
		REST: RESTOptions{
			BaseURL:         s.APIBaseURL,
			Bot:             s.BotToken,
			PageSize:        s.History.PageSize,
			RequestInterval: s.History.RequestInterval,
			MaxRetries:      s.History.MaxRetries,
		},
	}
}

func envEnabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func loadSettings(path string, log zerolog.Logger) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	settings := defaultSettingsValues()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}
	settings.validate(log)
	return settings, nil
}

func defaultSettingsValues() *Settings {
	return &Settings{
		ThemesDirectory: "themes",
		OutputDirectory: ".",
		APIBaseURL:      defaultAPIBaseURL,
		GatewayURL:      defaultGatewayURL,
		History: HistorySettings{
			PageSize:        maxPageSize,
			ProgressEvery:   defaultProgressEvery,
			RequestInterval: defaultRequestInterval,
			MaxRetries:      defaultMaxRetries,
		},
	}
}

// validate clamps out of range values to their defaults
func (s *Settings) validate(log zerolog.Logger) {
	h := &s.History
	if h.PageSize < 1 || h.PageSize > maxPageSize {
		log.Warn().Int("page_size", h.PageSize).Msgf("history.page_size out of range, defaulting to %d", maxPageSize)
		h.PageSize = maxPageSize
	}
	if h.ProgressEvery < 1 {
		log.Warn().Int("progress_every", h.ProgressEvery).Msgf("history.progress_every must be positive, defaulting to %d", defaultProgressEvery)
		h.ProgressEvery = defaultProgressEvery
	}
	if h.RequestInterval < 0 {
		log.Warn().Dur("request_interval", h.RequestInterval).Msgf("history.request_interval is negative, defaulting to %s", defaultRequestInterval)
		h.RequestInterval = defaultRequestInterval
	}
	if h.MaxRetries < 0 {
		log.Warn().Int("max_retries", h.MaxRetries).Msgf("history.max_retries is negative, defaulting to %d", defaultMaxRetries)
		h.MaxRetries = defaultMaxRetries
	}
	if s.ThemesDirectory == "" {
		s.ThemesDirectory = "themes"
	}
	if s.OutputDirectory == "" {
		s.OutputDirectory = "."
	}
}

// getConfigPath returns the path to a config file in the config directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and default settings if they don't exist
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("failed to write default settings: %w", err)
		}
	}
	return nil
}
