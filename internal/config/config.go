package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Target GitHub account whose repositories are analyzed
	GitHubUsername string `envconfig:"GITHUB_USERNAME"`

	// GitHub auth — either a PAT or a GitHub App private key
	GitHubToken          string `envconfig:"GITHUB_TOKEN"`
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH"`

	// Suggestion generator (optional — falls back to rule-based assessment)
	AnthropicAPIKey    string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel     string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`
	GeneratorMaxTokens int    `envconfig:"GENERATOR_MAX_TOKENS" default:"4096"`

	// Workflow
	AutomationLevel       string        `envconfig:"AUTOMATION_LEVEL" default:"manual"` // auto | manual | ask
	MaxConcurrentAnalyses int           `envconfig:"MAX_CONCURRENT_ANALYSES" default:"5"`
	RepoLimit             int           `envconfig:"REPO_LIMIT" default:"0"`     // 0 = no cap
	WatchInterval         time.Duration `envconfig:"WATCH_INTERVAL" default:"0"` // 0 = run once

	// Retry
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"60s"`

	// Storage
	DatabasePath    string `envconfig:"DATABASE_PATH" default:"maintainer.db"`
	PreferencesPath string `envconfig:"PREFERENCES_PATH"`

	// Slack run summary (optional)
	SlackBotToken       string `envconfig:"MAINTAINER_SLACK_BOT_TOKEN"`
	SlackSummaryChannel string `envconfig:"MAINTAINER_SLACK_CHANNEL"`

	// Management API (watch mode)
	MgmtListenAddr string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
}

// GitHubAppEnabled returns true if GitHub App credentials are configured.
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID > 0 && c.GitHubInstallationID > 0 && c.GitHubPrivateKeyPath != ""
}

// GeneratorEnabled returns true if the suggestion generator is configured.
func (c *Config) GeneratorEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// SlackEnabled returns true if the run-summary channel is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackSummaryChannel != ""
}

// Validate checks that the configuration is sufficient to run a session.
func (c *Config) Validate() error {
	if c.GitHubUsername == "" {
		return fmt.Errorf("GITHUB_USERNAME is required")
	}
	if c.GitHubToken == "" && !c.GitHubAppEnabled() {
		return fmt.Errorf("either GITHUB_TOKEN or GitHub App credentials (GITHUB_APP_ID, GITHUB_INSTALLATION_ID, GITHUB_PRIVATE_KEY_PATH) are required")
	}
	if !models.AutomationLevel(strings.ToLower(c.AutomationLevel)).Valid() {
		return fmt.Errorf("invalid AUTOMATION_LEVEL %q, expected auto, manual or ask", c.AutomationLevel)
	}
	if c.MaxConcurrentAnalyses < 1 {
		return fmt.Errorf("MAX_CONCURRENT_ANALYSES must be at least 1")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Automation returns the parsed automation level.
func (c *Config) Automation() models.AutomationLevel {
	return models.AutomationLevel(strings.ToLower(c.AutomationLevel))
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadPreferences reads user preferences from a YAML file. A missing path or
// file yields defaults for the user; a present but malformed file is an error.
func LoadPreferences(path, userID string) (*models.UserPreferences, error) {
	if path == "" {
		return models.DefaultPreferences(userID), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.DefaultPreferences(userID), nil
		}
		return nil, fmt.Errorf("reading preferences %s: %w", path, err)
	}
	prefs := models.DefaultPreferences(userID)
	if err := yaml.Unmarshal(data, prefs); err != nil {
		return nil, fmt.Errorf("parsing preferences %s: %w", path, err)
	}
	if prefs.UserID == "" {
		prefs.UserID = userID
	}
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preferences %s: %w", path, err)
	}
	return prefs, nil
}
