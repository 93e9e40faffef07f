package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GITHUB_USERNAME", "octocat")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "manual", cfg.AutomationLevel)
	assert.Equal(t, 5, cfg.MaxConcurrentAnalyses)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 60*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, "claude-sonnet-4-5", cfg.AnthropicModel)
	assert.Equal(t, ":8090", cfg.MgmtListenAddr)
	assert.Equal(t, time.Duration(0), cfg.WatchInterval)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing username",
			mutate:  func(c *Config) { c.GitHubUsername = "" },
			wantErr: "GITHUB_USERNAME",
		},
		{
			name:    "no auth",
			mutate:  func(c *Config) { c.GitHubToken = "" },
			wantErr: "GITHUB_TOKEN",
		},
		{
			name:    "bad automation level",
			mutate:  func(c *Config) { c.AutomationLevel = "yolo" },
			wantErr: "AUTOMATION_LEVEL",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.MaxConcurrentAnalyses = 0 },
			wantErr: "MAX_CONCURRENT_ANALYSES",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				GitHubUsername:        "octocat",
				GitHubToken:           "ghp_test",
				AutomationLevel:       "manual",
				MaxConcurrentAnalyses: 5,
				RetryMaxAttempts:      3,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGitHubAppEnabled(t *testing.T) {
	cfg := &Config{GitHubAppID: 1234, GitHubInstallationID: 5678, GitHubPrivateKeyPath: "/tmp/key.pem"}
	assert.True(t, cfg.GitHubAppEnabled())

	cfg.GitHubPrivateKeyPath = ""
	assert.False(t, cfg.GitHubAppEnabled())
}

func TestAutomation(t *testing.T) {
	cfg := &Config{AutomationLevel: "Auto"}
	assert.Equal(t, models.AutomationAuto, cfg.Automation())
}

func TestLoadPreferences_MissingFile(t *testing.T) {
	prefs, err := LoadPreferences(filepath.Join(t.TempDir(), "nope.yaml"), "octocat")
	require.NoError(t, err)
	assert.Equal(t, "octocat", prefs.UserID)
	assert.Equal(t, models.AutomationManual, prefs.AutomationLevel)
}

func TestLoadPreferences_EmptyPath(t *testing.T) {
	prefs, err := LoadPreferences("", "octocat")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPreferences("octocat"), prefs)
}

func TestLoadPreferences_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	content := `automation_level: auto
preferred_labels: [maintenance, automated]
excluded_repos: [octocat/archive]
focus_areas: [testing, documentation]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	prefs, err := LoadPreferences(path, "octocat")
	require.NoError(t, err)
	assert.Equal(t, "octocat", prefs.UserID)
	assert.Equal(t, models.AutomationAuto, prefs.AutomationLevel)
	assert.Equal(t, []string{"maintenance", "automated"}, prefs.PreferredLabels)
	assert.True(t, prefs.IsExcluded("octocat/archive"))
	assert.False(t, prefs.IsExcluded("octocat/widget"))
}

func TestLoadPreferences_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("automation_level: [not, a, string"), 0o600))

	_, err := LoadPreferences(path, "octocat")
	require.Error(t, err)
}

func TestLoadPreferences_InvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("automation_level: sometimes\n"), 0o600))

	_, err := LoadPreferences(path, "octocat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automation_level")
}
