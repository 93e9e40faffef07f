package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

var fixedNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func healthyOverview(fullName string) *models.RepositoryOverview {
	return &models.RepositoryOverview{
		Repository: models.Repository{
			Name: "widget", FullName: fullName, Owner: "octocat",
			URL: "u", Visibility: "public",
		},
		ReadmeContent:   strings.Repeat("# Widget docs\n", 110),
		FileStructure:   []string{"README.md", ".github", "tests", "CONTRIBUTING.md", "main.go"},
		Languages:       map[string]int{"Go": 10000, "Makefile": 100},
		HasCIConfig:     true,
		HasTests:        true,
		HasContributing: true,
	}
}

func TestRuleBasedHealth_ActiveWellMaintained(t *testing.T) {
	overview := healthyOverview("octocat/widget")
	history := &models.RepositoryHistory{
		LastCommitDate:    fixedNow.Add(-5 * 24 * time.Hour),
		CommitCount:       200,
		ContributorsCount: 12,
	}

	health := RuleBasedHealth(fixedNow, overview, history)
	require.NoError(t, health.Validate())

	assert.Equal(t, models.ActivityActive, health.ActivityLevel)
	assert.Equal(t, models.CoverageGood, health.TestCoverage)
	assert.Equal(t, models.DocsExcellent, health.DocQuality)
	assert.Equal(t, models.CIConfigured, health.CIStatus)
	assert.Equal(t, models.DepsUnknown, health.DependencyStatus)
	// 1.0*.30 + 1.0*.25 + 1.0*.20 + 1.0*.15 + 1.0*.10
	assert.InDelta(t, 1.0, health.OverallHealthScore, 0.001)
	assert.Empty(t, health.Issues)
}

func TestRuleBasedHealth_Abandoned(t *testing.T) {
	overview := &models.RepositoryOverview{
		Repository: models.Repository{
			Name: "attic", FullName: "octocat/attic", Owner: "octocat",
			URL: "u", Visibility: "public",
		},
	}
	history := &models.RepositoryHistory{
		LastCommitDate:    fixedNow.Add(-400 * 24 * time.Hour),
		ContributorsCount: 1,
	}

	health := RuleBasedHealth(fixedNow, overview, history)
	require.NoError(t, health.Validate())

	assert.Equal(t, models.ActivityAbandoned, health.ActivityLevel)
	assert.Equal(t, models.CoverageNone, health.TestCoverage)
	assert.Equal(t, models.DocsPoor, health.DocQuality)
	assert.Equal(t, models.CIMissing, health.CIStatus)
	// 0.1*.30 + 0*.25 + 0*.20 + 0*.15 + 0.2*.10
	assert.InDelta(t, 0.05, health.OverallHealthScore, 0.001)
	assert.Contains(t, health.Issues, "No tests detected")
	assert.Contains(t, health.Issues, "No CI/CD configuration found")
	assert.Contains(t, health.Issues, "Missing or inadequate README")
}

func TestRuleBasedHealth_ActivityThresholds(t *testing.T) {
	tests := []struct {
		days int
		want models.ActivityLevel
	}{
		{0, models.ActivityActive},
		{29, models.ActivityActive},
		{30, models.ActivityModerate},
		{89, models.ActivityModerate},
		{90, models.ActivityStale},
		{179, models.ActivityStale},
		{180, models.ActivityAbandoned},
		{1000, models.ActivityAbandoned},
	}
	overview := &models.RepositoryOverview{}
	for _, tt := range tests {
		history := &models.RepositoryHistory{
			LastCommitDate: fixedNow.Add(-time.Duration(tt.days) * 24 * time.Hour),
		}
		health := RuleBasedHealth(fixedNow, overview, history)
		assert.Equal(t, tt.want, health.ActivityLevel, "days=%d", tt.days)
	}
}

func TestRuleBasedHealth_ScoreAlwaysInRange(t *testing.T) {
	overviews := []*models.RepositoryOverview{
		{},
		healthyOverview("octocat/widget"),
		{HasTests: true},
		{ReadmeContent: "short", HasCIConfig: true},
	}
	histories := []*models.RepositoryHistory{
		{LastCommitDate: fixedNow},
		{LastCommitDate: fixedNow.Add(-1000 * 24 * time.Hour), ContributorsCount: 50},
		{ContributorsCount: 2},
	}
	for _, o := range overviews {
		for _, h := range histories {
			health := RuleBasedHealth(fixedNow, o, h)
			assert.GreaterOrEqual(t, health.OverallHealthScore, 0.0)
			assert.LessOrEqual(t, health.OverallHealthScore, 1.0)
		}
	}
}

func TestRuleBasedHealth_Deterministic(t *testing.T) {
	overview := healthyOverview("octocat/widget")
	history := &models.RepositoryHistory{
		LastCommitDate:    fixedNow.Add(-45 * 24 * time.Hour),
		ContributorsCount: 4,
	}
	first := RuleBasedHealth(fixedNow, overview, history)
	second := RuleBasedHealth(fixedNow, overview, history)
	assert.Equal(t, first, second)
}

func TestFallbackProfile(t *testing.T) {
	repo := models.Repository{
		Name: "data-sync_tool", FullName: "octocat/data-sync_tool", Owner: "octocat",
		URL: "u", Visibility: "public",
	}
	overview := &models.RepositoryOverview{
		Repository:    repo,
		FileStructure: []string{"README.md", "main.go", "go.mod", "Dockerfile", "internal"},
		Languages:     map[string]int{"Go": 9000, "Shell": 200},
	}
	health := RuleBasedHealth(fixedNow, overview, &models.RepositoryHistory{LastCommitDate: fixedNow})

	profile := FallbackProfile(fixedNow, repo, overview, health)
	require.NoError(t, profile.Validate())

	assert.Equal(t, "A data sync tool project", profile.Purpose)
	assert.Equal(t, []string{"Go", "Shell"}, profile.TechStack)
	assert.Contains(t, profile.KeyFiles, "README.md")
	assert.Contains(t, profile.KeyFiles, "Dockerfile")
	assert.NotContains(t, profile.KeyFiles, "internal")
	assert.Equal(t, AnalysisVersion, profile.AnalysisVersion)
	assert.Equal(t, fixedNow, profile.LastAnalyzed)
}
