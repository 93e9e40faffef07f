package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// AnalysisVersion is stamped on every profile so stored analyses can be
// invalidated when the assessment logic changes.
const AnalysisVersion = "1.0.0"

// Activity thresholds in days since the last commit.
const (
	activeThreshold   = 30
	moderateThreshold = 90
	staleThreshold    = 180
)

// RuleBasedHealth computes a health snapshot from structured repository data
// alone. It is the deterministic fallback used whenever generated output is
// unavailable or invalid, and it always yields a schema-valid snapshot with a
// score in [0,1].
func RuleBasedHealth(now time.Time, overview *models.RepositoryOverview, history *models.RepositoryHistory) models.HealthSnapshot {
	daysSinceCommit := int(now.Sub(history.LastCommitDate).Hours() / 24)

	var activity models.ActivityLevel
	switch {
	case daysSinceCommit < activeThreshold:
		activity = models.ActivityActive
	case daysSinceCommit < moderateThreshold:
		activity = models.ActivityModerate
	case daysSinceCommit < staleThreshold:
		activity = models.ActivityStale
	default:
		activity = models.ActivityAbandoned
	}

	var coverage models.TestCoverage
	switch {
	case overview.HasTests && overview.HasCIConfig:
		coverage = models.CoverageGood
	case overview.HasTests:
		coverage = models.CoveragePartial
	default:
		coverage = models.CoverageNone
	}

	hasReadme := overview.ReadmeContent != ""
	readmeLen := len(overview.ReadmeContent)
	var docs models.DocQuality
	switch {
	case hasReadme && readmeLen > 1000 && overview.HasContributing:
		docs = models.DocsExcellent
	case hasReadme && readmeLen > 500:
		docs = models.DocsGood
	case hasReadme:
		docs = models.DocsBasic
	default:
		docs = models.DocsPoor
	}

	ci := models.CIMissing
	if overview.HasCIConfig {
		ci = models.CIConfigured
	}

	// Not derivable from the top-level snapshot.
	deps := models.DepsUnknown

	activityScores := map[models.ActivityLevel]float64{
		models.ActivityActive:    1.0,
		models.ActivityModerate:  0.7,
		models.ActivityStale:     0.4,
		models.ActivityAbandoned: 0.1,
	}
	testScores := map[models.TestCoverage]float64{
		models.CoverageGood:    1.0,
		models.CoveragePartial: 0.6,
		models.CoverageNone:    0.0,
		models.CoverageUnknown: 0.3,
	}
	docScores := map[models.DocQuality]float64{
		models.DocsExcellent: 1.0,
		models.DocsGood:      0.75,
		models.DocsBasic:     0.5,
		models.DocsPoor:      0.0,
	}

	var ciScore float64
	if ci == models.CIConfigured {
		ciScore = 1.0
	}

	var contributorScore float64
	switch {
	case history.ContributorsCount > 10:
		contributorScore = 1.0
	case history.ContributorsCount > 3:
		contributorScore = 0.7
	case history.ContributorsCount > 1:
		contributorScore = 0.4
	default:
		contributorScore = 0.2
	}

	score := clamp01(activityScores[activity])*0.30 +
		clamp01(testScores[coverage])*0.25 +
		clamp01(docScores[docs])*0.20 +
		clamp01(ciScore)*0.15 +
		clamp01(contributorScore)*0.10

	var issues []string
	if activity == models.ActivityStale || activity == models.ActivityAbandoned {
		issues = append(issues, fmt.Sprintf("Repository is %s (last commit %d days ago)", activity, daysSinceCommit))
	}
	if coverage == models.CoverageNone {
		issues = append(issues, "No tests detected")
	}
	if !overview.HasCIConfig {
		issues = append(issues, "No CI/CD configuration found")
	}
	if docs == models.DocsPoor {
		issues = append(issues, "Missing or inadequate README")
	}
	if !overview.HasContributing {
		issues = append(issues, "No CONTRIBUTING guide found")
	}

	return models.HealthSnapshot{
		ActivityLevel:      activity,
		TestCoverage:       coverage,
		DocQuality:         docs,
		CIStatus:           ci,
		DependencyStatus:   deps,
		OverallHealthScore: clamp01(score),
		Issues:             issues,
	}
}

// FallbackProfile builds a basic profile from languages and well-known
// filenames when profile generation fails.
func FallbackProfile(now time.Time, repo models.Repository, overview *models.RepositoryOverview, health models.HealthSnapshot) *models.RepositoryProfile {
	purpose := "A " + strings.NewReplacer("-", " ", "_", " ").Replace(repo.Name) + " project"

	techStack := overview.TopLanguages(5)

	importantPatterns := []string{
		"readme", "license", "contributing", "setup.py", "package.json",
		"requirements.txt", "dockerfile", "makefile", ".gitignore", "go.mod",
	}
	var keyFiles []string
	for _, file := range overview.FileStructure {
		lower := strings.ToLower(file)
		for _, pattern := range importantPatterns {
			if strings.Contains(lower, pattern) {
				keyFiles = append(keyFiles, file)
				break
			}
		}
		if len(keyFiles) >= 10 {
			break
		}
	}

	return &models.RepositoryProfile{
		Repository:      repo,
		Purpose:         purpose,
		TechStack:       techStack,
		KeyFiles:        keyFiles,
		Health:          health,
		LastAnalyzed:    now,
		AnalysisVersion: AnalysisVersion,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
