package maintainer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// FallbackSuggestions derives suggestions from the health snapshot alone.
// Deterministic for a given profile, used whenever generation is unavailable
// or produced invalid output.
func FallbackSuggestions(now time.Time, profile *models.RepositoryProfile) []models.MaintenanceSuggestion {
	repo := profile.Repository
	health := profile.Health

	var suggestions []models.MaintenanceSuggestion

	if health.TestCoverage == models.CoverageNone {
		suggestions = append(suggestions, models.MaintenanceSuggestion{
			ID:         SuggestionID(repo.FullName, "Add test suite", now),
			Repository: repo,
			Category:   models.CategoryEnhancement,
			Priority:   models.PriorityHigh,
			Title:      "Add test suite",
			Description: "Create a comprehensive test suite to ensure code quality and prevent regressions. " +
				"Include unit tests for core functionality and integration tests for key workflows.",
			Rationale:       "Tests are essential for maintaining code quality and catching bugs early.",
			EstimatedEffort: models.EffortLarge,
			Labels:          []string{"testing", "enhancement", "good-first-issue"},
		})
	}

	if health.CIStatus == models.CIMissing {
		suggestions = append(suggestions, models.MaintenanceSuggestion{
			ID:         SuggestionID(repo.FullName, "Set up CI/CD pipeline", now),
			Repository: repo,
			Category:   models.CategoryEnhancement,
			Priority:   models.PriorityHigh,
			Title:      "Set up CI/CD pipeline",
			Description: "Configure GitHub Actions (or similar) to automatically run tests, linting, " +
				"and other checks on every commit and pull request.",
			Rationale:       "Automated CI/CD ensures code quality and catches issues before they reach production.",
			EstimatedEffort: models.EffortMedium,
			Labels:          []string{"ci-cd", "enhancement", "automation"},
		})
	}

	if health.DocQuality == models.DocsPoor || health.DocQuality == models.DocsBasic {
		suggestions = append(suggestions, models.MaintenanceSuggestion{
			ID:         SuggestionID(repo.FullName, "Improve documentation", now),
			Repository: repo,
			Category:   models.CategoryDocumentation,
			Priority:   models.PriorityMedium,
			Title:      "Improve documentation",
			Description: "Enhance the README with clear installation instructions, usage examples, " +
				"API documentation, and contribution guidelines.",
			Rationale:       "Good documentation improves adoption and reduces support burden.",
			EstimatedEffort: models.EffortMedium,
			Labels:          []string{"documentation", "good-first-issue"},
		})
	}

	if health.ActivityLevel == models.ActivityStale || health.ActivityLevel == models.ActivityAbandoned {
		suggestions = append(suggestions, models.MaintenanceSuggestion{
			ID:         SuggestionID(repo.FullName, "Review and update repository", now),
			Repository: repo,
			Category:   models.CategoryRefactor,
			Priority:   models.PriorityMedium,
			Title:      "Review and update repository",
			Description: "Review the repository for outdated dependencies, deprecated APIs, " +
				"and stale issues. Update or archive as appropriate.",
			Rationale:       fmt.Sprintf("Repository appears %s and may need attention.", health.ActivityLevel),
			EstimatedEffort: models.EffortLarge,
			Labels:          []string{"maintenance", "refactor"},
		})
	}

	return suggestions
}

// SuggestionID builds a short stable identifier from the repository, title
// and creation time. Identity for dedup is the normalized title, not the ID.
func SuggestionID(repoFullName, title string, now time.Time) string {
	sum := sha256.Sum256([]byte(repoFullName + ":" + title + ":" + now.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}
