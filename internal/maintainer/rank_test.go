package maintainer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

func suggestion(title string, category models.Category, priority models.Priority, effort models.Effort) models.MaintenanceSuggestion {
	return models.MaintenanceSuggestion{
		ID:              "id-" + title,
		Repository:      testRepo(),
		Category:        category,
		Priority:        priority,
		Title:           title,
		Description:     "d",
		Rationale:       "r",
		EstimatedEffort: effort,
		Labels:          []string{"maintenance"},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		category models.Category
		priority models.Priority
		effort   models.Effort
		want     int
	}{
		{"security high small", models.CategorySecurity, models.PriorityHigh, models.EffortSmall, 39},
		{"bug high small", models.CategoryBug, models.PriorityHigh, models.EffortSmall, 33},
		{"enhancement high large", models.CategoryEnhancement, models.PriorityHigh, models.EffortLarge, 9},
		{"documentation medium medium", models.CategoryDocumentation, models.PriorityMedium, models.EffortMedium, 12},
		{"refactor low large", models.CategoryRefactor, models.PriorityLow, models.EffortLarge, 3},
		{"unknown values floor to one", models.Category("x"), models.Priority("y"), models.Effort("z"), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(suggestion("t", tt.category, tt.priority, tt.effort)))
		})
	}
}

func TestPrioritize_Descending(t *testing.T) {
	in := []models.MaintenanceSuggestion{
		suggestion("docs", models.CategoryDocumentation, models.PriorityLow, models.EffortLarge),
		suggestion("vuln", models.CategorySecurity, models.PriorityHigh, models.EffortSmall),
		suggestion("crash", models.CategoryBug, models.PriorityHigh, models.EffortMedium),
	}

	out := Prioritize(in)
	assert.Equal(t, []string{"vuln", "crash", "docs"}, titles(out))
	// input untouched
	assert.Equal(t, "docs", in[0].Title)
}

func TestPrioritize_StableOnTies(t *testing.T) {
	// identical scores keep input order
	in := []models.MaintenanceSuggestion{
		suggestion("first", models.CategoryEnhancement, models.PriorityHigh, models.EffortMedium),
		suggestion("second", models.CategoryEnhancement, models.PriorityHigh, models.EffortMedium),
		suggestion("third", models.CategoryEnhancement, models.PriorityHigh, models.EffortMedium),
	}

	out := Prioritize(in)
	assert.Equal(t, []string{"first", "second", "third"}, titles(out))
}

func TestPrioritize_Empty(t *testing.T) {
	assert.Empty(t, Prioritize(nil))
}

func TestDeduplicate(t *testing.T) {
	candidates := []models.MaintenanceSuggestion{
		suggestion("Add test suite", models.CategoryEnhancement, models.PriorityHigh, models.EffortLarge),
		suggestion("Improve documentation", models.CategoryDocumentation, models.PriorityMedium, models.EffortMedium),
		suggestion("Set up CI/CD pipeline", models.CategoryEnhancement, models.PriorityHigh, models.EffortMedium),
	}

	tests := []struct {
		name     string
		existing []string
		want     []string
	}{
		{"no history keeps all", nil, []string{"Add test suite", "Improve documentation", "Set up CI/CD pipeline"}},
		{"exact match filtered", []string{"add test suite"}, []string{"Improve documentation", "Set up CI/CD pipeline"}},
		{"case and whitespace insensitive", []string{"  ADD TEST SUITE  ", "improve documentation"}, []string{"Set up CI/CD pipeline"}},
		{"all filtered", []string{"add test suite", "improve documentation", "set up ci/cd pipeline"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deduplicate(tt.existing, candidates)
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestDeduplicate_IsSubsetPreservingOrder(t *testing.T) {
	candidates := []models.MaintenanceSuggestion{
		suggestion("a", models.CategoryBug, models.PriorityHigh, models.EffortSmall),
		suggestion("b", models.CategoryBug, models.PriorityHigh, models.EffortSmall),
		suggestion("c", models.CategoryBug, models.PriorityHigh, models.EffortSmall),
		suggestion("d", models.CategoryBug, models.PriorityHigh, models.EffortSmall),
	}

	got := Deduplicate([]string{"b", "d"}, candidates)
	assert.Equal(t, []string{"a", "c"}, titles(got))
}

func titles(suggestions []models.MaintenanceSuggestion) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Title)
	}
	return out
}
