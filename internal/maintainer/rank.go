package maintainer

import (
	"sort"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

var (
	priorityWeights = map[models.Priority]int{
		models.PriorityHigh:   3,
		models.PriorityMedium: 2,
		models.PriorityLow:    1,
	}
	effortWeights = map[models.Effort]int{
		models.EffortSmall:  3,
		models.EffortMedium: 2,
		models.EffortLarge:  1,
	}
	categoryWeights = map[models.Category]int{
		models.CategorySecurity:      5,
		models.CategoryBug:           4,
		models.CategoryEnhancement:   3,
		models.CategoryDocumentation: 2,
		models.CategoryRefactor:      1,
	}
)

// Score ranks a suggestion: higher priority and category weigh it up, larger
// effort weighs it down.
func Score(s models.MaintenanceSuggestion) int {
	priority, ok := priorityWeights[s.Priority]
	if !ok {
		priority = 1
	}
	effort, ok := effortWeights[s.EstimatedEffort]
	if !ok {
		effort = 1
	}
	category, ok := categoryWeights[s.Category]
	if !ok {
		category = 1
	}
	return (priority + category*2) * effort
}

// Prioritize returns suggestions sorted by descending score. The sort is
// stable: equal-score suggestions keep their input order.
func Prioritize(suggestions []models.MaintenanceSuggestion) []models.MaintenanceSuggestion {
	sorted := make([]models.MaintenanceSuggestion, len(suggestions))
	copy(sorted, suggestions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Score(sorted[i]) > Score(sorted[j])
	})
	return sorted
}

// Deduplicate filters candidates whose normalized title already appears in
// the existing titles. It never mutates persisted history; callers update
// history only after an issue is successfully filed.
func Deduplicate(existingTitles []string, candidates []models.MaintenanceSuggestion) []models.MaintenanceSuggestion {
	existing := make(map[string]bool, len(existingTitles))
	for _, t := range existingTitles {
		existing[models.NormalizeTitle(t)] = true
	}

	unique := make([]models.MaintenanceSuggestion, 0, len(candidates))
	for _, c := range candidates {
		if !existing[c.NormalizedTitle()] {
			unique = append(unique, c)
		}
	}
	return unique
}
