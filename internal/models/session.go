package models

import "fmt"

// AutomationLevel controls whether human approval precedes issue filing.
type AutomationLevel string

const (
	AutomationAuto   AutomationLevel = "auto"
	AutomationManual AutomationLevel = "manual"
	AutomationAsk    AutomationLevel = "ask"
)

func (a AutomationLevel) Valid() bool {
	switch a {
	case AutomationAuto, AutomationManual, AutomationAsk:
		return true
	}
	return false
}

// UserPreferences is per-user configuration persisted between sessions.
type UserPreferences struct {
	UserID          string          `json:"user_id" yaml:"user_id"`
	AutomationLevel AutomationLevel `json:"automation_level" yaml:"automation_level"`
	PreferredLabels []string        `json:"preferred_labels" yaml:"preferred_labels"`
	ExcludedRepos   []string        `json:"excluded_repos" yaml:"excluded_repos"`
	FocusAreas      []string        `json:"focus_areas" yaml:"focus_areas"`
}

// DefaultPreferences returns manual-approval preferences for a user.
func DefaultPreferences(userID string) *UserPreferences {
	return &UserPreferences{
		UserID:          userID,
		AutomationLevel: AutomationManual,
	}
}

// Validate checks preference data integrity.
func (p *UserPreferences) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if !p.AutomationLevel.Valid() {
		return fmt.Errorf("invalid automation_level: %q", p.AutomationLevel)
	}
	return nil
}

// IsExcluded reports whether the repository is excluded by preference.
func (p *UserPreferences) IsExcluded(repoFullName string) bool {
	for _, name := range p.ExcludedRepos {
		if name == repoFullName {
			return true
		}
	}
	return false
}

// SessionMetrics is the aggregate counter snapshot for one orchestration run.
type SessionMetrics struct {
	ReposAnalyzed        int     `json:"repos_analyzed"`
	SuggestionsGenerated int     `json:"suggestions_generated"`
	IssuesCreated        int     `json:"issues_created"`
	APICallsMade         int     `json:"api_calls_made"`
	TokensUsed           int     `json:"tokens_used"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	ErrorsEncountered    int     `json:"errors_encountered"`
}
