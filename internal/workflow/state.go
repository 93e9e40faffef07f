// Package workflow orchestrates one maintenance run as a fixed sequence of
// stages over a single mutable state. Stages run strictly in order on the
// calling goroutine; per-stage failures are collected, never fatal.
package workflow

import (
	"encoding/json"
	"time"

	"github.com/p-blackswan/repo-maintainer/internal/analyzer"
	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// ProgressEvent describes one notable sub-step of a running workflow.
// Current/Total of 0/0 means indeterminate progress.
type ProgressEvent struct {
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Current   int            `json:"current"`
	Total     int            `json:"total"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ProgressFunc receives progress events synchronously on the orchestrating
// goroutine. Panics are caught and logged, never abort the run.
type ProgressFunc func(ProgressEvent)

// ApprovalFunc selects the subset of suggestions to file issues for.
type ApprovalFunc func(suggestions []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error)

// StageError records a failure scoped to a stage or repository.
type StageError struct {
	Scope string `json:"scope"`
	Err   error  `json:"error"`
}

// MarshalJSON renders the wrapped error as its message; error values have no
// JSON representation of their own.
func (e StageError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Scope string `json:"scope"`
		Error string `json:"error"`
	}{Scope: e.Scope, Error: msg})
}

// State is the workflow's accumulating state. It is owned exclusively by the
// orchestrating goroutine; fields are populated stage by stage and never
// rolled back.
type State struct {
	SessionID    string
	Username     string
	Filters      models.RepositoryFilters
	Preferences  *models.UserPreferences
	Repositories []models.Repository
	Analyses     []analyzer.Analysis
	Profiles     []*models.RepositoryProfile
	Suggestions  []models.MaintenanceSuggestion
	Approved     []models.MaintenanceSuggestion
	Issues       []models.IssueResult
	Errors       []StageError
}

func (s *State) addError(scope string, err error) {
	s.Errors = append(s.Errors, StageError{Scope: scope, Err: err})
}

// Result is the final outcome of one workflow run. It always contains
// whatever was successfully produced plus the explicit error list.
type Result struct {
	SessionID            string                          `json:"session_id"`
	Username             string                          `json:"username"`
	RepositoriesAnalyzed []string                        `json:"repositories_analyzed"`
	Suggestions          []models.MaintenanceSuggestion  `json:"suggestions"`
	IssuesCreated        []models.IssueResult            `json:"issues_created"`
	Metrics              models.SessionMetrics           `json:"metrics"`
	Errors               []StageError                    `json:"errors"`
}
