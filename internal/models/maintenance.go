package models

import (
	"fmt"
	"strings"
)

// Category classifies a maintenance suggestion.
type Category string

const (
	CategoryBug           Category = "bug"
	CategoryEnhancement   Category = "enhancement"
	CategoryDocumentation Category = "documentation"
	CategoryRefactor      Category = "refactor"
	CategorySecurity      Category = "security"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryBug, CategoryEnhancement, CategoryDocumentation, CategoryRefactor, CategorySecurity:
		return true
	}
	return false
}

// Priority ranks a suggestion's urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Effort estimates the work a suggestion implies.
type Effort string

const (
	EffortSmall  Effort = "small"
	EffortMedium Effort = "medium"
	EffortLarge  Effort = "large"
)

func (e Effort) Valid() bool {
	switch e {
	case EffortSmall, EffortMedium, EffortLarge:
		return true
	}
	return false
}

// MaintenanceSuggestion is an actionable maintenance task for one repository.
// Its identity for deduplication is the normalized title within the
// repository's scope, independent of ID.
type MaintenanceSuggestion struct {
	ID              string     `json:"id"`
	Repository      Repository `json:"repository"`
	Category        Category   `json:"category"`
	Priority        Priority   `json:"priority"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Rationale       string     `json:"rationale"`
	EstimatedEffort Effort     `json:"estimated_effort"`
	Labels          []string   `json:"labels"`
}

// NormalizedTitle returns the dedup key: lowercased, whitespace-trimmed title.
func (s *MaintenanceSuggestion) NormalizedTitle() string {
	return NormalizeTitle(s.Title)
}

// NormalizeTitle folds a title to its dedup form.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Validate checks suggestion data integrity.
func (s *MaintenanceSuggestion) Validate() error {
	if err := s.Repository.Validate(); err != nil {
		return err
	}
	if s.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !s.Category.Valid() {
		return fmt.Errorf("invalid category: %q", s.Category)
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("invalid priority: %q", s.Priority)
	}
	if s.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if s.Description == "" {
		return fmt.Errorf("description cannot be empty")
	}
	if s.Rationale == "" {
		return fmt.Errorf("rationale cannot be empty")
	}
	if !s.EstimatedEffort.Valid() {
		return fmt.Errorf("invalid estimated_effort: %q", s.EstimatedEffort)
	}
	return nil
}

// IssueResult is the outcome of filing one tracker issue.
type IssueResult struct {
	Success      bool   `json:"success"`
	IssueURL     string `json:"issue_url"`
	IssueNumber  int    `json:"issue_number"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Validate checks issue result consistency.
func (r *IssueResult) Validate() error {
	if r.Success && r.IssueURL == "" {
		return fmt.Errorf("issue_url cannot be empty when success is true")
	}
	if r.Success && r.IssueNumber <= 0 {
		return fmt.Errorf("issue_number must be positive when success is true")
	}
	if !r.Success && r.ErrorMessage == "" {
		return fmt.Errorf("error_message cannot be empty when success is false")
	}
	return nil
}
