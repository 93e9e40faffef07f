// Package models defines the data types shared across the maintenance workflow.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Repository holds basic repository information.
type Repository struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Owner         string    `json:"owner"`
	URL           string    `json:"url"`
	DefaultBranch string    `json:"default_branch"`
	Visibility    string    `json:"visibility"` // public, private
	Language      string    `json:"language,omitempty"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks repository data integrity.
func (r *Repository) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if r.FullName == "" {
		return fmt.Errorf("repository full_name cannot be empty")
	}
	if r.Owner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if r.Visibility != "public" && r.Visibility != "private" {
		return fmt.Errorf("invalid visibility: %q", r.Visibility)
	}
	return nil
}

// RepositoryFilters narrows the set of repositories fetched for a user.
type RepositoryFilters struct {
	Language        string
	UpdatedAfter    time.Time
	Visibility      string // public, private, all
	IncludeArchived bool
}

// Matches reports whether the repository passes all filters.
func (f *RepositoryFilters) Matches(repo *Repository) bool {
	if !f.UpdatedAfter.IsZero() && repo.UpdatedAt.Before(f.UpdatedAfter) {
		return false
	}
	if f.Language != "" && repo.Language != "" && !strings.EqualFold(f.Language, repo.Language) {
		return false
	}
	if f.Visibility != "" && f.Visibility != "all" && repo.Visibility != f.Visibility {
		return false
	}
	if !f.IncludeArchived && repo.Archived {
		return false
	}
	return true
}

// CommitSummary is a compact view of one commit.
type CommitSummary struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

// RepositoryOverview holds the content snapshot used for health assessment.
type RepositoryOverview struct {
	Repository      Repository     `json:"repository"`
	ReadmeContent   string         `json:"readme_content,omitempty"`
	FileStructure   []string       `json:"file_structure"` // top-level files and directories
	Languages       map[string]int `json:"languages"`      // language -> bytes of code
	HasCIConfig     bool           `json:"has_ci_config"`
	HasTests        bool           `json:"has_tests"`
	HasContributing bool           `json:"has_contributing"`
}

// RepositoryHistory holds activity data for a repository.
type RepositoryHistory struct {
	CommitCount       int             `json:"commit_count"`
	LastCommitDate    time.Time       `json:"last_commit_date"`
	RecentCommits     []CommitSummary `json:"recent_commits"`
	OpenIssuesCount   int             `json:"open_issues_count"`
	ClosedIssuesCount int             `json:"closed_issues_count"`
	OpenPRsCount      int             `json:"open_prs_count"`
	MergedPRsCount    int             `json:"merged_prs_count"`
	ContributorsCount int             `json:"contributors_count"`
}

// TopLanguages returns up to n language names sorted by bytes of code.
func (o *RepositoryOverview) TopLanguages(n int) []string {
	type langBytes struct {
		name  string
		bytes int
	}
	langs := make([]langBytes, 0, len(o.Languages))
	for name, b := range o.Languages {
		langs = append(langs, langBytes{name, b})
	}
	sort.Slice(langs, func(i, j int) bool {
		if langs[i].bytes != langs[j].bytes {
			return langs[i].bytes > langs[j].bytes
		}
		return langs[i].name < langs[j].name
	})
	if n > len(langs) {
		n = len(langs)
	}
	out := make([]string, 0, n)
	for _, l := range langs[:n] {
		out = append(out, l.name)
	}
	return out
}
