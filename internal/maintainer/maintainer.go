// Package maintainer turns repository profiles into actionable maintenance
// suggestions and files them as tracker issues. Suggestion generation prefers
// the text generator and falls back to rule-based suggestions on any failure;
// dedup and prioritization are pure functions over suggestion lists.
package maintainer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/repo-maintainer/internal/llm"
	"github.com/p-blackswan/repo-maintainer/internal/models"
	"github.com/p-blackswan/repo-maintainer/internal/retry"
)

// HistoryStore persists per-repository suggestion history for dedup.
type HistoryStore interface {
	ExistingTitles(repoFullName string) ([]string, error)
	SaveSuggestions(repoFullName string, suggestions []models.MaintenanceSuggestion) error
}

// IssueCreator files an issue on the tracker.
type IssueCreator interface {
	CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (models.IssueResult, error)
}

// Recorder receives suggestion and issue metrics. A nil Recorder is valid.
type Recorder interface {
	RecordSuggestion(repo string, category models.Category, priority models.Priority)
	RecordIssueCreated()
	RecordAPICall(service, endpoint string, duration time.Duration, success bool, errMsg string)
	RecordTokenUsage(model string, promptTokens, completionTokens int)
	RecordError(errType string)
	RecordRecovery(recoveryType string)
}

// Maintainer generates maintenance suggestions from profiles and creates
// tracker issues for the approved ones.
type Maintainer struct {
	provider llm.Provider
	history  HistoryStore
	issues   IssueCreator
	retryCfg retry.Config
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customizes a Maintainer.
type Option func(*Maintainer)

// WithRetryConfig overrides the generator retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(m *Maintainer) { m.retryCfg = cfg }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Maintainer) { m.recorder = r }
}

// WithClock overrides the time source used for suggestion IDs.
func WithClock(now func() time.Time) Option {
	return func(m *Maintainer) { m.now = now }
}

// New creates a Maintainer. A nil provider disables generation and every
// repository gets rule-based suggestions.
func New(provider llm.Provider, history HistoryStore, issues IssueCreator, logger zerolog.Logger, opts ...Option) *Maintainer {
	m := &Maintainer{
		provider: provider,
		history:  history,
		issues:   issues,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "maintainer").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateSuggestions produces a prioritized suggestion list across all
// profiles. Excluded repositories are skipped, candidates are deduplicated
// against each repository's persisted history, and a failure for one
// repository never stops the rest.
func (m *Maintainer) GenerateSuggestions(ctx context.Context, profiles []*models.RepositoryProfile, prefs *models.UserPreferences) []models.MaintenanceSuggestion {
	m.logger.Info().Int("profiles", len(profiles)).Msg("generating suggestions")

	var all []models.MaintenanceSuggestion
	for _, profile := range profiles {
		repo := profile.Repository.FullName

		if prefs != nil && prefs.IsExcluded(repo) {
			m.logger.Info().Str("repo", repo).Msg("skipping excluded repository")
			continue
		}

		candidates := m.suggestForRepo(ctx, profile, prefs)

		existing, err := m.history.ExistingTitles(repo)
		if err != nil {
			m.recordError("suggestion_generation_error")
			m.logger.Error().Err(err).Str("repo", repo).Msg("loading suggestion history failed")
			continue
		}
		unique := Deduplicate(existing, candidates)

		for _, s := range unique {
			if m.recorder != nil {
				m.recorder.RecordSuggestion(repo, s.Category, s.Priority)
			}
		}
		all = append(all, unique...)

		m.logger.Info().
			Str("repo", repo).
			Int("suggestions", len(unique)).
			Int("duplicates_filtered", len(candidates)-len(unique)).
			Msg("repository suggestions generated")
	}

	prioritized := Prioritize(all)
	m.logger.Info().Int("total", len(prioritized)).Msg("suggestions prioritized")
	return prioritized
}

// suggestForRepo generates candidates for one repository, falling back to
// rule-based suggestions when generation or parsing fails.
func (m *Maintainer) suggestForRepo(ctx context.Context, profile *models.RepositoryProfile, prefs *models.UserPreferences) []models.MaintenanceSuggestion {
	repo := profile.Repository.FullName
	if m.provider == nil {
		return FallbackSuggestions(m.now(), profile)
	}

	var focusAreas []string
	if prefs != nil {
		focusAreas = prefs.FocusAreas
	}

	text, err := m.generate(ctx, suggestionPrompt(profile, focusAreas))
	if err != nil {
		m.recover("fallback_suggestions")
		m.logger.Warn().Err(err).Str("repo", repo).Msg("suggestion generation failed, using rule-based suggestions")
		return FallbackSuggestions(m.now(), profile)
	}

	suggestions, err := m.parseSuggestions(text, profile)
	if err != nil {
		m.recordError("llm_error")
		m.recover("fallback_suggestions")
		m.logger.Warn().Err(err).Str("repo", repo).Msg("generated suggestions invalid, using rule-based suggestions")
		return FallbackSuggestions(m.now(), profile)
	}
	return suggestions
}

// CreateIssue files one tracker issue for an approved suggestion, merging the
// user's preferred labels. The suggestion is appended to the repository's
// history only after the issue is successfully created, so unapproved or
// failed suggestions never pollute future dedup scope.
func (m *Maintainer) CreateIssue(ctx context.Context, suggestion models.MaintenanceSuggestion, prefs *models.UserPreferences) models.IssueResult {
	repo := suggestion.Repository
	m.logger.Info().Str("repo", repo.FullName).Str("title", suggestion.Title).Msg("creating issue")

	labels := suggestion.Labels
	if prefs != nil {
		labels = MergeLabels(suggestion.Labels, prefs.PreferredLabels)
	}

	result, err := m.issues.CreateIssue(ctx, repo.Owner, repo.Name, suggestion.Title, FormatIssueBody(suggestion), labels)
	if err != nil {
		m.logger.Error().Err(err).Str("repo", repo.FullName).Str("title", suggestion.Title).Msg("issue creation failed")
		return result
	}

	if m.recorder != nil {
		m.recorder.RecordIssueCreated()
	}
	if err := m.history.SaveSuggestions(repo.FullName, []models.MaintenanceSuggestion{suggestion}); err != nil {
		m.logger.Warn().Err(err).Str("repo", repo.FullName).Msg("saving suggestion history failed")
	}
	return result
}

// generate runs one generator call under the retry policy, recording latency
// and token usage.
func (m *Maintainer) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var resp *llm.GenerateResponse

	err := retry.Do(ctx, m.retryCfg, func(ctx context.Context) error {
		var err error
		resp, err = m.provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
		return err
	})

	if m.recorder != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		m.recorder.RecordAPICall("generator", "generate_suggestions", time.Since(start), err == nil, errMsg)
		if err != nil {
			m.recorder.RecordError("llm_error")
		} else if resp.TotalTokens() > 0 {
			m.recorder.RecordTokenUsage(resp.Model, resp.InputTokens, resp.OutputTokens)
		}
	}
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (m *Maintainer) recordError(errType string) {
	if m.recorder != nil {
		m.recorder.RecordError(errType)
	}
}

func (m *Maintainer) recover(recoveryType string) {
	if m.recorder != nil {
		m.recorder.RecordRecovery(recoveryType)
	}
}

func suggestionPrompt(profile *models.RepositoryProfile, focusAreas []string) string {
	health := profile.Health

	var issues strings.Builder
	for _, issue := range health.Issues {
		issues.WriteString("- " + issue + "\n")
	}

	focus := ""
	if len(focusAreas) > 0 {
		focus = "\nUser Focus Areas: " + strings.Join(focusAreas, ", ")
	}

	return fmt.Sprintf(`Generate actionable maintenance suggestions for this GitHub repository.

Repository: %s
Purpose: %s
Tech Stack: %s

Health Assessment:
- Activity Level: %s
- Test Coverage: %s
- Documentation Quality: %s
- CI/CD Status: %s
- Dependency Status: %s
- Overall Health Score: %.2f

Issues Identified:
%s%s

Generate 2-5 specific, actionable maintenance suggestions. For each suggestion, provide:

1. Category (bug, enhancement, documentation, refactor, security)
2. Priority (high, medium, low)
3. Title (concise, actionable)
4. Description (detailed, specific steps)
5. Rationale (why this is important)
6. Estimated Effort (small, medium, large)
7. Labels (2-4 relevant labels)

Respond in the following JSON format:
{
  "suggestions": [
    {
      "category": "documentation",
      "priority": "high",
      "title": "Add comprehensive README documentation",
      "description": "Create a detailed README with installation instructions, usage examples, and API documentation.",
      "rationale": "Good documentation improves adoption and reduces support burden.",
      "estimated_effort": "medium",
      "labels": ["documentation", "good-first-issue"]
    }
  ]
}

Guidelines:
- Focus on high-impact, actionable tasks
- Be specific about what needs to be done
- Consider the repository's purpose and tech stack
- Prioritize based on health issues identified
- Suggest realistic improvements
- Limit to 5 suggestions maximum

Respond with ONLY the JSON object, no additional text.`,
		profile.Repository.FullName,
		profile.Purpose,
		strings.Join(profile.TechStack, ", "),
		health.ActivityLevel,
		health.TestCoverage,
		health.DocQuality,
		health.CIStatus,
		health.DependencyStatus,
		health.OverallHealthScore,
		issues.String(),
		focus,
	)
}

// parseSuggestions extracts generated suggestions. Any structurally invalid
// suggestion fails the whole batch so the caller falls back.
func (m *Maintainer) parseSuggestions(text string, profile *models.RepositoryProfile) ([]models.MaintenanceSuggestion, error) {
	raw, err := llm.FirstJSONObject(text)
	if err != nil {
		return nil, err
	}

	var data struct {
		Suggestions []struct {
			Category        models.Category `json:"category"`
			Priority        models.Priority `json:"priority"`
			Title           string          `json:"title"`
			Description     string          `json:"description"`
			Rationale       string          `json:"rationale"`
			EstimatedEffort models.Effort   `json:"estimated_effort"`
			Labels          []string        `json:"labels"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling suggestions: %w", err)
	}

	suggestions := make([]models.MaintenanceSuggestion, 0, len(data.Suggestions))
	for _, d := range data.Suggestions {
		s := models.MaintenanceSuggestion{
			ID:              SuggestionID(profile.Repository.FullName, d.Title, m.now()),
			Repository:      profile.Repository,
			Category:        d.Category,
			Priority:        d.Priority,
			Title:           d.Title,
			Description:     d.Description,
			Rationale:       d.Rationale,
			EstimatedEffort: d.EstimatedEffort,
			Labels:          d.Labels,
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("invalid suggestion %q: %w", d.Title, err)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

// FormatIssueBody renders the issue body for a suggestion.
func FormatIssueBody(s models.MaintenanceSuggestion) string {
	return fmt.Sprintf(`## Description

%s

## Rationale

%s

## Details

- **Category**: %s
- **Priority**: %s
- **Estimated Effort**: %s

---

*This issue was automatically generated by the repository maintenance agent.*
`, s.Description, s.Rationale, s.Category, s.Priority, s.EstimatedEffort)
}

// MergeLabels unions suggestion labels with preferred labels, preserving the
// order of first appearance.
func MergeLabels(labels, preferred []string) []string {
	seen := make(map[string]bool, len(labels)+len(preferred))
	merged := make([]string, 0, len(labels)+len(preferred))
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			merged = append(merged, l)
		}
	}
	for _, l := range preferred {
		if !seen[l] {
			seen[l] = true
			merged = append(merged, l)
		}
	}
	return merged
}
