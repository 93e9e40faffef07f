package analyzer

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

const (
	healthReadmeCap  = 500
	profileReadmeCap = 1000
	profileFileCap   = 20
)

// Recorder receives analysis and generator observations. Implemented by
// metrics.Collector.
type Recorder interface {
	RecordAnalysis(repo string, duration time.Duration, success bool, errMsg string)
	RecordAPICall(service, endpoint string, duration time.Duration, success bool, errMsg string)
	RecordTokenUsage(model string, promptTokens, completionTokens int)
	RecordError(errType string)
	RecordRecovery(recoveryType string)
}

// Assessor turns free-form generated text into validated health snapshots
// and repository profiles. Every failure path ends in a deterministic
// rule-based result, so assessment never fails outright.
type Assessor struct {
	provider llm.Provider
	retryCfg retry.Config
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// AssessorOption customizes an Assessor.
type AssessorOption func(*Assessor)

// WithAssessorRetry overrides the generator retry policy.
func WithAssessorRetry(cfg retry.Config) AssessorOption {
	return func(a *Assessor) { a.retryCfg = cfg }
}

// WithAssessorRecorder sets the metrics recorder.
func WithAssessorRecorder(r Recorder) AssessorOption {
	return func(a *Assessor) { a.recorder = r }
}

// WithAssessorClock overrides the time source for deterministic tests.
func WithAssessorClock(now func() time.Time) AssessorOption {
	return func(a *Assessor) { a.now = now }
}

// NewAssessor creates an assessor. A nil provider skips generation entirely
// and always uses the rule-based path.
func NewAssessor(provider llm.Provider, logger zerolog.Logger, opts ...AssessorOption) *Assessor {
	a := &Assessor{
		provider: provider,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.With().Str("component", "assessor").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AssessHealth produces a health snapshot for a repository, generating one
// when a provider is configured and falling back to rules on any failure.
func (a *Assessor) AssessHealth(ctx context.Context, overview *models.RepositoryOverview, history *models.RepositoryHistory) models.HealthSnapshot {
	repo := overview.Repository.FullName
	if a.provider == nil {
		return RuleBasedHealth(a.now(), overview, history)
	}

	prompt := a.healthPrompt(overview, history)
	text, err := a.generate(ctx, "generate_health_snapshot", prompt)
	if err != nil {
		a.recover("fallback_health_assessment")
		a.logger.Warn().Err(err).Str("repo", repo).Msg("health generation failed, using rule-based assessment")
		return RuleBasedHealth(a.now(), overview, history)
	}

	health, err := parseHealth(text)
	if err != nil {
		a.recordError("llm_error")
		a.recover("fallback_health_assessment")
		a.logger.Warn().Err(err).Str("repo", repo).Msg("generated health invalid, using rule-based assessment")
		return RuleBasedHealth(a.now(), overview, history)
	}

	a.logger.Info().
		Str("repo", repo).
		Float64("score", health.OverallHealthScore).
		Str("activity", string(health.ActivityLevel)).
		Msg("health snapshot generated")
	return health
}

// BuildProfile produces a compact repository profile, generating purpose /
// tech stack / key files when possible and falling back to languages and
// well-known filenames otherwise.
func (a *Assessor) BuildProfile(ctx context.Context, repo models.Repository, overview *models.RepositoryOverview, history *models.RepositoryHistory, health models.HealthSnapshot) *models.RepositoryProfile {
	if a.provider == nil {
		return FallbackProfile(a.now(), repo, overview, health)
	}

	prompt := a.profilePrompt(overview, history)
	text, err := a.generate(ctx, "generate_profile", prompt)
	if err != nil {
		a.recover("fallback_profile")
		a.logger.Warn().Err(err).Str("repo", repo.FullName).Msg("profile generation failed, using fallback profile")
		return FallbackProfile(a.now(), repo, overview, health)
	}

	purpose, techStack, keyFiles, err := parseProfile(text)
	if err != nil {
		a.recordError("llm_error")
		a.recover("fallback_profile")
		a.logger.Warn().Err(err).Str("repo", repo.FullName).Msg("generated profile invalid, using fallback profile")
		return FallbackProfile(a.now(), repo, overview, health)
	}

	return &models.RepositoryProfile{
		Repository:      repo,
		Purpose:         purpose,
		TechStack:       techStack,
		KeyFiles:        keyFiles,
		Health:          health,
		LastAnalyzed:    a.now(),
		AnalysisVersion: AnalysisVersion,
	}
}

// generate runs one generator call under the retry policy, recording latency
// and token usage.
func (a *Assessor) generate(ctx context.Context, endpoint, prompt string) (string, error) {
	start := time.Now()
	var resp *llm.GenerateResponse

	err := retry.Do(ctx, a.retryCfg, func(ctx context.Context) error {
		var err error
		resp, err = a.provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
		return err
	})

	if a.recorder != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		a.recorder.RecordAPICall("generator", endpoint, time.Since(start), err == nil, errMsg)
		if err != nil {
			a.recorder.RecordError("llm_error")
		} else if resp.TotalTokens() > 0 {
			a.recorder.RecordTokenUsage(resp.Model, resp.InputTokens, resp.OutputTokens)
		}
	}
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (a *Assessor) recordError(errType string) {
	if a.recorder != nil {
		a.recorder.RecordError(errType)
	}
}

func (a *Assessor) recover(recoveryType string) {
	if a.recorder != nil {
		a.recorder.RecordRecovery(recoveryType)
	}
}

func (a *Assessor) healthPrompt(overview *models.RepositoryOverview, history *models.RepositoryHistory) string {
	daysSinceCommit := int(a.now().Sub(history.LastCommitDate).Hours() / 24)

	readme := overview.ReadmeContent
	if len(readme) > healthReadmeCap {
		readme = readme[:healthReadmeCap]
	}
	if readme == "" {
		readme = "No README found"
	}

	return fmt.Sprintf(`Analyze the health of this GitHub repository and provide an assessment.

Repository: %s

Activity Metrics:
- Days since last commit: %d
- Total commits: %d
- Contributors: %d
- Open issues: %d
- Closed issues: %d
- Open PRs: %d

Quality Indicators:
- Has tests: %t
- Has CI/CD: %t
- Has CONTRIBUTING guide: %t
- Has README: %t
- Top languages: %s
- File count: %d

README Summary:
%s

Provide a health assessment in the following JSON format:
{
  "activity_level": "active|moderate|stale|abandoned",
  "test_coverage": "good|partial|none|unknown",
  "documentation_quality": "excellent|good|basic|poor",
  "ci_cd_status": "configured|missing",
  "dependency_status": "current|outdated|unknown",
  "overall_health_score": 0.0-1.0,
  "issues_identified": ["issue1", "issue2", ...]
}

Guidelines:
- activity_level: "active" if <30 days, "moderate" if <90 days, "stale" if <180 days, "abandoned" if >180 days
- test_coverage: "good" if has tests and CI, "partial" if has tests only, "none" if no tests, "unknown" if unclear
- documentation_quality: Based on README quality, CONTRIBUTING, and inline docs
- overall_health_score: 0.0 (poor) to 1.0 (excellent) based on all factors
- issues_identified: List specific problems found (max 5)

Respond with ONLY the JSON object, no additional text.`,
		overview.Repository.FullName,
		daysSinceCommit,
		history.CommitCount,
		history.ContributorsCount,
		history.OpenIssuesCount,
		history.ClosedIssuesCount,
		history.OpenPRsCount,
		overview.HasTests,
		overview.HasCIConfig,
		overview.HasContributing,
		overview.ReadmeContent != "",
		strings.Join(overview.TopLanguages(3), ", "),
		len(overview.FileStructure),
		readme,
	)
}

func (a *Assessor) profilePrompt(overview *models.RepositoryOverview, history *models.RepositoryHistory) string {
	readme := overview.ReadmeContent
	if len(readme) > profileReadmeCap {
		readme = readme[:profileReadmeCap]
	}
	if readme == "" {
		readme = "No README found"
	}

	files := overview.FileStructure
	if len(files) > profileFileCap {
		files = files[:profileFileCap]
	}
	var fileList strings.Builder
	for _, f := range files {
		fileList.WriteString("- ")
		fileList.WriteString(f)
		fileList.WriteString("\n")
	}

	return fmt.Sprintf(`Analyze this GitHub repository and create a compact profile.

Repository: %s

README Summary:
%s

Top Languages: %s

File Structure (top-level):
%s
Quality Indicators:
- Has tests: %t
- Has CI/CD: %t
- Contributors: %d

Provide a compact profile in the following JSON format:
{
  "purpose": "Brief 1-2 sentence description of what this repository does",
  "tech_stack": ["technology1", "technology2", ...],
  "key_files": ["file1", "file2", ...]
}

Guidelines:
- purpose: Concise description based on README and file structure
- tech_stack: List main technologies/frameworks (max 5)
- key_files: List important files like README, main source files, config files (max 10)

Respond with ONLY the JSON object, no additional text.`,
		overview.Repository.FullName,
		readme,
		strings.Join(overview.TopLanguages(5), ", "),
		fileList.String(),
		overview.HasTests,
		overview.HasCIConfig,
		history.ContributorsCount,
	)
}

// parseHealth extracts and validates a health snapshot from generated text.
// An out-of-range score is clamped; an out-of-vocabulary enum is an error.
func parseHealth(text string) (models.HealthSnapshot, error) {
	raw, err := llm.FirstJSONObject(text)
	if err != nil {
		return models.HealthSnapshot{}, err
	}
	var health models.HealthSnapshot
	if err := json.Unmarshal([]byte(raw), &health); err != nil {
		return models.HealthSnapshot{}, fmt.Errorf("unmarshaling health snapshot: %w", err)
	}
	health.OverallHealthScore = clamp01(health.OverallHealthScore)
	if err := health.Validate(); err != nil {
		return models.HealthSnapshot{}, fmt.Errorf("invalid health snapshot: %w", err)
	}
	return health, nil
}

// parseProfile extracts the generated purpose, tech stack and key files.
func parseProfile(text string) (purpose string, techStack, keyFiles []string, err error) {
	raw, err := llm.FirstJSONObject(text)
	if err != nil {
		return "", nil, nil, err
	}
	var data struct {
		Purpose   *string   `json:"purpose"`
		TechStack *[]string `json:"tech_stack"`
		KeyFiles  *[]string `json:"key_files"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", nil, nil, fmt.Errorf("unmarshaling profile: %w", err)
	}
	if data.Purpose == nil || *data.Purpose == "" {
		return "", nil, nil, fmt.Errorf("missing or empty purpose field")
	}
	if data.TechStack == nil {
		return "", nil, nil, fmt.Errorf("missing tech_stack field")
	}
	if data.KeyFiles == nil {
		return "", nil, nil, fmt.Errorf("missing key_files field")
	}
	return *data.Purpose, *data.TechStack, *data.KeyFiles, nil
}
