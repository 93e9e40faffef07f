package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/repo-maintainer/internal/analyzer"
	apperrors "github.com/p-blackswan/repo-maintainer/internal/errors"
	"github.com/p-blackswan/repo-maintainer/internal/models"
)

func repo(name string) models.Repository {
	return models.Repository{
		Name: name, FullName: "octocat/" + name, Owner: "octocat",
		URL: "u", Visibility: "public",
	}
}

func profileFor(r models.Repository) *models.RepositoryProfile {
	return &models.RepositoryProfile{
		Repository: r,
		Purpose:    "A " + r.Name + " project",
		TechStack:  []string{"Go"},
		Health: models.HealthSnapshot{
			ActivityLevel:      models.ActivityAbandoned,
			TestCoverage:       models.CoverageNone,
			DocQuality:         models.DocsPoor,
			CIStatus:           models.CIMissing,
			DependencyStatus:   models.DepsUnknown,
			OverallHealthScore: 0.1,
		},
		AnalysisVersion: "1.0.0",
	}
}

func suggestionFor(r models.Repository, title string) models.MaintenanceSuggestion {
	return models.MaintenanceSuggestion{
		ID:              "id-" + title,
		Repository:      r,
		Category:        models.CategoryEnhancement,
		Priority:        models.PriorityHigh,
		Title:           title,
		Description:     "d",
		Rationale:       "r",
		EstimatedEffort: models.EffortMedium,
		Labels:          []string{"maintenance"},
	}
}

type fakeLister struct {
	repos []models.Repository
	err   error
}

func (f *fakeLister) ListRepositories(_ context.Context, _ string, _ models.RepositoryFilters) ([]models.Repository, error) {
	return f.repos, f.err
}

type fakeAnalyzer struct {
	failing map[string]error
	got     []models.Repository
}

func (f *fakeAnalyzer) AnalyzeAll(_ context.Context, repos []models.Repository) ([]analyzer.Analysis, []analyzer.Failure) {
	f.got = repos
	var analyses []analyzer.Analysis
	var failures []analyzer.Failure
	for _, r := range repos {
		if err, ok := f.failing[r.FullName]; ok {
			failures = append(failures, analyzer.Failure{Repository: r, Err: err})
			continue
		}
		analyses = append(analyses, analyzer.Analysis{
			Repository: r,
			Profile:    profileFor(r),
		})
	}
	return analyses, failures
}

type fakeEngine struct {
	suggestions  []models.MaintenanceSuggestion
	issueResults map[string]models.IssueResult
	gotProfiles  []*models.RepositoryProfile
	filed        []models.MaintenanceSuggestion
}

func (f *fakeEngine) GenerateSuggestions(_ context.Context, profiles []*models.RepositoryProfile, _ *models.UserPreferences) []models.MaintenanceSuggestion {
	f.gotProfiles = profiles
	return f.suggestions
}

func (f *fakeEngine) CreateIssue(_ context.Context, s models.MaintenanceSuggestion, _ *models.UserPreferences) models.IssueResult {
	f.filed = append(f.filed, s)
	if r, ok := f.issueResults[s.Title]; ok {
		return r
	}
	return models.IssueResult{Success: true, IssueURL: "https://github.com/" + s.Repository.FullName + "/issues/1", IssueNumber: 1}
}

type fakeStore struct {
	prefs    *models.UserPreferences
	prefsErr error
	saved    []string
	saveErr  error
	stored   map[string]*models.RepositoryProfile
	loaded   []string
}

func (f *fakeStore) SaveProfile(p *models.RepositoryProfile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, p.Repository.FullName)
	return nil
}

func (f *fakeStore) LoadProfile(repo string) (*models.RepositoryProfile, error) {
	f.loaded = append(f.loaded, repo)
	return f.stored[repo], nil
}

func (f *fakeStore) LoadPreferences(_ string) (*models.UserPreferences, error) {
	return f.prefs, f.prefsErr
}

type fakeRecorder struct {
	sessions  int
	approvals []bool
	errors    []string
	metrics   models.SessionMetrics
}

func (f *fakeRecorder) StartSession() { f.sessions++ }

func (f *fakeRecorder) RecordApproval(approved bool) { f.approvals = append(f.approvals, approved) }

func (f *fakeRecorder) RecordError(errType string) { f.errors = append(f.errors, errType) }

func (f *fakeRecorder) SessionMetrics() models.SessionMetrics { return f.metrics }

func autoPrefs() *models.UserPreferences {
	return &models.UserPreferences{UserID: "octocat", AutomationLevel: models.AutomationAuto}
}

func manualPrefs() *models.UserPreferences {
	return &models.UserPreferences{UserID: "octocat", AutomationLevel: models.AutomationManual}
}

func newTestOrchestrator(lister RepoLister, a Analyzer, engine SuggestionEngine, store ProfileStore, opts ...Option) *Orchestrator {
	return New(lister, a, engine, store, zerolog.Nop(), opts...)
}

func TestRun_HappyPath(t *testing.T) {
	repos := []models.Repository{repo("widget"), repo("gadget")}
	s1 := suggestionFor(repos[0], "Add test suite")
	s2 := suggestionFor(repos[1], "Set up CI/CD pipeline")

	lister := &fakeLister{repos: repos}
	an := &fakeAnalyzer{}
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{s1, s2}}
	store := &fakeStore{}
	rec := &fakeRecorder{metrics: models.SessionMetrics{ReposAnalyzed: 2}}

	o := newTestOrchestrator(lister, an, engine, store, WithRecorder(rec))
	result, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: autoPrefs()})

	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "octocat", result.Username)
	assert.Equal(t, []string{"octocat/widget", "octocat/gadget"}, result.RepositoriesAnalyzed)
	assert.Len(t, result.Suggestions, 2)
	assert.Len(t, result.IssuesCreated, 2)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Metrics.ReposAnalyzed)

	assert.Equal(t, 1, rec.sessions)
	assert.Equal(t, []bool{true, true}, rec.approvals)
	assert.ElementsMatch(t, []string{"octocat/widget", "octocat/gadget"}, store.saved)
	assert.Len(t, engine.gotProfiles, 2)
}

func TestRun_ApprovalSubsetFilesOnlyApproved(t *testing.T) {
	r := repo("widget")
	s1 := suggestionFor(r, "one")
	s2 := suggestionFor(r, "two")
	s3 := suggestionFor(r, "three")

	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{s1, s2, s3}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	rec := &fakeRecorder{}
	o.recorder = rec
	result, err := o.Run(context.Background(), Request{
		Username:    "octocat",
		Preferences: manualPrefs(),
		OnApproval: func(suggestions []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			return suggestions[:1], nil
		},
	})

	require.NoError(t, err)
	require.Len(t, engine.filed, 1)
	assert.Equal(t, "one", engine.filed[0].Title)
	assert.Len(t, result.IssuesCreated, 1)
	assert.ElementsMatch(t, []bool{true, false, false}, rec.approvals)
}

func TestRun_AutoModeNeverInvokesCallback(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	invoked := false
	result, err := o.Run(context.Background(), Request{
		Username:    "octocat",
		Preferences: autoPrefs(),
		OnApproval: func(suggestions []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			invoked = true
			return nil, nil
		},
	})

	require.NoError(t, err)
	assert.False(t, invoked)
	assert.Len(t, result.IssuesCreated, 1)
}

func TestRun_ManualWithoutCallbackApprovesAll(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{
		suggestionFor(r, "one"), suggestionFor(r, "two"),
	}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: manualPrefs()})
	require.NoError(t, err)
	assert.Len(t, result.IssuesCreated, 2)
}

func TestRun_CallbackErrorApprovesNone(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{
		Username:    "octocat",
		Preferences: manualPrefs(),
		OnApproval: func([]models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			return nil, fmt.Errorf("terminal closed")
		},
	})

	require.NoError(t, err)
	assert.Empty(t, engine.filed)
	assert.Empty(t, result.IssuesCreated)
	// the run itself still succeeded: suggestions remain in the result
	assert.Len(t, result.Suggestions, 1)
}

func TestRun_CallbackPanicApprovesNone(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{
		Username:    "octocat",
		Preferences: manualPrefs(),
		OnApproval: func([]models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			panic("boom")
		},
	})

	require.NoError(t, err)
	assert.Empty(t, result.IssuesCreated)
}

func TestRun_FetchFailureContinuesWithEmptyInputs(t *testing.T) {
	lister := &fakeLister{err: apperrors.ErrRateLimit}
	engine := &fakeEngine{}
	o := newTestOrchestrator(lister, &fakeAnalyzer{}, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: autoPrefs()})

	require.NoError(t, err)
	assert.Empty(t, result.RepositoriesAnalyzed)
	assert.Empty(t, result.Suggestions)
	assert.Empty(t, result.IssuesCreated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "fetch_repositories", result.Errors[0].Scope)
	assert.ErrorIs(t, result.Errors[0].Err, apperrors.ErrRateLimit)
}

func TestRun_AnalyzerFailuresRecordedPerRepository(t *testing.T) {
	repos := []models.Repository{repo("widget"), repo("gadget"), repo("attic")}
	an := &fakeAnalyzer{failing: map[string]error{"octocat/gadget": apperrors.ErrNotFound}}
	engine := &fakeEngine{}
	o := newTestOrchestrator(&fakeLister{repos: repos}, an, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: autoPrefs()})

	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "octocat/gadget", result.Errors[0].Scope)
	assert.ErrorIs(t, result.Errors[0].Err, apperrors.ErrNotFound)
	// the two surviving profiles still reach suggestion generation
	assert.Len(t, engine.gotProfiles, 2)
}

func TestRun_FailedIssueCreationRecordedAndRunContinues(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{
		suggestions: []models.MaintenanceSuggestion{
			suggestionFor(r, "one"), suggestionFor(r, "two"),
		},
		issueResults: map[string]models.IssueResult{
			"one": {Success: false, ErrorMessage: "boom"},
		},
	}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: autoPrefs()})

	require.NoError(t, err)
	assert.Len(t, result.IssuesCreated, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "octocat/widget", result.Errors[0].Scope)
	assert.Len(t, engine.filed, 2)
}

func TestRun_ProgressEventsEndWithComplete(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	var stages []string
	_, err := o.Run(context.Background(), Request{
		Username:    "octocat",
		Preferences: autoPrefs(),
		OnProgress:  func(e ProgressEvent) { stages = append(stages, e.Stage) },
	})

	require.NoError(t, err)
	require.NotEmpty(t, stages)
	assert.Equal(t, "initialization", stages[0])
	assert.Equal(t, "complete", stages[len(stages)-1])
	assert.Contains(t, stages, "fetching")
	assert.Contains(t, stages, "analyzing")
	assert.Contains(t, stages, "generating_suggestions")
	assert.Contains(t, stages, "requesting_approvals")
	assert.Contains(t, stages, "creating_issues")
	assert.Contains(t, stages, "finalizing")
}

func TestRun_ProgressCallbackPanicDoesNotAbort(t *testing.T) {
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, &fakeStore{})

	result, err := o.Run(context.Background(), Request{
		Username:    "octocat",
		Preferences: autoPrefs(),
		OnProgress:  func(ProgressEvent) { panic("broken pipe") },
	})

	require.NoError(t, err)
	assert.Len(t, result.IssuesCreated, 1)
}

func TestRun_CancelledContextTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(&fakeLister{}, &fakeAnalyzer{}, &fakeEngine{}, &fakeStore{})
	result, err := o.Run(ctx, Request{Username: "octocat", Preferences: autoPrefs()})

	require.ErrorIs(t, err, ErrTerminated)
	require.NotNil(t, result) // partial result, not a crash
	assert.Empty(t, result.IssuesCreated)
}

func TestRun_LoadsPreferencesWhenNotProvided(t *testing.T) {
	store := &fakeStore{prefs: autoPrefs()}
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, store)

	invoked := false
	result, err := o.Run(context.Background(), Request{
		Username: "octocat",
		OnApproval: func(s []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			invoked = true
			return s, nil
		},
	})

	require.NoError(t, err)
	// stored preferences say auto, so the callback is skipped
	assert.False(t, invoked)
	assert.Len(t, result.IssuesCreated, 1)
}

func TestRun_DefaultsToManualPreferences(t *testing.T) {
	store := &fakeStore{} // no stored preferences
	r := repo("widget")
	engine := &fakeEngine{suggestions: []models.MaintenanceSuggestion{suggestionFor(r, "one")}}
	o := newTestOrchestrator(&fakeLister{repos: []models.Repository{r}}, &fakeAnalyzer{}, engine, store)

	invoked := false
	_, err := o.Run(context.Background(), Request{
		Username: "octocat",
		OnApproval: func(s []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			invoked = true
			return nil, nil
		},
	})

	require.NoError(t, err)
	// default preferences are manual, so the callback decides
	assert.True(t, invoked)
}

func TestRun_PreferenceLoadFailureAborts(t *testing.T) {
	store := &fakeStore{prefsErr: fmt.Errorf("database is locked")}
	o := newTestOrchestrator(&fakeLister{}, &fakeAnalyzer{}, &fakeEngine{}, store)

	_, err := o.Run(context.Background(), Request{Username: "octocat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading preferences")
}

func TestApprovalGate_Table(t *testing.T) {
	r := repo("widget")
	suggestions := []models.MaintenanceSuggestion{
		suggestionFor(r, "one"), suggestionFor(r, "two"),
	}

	tests := []struct {
		name     string
		level    models.AutomationLevel
		callback ApprovalFunc
		want     int
	}{
		{"auto approves all", models.AutomationAuto, nil, 2},
		{"manual no callback approves all", models.AutomationManual, nil, 2},
		{"ask uses callback subset", models.AutomationAsk, func(s []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			return s[1:], nil
		}, 1},
		{"manual callback rejects all", models.AutomationManual, func([]models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			return nil, nil
		}, 0},
		{"callback error approves none", models.AutomationManual, func([]models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
			return suggestions, fmt.Errorf("eof")
		}, 0},
		{"unknown level approves all", models.AutomationLevel("yolo"), nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := ApprovalGate{Level: tt.level, Callback: tt.callback, Logger: zerolog.Nop()}
			assert.Len(t, gate.Approve(suggestions), tt.want)
		})
	}
}

func TestApprovalGate_EmptyInput(t *testing.T) {
	gate := ApprovalGate{Level: models.AutomationAuto, Logger: zerolog.Nop()}
	assert.Nil(t, gate.Approve(nil))
}

func TestStageError_MarshalsMessage(t *testing.T) {
	result := &Result{
		SessionID: "s-1",
		Errors: []StageError{
			{Scope: "fetch_repositories", Err: fmt.Errorf("listing repositories: %w", apperrors.ErrRateLimit)},
			{Scope: "octocat/widget", Err: nil},
		},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scope":"fetch_repositories"`)
	assert.Contains(t, string(data), "rate limit")
	assert.NotContains(t, string(data), `"error":{}`)
}

func TestRun_StoredProfileCoversFailedAnalysis(t *testing.T) {
	repos := []models.Repository{repo("widget"), repo("gadget")}
	an := &fakeAnalyzer{failing: map[string]error{"octocat/gadget": apperrors.ErrTimeout}}
	engine := &fakeEngine{}
	store := &fakeStore{stored: map[string]*models.RepositoryProfile{
		"octocat/gadget": profileFor(repo("gadget")),
	}}
	o := newTestOrchestrator(&fakeLister{repos: repos}, an, engine, store)

	result, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: autoPrefs()})

	require.NoError(t, err)
	// the failure is still reported, but the previous run's profile fills in
	require.Len(t, result.Errors, 1)
	assert.Equal(t, []string{"octocat/gadget"}, store.loaded)
	require.Len(t, engine.gotProfiles, 2)
	repoNames := []string{
		engine.gotProfiles[0].Repository.FullName,
		engine.gotProfiles[1].Repository.FullName,
	}
	assert.ElementsMatch(t, []string{"octocat/widget", "octocat/gadget"}, repoNames)
}

func TestRun_NoStoredProfileForFailedAnalysis(t *testing.T) {
	repos := []models.Repository{repo("widget"), repo("gadget")}
	an := &fakeAnalyzer{failing: map[string]error{"octocat/gadget": apperrors.ErrTimeout}}
	engine := &fakeEngine{}
	store := &fakeStore{}
	o := newTestOrchestrator(&fakeLister{repos: repos}, an, engine, store)

	_, err := o.Run(context.Background(), Request{Username: "octocat", Preferences: autoPrefs()})

	require.NoError(t, err)
	assert.Len(t, engine.gotProfiles, 1)
}
