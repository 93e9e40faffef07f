package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/repo-maintainer/internal/analyzer"
	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// ErrTerminated is returned when the run was cut short by context
// cancellation rather than completing its stages.
var ErrTerminated = errors.New("workflow terminated")

// RepoLister lists a user's repositories.
type RepoLister interface {
	ListRepositories(ctx context.Context, username string, filters models.RepositoryFilters) ([]models.Repository, error)
}

// Analyzer fans the per-repository analysis over a worker pool.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, repos []models.Repository) ([]analyzer.Analysis, []analyzer.Failure)
}

// SuggestionEngine generates suggestions and files issues for approved ones.
type SuggestionEngine interface {
	GenerateSuggestions(ctx context.Context, profiles []*models.RepositoryProfile, prefs *models.UserPreferences) []models.MaintenanceSuggestion
	CreateIssue(ctx context.Context, suggestion models.MaintenanceSuggestion, prefs *models.UserPreferences) models.IssueResult
}

// ProfileStore persists profiles and loads user preferences between runs.
type ProfileStore interface {
	SaveProfile(profile *models.RepositoryProfile) error
	LoadProfile(repoFullName string) (*models.RepositoryProfile, error)
	LoadPreferences(userID string) (*models.UserPreferences, error)
}

// Recorder receives run-level metrics. A nil Recorder is valid.
type Recorder interface {
	StartSession()
	RecordApproval(approved bool)
	RecordError(errType string)
	SessionMetrics() models.SessionMetrics
}

// Request describes one workflow run.
type Request struct {
	Username    string
	Filters     models.RepositoryFilters
	Preferences *models.UserPreferences // loaded from the store when nil
	OnProgress  ProgressFunc
	OnApproval  ApprovalFunc
}

// Orchestrator runs the seven-stage maintenance workflow.
type Orchestrator struct {
	repos    RepoLister
	analyzer Analyzer
	engine   SuggestionEngine
	store    ProfileStore
	recorder Recorder
	logger   zerolog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an Orchestrator over its collaborators.
func New(repos RepoLister, a Analyzer, engine SuggestionEngine, store ProfileStore, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repos:    repos,
		analyzer: a,
		engine:   engine,
		store:    store,
		logger:   logger.With().Str("component", "workflow").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type stage struct {
	name string
	run  func(ctx context.Context, state *State, req Request)
}

// Run executes the workflow stages in order and returns the accumulated
// result. Per-stage failures land in the result's error list and later
// stages tolerate the resulting empty inputs; only context cancellation
// (surfaced as ErrTerminated) and pre-stage preference loading abort the run.
// A final "complete" progress event is always emitted.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if o.recorder != nil {
		o.recorder.StartSession()
	}
	o.logger.Info().Str("username", req.Username).Msg("starting maintenance workflow")

	if req.Preferences == nil {
		prefs, err := o.store.LoadPreferences(req.Username)
		if err != nil {
			return nil, fmt.Errorf("loading preferences: %w", err)
		}
		if prefs == nil {
			prefs = models.DefaultPreferences(req.Username)
		}
		req.Preferences = prefs
	}

	state := &State{
		Username:    req.Username,
		Filters:     req.Filters,
		Preferences: req.Preferences,
	}
	defer o.emit(req.OnProgress, "complete", "Analysis complete", 0, 0, nil)

	stages := []stage{
		{"initialize_session", o.initializeSession},
		{"fetch_repositories", o.fetchRepositories},
		{"analyze_repositories", o.analyzeRepositories},
		{"generate_suggestions", o.generateSuggestions},
		{"request_approvals", o.requestApprovals},
		{"create_issues", o.createIssues},
		{"finalize_session", o.finalizeSession},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			o.logger.Warn().Str("stage", s.name).Msg("workflow interrupted")
			return o.result(state), fmt.Errorf("%w before stage %s: %v", ErrTerminated, s.name, err)
		}
		o.logger.Debug().Str("stage", s.name).Msg("executing workflow stage")
		s.run(ctx, state, req)
	}

	result := o.result(state)
	o.logger.Info().
		Int("repos", len(result.RepositoriesAnalyzed)).
		Int("suggestions", len(result.Suggestions)).
		Int("issues", len(result.IssuesCreated)).
		Int("errors", len(result.Errors)).
		Msg("workflow complete")
	return result, nil
}

func (o *Orchestrator) result(state *State) *Result {
	analyzed := make([]string, 0, len(state.Repositories))
	for _, r := range state.Repositories {
		analyzed = append(analyzed, r.FullName)
	}
	var sessionMetrics models.SessionMetrics
	if o.recorder != nil {
		sessionMetrics = o.recorder.SessionMetrics()
	}
	return &Result{
		SessionID:            state.SessionID,
		Username:             state.Username,
		RepositoriesAnalyzed: analyzed,
		Suggestions:          state.Suggestions,
		IssuesCreated:        state.Issues,
		Metrics:              sessionMetrics,
		Errors:               state.Errors,
	}
}

func (o *Orchestrator) initializeSession(_ context.Context, state *State, req Request) {
	state.SessionID = uuid.NewString()
	o.emit(req.OnProgress, "initialization", fmt.Sprintf("Initializing session for user: %s", state.Username), 0, 0, nil)
	o.logger.Info().Str("session_id", state.SessionID).Msg("session created")
}

func (o *Orchestrator) fetchRepositories(ctx context.Context, state *State, req Request) {
	o.emit(req.OnProgress, "fetching", fmt.Sprintf("Fetching repositories for %s", state.Username), 0, 0, nil)

	repos, err := o.repos.ListRepositories(ctx, state.Username, state.Filters)
	if err != nil {
		o.logger.Error().Err(err).Msg("fetching repositories failed")
		state.addError("fetch_repositories", err)
		return
	}
	state.Repositories = repos
	o.logger.Info().Int("count", len(repos)).Msg("repositories fetched")
}

func (o *Orchestrator) analyzeRepositories(ctx context.Context, state *State, req Request) {
	if len(state.Repositories) == 0 {
		o.logger.Warn().Msg("no repositories to analyze")
		return
	}
	o.emit(req.OnProgress, "analyzing",
		fmt.Sprintf("Analyzing %d repositories", len(state.Repositories)), 0, len(state.Repositories), nil)

	analyses, failures := o.analyzer.AnalyzeAll(ctx, state.Repositories)
	for _, f := range failures {
		state.addError(f.Repository.FullName, f.Err)
	}

	state.Analyses = analyses
	stored := o.storedProfiles(failures)
	state.Profiles = make([]*models.RepositoryProfile, 0, len(analyses))
	for _, a := range analyses {
		state.Profiles = append(state.Profiles, a.Profile)
		if err := o.store.SaveProfile(a.Profile); err != nil {
			o.logger.Warn().Err(err).Str("repo", a.Repository.FullName).Msg("saving profile failed")
		}
	}
	state.Profiles = append(state.Profiles, stored...)

	o.emit(req.OnProgress, "analyzing",
		fmt.Sprintf("Completed analysis of %d repositories", len(analyses)),
		len(analyses), len(state.Repositories), nil)
	o.logger.Info().Int("analyzed", len(analyses)).Int("failed", len(failures)).Msg("analysis complete")
}

// storedProfiles recovers previously saved profiles for repositories whose
// analysis failed this run, so suggestion generation can still cover them.
func (o *Orchestrator) storedProfiles(failures []analyzer.Failure) []*models.RepositoryProfile {
	var profiles []*models.RepositoryProfile
	for _, f := range failures {
		profile, err := o.store.LoadProfile(f.Repository.FullName)
		if err != nil || profile == nil {
			continue
		}
		o.logger.Info().Str("repo", f.Repository.FullName).
			Time("last_analyzed", profile.LastAnalyzed).
			Msg("analysis failed, using stored profile")
		profiles = append(profiles, profile)
	}
	return profiles
}

func (o *Orchestrator) generateSuggestions(ctx context.Context, state *State, req Request) {
	if len(state.Profiles) == 0 {
		o.logger.Warn().Msg("no profiles to generate suggestions from")
		return
	}
	o.emit(req.OnProgress, "generating_suggestions", "Generating maintenance suggestions", 0, 0, nil)

	state.Suggestions = o.engine.GenerateSuggestions(ctx, state.Profiles, state.Preferences)
	o.logger.Info().Int("count", len(state.Suggestions)).Msg("suggestions generated")
}

func (o *Orchestrator) requestApprovals(_ context.Context, state *State, req Request) {
	if len(state.Suggestions) == 0 {
		o.logger.Info().Msg("no suggestions to approve")
		return
	}
	o.emit(req.OnProgress, "requesting_approvals",
		fmt.Sprintf("Requesting approval for %d suggestions", len(state.Suggestions)), 0, 0, nil)

	level := models.AutomationManual
	if state.Preferences != nil {
		level = state.Preferences.AutomationLevel
	}
	gate := ApprovalGate{Level: level, Callback: req.OnApproval, Logger: o.logger}
	state.Approved = gate.Approve(state.Suggestions)

	if o.recorder != nil {
		approved := make(map[string]bool, len(state.Approved))
		for _, s := range state.Approved {
			approved[s.ID] = true
		}
		for _, s := range state.Suggestions {
			o.recorder.RecordApproval(approved[s.ID])
		}
	}
}

func (o *Orchestrator) createIssues(ctx context.Context, state *State, req Request) {
	if len(state.Approved) == 0 {
		o.logger.Info().Msg("no approved suggestions to create issues for")
		return
	}
	o.emit(req.OnProgress, "creating_issues", "Creating tracker issues", 0, len(state.Approved), nil)

	for i, s := range state.Approved {
		result := o.engine.CreateIssue(ctx, s, state.Preferences)
		state.Issues = append(state.Issues, result)
		if !result.Success {
			state.addError(s.Repository.FullName, fmt.Errorf("creating issue %q: %s", s.Title, result.ErrorMessage))
		}

		var meta map[string]any
		if result.Success {
			meta = map[string]any{"issue_url": result.IssueURL}
		}
		o.emit(req.OnProgress, "creating_issues",
			fmt.Sprintf("Created issue for: %s", s.Title), i+1, len(state.Approved), meta)
	}

	var succeeded int
	for _, r := range state.Issues {
		if r.Success {
			succeeded++
		}
	}
	o.logger.Info().Int("created", succeeded).Int("attempted", len(state.Approved)).Msg("issue creation complete")
}

func (o *Orchestrator) finalizeSession(_ context.Context, state *State, req Request) {
	o.emit(req.OnProgress, "finalizing", "Finalizing session and calculating metrics", 0, 0, nil)

	if o.recorder != nil {
		m := o.recorder.SessionMetrics()
		o.logger.Info().
			Int("repos_analyzed", m.ReposAnalyzed).
			Int("suggestions", m.SuggestionsGenerated).
			Int("issues", m.IssuesCreated).
			Int("errors", len(state.Errors)).
			Float64("execution_seconds", m.ExecutionTimeSeconds).
			Msg("session finalized")
	}
}

// emit invokes the progress callback, swallowing panics so a broken callback
// never aborts the run.
func (o *Orchestrator) emit(cb ProgressFunc, stageName, message string, current, total int, metadata map[string]any) {
	if total > 0 {
		o.logger.Info().Str("stage", stageName).Int("current", current).Int("total", total).Msg(message)
	} else {
		o.logger.Info().Str("stage", stageName).Msg(message)
	}
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn().Interface("panic", r).Str("stage", stageName).Msg("progress callback failed")
		}
	}()
	cb(ProgressEvent{
		Stage:     stageName,
		Message:   message,
		Current:   current,
		Total:     total,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
}
