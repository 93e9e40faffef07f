// Package analyzer fans repository analysis out across a bounded worker pool
// and turns generated assessments into validated health snapshots and
// profiles, with deterministic rule-based fallbacks.
package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// DefaultWorkers is the default analysis pool size.
const DefaultWorkers = 5

const historyCommitLimit = 100

// RepoClient fetches repository content and activity data. Implemented by
// github.Client.
type RepoClient interface {
	GetOverview(ctx context.Context, owner, repo string) (*models.RepositoryOverview, error)
	GetHistory(ctx context.Context, owner, repo string, commitLimit int) (*models.RepositoryHistory, error)
}

// Analysis is the complete result for one repository.
type Analysis struct {
	Repository models.Repository
	Overview   *models.RepositoryOverview
	History    *models.RepositoryHistory
	Health     models.HealthSnapshot
	Profile    *models.RepositoryProfile
}

// Failure pairs a repository with the error that stopped its analysis.
type Failure struct {
	Repository models.Repository
	Err        error
}

// ParallelAnalyzer runs per-repository analysis across a bounded worker pool.
type ParallelAnalyzer struct {
	repos    RepoClient
	assessor *Assessor
	workers  int
	recorder Recorder
	logger   zerolog.Logger
}

// AnalyzerOption customizes a ParallelAnalyzer.
type AnalyzerOption func(*ParallelAnalyzer)

// WithWorkers sets the pool size. Values below 1 keep the default.
func WithWorkers(n int) AnalyzerOption {
	return func(a *ParallelAnalyzer) {
		if n >= 1 {
			a.workers = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) AnalyzerOption {
	return func(a *ParallelAnalyzer) { a.recorder = r }
}

// NewParallelAnalyzer creates an analyzer over the given repository client
// and assessor.
func NewParallelAnalyzer(repos RepoClient, assessor *Assessor, logger zerolog.Logger, opts ...AnalyzerOption) *ParallelAnalyzer {
	a := &ParallelAnalyzer{
		repos:    repos,
		assessor: assessor,
		workers:  DefaultWorkers,
		logger:   logger.With().Str("component", "analyzer").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeAll analyzes every repository, returning successful analyses in
// completion order plus a (repository, error) pair for each failure.
// Already-completed work is never discarded: with N inputs and K failures
// the result is exactly N-K analyses and K failures.
func (a *ParallelAnalyzer) AnalyzeAll(ctx context.Context, repos []models.Repository) ([]Analysis, []Failure) {
	if len(repos) == 0 {
		return nil, nil
	}

	workers := a.workers
	if workers > len(repos) {
		workers = len(repos)
	}

	a.logger.Info().Int("repos", len(repos)).Int("workers", workers).Msg("starting parallel analysis")

	type outcome struct {
		analysis *Analysis
		failure  *Failure
	}

	jobs := make(chan models.Repository)
	results := make(chan outcome, len(repos))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for repo := range jobs {
				analysis, err := a.AnalyzeRepository(ctx, repo)
				if err != nil {
					results <- outcome{failure: &Failure{Repository: repo, Err: err}}
					continue
				}
				results <- outcome{analysis: analysis}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, repo := range repos {
			select {
			case jobs <- repo:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var analyses []Analysis
	var failures []Failure
	for out := range results {
		if out.failure != nil {
			failures = append(failures, *out.failure)
			continue
		}
		analyses = append(analyses, *out.analysis)
	}

	a.logger.Info().
		Int("succeeded", len(analyses)).
		Int("failed", len(failures)).
		Msg("parallel analysis complete")
	return analyses, failures
}

// AnalyzeRepository runs the full analysis for one repository: fetch
// overview and history, assess health, build the profile.
func (a *ParallelAnalyzer) AnalyzeRepository(ctx context.Context, repo models.Repository) (*Analysis, error) {
	start := time.Now()

	analysis, err := a.analyze(ctx, repo)

	if a.recorder != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		a.recorder.RecordAnalysis(repo.FullName, time.Since(start), err == nil, errMsg)
	}
	if err != nil {
		a.logger.Error().Err(err).Str("repo", repo.FullName).Msg("analysis failed")
		return nil, err
	}

	a.logger.Info().
		Str("repo", repo.FullName).
		Float64("health_score", analysis.Health.OverallHealthScore).
		Int("issues_found", len(analysis.Health.Issues)).
		Msg("repository analyzed")
	return analysis, nil
}

func (a *ParallelAnalyzer) analyze(ctx context.Context, repo models.Repository) (*Analysis, error) {
	overview, err := a.repos.GetOverview(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, err
	}
	history, err := a.repos.GetHistory(ctx, repo.Owner, repo.Name, historyCommitLimit)
	if err != nil {
		return nil, err
	}

	health := a.assessor.AssessHealth(ctx, overview, history)
	profile := a.assessor.BuildProfile(ctx, repo, overview, history, health)

	return &Analysis{
		Repository: repo,
		Overview:   overview,
		History:    history,
		Health:     health,
		Profile:    profile,
	}, nil
}
