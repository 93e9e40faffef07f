// Package github wraps the GitHub API for repository analysis and issue
// creation. Every call goes through bounded retry with a per-call timeout,
// and API errors are mapped onto the shared error taxonomy.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	apperrors "github.com/p-blackswan/repo-maintainer/internal/errors"
	"github.com/p-blackswan/repo-maintainer/internal/models"
	"github.com/p-blackswan/repo-maintainer/internal/retry"
)

const (
	defaultCallTimeout = 30 * time.Second
	maxListPages       = 10
	readmeFetchCap     = 10000
)

// Recorder receives API call observations. Implemented by metrics.Collector.
type Recorder interface {
	RecordAPICall(service, endpoint string, duration time.Duration, success bool, errMsg string)
	RecordError(errType string)
}

// Client wraps the GitHub API for the maintenance workflow.
type Client struct {
	gh          *gh.Client
	retryCfg    retry.Config
	callTimeout time.Duration
	recorder    Recorder
	logger      zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewTokenClient creates a Client authenticated with a personal access token.
func NewTokenClient(token string, logger zerolog.Logger, opts ...Option) *Client {
	return newClient(gh.NewClient(nil).WithAuthToken(token), logger, opts...)
}

// NewAppClient creates a Client authenticated as a GitHub App installation.
func NewAppClient(auth *AppAuth, logger zerolog.Logger, opts ...Option) *Client {
	httpClient := &http.Client{Transport: auth.Transport(), Timeout: defaultCallTimeout}
	return newClient(gh.NewClient(httpClient), logger, opts...)
}

// NewFromGoGithub wraps an existing go-github client (useful for testing
// against a local server).
func NewFromGoGithub(client *gh.Client, logger zerolog.Logger, opts ...Option) *Client {
	return newClient(client, logger, opts...)
}

func newClient(client *gh.Client, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		gh:          client,
		retryCfg:    retry.DefaultConfig(),
		callTimeout: defaultCallTimeout,
		logger:      logger.With().Str("component", "github").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRepositories fetches all repositories for a user, most recently updated
// first, applying the given filters client-side.
func (c *Client) ListRepositories(ctx context.Context, username string, filters models.RepositoryFilters) ([]models.Repository, error) {
	start := time.Now()
	var repos []models.Repository

	err := c.call(ctx, func(ctx context.Context) error {
		repos = repos[:0]
		opts := &gh.RepositoryListByUserOptions{
			Type:        "all",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: 100},
		}
		for page := 0; page < maxListPages; page++ {
			pageRepos, resp, err := c.gh.Repositories.ListByUser(ctx, username, opts)
			if err != nil {
				return c.mapError(err)
			}
			for _, r := range pageRepos {
				repo := parseRepository(r)
				if filters.Matches(&repo) {
					repos = append(repos, repo)
				}
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		return nil
	})

	c.record("list_repos", start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("username", username).Msg("failed to list repositories")
		return nil, err
	}

	c.logger.Info().Str("username", username).Int("count", len(repos)).Msg("repositories fetched")
	return repos, nil
}

// GetOverview fetches repository metadata, README, top-level contents and
// language statistics, and derives the CI / tests / CONTRIBUTING flags.
func (c *Client) GetOverview(ctx context.Context, owner, repo string) (*models.RepositoryOverview, error) {
	start := time.Now()
	var overview *models.RepositoryOverview

	err := c.call(ctx, func(ctx context.Context) error {
		ghRepo, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return c.mapError(err)
		}

		readme := c.fetchReadme(ctx, owner, repo)
		files := c.fetchFileStructure(ctx, owner, repo)

		languages, _, err := c.gh.Repositories.ListLanguages(ctx, owner, repo)
		if err != nil {
			return c.mapError(err)
		}

		overview = &models.RepositoryOverview{
			Repository:      parseRepository(ghRepo),
			ReadmeContent:   readme,
			FileStructure:   files,
			Languages:       languages,
			HasCIConfig:     DetectCIConfig(files),
			HasTests:        DetectTests(files),
			HasContributing: DetectContributing(files),
		}
		return nil
	})

	c.record("get_repo_overview", start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("repo", owner+"/"+repo).Msg("failed to fetch overview")
		return nil, err
	}
	return overview, nil
}

// GetHistory fetches commit activity, issue and PR counts, and the
// contributor count for a repository.
func (c *Client) GetHistory(ctx context.Context, owner, repo string, commitLimit int) (*models.RepositoryHistory, error) {
	if commitLimit <= 0 || commitLimit > 100 {
		commitLimit = 100
	}
	fullName := owner + "/" + repo

	start := time.Now()
	var history *models.RepositoryHistory

	err := c.call(ctx, func(ctx context.Context) error {
		commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
			ListOptions: gh.ListOptions{PerPage: commitLimit},
		})
		if err != nil {
			return c.mapError(err)
		}

		recent := make([]models.CommitSummary, 0, len(commits))
		for _, cm := range commits {
			recent = append(recent, parseCommit(cm))
		}
		var lastCommit time.Time
		if len(recent) > 0 {
			lastCommit = recent[0].Date
		}

		ghRepo, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return c.mapError(err)
		}

		closedIssues := c.searchCount(ctx, fmt.Sprintf("repo:%s is:issue is:closed", fullName))
		openPRs := c.searchCount(ctx, fmt.Sprintf("repo:%s is:pr is:open", fullName))
		mergedPRs := c.searchCount(ctx, fmt.Sprintf("repo:%s is:pr is:merged", fullName))

		contributors, _, err := c.gh.Repositories.ListContributors(ctx, owner, repo, &gh.ListContributorsOptions{
			ListOptions: gh.ListOptions{PerPage: 100},
		})
		if err != nil {
			return c.mapError(err)
		}

		history = &models.RepositoryHistory{
			CommitCount:       len(commits),
			LastCommitDate:    lastCommit,
			RecentCommits:     recent,
			OpenIssuesCount:   ghRepo.GetOpenIssuesCount(),
			ClosedIssuesCount: closedIssues,
			OpenPRsCount:      openPRs,
			MergedPRsCount:    mergedPRs,
			ContributorsCount: len(contributors),
		}
		return nil
	})

	c.record("get_repo_history", start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("repo", fullName).Msg("failed to fetch history")
		return nil, err
	}
	return history, nil
}

// CreateIssue files a tracker issue. Failures are reported in the result as
// well as the returned error so callers can record them without losing the
// partial outcome.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (models.IssueResult, error) {
	start := time.Now()
	var result models.IssueResult

	err := c.call(ctx, func(ctx context.Context) error {
		issue, _, err := c.gh.Issues.Create(ctx, owner, repo, &gh.IssueRequest{
			Title:  gh.String(title),
			Body:   gh.String(body),
			Labels: &labels,
		})
		if err != nil {
			return c.mapError(err)
		}
		result = models.IssueResult{
			Success:     true,
			IssueURL:    issue.GetHTMLURL(),
			IssueNumber: issue.GetNumber(),
		}
		return nil
	})

	c.record("create_issue", start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("repo", owner+"/"+repo).Str("title", title).Msg("failed to create issue")
		return models.IssueResult{Success: false, ErrorMessage: err.Error()}, err
	}

	c.logger.Info().
		Str("repo", owner+"/"+repo).
		Int("issue_number", result.IssueNumber).
		Str("url", result.IssueURL).
		Msg("issue created")
	return result, nil
}

// call runs fn under the retry policy with a per-attempt timeout.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		return fn(callCtx)
	})
}

func (c *Client) record(endpoint string, start time.Time, err error) {
	if c.recorder == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	c.recorder.RecordAPICall("github", endpoint, time.Since(start), err == nil, errMsg)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.recorder.RecordError("repository_not_found")
		} else {
			c.recorder.RecordError("github_api_error")
		}
	}
}

// fetchReadme returns decoded README content capped at readmeFetchCap, or ""
// when the repository has none.
func (c *Client) fetchReadme(ctx context.Context, owner, repo string) string {
	readme, _, err := c.gh.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		c.logger.Debug().Str("repo", owner+"/"+repo).Msg("no README found")
		return ""
	}
	content, err := readme.GetContent()
	if err != nil {
		c.logger.Warn().Err(err).Str("repo", owner+"/"+repo).Msg("failed to decode README")
		return ""
	}
	if len(content) > readmeFetchCap {
		content = content[:readmeFetchCap]
	}
	return content
}

// fetchFileStructure returns the top-level file and directory names.
func (c *Client) fetchFileStructure(ctx context.Context, owner, repo string) []string {
	_, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, "", nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("repo", owner+"/"+repo).Msg("failed to fetch file structure")
		return nil
	}
	names := make([]string, 0, len(dir))
	for _, item := range dir {
		names = append(names, item.GetName())
	}
	return names
}

// searchCount returns the total hits for a search query, or 0 on failure.
// Counts feed health heuristics only, so failures degrade rather than abort.
func (c *Client) searchCount(ctx context.Context, query string) int {
	result, _, err := c.gh.Search.Issues(ctx, query, &gh.SearchOptions{
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("query", query).Msg("search count unavailable")
		return 0
	}
	return result.GetTotal()
}

// mapError translates go-github errors onto the shared taxonomy.
func (c *Client) mapError(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.APIError{Service: "github", StatusCode: http.StatusForbidden, Message: "rate limit exceeded", Err: apperrors.ErrRateLimit}
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &apperrors.APIError{Service: "github", StatusCode: http.StatusForbidden, Message: "secondary rate limit", Err: apperrors.ErrRateLimit}
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		status := respErr.Response.StatusCode
		msg := respErr.Message
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if strings.Contains(strings.ToLower(msg), "rate limit") {
				return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg, Err: apperrors.ErrRateLimit}
			}
			return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg, Err: apperrors.ErrAuthFailure}
		case status == http.StatusNotFound:
			return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg, Err: apperrors.ErrNotFound}
		case status == http.StatusUnprocessableEntity:
			return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg, Err: apperrors.ErrInvalidInput}
		case status == http.StatusTooManyRequests:
			return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg, Err: apperrors.ErrRateLimit}
		case status >= 500:
			return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg, Err: apperrors.ErrUnavailable}
		default:
			return &apperrors.APIError{Service: "github", StatusCode: status, Message: msg}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("github request: %w", apperrors.ErrTimeout)
	}
	return fmt.Errorf("github request failed: %w", err)
}

func parseRepository(r *gh.Repository) models.Repository {
	visibility := "public"
	if r.GetPrivate() {
		visibility = "private"
	}
	branch := r.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	return models.Repository{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Owner:         r.GetOwner().GetLogin(),
		URL:           r.GetHTMLURL(),
		DefaultBranch: branch,
		Visibility:    visibility,
		Language:      r.GetLanguage(),
		Archived:      r.GetArchived(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}

func parseCommit(cm *gh.RepositoryCommit) models.CommitSummary {
	commit := cm.GetCommit()
	message := commit.GetMessage()
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		message = message[:idx]
	}
	return models.CommitSummary{
		SHA:     cm.GetSHA(),
		Message: message,
		Author:  commit.GetAuthor().GetName(),
		Date:    commit.GetAuthor().GetDate().Time,
	}
}
