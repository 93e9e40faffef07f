package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/repo-maintainer/internal/analyzer"
	"github.com/p-blackswan/repo-maintainer/internal/config"
	ghclient "github.com/p-blackswan/repo-maintainer/internal/github"
	"github.com/p-blackswan/repo-maintainer/internal/health"
	"github.com/p-blackswan/repo-maintainer/internal/llm"
	"github.com/p-blackswan/repo-maintainer/internal/maintainer"
	"github.com/p-blackswan/repo-maintainer/internal/memory"
	"github.com/p-blackswan/repo-maintainer/internal/metrics"
	"github.com/p-blackswan/repo-maintainer/internal/mgmt"
	"github.com/p-blackswan/repo-maintainer/internal/models"
	"github.com/p-blackswan/repo-maintainer/internal/notify"
	"github.com/p-blackswan/repo-maintainer/internal/retry"
	"github.com/p-blackswan/repo-maintainer/internal/workflow"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("username", cfg.GitHubUsername).
		Str("automation_level", cfg.AutomationLevel).
		Bool("generator_enabled", cfg.GeneratorEnabled()).
		Dur("watch_interval", cfg.WatchInterval).
		Msg("starting repo maintainer")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		cancel()
	}()

	retryCfg := retry.Config{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	collector := metrics.NewCollector()

	// Persistent memory (profiles, preferences, filed suggestions)
	bank, err := memory.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open memory bank")
	}
	defer bank.Close()

	// GitHub client — App credentials win over a plain token
	var gh *ghclient.Client
	if cfg.GitHubAppEnabled() {
		auth, authErr := ghclient.NewAppAuth(cfg.GitHubAppID, cfg.GitHubInstallationID, cfg.GitHubPrivateKeyPath, logger)
		if authErr != nil {
			logger.Fatal().Err(authErr).Msg("failed to init GitHub App auth")
		}
		gh = ghclient.NewAppClient(auth, logger, ghclient.WithRetryConfig(retryCfg), ghclient.WithRecorder(collector))
		logger.Info().Int64("app_id", cfg.GitHubAppID).Msg("GitHub App client initialized")
	} else {
		gh = ghclient.NewTokenClient(cfg.GitHubToken, logger, ghclient.WithRetryConfig(retryCfg), ghclient.WithRecorder(collector))
		logger.Info().Msg("GitHub token client initialized")
	}

	// Suggestion generator (optional — rule-based assessment otherwise)
	var provider llm.Provider
	if cfg.GeneratorEnabled() {
		provider = llm.NewAnthropicProvider(cfg.AnthropicAPIKey, logger,
			llm.WithModel(cfg.AnthropicModel),
			llm.WithMaxTokens(cfg.GeneratorMaxTokens),
		)
		logger.Info().Str("model", cfg.AnthropicModel).Msg("suggestion generator enabled")
	} else {
		logger.Info().Msg("no generator configured — using rule-based assessment")
	}

	assessor := analyzer.NewAssessor(provider, logger,
		analyzer.WithAssessorRetry(retryCfg),
		analyzer.WithAssessorRecorder(collector),
	)
	par := analyzer.NewParallelAnalyzer(gh, assessor, logger,
		analyzer.WithWorkers(cfg.MaxConcurrentAnalyses),
		analyzer.WithRecorder(collector),
	)
	engine := maintainer.New(provider, bank, gh, logger,
		maintainer.WithRetryConfig(retryCfg),
		maintainer.WithRecorder(collector),
	)

	var lister workflow.RepoLister = gh
	if cfg.RepoLimit > 0 {
		lister = &cappedLister{inner: gh, limit: cfg.RepoLimit}
	}

	orch := workflow.New(lister, par, engine, bank, logger, workflow.WithRecorder(collector))

	prefs, err := config.LoadPreferences(cfg.PreferencesPath, cfg.GitHubUsername)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load preferences")
	}
	if cfg.PreferencesPath == "" {
		prefs.AutomationLevel = cfg.Automation()
	}

	var notifier *notify.Notifier
	if cfg.SlackEnabled() {
		notifier = notify.New(cfg.SlackBotToken, cfg.SlackSummaryChannel, logger)
		logger.Info().Str("channel", cfg.SlackSummaryChannel).Msg("Slack run summaries enabled")
	}

	req := workflow.Request{
		Username:    cfg.GitHubUsername,
		Preferences: prefs,
		OnProgress:  progressPrinter(logger),
	}
	if prefs.AutomationLevel != models.AutomationAuto {
		req.OnApproval = promptApproval(os.Stdin, os.Stdout)
	}

	runOnce := func() (*workflow.Result, error) {
		result, runErr := orch.Run(ctx, req)
		if runErr != nil {
			if errors.Is(runErr, workflow.ErrTerminated) {
				logger.Warn().Err(runErr).Msg("workflow terminated early")
			} else {
				logger.Error().Err(runErr).Msg("workflow failed")
			}
		}
		if result != nil {
			logger.Info().
				Str("session_id", result.SessionID).
				Int("repos_analyzed", len(result.RepositoriesAnalyzed)).
				Int("suggestions", len(result.Suggestions)).
				Int("issues_created", result.Metrics.IssuesCreated).
				Int("tokens_used", result.Metrics.TokensUsed).
				Float64("duration_seconds", result.Metrics.ExecutionTimeSeconds).
				Int("errors", len(result.Errors)).
				Msg("maintenance run finished")
			notifier.PostRunSummary(result)
		}
		return result, runErr
	}

	if cfg.WatchInterval <= 0 {
		if _, runErr := runOnce(); runErr != nil {
			os.Exit(1)
		}
		return
	}

	// Watch mode: periodic runs plus the management API for inspection.
	var wg sync.WaitGroup
	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{ListenAddr: cfg.MgmtListenAddr}, collector, logger)
	mgmtServer.RegisterCheck("database", func(ctx context.Context) health.Status {
		if err := bank.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	ticker := time.NewTicker(cfg.WatchInterval)
	defer ticker.Stop()

	if result, _ := runOnce(); result != nil {
		mgmtServer.SetLatestRun(result)
	}
	for {
		select {
		case <-ctx.Done():
			if err := mgmtServer.Shutdown(); err != nil {
				logger.Error().Err(err).Msg("management API server shutdown error")
			}
			wg.Wait()
			logger.Info().Msg("repo maintainer stopped")
			return
		case <-ticker.C:
			if result, _ := runOnce(); result != nil {
				mgmtServer.SetLatestRun(result)
			}
		}
	}
}

// cappedLister truncates the repository list to a fixed size.
type cappedLister struct {
	inner workflow.RepoLister
	limit int
}

func (l *cappedLister) ListRepositories(ctx context.Context, username string, filters models.RepositoryFilters) ([]models.Repository, error) {
	repos, err := l.inner.ListRepositories(ctx, username, filters)
	if err != nil {
		return nil, err
	}
	if len(repos) > l.limit {
		repos = repos[:l.limit]
	}
	return repos, nil
}

func progressPrinter(logger zerolog.Logger) workflow.ProgressFunc {
	return func(ev workflow.ProgressEvent) {
		e := logger.Info().Str("stage", ev.Stage)
		if ev.Total > 0 {
			e = e.Int("current", ev.Current).Int("total", ev.Total)
		}
		e.Msg(ev.Message)
	}
}

// promptApproval reads y/n decisions for each suggestion from the terminal.
// "a" approves everything remaining, "q" rejects everything remaining.
func promptApproval(in *os.File, out *os.File) workflow.ApprovalFunc {
	return func(suggestions []models.MaintenanceSuggestion) ([]models.MaintenanceSuggestion, error) {
		fmt.Fprintf(out, "\n%d suggestion(s) pending approval:\n\n", len(suggestions))
		scanner := bufio.NewScanner(in)
		approved := make([]models.MaintenanceSuggestion, 0, len(suggestions))
		for i, s := range suggestions {
			fmt.Fprintf(out, "[%d/%d] %s — %s\n", i+1, len(suggestions), s.Repository.FullName, s.Title)
			fmt.Fprintf(out, "      %s/%s, effort %s\n", s.Category, s.Priority, s.EstimatedEffort)
			if s.Rationale != "" {
				fmt.Fprintf(out, "      %s\n", s.Rationale)
			}
			fmt.Fprintf(out, "File this issue? [y/n/a/q]: ")
			if !scanner.Scan() {
				return approved, scanner.Err()
			}
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "y", "yes":
				approved = append(approved, s)
			case "a", "all":
				approved = append(approved, suggestions[i:]...)
				return approved, nil
			case "q", "quit", "none":
				return approved, nil
			}
		}
		return approved, nil
	}
}
