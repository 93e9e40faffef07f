// Package metrics provides session-scoped metrics collection for the
// maintenance workflow, with a Prometheus mirror for the /metrics endpoint.
//
// The Collector is the only structure shared across analysis workers, so a
// single mutex guards every mutating and reading operation.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// APICallMetric records a single external API call.
type APICallMetric struct {
	Service    string
	Endpoint   string
	DurationMS float64
	Success    bool
	Error      string
	Timestamp  time.Time
}

// AnalysisMetric records one repository analysis.
type AnalysisMetric struct {
	Repository string
	DurationMS float64
	Success    bool
	Error      string
	Timestamp  time.Time
}

// TokenUsageMetric records generator token consumption for one call.
type TokenUsageMetric struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Timestamp        time.Time
}

// Collector accumulates metrics for one orchestration session.
type Collector struct {
	mu sync.Mutex

	sessionStart time.Time

	analyses   []AnalysisMetric
	apiCalls   []APICallMetric
	tokenUsage []TokenUsageMetric

	reposAnalyzed        int
	suggestionsGenerated int
	issuesCreated        int
	userApprovals        int
	userRejections       int
	githubAPICalls       int
	generatorAPICalls    int

	suggestionsByCategory map[models.Category]int
	suggestionsByPriority map[models.Priority]int
	errorCounts           map[string]int
	recoveryCounts        map[string]int

	registry         *prometheus.Registry
	promAPICalls     *prometheus.CounterVec
	promAPIDuration  *prometheus.HistogramVec
	promSuggestions  *prometheus.CounterVec
	promIssues       prometheus.Counter
	promApprovals    *prometheus.CounterVec
	promErrors       *prometheus.CounterVec
	promRecoveries   *prometheus.CounterVec
	promTokens       *prometheus.CounterVec
	promReposScanned prometheus.Counter
}

// NewCollector creates a collector with a fresh Prometheus registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		suggestionsByCategory: make(map[models.Category]int),
		suggestionsByPriority: make(map[models.Priority]int),
		errorCounts:           make(map[string]int),
		recoveryCounts:        make(map[string]int),
		registry:              reg,
		promAPICalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maintainer_api_calls_total",
				Help: "Total external API calls by service and status.",
			},
			[]string{"service", "status"},
		),
		promAPIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maintainer_api_call_duration_seconds",
				Help:    "External API call duration by service.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		promSuggestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maintainer_suggestions_total",
				Help: "Generated maintenance suggestions by category and priority.",
			},
			[]string{"category", "priority"},
		),
		promIssues: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maintainer_issues_created_total",
				Help: "Total tracker issues created.",
			},
		),
		promApprovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maintainer_approval_decisions_total",
				Help: "Approval decisions by result.",
			},
			[]string{"result"},
		),
		promErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maintainer_errors_total",
				Help: "Total errors by type.",
			},
			[]string{"type"},
		),
		promRecoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maintainer_recoveries_total",
				Help: "Successful fallback recoveries by type.",
			},
			[]string{"type"},
		),
		promTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maintainer_tokens_used_total",
				Help: "Generator tokens consumed by model and kind.",
			},
			[]string{"model", "kind"},
		),
		promReposScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maintainer_repos_analyzed_total",
				Help: "Total repositories successfully analyzed.",
			},
		),
	}

	reg.MustRegister(c.promAPICalls, c.promAPIDuration, c.promSuggestions,
		c.promIssues, c.promApprovals, c.promErrors, c.promRecoveries,
		c.promTokens, c.promReposScanned)

	return c
}

// Handler returns an http.Handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartSession marks the start of an orchestration session. Per-session
// counters from any previous run are cleared so each run reports only its
// own work; the Prometheus registry keeps accumulating across sessions.
func (c *Collector) StartSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.sessionStart = time.Now()
}

// RecordAnalysis records the duration and outcome of one repository analysis.
func (c *Collector) RecordAnalysis(repo string, duration time.Duration, success bool, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyses = append(c.analyses, AnalysisMetric{
		Repository: repo,
		DurationMS: float64(duration.Milliseconds()),
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now(),
	})
	if success {
		c.reposAnalyzed++
		c.promReposScanned.Inc()
	}
}

// RecordAPICall records one external API call.
func (c *Collector) RecordAPICall(service, endpoint string, duration time.Duration, success bool, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiCalls = append(c.apiCalls, APICallMetric{
		Service:    service,
		Endpoint:   endpoint,
		DurationMS: float64(duration.Milliseconds()),
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now(),
	})
	switch service {
	case "github":
		c.githubAPICalls++
	case "generator":
		c.generatorAPICalls++
	}
	status := "success"
	if !success {
		status = "error"
	}
	c.promAPICalls.WithLabelValues(service, status).Inc()
	c.promAPIDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordTokenUsage records generator token consumption.
func (c *Collector) RecordTokenUsage(model string, promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenUsage = append(c.tokenUsage, TokenUsageMetric{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Timestamp:        time.Now(),
	})
	c.promTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.promTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// RecordSuggestion records a generated suggestion.
func (c *Collector) RecordSuggestion(repo string, category models.Category, priority models.Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestionsGenerated++
	c.suggestionsByCategory[category]++
	c.suggestionsByPriority[priority]++
	c.promSuggestions.WithLabelValues(string(category), string(priority)).Inc()
}

// RecordIssueCreated records a successfully created tracker issue.
func (c *Collector) RecordIssueCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issuesCreated++
	c.promIssues.Inc()
}

// RecordApproval records one user approval decision.
func (c *Collector) RecordApproval(approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if approved {
		c.userApprovals++
		c.promApprovals.WithLabelValues("approved").Inc()
	} else {
		c.userRejections++
		c.promApprovals.WithLabelValues("rejected").Inc()
	}
}

// RecordError records an error occurrence by type.
func (c *Collector) RecordError(errType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCounts[errType]++
	c.promErrors.WithLabelValues(errType).Inc()
}

// RecordRecovery records a successful fallback recovery by type.
func (c *Collector) RecordRecovery(recoveryType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recoveryCounts[recoveryType]++
	c.promRecoveries.WithLabelValues(recoveryType).Inc()
}

// SessionDuration returns seconds since StartSession, or 0 before it.
func (c *Collector) SessionDuration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionStart.IsZero() {
		return 0
	}
	return time.Since(c.sessionStart).Seconds()
}

// AverageAnalysisDuration returns the mean duration of successful analyses in ms.
func (c *Collector) AverageAnalysisDuration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	var n int
	for _, m := range c.analyses {
		if m.Success {
			total += m.DurationMS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// AverageAPILatency returns the mean latency of successful calls in ms,
// optionally filtered by service ("" means all services).
func (c *Collector) AverageAPILatency(service string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	var n int
	for _, m := range c.apiCalls {
		if service != "" && m.Service != service {
			continue
		}
		if m.Success {
			total += m.DurationMS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// ErrorRate returns errors over operations as a percentage.
func (c *Collector) ErrorRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorRateLocked()
}

func (c *Collector) errorRateLocked() float64 {
	ops := len(c.analyses) + len(c.apiCalls)
	if ops == 0 {
		return 0
	}
	var errs int
	for _, n := range c.errorCounts {
		errs += n
	}
	return float64(errs) / float64(ops) * 100.0
}

// RecoverySuccessRate returns recoveries over errors as a percentage.
// Zero recorded errors means a 100% recovery rate.
func (c *Collector) RecoverySuccessRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoveryRateLocked()
}

func (c *Collector) recoveryRateLocked() float64 {
	var errs, recoveries int
	for _, n := range c.errorCounts {
		errs += n
	}
	if errs == 0 {
		return 100.0
	}
	for _, n := range c.recoveryCounts {
		recoveries += n
	}
	return float64(recoveries) / float64(errs) * 100.0
}

// ApprovalRate returns approvals over total decisions as a percentage.
func (c *Collector) ApprovalRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approvalRateLocked()
}

func (c *Collector) approvalRateLocked() float64 {
	total := c.userApprovals + c.userRejections
	if total == 0 {
		return 0
	}
	return float64(c.userApprovals) / float64(total) * 100.0
}

// TotalTokens returns the total generator tokens used this session.
func (c *Collector) TotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTokensLocked()
}

func (c *Collector) totalTokensLocked() int {
	var total int
	for _, m := range c.tokenUsage {
		total += m.TotalTokens
	}
	return total
}

// EstimatedCost returns the estimated dollar cost given a per-1k-token rate.
func (c *Collector) EstimatedCost(costPer1kTokens float64) float64 {
	return float64(c.TotalTokens()) / 1000.0 * costPer1kTokens
}

// SessionMetrics returns the compact per-run counters.
func (c *Collector) SessionMetrics() models.SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dur float64
	if !c.sessionStart.IsZero() {
		dur = time.Since(c.sessionStart).Seconds()
	}
	var errs int
	for _, n := range c.errorCounts {
		errs += n
	}
	return models.SessionMetrics{
		ReposAnalyzed:        c.reposAnalyzed,
		SuggestionsGenerated: c.suggestionsGenerated,
		IssuesCreated:        c.issuesCreated,
		APICallsMade:         len(c.apiCalls),
		TokensUsed:           c.totalTokensLocked(),
		ExecutionTimeSeconds: dur,
		ErrorsEncountered:    errs,
	}
}

// Summary is the grouped session report.
type Summary struct {
	Performance struct {
		SessionDurationSeconds    float64 `json:"session_duration_seconds"`
		AvgAnalysisDurationMS     float64 `json:"average_analysis_duration_ms"`
		AvgGitHubAPILatencyMS     float64 `json:"average_github_api_latency_ms"`
		AvgGeneratorAPILatencyMS  float64 `json:"average_generator_api_latency_ms"`
	} `json:"performance"`
	Usage struct {
		ReposAnalyzed        int     `json:"repos_analyzed"`
		SuggestionsGenerated int     `json:"suggestions_generated"`
		IssuesCreated        int     `json:"issues_created"`
		UserApprovals        int     `json:"user_approvals"`
		UserRejections       int     `json:"user_rejections"`
		ApprovalRatePercent  float64 `json:"approval_rate_percent"`
	} `json:"usage"`
	Quality struct {
		ErrorRatePercent           float64        `json:"error_rate_percent"`
		RecoverySuccessRatePercent float64        `json:"recovery_success_rate_percent"`
		ErrorCountsByType          map[string]int `json:"error_counts_by_type"`
		RecoveryCountsByType       map[string]int `json:"recovery_counts_by_type"`
	} `json:"quality"`
	Cost struct {
		TotalTokensUsed   int     `json:"total_tokens_used"`
		GitHubAPICalls    int     `json:"github_api_calls"`
		GeneratorAPICalls int     `json:"generator_api_calls"`
		EstimatedCostUSD  float64 `json:"estimated_cost_usd"`
	} `json:"cost"`
	Breakdown struct {
		SuggestionsByCategory map[string]int `json:"suggestions_by_category"`
		SuggestionsByPriority map[string]int `json:"suggestions_by_priority"`
	} `json:"breakdown"`
}

const defaultCostPer1kTokens = 0.001

// Summarize returns the aggregated metrics for the current session.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Summary
	if !c.sessionStart.IsZero() {
		s.Performance.SessionDurationSeconds = time.Since(c.sessionStart).Seconds()
	}

	var analysisTotal float64
	var analysisN int
	for _, m := range c.analyses {
		if m.Success {
			analysisTotal += m.DurationMS
			analysisN++
		}
	}
	if analysisN > 0 {
		s.Performance.AvgAnalysisDurationMS = analysisTotal / float64(analysisN)
	}
	s.Performance.AvgGitHubAPILatencyMS = c.avgLatencyLocked("github")
	s.Performance.AvgGeneratorAPILatencyMS = c.avgLatencyLocked("generator")

	s.Usage.ReposAnalyzed = c.reposAnalyzed
	s.Usage.SuggestionsGenerated = c.suggestionsGenerated
	s.Usage.IssuesCreated = c.issuesCreated
	s.Usage.UserApprovals = c.userApprovals
	s.Usage.UserRejections = c.userRejections
	s.Usage.ApprovalRatePercent = c.approvalRateLocked()

	s.Quality.ErrorRatePercent = c.errorRateLocked()
	s.Quality.RecoverySuccessRatePercent = c.recoveryRateLocked()
	s.Quality.ErrorCountsByType = copyCounts(c.errorCounts)
	s.Quality.RecoveryCountsByType = copyCounts(c.recoveryCounts)

	s.Cost.TotalTokensUsed = c.totalTokensLocked()
	s.Cost.GitHubAPICalls = c.githubAPICalls
	s.Cost.GeneratorAPICalls = c.generatorAPICalls
	s.Cost.EstimatedCostUSD = float64(c.totalTokensLocked()) / 1000.0 * defaultCostPer1kTokens

	s.Breakdown.SuggestionsByCategory = make(map[string]int, len(c.suggestionsByCategory))
	for k, v := range c.suggestionsByCategory {
		s.Breakdown.SuggestionsByCategory[string(k)] = v
	}
	s.Breakdown.SuggestionsByPriority = make(map[string]int, len(c.suggestionsByPriority))
	for k, v := range c.suggestionsByPriority {
		s.Breakdown.SuggestionsByPriority[string(k)] = v
	}
	return s
}

func (c *Collector) avgLatencyLocked(service string) float64 {
	var total float64
	var n int
	for _, m := range c.apiCalls {
		if m.Service == service && m.Success {
			total += m.DurationMS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Reset clears all session state. The Prometheus registry is cumulative and
// is not reset.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.sessionStart = time.Time{}
}

func (c *Collector) resetLocked() {
	c.analyses = nil
	c.apiCalls = nil
	c.tokenUsage = nil
	c.reposAnalyzed = 0
	c.suggestionsGenerated = 0
	c.issuesCreated = 0
	c.userApprovals = 0
	c.userRejections = 0
	c.githubAPICalls = 0
	c.generatorAPICalls = 0
	c.suggestionsByCategory = make(map[models.Category]int)
	c.suggestionsByPriority = make(map[models.Priority]int)
	c.errorCounts = make(map[string]int)
	c.recoveryCounts = make(map[string]int)
}
