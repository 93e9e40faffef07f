package mgmt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/repo-maintainer/internal/health"
	"github.com/p-blackswan/repo-maintainer/internal/metrics"
	"github.com/p-blackswan/repo-maintainer/internal/models"
	"github.com/p-blackswan/repo-maintainer/internal/workflow"
)

func newTestServer(t *testing.T) (*Server, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector()
	return NewServer(ServerConfig{}, collector, zerolog.Nop()), collector
}

func TestLiveness(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRunSummary_BeforeAnyRun(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/v1/summary", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "no_runs", problem.Type)
}

func TestRunSummary_LatestRun(t *testing.T) {
	s, _ := newTestServer(t)
	s.SetLatestRun(&workflow.Result{
		SessionID:            "s-1",
		Username:             "octocat",
		RepositoriesAnalyzed: []string{"octocat/widget"},
		Metrics:              models.SessionMetrics{ReposAnalyzed: 1},
	})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/v1/summary", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var result workflow.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "s-1", result.SessionID)
	assert.Equal(t, []string{"octocat/widget"}, result.RepositoriesAnalyzed)
	assert.Equal(t, 1, result.Metrics.ReposAnalyzed)
}

func TestMetricsSummary(t *testing.T) {
	s, collector := newTestServer(t)
	collector.StartSession()
	collector.RecordAnalysis("octocat/widget", 120*time.Millisecond, true, "")
	collector.RecordSuggestion("octocat/widget", models.CategoryEnhancement, models.PriorityHigh)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/v1/metrics/summary", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var summary metrics.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.Usage.ReposAnalyzed)
	assert.Equal(t, 1, summary.Usage.SuggestionsGenerated)
	assert.Equal(t, 100.0, summary.Quality.RecoverySuccessRatePercent)
}

func TestPrometheusMetricsEndpoint(t *testing.T) {
	s, collector := newTestServer(t)
	collector.RecordAnalysis("octocat/widget", 120*time.Millisecond, true, "")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "maintainer_")
}

func TestReadiness_NoChecksIsReady(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/readyz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadiness_DependencyDown(t *testing.T) {
	s, _ := newTestServer(t)
	s.RegisterCheck("database", func(ctx context.Context) health.Status { return health.StatusOK })
	s.RegisterCheck("github", func(ctx context.Context) health.Status { return health.StatusDown })

	resp, err := s.App().Test(httptest.NewRequest("GET", "/readyz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)

	var body struct {
		Status string                   `json:"status"`
		Checks map[string]health.Status `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, health.StatusOK, body.Checks["database"])
	assert.Equal(t, health.StatusDown, body.Checks["github"])
}

func TestRunSummary_ErrorMessagesSurvive(t *testing.T) {
	s, _ := newTestServer(t)
	s.SetLatestRun(&workflow.Result{
		SessionID: "s-2",
		Username:  "octocat",
		Errors: []workflow.StageError{
			{Scope: "fetch_repositories", Err: errors.New("rate limit exceeded")},
		},
	})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/v1/summary", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rate limit exceeded")
}
