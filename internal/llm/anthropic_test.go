package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/repo-maintainer/internal/errors"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropicProvider("test-key", zerolog.Nop(),
		WithBaseURL(srv.URL),
		WithModel("test-model"),
	)
}

func TestGenerate_Success(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		resp := anthropicResponse{
			ID:         "msg_1",
			Content:    []anthropicContentBlock{{Type: "text", Text: `{"score": 0.9}`}},
			StopReason: "end_turn",
		}
		resp.Usage.InputTokens = 120
		resp.Usage.OutputTokens = 30
		json.NewEncoder(w).Encode(resp)
	})

	out, err := p.Generate(context.Background(), GenerateRequest{Prompt: "assess", Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 0.9}`, out.Text)
	assert.Equal(t, 120, out.InputTokens)
	assert.Equal(t, 30, out.OutputTokens)
	assert.Equal(t, 150, out.TotalTokens())
}

func TestGenerate_RateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrRateLimit)
	assert.True(t, perrors.IsRetryable(err))
}

func TestGenerate_AuthFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrAuthFailure)
	assert.False(t, perrors.IsRetryable(err))
}

func TestGenerate_InvalidRequestIsTerminal(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"prompt is too long"}}`))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	assert.False(t, perrors.IsRetryable(err))
}

func TestGenerate_ServerErrorIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"type":"overloaded_error","message":"overloaded"}}`))
	})

	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, perrors.IsRetryable(err))
}

func TestGenerate_ContextCancelled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(anthropicResponse{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
