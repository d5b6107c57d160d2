package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/workhuntr/internal/ai/aihttp"
	"github.com/kiranshivaraju/workhuntr/internal/ai/openai"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, false, body["stream"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "score these", msgs[1].(map[string]any)["content"])

		json.NewEncoder(w).Encode(map[string]any{
			"model":   "gpt-4o-mini-2024",
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "[]"}}},
			"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	p := openai.NewProvider(config.OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "gpt-4o-mini"})
	resp, err := p.Complete(context.Background(), models.CompletionRequest{System: "be terse", Prompt: "score these"})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(3), resp.OutputTokens)
}

func TestProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := openai.NewCompatible("vllm", srv.URL, "", "m")
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, aihttp.ErrInvalidResponse))
	assert.Contains(t, err.Error(), "vllm")
}

func TestProvider_NoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := openai.NewCompatible("vllm", srv.URL, "", "local-model")
	resp, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "local-model", resp.Model)
}

func TestProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := openai.NewCompatible("openai", srv.URL, "k", "m")
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, aihttp.ErrProviderUnavailable))
}
