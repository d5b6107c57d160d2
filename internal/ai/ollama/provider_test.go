package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/workhuntr/internal/ai/aihttp"
	"github.com/kiranshivaraju/workhuntr/internal/ai/ollama"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, false, body["stream"])
		opts := body["options"].(map[string]any)
		assert.EqualValues(t, 512, opts["num_predict"])

		json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3",
			"message":           map[string]any{"role": "assistant", "content": "```json\n[]\n```"},
			"done":              true,
			"prompt_eval_count": 40,
			"eval_count":        7,
		})
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	assert.Equal(t, "ollama", p.Name())

	resp, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "```json\n[]\n```", resp.Text)
	assert.Equal(t, int64(40), resp.InputTokens)
}

func TestProvider_IncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"model":"llama3","message":{"content":"par"},"done":false}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, aihttp.ErrInvalidResponse))
}
