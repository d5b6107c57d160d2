package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/workhuntr/internal/ai/aihttp"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// Provider implements models.AIProvider using Ollama's /api/chat endpoint.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "ollama" }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int64   `json:"prompt_eval_count"`
	EvalCount       int64   `json:"eval_count"`
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	body := chatRequest{
		Model:  p.cfg.Model,
		Stream: false,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	if req.System != "" {
		body.Messages = append(body.Messages, message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, message{Role: "user", Content: req.Prompt})

	var resp chatResponse
	if err := aihttp.PostJSON(ctx, p.client, p.cfg.BaseURL+"/api/chat", nil, body, &resp); err != nil {
		return models.CompletionResponse{}, fmt.Errorf("ollama: %w", err)
	}
	if !resp.Done {
		return models.CompletionResponse{}, fmt.Errorf("ollama: %w: incomplete response", aihttp.ErrInvalidResponse)
	}

	return models.CompletionResponse{
		Text:         resp.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

var _ models.AIProvider = (*Provider)(nil)
