package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/workhuntr/internal/ai/aihttp"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const defaultMaxTokens = 4096

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client sdk.Client
}

// NewProvider builds a Provider. Extra request options (base URL, retries)
// are passed through to the SDK client.
func NewProvider(cfg config.AnthropicConfig, opts ...option.RequestOption) *Provider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Provider{cfg: cfg, client: sdk.NewClient(opts...)}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(p.cfg.Model),
		MaxTokens:   maxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
		Temperature: sdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.CompletionResponse{}, fmt.Errorf("anthropic: %w", classifyError(err))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return models.CompletionResponse{}, fmt.Errorf("anthropic: %w: no text content", aihttp.ErrInvalidResponse)
	}

	return models.CompletionResponse{
		Text:         sb.String(),
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// classifyError maps SDK errors onto the shared AI sentinels.
func classifyError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout {
			return fmt.Errorf("%w: %v", aihttp.ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: status %d: %v", aihttp.ErrProviderUnavailable, apiErr.StatusCode, err)
	}
	return aihttp.ClassifyError(err)
}

var _ models.AIProvider = (*Provider)(nil)
