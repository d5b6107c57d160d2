package ai

import (
	"fmt"

	"github.com/kiranshivaraju/workhuntr/internal/ai/anthropic"
	"github.com/kiranshivaraju/workhuntr/internal/ai/ollama"
	"github.com/kiranshivaraju/workhuntr/internal/ai/openai"
	"github.com/kiranshivaraju/workhuntr/internal/ai/vllm"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}
