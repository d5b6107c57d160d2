// Package vllm wires a self-hosted vLLM server through its OpenAI-compatible API.
package vllm

import (
	"github.com/kiranshivaraju/workhuntr/internal/ai/openai"
	"github.com/kiranshivaraju/workhuntr/internal/config"
)

func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, cfg.APIKey, cfg.Model)
}
