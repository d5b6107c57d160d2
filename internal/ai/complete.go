package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// Complete calls the provider under its own timeout and logs token usage.
// A zero timeout leaves ctx unchanged.
func Complete(ctx context.Context, p models.AIProvider, timeout time.Duration, req models.CompletionRequest) (models.CompletionResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return models.CompletionResponse{}, fmt.Errorf("completion via %s: %w", p.Name(), err)
	}

	slog.Debug("ai completion",
		"provider", p.Name(),
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// TruncateString truncates s to maxBytes without splitting UTF-8 runes.
func TruncateString(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
