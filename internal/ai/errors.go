package ai

import "github.com/kiranshivaraju/workhuntr/internal/ai/aihttp"

var (
	ErrProviderUnavailable = aihttp.ErrProviderUnavailable
	ErrInferenceTimeout    = aihttp.ErrInferenceTimeout
	ErrInvalidResponse     = aihttp.ErrInvalidResponse
)
