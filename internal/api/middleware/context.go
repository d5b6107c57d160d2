package middleware

import (
	"context"

	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

type contextKey int

const (
	apiKeyKey contextKey = iota
	requestInfoKey
)

// requestInfo is shared by pointer between Logger and the handlers it wraps,
// so values set deeper in the chain are visible when the request is logged.
type requestInfo struct {
	key *models.APIKey
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// WithAPIKey attaches the authenticated API key to ctx.
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.key = key
	}
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKeyFrom returns the API key set by Auth.Authenticate.
func APIKeyFrom(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(apiKeyKey).(*models.APIKey)
	return key, ok && key != nil
}
