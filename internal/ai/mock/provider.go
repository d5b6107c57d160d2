package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/workhuntr/internal/ai"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error)

	mu       sync.Mutex
	requests []models.CompletionRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return models.CompletionResponse{}, nil
}

// Requests returns a copy of every request the provider has received.
func (m *MockProvider) Requests() []models.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CompletionRequest(nil), m.requests...)
}

// NewMockProvider returns a MockProvider that answers every prompt with an empty JSON array.
func NewMockProvider() *MockProvider {
	return NewTextProvider("[]")
}

// NewTextProvider returns a MockProvider that always answers with text.
func NewTextProvider(text string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
			return models.CompletionResponse{Text: text, Model: "mock-v1"}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
			return models.CompletionResponse{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.CompletionResponse, error) {
			<-ctx.Done()
			return models.CompletionResponse{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
