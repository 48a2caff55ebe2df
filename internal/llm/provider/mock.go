package provider

import (
	"context"
	"sync"
)

func init() {
	RegisterFactory("mock", func(s Settings) (Provider, error) {
		m := NewMockProvider("mock")
		if s.Model != "" {
			m.Model = s.Model
		}
		return m, nil
	})
}

// MockProvider is a mock provider for testing and offline demos
type MockProvider struct {
	name string

	// Model reported in responses
	Model string

	// Responses to return for each request
	Responses []*GenerateResponse
	Errors    []error

	// Track calls
	Calls []GenerateRequest

	mu           sync.Mutex
	currentIndex int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:  name,
		Model: "mock-model",
	}
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// Generate implements Provider
func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)
	idx := m.currentIndex
	m.currentIndex++

	// Check for errors first
	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}

	if idx < len(m.Responses) && m.Responses[idx] != nil {
		return m.Responses[idx], nil
	}

	// Default response
	return &GenerateResponse{
		Text:         "Mock response",
		FinishReason: "stop",
		Model:        m.Model,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// CallCount returns how many requests were received
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request
func (m *MockProvider) LastCall() (GenerateRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return GenerateRequest{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
