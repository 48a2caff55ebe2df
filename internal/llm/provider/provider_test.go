package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable(t *testing.T) {
	names := Available()
	for _, want := range []string{"bedrock", "gemini", "mock", "ollama", "openai", "vertexai"} {
		assert.Contains(t, names, want)
	}
	assert.IsIncreasing(t, names)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("nope", Settings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider 'nope' not found")
}

func TestNewMissingCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New("gemini", Settings{})
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY not set")

	_, err = New("openai", Settings{})
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestNewWrapsWithRetry(t *testing.T) {
	p, err := New("mock", Settings{MaxRetries: 2})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
	_, ok := p.(*retryingProvider)
	assert.True(t, ok)

	p, err = New("mock", Settings{Model: "m1"})
	require.NoError(t, err)
	mock, ok := p.(*MockProvider)
	require.True(t, ok)
	assert.Equal(t, "m1", mock.Model)
}

func TestParts(t *testing.T) {
	text := TextPart("hi")
	assert.False(t, text.IsImage())
	assert.Equal(t, "hi", text.Text)

	img := PNGPart([]byte{1, 2})
	require.True(t, img.IsImage())
	assert.Equal(t, "image/png", img.Image.MIMEType)
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{401, ErrorCodeAuthentication},
		{403, ErrorCodeAuthentication},
		{429, ErrorCodeRateLimit},
		{400, ErrorCodeInvalidRequest},
		{404, ErrorCodeModelNotFound},
		{504, ErrorCodeTimeout},
		{500, ErrorCodeServerError},
		{503, ErrorCodeServerError},
		{418, ErrorCodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeForStatus(tt.status), "status %d", tt.status)
	}
}

func TestProviderError(t *testing.T) {
	orig := errors.New("boom")
	err := NewProviderError("gemini", ErrorCodeRateLimit, "slow down", orig)
	assert.True(t, err.IsRetryable)
	assert.Equal(t, "gemini error: slow down", err.Error())
	assert.ErrorIs(t, err, orig)

	assert.False(t, NewProviderError("gemini", ErrorCodeAuthentication, "no", nil).IsRetryable)
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider("mock")
	m.Responses = []*GenerateResponse{{Text: "first"}}
	m.Errors = []error{nil, errors.New("second fails")}

	resp, err := m.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("a")}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = m.Generate(context.Background(), GenerateRequest{})
	require.EqualError(t, err, "second fails")

	resp, err = m.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Mock response", resp.Text)

	assert.Equal(t, 3, m.CallCount())
	last, ok := m.LastCall()
	require.True(t, ok)
	assert.Empty(t, last.Parts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Generate(ctx, GenerateRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInstrumentedProvider(t *testing.T) {
	m := NewMockProvider("mock")
	p := NewInstrumentedProvider(m, nil)
	assert.Equal(t, "mock", p.Name())

	resp, err := p.Generate(context.Background(), GenerateRequest{Parts: []Part{PNGPart([]byte{1}), TextPart("x")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response", resp.Text)

	m.Errors = []error{nil, NewProviderError("mock", ErrorCodeServerError, "down", nil)}
	_, err = p.Generate(context.Background(), GenerateRequest{})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorCodeServerError, perr.Code)
}
