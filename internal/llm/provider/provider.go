// Package provider adapts hosted multimodal models to a single Generate call
// that takes an ordered list of text and image parts and returns text.
package provider

import (
	"context"
	"errors"
)

// ErrMissingCredential is returned by factories when the provider cannot be
// configured because no credential was supplied.
var ErrMissingCredential = errors.New("missing credential")

// Provider defines the interface for generation backends.
type Provider interface {
	// Generate sends the parts, in order, as a single user turn.
	Generate(ctx context.Context, request GenerateRequest) (*GenerateResponse, error)

	// Name returns the provider name (e.g., "gemini", "openai")
	Name() string
}

// ImagePart is an inline image.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

// Part is one element of the model input. Exactly one of Text or Image is set.
type Part struct {
	Text  string
	Image *ImagePart
}

// TextPart returns a text part.
func TextPart(s string) Part {
	return Part{Text: s}
}

// PNGPart returns an inline PNG image part.
func PNGPart(data []byte) Part {
	return Part{Image: &ImagePart{MIMEType: "image/png", Data: data}}
}

// IsImage reports whether the part carries an image.
func (p Part) IsImage() bool {
	return p.Image != nil
}

// GenerateRequest represents a generation request
type GenerateRequest struct {
	// Parts is the ordered model input.
	Parts []Part `json:"-"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// Temperature controls randomness; nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`
}

// GenerateResponse represents a generation response
type GenerateResponse struct {
	// Text is the generated text
	Text string `json:"text"`

	// FinishReason explains why generation stopped
	FinishReason string `json:"finish_reason"`

	// Model is the model that served the request.
	Model string `json:"model"`

	// Usage contains token usage reported by the backend, when available.
	Usage Usage `json:"usage"`

	// Raw is the raw provider response for debugging
	Raw any `json:"-"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider      string `json:"provider"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	StatusCode    int    `json:"status_code,omitempty"`
	IsRetryable   bool   `json:"is_retryable"`
	OriginalError error  `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return e.Provider + " error: " + e.Message
}

// Unwrap returns the original error
func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// Common error codes
const (
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeAuthentication  = "authentication_error"
	ErrorCodeRateLimit       = "rate_limit_exceeded"
	ErrorCodeServerError     = "server_error"
	ErrorCodeTimeout         = "timeout"
	ErrorCodeModelNotFound   = "model_not_found"
	ErrorCodeContentFiltered = "content_filtered"
	ErrorCodeEmptyResponse   = "empty_response"
	ErrorCodeUnknown         = "unknown_error"
)

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, original error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		OriginalError: original,
		IsRetryable:   isRetryableError(code),
	}
}

// isRetryableError determines if an error code is retryable
func isRetryableError(code string) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// codeForStatus maps an HTTP status returned by a backend to an error code.
func codeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrorCodeAuthentication
	case status == 429:
		return ErrorCodeRateLimit
	case status == 400:
		return ErrorCodeInvalidRequest
	case status == 404:
		return ErrorCodeModelNotFound
	case status == 408 || status == 504:
		return ErrorCodeTimeout
	case status >= 500:
		return ErrorCodeServerError
	default:
		return ErrorCodeUnknown
	}
}
