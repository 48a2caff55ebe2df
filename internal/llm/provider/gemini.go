package provider

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

func init() {
	RegisterFactory("gemini", func(s Settings) (Provider, error) {
		apiKey := s.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrMissingCredential)
		}

		return NewGeminiProvider(context.Background(), &genai.ClientConfig{
			APIKey:      apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: s.BaseURL},
		}, s.Model)
	})
}

// GeminiProvider implements Provider on the Google Gen AI SDK. The same type
// serves the Gemini Developer API and Vertex AI; only the client
// configuration differs.
type GeminiProvider struct {
	name   string
	model  string
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider from a Gen AI client config.
func NewGeminiProvider(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gen AI client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}

	name := "gemini"
	if cfg.Backend == genai.BackendVertexAI {
		name = "vertexai"
	}
	return &GeminiProvider{name: name, model: model, client: client}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.name
}

// Generate sends the parts as one user content.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: buildGenAIParts(req.Parts),
	}}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, p.wrapError(err)
	}
	return p.parseResponse(model, resp)
}

func buildGenAIParts(parts []Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		if part.IsImage() {
			out = append(out, &genai.Part{InlineData: &genai.Blob{
				MIMEType: part.Image.MIMEType,
				Data:     part.Image.Data,
			}})
			continue
		}
		out = append(out, &genai.Part{Text: part.Text})
	}
	return out
}

// parseResponse parses the Gen AI response into GenerateResponse
func (p *GeminiProvider) parseResponse(model string, resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewProviderError(p.name, ErrorCodeEmptyResponse, "no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	finishReason := string(candidate.FinishReason)
	if finishReason == "SAFETY" && text.Len() == 0 {
		return nil, NewProviderError(p.name, ErrorCodeContentFiltered, "response blocked by safety filters", nil)
	}
	if finishReason == "STOP" || finishReason == "" {
		finishReason = "stop"
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &GenerateResponse{
		Text:         text.String(),
		FinishReason: finishReason,
		Model:        model,
		Usage:        usage,
		Raw:          resp,
	}, nil
}

// wrapError converts Gen AI errors to ProviderError
func (p *GeminiProvider) wrapError(err error) error {
	code := ErrorCodeUnknown
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "credential") ||
		strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "403") || strings.Contains(errMsg, "401"):
		code = ErrorCodeAuthentication
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota"):
		code = ErrorCodeRateLimit
	case strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "404"):
		code = ErrorCodeModelNotFound
	case strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "400"):
		code = ErrorCodeInvalidRequest
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		code = ErrorCodeTimeout
	case strings.Contains(errMsg, "500") || strings.Contains(errMsg, "503") || strings.Contains(errMsg, "unavailable"):
		code = ErrorCodeServerError
	}

	return NewProviderError(p.name, code, err.Error(), err)
}
