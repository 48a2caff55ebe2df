package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

func init() {
	RegisterFactory("openai", func(s Settings) (Provider, error) {
		apiKey := s.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingCredential)
		}
		return NewOpenAIProvider(apiKey, s.BaseURL, s.Model), nil
	})
}

// chatCompleter is the subset of the go-openai client used here.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider for OpenAI vision-capable chat models.
// Images are sent inline as data URLs.
type OpenAIProvider struct {
	model  string
	client chatCompleter
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{model: model, client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends the parts as a single multi-part user message.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: buildOpenAIParts(req.Parts),
		}},
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorCodeEmptyResponse, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter && choice.Message.Content == "" {
		return nil, NewProviderError("openai", ErrorCodeContentFiltered, "response blocked by content filter", nil)
	}

	return &GenerateResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Raw: resp,
	}, nil
}

func buildOpenAIParts(parts []Part) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		if part.IsImage() {
			url := "data:" + part.Image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(part.Image.Data)
			out = append(out, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
			})
			continue
		}
		out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text})
	}
	return out
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := NewProviderError("openai", codeForStatus(apiErr.HTTPStatusCode), apiErr.Message, err)
		perr.StatusCode = apiErr.HTTPStatusCode
		return perr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr := NewProviderError("openai", codeForStatus(reqErr.HTTPStatusCode), reqErr.Error(), err)
		perr.StatusCode = reqErr.HTTPStatusCode
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError("openai", ErrorCodeTimeout, err.Error(), err)
	}
	return NewProviderError("openai", ErrorCodeUnknown, err.Error(), err)
}
