package provider

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChatCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIGenerate(t *testing.T) {
	fake := &fakeChatCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "I'm fine"},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 270, CompletionTokens: 3, TotalTokens: 273},
	}}
	p := &OpenAIProvider{model: "gpt-4o", client: fake}

	temp := 0.2
	resp, err := p.Generate(context.Background(), GenerateRequest{
		Parts:       []Part{PNGPart([]byte("png")), TextPart("Continue the conversation. User: How are you?")},
		Temperature: &temp,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "I'm fine", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 273, resp.Usage.TotalTokens)

	require.Len(t, fake.req.Messages, 1)
	msg := fake.req.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleUser, msg.Role)
	require.Len(t, msg.MultiContent, 2)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, msg.MultiContent[0].Type)
	url := msg.MultiContent[0].ImageURL.URL
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), strings.TrimPrefix(url, "data:image/png;base64,"))
	assert.Equal(t, "Continue the conversation. User: How are you?", msg.MultiContent[1].Text)
	assert.Equal(t, "gpt-4o", fake.req.Model)
	assert.Equal(t, 64, fake.req.MaxTokens)
	assert.InDelta(t, 0.2, fake.req.Temperature, 1e-6)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o", client: &fakeChatCompleter{}}
	_, err := p.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("hi")}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorCodeEmptyResponse, perr.Code)
}

func TestOpenAIContentFilter(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o", client: &fakeChatCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{FinishReason: openai.FinishReasonContentFilter}},
	}}}
	_, err := p.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("hi")}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorCodeContentFiltered, perr.Code)
}

func TestOpenAIAPIError(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}
	p := &OpenAIProvider{model: "gpt-4o", client: &fakeChatCompleter{err: apiErr}}

	_, err := p.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("hi")}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorCodeRateLimit, perr.Code)
	assert.Equal(t, 429, perr.StatusCode)
	assert.True(t, perr.IsRetryable)
	assert.ErrorIs(t, err, apiErr)
}
