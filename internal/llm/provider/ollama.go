package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llava"
)

func init() {
	RegisterFactory("ollama", func(s Settings) (Provider, error) {
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(baseURL, s.Model, nil)
	})
}

// OllamaProvider talks to a local Ollama server through /api/chat. Images
// travel base64-encoded in the message's images field, so the model must
// be vision-capable (llava, llama3.2-vision, ...).
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaProvider creates an Ollama provider. A nil client gets one with a
// five minute timeout that does not follow redirects.
func NewOllamaProvider(baseURL, model string, client *http.Client) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", parsed.Scheme)
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		model:      model,
		httpClient: client,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate sends the parts as one user message: text parts joined by blank
// lines, image parts attached in order.
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msg := ollamaMessage{Role: "user"}
	var texts []string
	for _, part := range req.Parts {
		if part.IsImage() {
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(part.Image.Data))
			continue
		}
		texts = append(texts, part.Text)
	}
	msg.Content = strings.Join(texts, "\n\n")

	chatReq := ollamaChatRequest{Model: model, Messages: []ollamaMessage{msg}}
	options := make(map[string]any)
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if len(options) > 0 {
		chatReq.Options = options
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewProviderError("ollama", ErrorCodeTimeout, err.Error(), err)
		}
		perr := NewProviderError("ollama", ErrorCodeServerError, "send request: "+err.Error(), err)
		return nil, perr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := NewProviderError("ollama", codeForStatus(resp.StatusCode), ollamaErrorMessage(raw, resp.StatusCode), nil)
		perr.StatusCode = resp.StatusCode
		return nil, perr
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, NewProviderError("ollama", ErrorCodeUnknown, "decode response: "+err.Error(), err)
	}
	if chatResp.Message.Content == "" {
		return nil, NewProviderError("ollama", ErrorCodeEmptyResponse, "empty message in response", nil)
	}

	finish := chatResp.DoneReason
	if finish == "" {
		finish = "stop"
	}
	return &GenerateResponse{
		Text:         chatResp.Message.Content,
		FinishReason: finish,
		Model:        model,
		Usage: Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
		Raw: chatResp,
	}, nil
}

// ollamaErrorMessage extracts {"error": "..."} bodies.
func ollamaErrorMessage(raw []byte, status int) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return fmt.Sprintf("status %d", status)
}
