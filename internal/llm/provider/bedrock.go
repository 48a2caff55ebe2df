package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

func init() {
	RegisterFactory("bedrock", func(s Settings) (Provider, error) {
		region := s.Region
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			return nil, fmt.Errorf("%w: AWS_REGION not set", ErrMissingCredential)
		}

		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
			if s.BaseURL != "" {
				o.BaseEndpoint = aws.String(s.BaseURL)
			}
		})
		return NewBedrockProvider(client, s.Model), nil
	})
}

// converser is the subset of the Bedrock runtime client used here.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements Provider with the Bedrock Converse API, which
// accepts PNG image blocks for vision-capable models.
type BedrockProvider struct {
	model  string
	client converser
}

// NewBedrockProvider creates a Bedrock provider around a runtime client.
func NewBedrockProvider(client converser, model string) *BedrockProvider {
	if model == "" {
		model = defaultBedrockModel
	}
	return &BedrockProvider{model: model, client: client}
}

// Name returns the provider name
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Generate sends the parts as one user message.
func (p *BedrockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	blocks, err := buildBedrockBlocks(req.Parts)
	if err != nil {
		return nil, NewProviderError("bedrock", ErrorCodeInvalidRequest, err.Error(), err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: []types.Message{{Role: types.ConversationRoleUser, Content: blocks}},
	}
	inference := &types.InferenceConfiguration{}
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
		input.InferenceConfig = inference
	}
	if req.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*req.Temperature))
		input.InferenceConfig = inference
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, wrapBedrockError(err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, NewProviderError("bedrock", ErrorCodeEmptyResponse, "no message in response", nil)
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}

	if out.StopReason == types.StopReasonContentFiltered && text.Len() == 0 {
		return nil, NewProviderError("bedrock", ErrorCodeContentFiltered, "response blocked by guardrails", nil)
	}

	var usage Usage
	if out.Usage != nil {
		usage.PromptTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.CompletionTokens = int(aws.ToInt32(out.Usage.OutputTokens))
		usage.TotalTokens = int(aws.ToInt32(out.Usage.TotalTokens))
	}

	finishReason := string(out.StopReason)
	if out.StopReason == types.StopReasonEndTurn {
		finishReason = "stop"
	}

	return &GenerateResponse{
		Text:         text.String(),
		FinishReason: finishReason,
		Model:        model,
		Usage:        usage,
		Raw:          out,
	}, nil
}

func buildBedrockBlocks(parts []Part) ([]types.ContentBlock, error) {
	blocks := make([]types.ContentBlock, 0, len(parts))
	for _, part := range parts {
		if !part.IsImage() {
			if part.Text == "" {
				continue
			}
			blocks = append(blocks, &types.ContentBlockMemberText{Value: part.Text})
			continue
		}
		format, err := bedrockImageFormat(part.Image.MIMEType)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: part.Image.Data},
		}})
	}
	return blocks, nil
}

func bedrockImageFormat(mime string) (types.ImageFormat, error) {
	switch mime {
	case "image/png":
		return types.ImageFormatPng, nil
	case "image/jpeg":
		return types.ImageFormatJpeg, nil
	case "image/gif":
		return types.ImageFormatGif, nil
	case "image/webp":
		return types.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("unsupported image type %q", mime)
	}
}

func wrapBedrockError(err error) error {
	code := ErrorCodeUnknown
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			code = ErrorCodeAuthentication
		case "ThrottlingException", "ServiceQuotaExceededException":
			code = ErrorCodeRateLimit
		case "ValidationException":
			code = ErrorCodeInvalidRequest
		case "ResourceNotFoundException":
			code = ErrorCodeModelNotFound
		case "ModelTimeoutException":
			code = ErrorCodeTimeout
		case "InternalServerException", "ServiceUnavailableException", "ModelNotReadyException":
			code = ErrorCodeServerError
		}
	} else if errors.Is(err, context.DeadlineExceeded) {
		code = ErrorCodeTimeout
	}
	return NewProviderError("bedrock", code, err.Error(), err)
}
