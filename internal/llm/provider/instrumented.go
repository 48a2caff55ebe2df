package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/aixgo-dev/pixelctx/internal/llm/cost"
	"github.com/aixgo-dev/pixelctx/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProvider wraps a Provider with tracing and cost tracking.
type InstrumentedProvider struct {
	provider   Provider
	calculator *cost.Calculator
}

// NewInstrumentedProvider wraps a provider. A nil calculator uses cost.DefaultCalculator.
func NewInstrumentedProvider(provider Provider, calculator *cost.Calculator) *InstrumentedProvider {
	if calculator == nil {
		calculator = cost.DefaultCalculator
	}
	return &InstrumentedProvider{
		provider:   provider,
		calculator: calculator,
	}
}

// Name returns the wrapped provider's name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Generate calls the wrapped provider inside a span
func (p *InstrumentedProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	images := 0
	for _, part := range req.Parts {
		if part.IsImage() {
			images++
		}
	}

	ctx, span := observability.StartSpan(ctx, fmt.Sprintf("llm.%s.generate", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.parts_count", len(req.Parts)),
			attribute.Int("llm.images_count", images),
		),
	)
	defer span.End()

	startTime := time.Now()
	response, err := p.provider.Generate(ctx, req)
	duration := time.Since(startTime)

	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("llm.error", err.Error()))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", response.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", response.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", response.Usage.TotalTokens),
		attribute.String("llm.finish_reason", response.FinishReason),
	)

	model := response.Model
	if model == "" {
		model = req.Model
	}
	usage := &cost.Usage{
		Model:        model,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
		TotalTokens:  response.Usage.TotalTokens,
	}
	if c, err := p.calculator.Calculate(usage); err == nil {
		span.SetAttributes(
			attribute.Float64("llm.cost.input_usd", c.InputCost),
			attribute.Float64("llm.cost.output_usd", c.OutputCost),
			attribute.Float64("llm.cost.total_usd", c.TotalCost),
		)
	}

	return response, nil
}
