// Package cost prices token counts for the vision models pixelctx talks to.
package cost

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelPricing contains pricing information for a specific model
type ModelPricing struct {
	Model       string
	InputPer1M  float64 // USD per 1M input tokens
	OutputPer1M float64 // USD per 1M output tokens
}

// Usage represents token usage for a single model call
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Cost represents the calculated cost for a call
type Cost struct {
	InputCost  float64
	OutputCost float64
	TotalCost  float64
	Currency   string
}

// Calculator provides cost calculation for model usage
type Calculator struct {
	pricing map[string]*ModelPricing
	mu      sync.RWMutex
}

// NewCalculator creates a new cost calculator with default pricing
func NewCalculator() *Calculator {
	c := &Calculator{
		pricing: make(map[string]*ModelPricing),
	}
	c.loadDefaultPricing()
	return c
}

// loadDefaultPricing initializes list prices for vision-capable models.
// Prices as of early 2025.
func (c *Calculator) loadDefaultPricing() {
	models := []*ModelPricing{
		// Gemini API / Vertex AI
		{Model: "gemini-2.0-flash", InputPer1M: 0.10, OutputPer1M: 0.40},
		{Model: "gemini-2.0-flash-lite", InputPer1M: 0.075, OutputPer1M: 0.30},
		{Model: "gemini-2.5-flash", InputPer1M: 0.30, OutputPer1M: 2.50},
		{Model: "gemini-2.5-pro", InputPer1M: 1.25, OutputPer1M: 10.0},
		{Model: "gemini-1.5-flash", InputPer1M: 0.075, OutputPer1M: 0.30},
		{Model: "gemini-1.5-pro", InputPer1M: 1.25, OutputPer1M: 5.0},

		// OpenAI
		{Model: "gpt-4o", InputPer1M: 2.5, OutputPer1M: 10.0},
		{Model: "gpt-4o-mini", InputPer1M: 0.15, OutputPer1M: 0.60},
		{Model: "gpt-4.1", InputPer1M: 2.0, OutputPer1M: 8.0},
		{Model: "gpt-4.1-mini", InputPer1M: 0.40, OutputPer1M: 1.60},

		// Bedrock model ids
		{Model: "anthropic.claude-3-5-sonnet", InputPer1M: 3.0, OutputPer1M: 15.0},
		{Model: "anthropic.claude-3-haiku", InputPer1M: 0.25, OutputPer1M: 1.25},
		{Model: "amazon.nova-lite", InputPer1M: 0.06, OutputPer1M: 0.24},
		{Model: "amazon.nova-pro", InputPer1M: 0.80, OutputPer1M: 3.20},

		// Offline
		{Model: "mock-model", InputPer1M: 0.0, OutputPer1M: 0.0},
	}

	for _, pricing := range models {
		c.pricing[pricing.Model] = pricing
	}
}

// AddPricing adds or updates pricing for a model
func (c *Calculator) AddPricing(pricing *ModelPricing) {
	if pricing == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[pricing.Model] = pricing
}

// GetPricing retrieves pricing for a model. Unknown ids fall back to the
// longest registered prefix, so dated or versioned ids resolve.
func (c *Calculator) GetPricing(model string) (*ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pricing, ok := c.pricing[model]
	if !ok {
		keys := make([]string, 0, len(c.pricing))
		for k := range c.pricing {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			if strings.HasPrefix(model, key) {
				pricing = c.pricing[key]
				break
			}
		}
	}

	if pricing == nil {
		return nil, false
	}

	// Return a copy to prevent concurrent modification
	pricingCopy := *pricing
	return &pricingCopy, true
}

// Calculate computes the cost for the given usage
func (c *Calculator) Calculate(usage *Usage) (*Cost, error) {
	pricing, ok := c.GetPricing(usage.Model)
	if !ok {
		return nil, fmt.Errorf("no pricing found for model: %s", usage.Model)
	}

	cost := &Cost{Currency: "USD"}
	if usage.InputTokens > 0 {
		cost.InputCost = (float64(usage.InputTokens) / 1_000_000) * pricing.InputPer1M
	}
	if usage.OutputTokens > 0 {
		cost.OutputCost = (float64(usage.OutputTokens) / 1_000_000) * pricing.OutputPer1M
	}
	cost.TotalCost = cost.InputCost + cost.OutputCost

	return cost, nil
}

// InputSavings prices a number of input tokens that were not sent. Negative
// savings yield a negative amount.
func (c *Calculator) InputSavings(model string, tokens int) (float64, error) {
	pricing, ok := c.GetPricing(model)
	if !ok {
		return 0, fmt.Errorf("no pricing found for model: %s", model)
	}
	return (float64(tokens) / 1_000_000) * pricing.InputPer1M, nil
}

// ListModels returns all models with pricing information, sorted
func (c *Calculator) ListModels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := make([]string, 0, len(c.pricing))
	for model := range c.pricing {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// DefaultCalculator is the global cost calculator instance
var DefaultCalculator = NewCalculator()
