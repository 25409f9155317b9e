package openrouter

// ModelPricing is per-token pricing in USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// modelPricing covers the vision-capable models captions are usually
// generated with. Image inputs are billed as prompt tokens.
var modelPricing = map[string]ModelPricing{
	"openai/gpt-4o":               {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini":          {PromptPrice: 0.15, CompletionPrice: 0.60},
	"anthropic/claude-3.5-sonnet": {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3-haiku":    {PromptPrice: 0.25, CompletionPrice: 1.25},
	"google/gemini-flash-1.5":     {PromptPrice: 0.075, CompletionPrice: 0.30},
	"google/gemini-pro-1.5":       {PromptPrice: 1.25, CompletionPrice: 5.00},
	"meta-llama/llama-3.2-11b-vision-instruct": {PromptPrice: 0.055, CompletionPrice: 0.055},
}

// DefaultPricingFallback is the per-request estimate for unknown models
const DefaultPricingFallback = 0.01

// CalculateCost estimates the USD cost of one call.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}
	promptCost := (float64(promptTokens) / 1_000_000.0) * pricing.PromptPrice
	completionCost := (float64(completionTokens) / 1_000_000.0) * pricing.CompletionPrice
	return promptCost + completionCost
}

// GetPricing returns pricing information for a model, if available
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}
