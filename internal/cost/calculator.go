// Package cost computes USD costs for provider usage within a subject-cycle.
package cost

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic      map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	SearchPerQuery float64              `yaml:"search_per_query" mapstructure:"search_per_query"`
	ExtractPerURL  float64              `yaml:"extract_per_url" mapstructure:"extract_per_url"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// LLM computes the cost of one generative call.
// Returns 0 for unknown models.
func (c *Calculator) LLM(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// Searches returns the cost of n search queries.
func (c *Calculator) Searches(n int) float64 {
	return float64(n) * c.rates.SearchPerQuery
}

// Extracts returns the cost of extracting content from n URLs.
func (c *Calculator) Extracts(n int) float64 {
	return float64(n) * c.rates.ExtractPerURL
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		SearchPerQuery: 0.008,
		ExtractPerURL:  0.002,
	}
}
