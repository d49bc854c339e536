package cost

// ModelRate holds per-model token pricing (USD per 1K tokens).
type ModelRate struct {
	InPer1K  float64 `yaml:"in_per_1k" mapstructure:"in_per_1k"`
	OutPer1K float64 `yaml:"out_per_1k" mapstructure:"out_per_1k"`
}

// Rates holds per-provider pricing configuration.
type Rates struct {
	Models    map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Embedding EmbeddingRate        `yaml:"embedding" mapstructure:"embedding"`
}

// EmbeddingRate holds embedding provider pricing.
type EmbeddingRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of a model call from its token counts.
// Unknown models cost 0 so the record's cost roll-up stays a lower bound.
func (c *Calculator) Tokens(model string, input, output int) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1000)*rate.InPer1K + (float64(output)/1000)*rate.OutPer1K
}

// Embedding computes the cost of embedding token usage.
func (c *Calculator) Embedding(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Embedding.PerMTok
}

// Known reports whether pricing exists for the given model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {InPer1K: 0.0008, OutPer1K: 0.004},
			"claude-sonnet-4-5-20250929": {InPer1K: 0.003, OutPer1K: 0.015},
			"claude-opus-4-6":            {InPer1K: 0.015, OutPer1K: 0.075},
		},
		Embedding: EmbeddingRate{PerMTok: 0.02},
	}
}

// Merge overlays configured rates on top of the defaults. Models present
// in override replace the default entry wholesale.
func Merge(override map[string]ModelRate) Rates {
	rates := DefaultRates()
	for model, rate := range override {
		rates.Models[model] = rate
	}
	return rates
}
