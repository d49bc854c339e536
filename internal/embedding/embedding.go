// Package embedding converts a finished record into a dense vector for
// similarity search.
package embedding

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/cost"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/internal/resilience"
	"github.com/sells-group/bizintel/pkg/jina"
)

// Embedder produces record embeddings.
type Embedder struct {
	client jina.Client
	calc   *cost.Calculator
	cfg    config.EmbeddingConfig
	retry  resilience.RetryConfig
}

// New builds an Embedder.
func New(client jina.Client, calc *cost.Calculator, cfg config.EmbeddingConfig) *Embedder {
	return &Embedder{
		client: client,
		calc:   calc,
		cfg:    cfg,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			ShouldRetry: resilience.IsTransient,
			OnRetry:     resilience.RetryLogger("jina", "embed"),
		},
	}
}

// Embed computes the record's vector from its canonical text. The returned
// cost covers the provider tokens consumed.
func (e *Embedder) Embed(ctx context.Context, rec *model.Record) ([]float64, float64, error) {
	text := CanonicalText(rec)
	if text == "" {
		return nil, 0, model.ErrNoContent
	}

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*jina.EmbedResponse, error) {
		return e.client.Embed(ctx, []string{text})
	})
	if err != nil {
		return nil, 0, eris.Wrap(err, "embedding: embed record")
	}

	vec := resp.Data[0].Embedding
	if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
		return nil, 0, eris.Errorf("embedding: got dimension %d, want %d", len(vec), e.cfg.Dimension)
	}

	return vec, e.calc.Embedding(resp.Usage.TotalTokens), nil
}

// CanonicalText builds the deterministic embedding input: the identity and
// positioning fields joined in a fixed order.
func CanonicalText(rec *model.Record) string {
	parts := make([]string, 0, 5)
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Company", rec.Name)
	add("Industry", rec.Industry)
	add("Description", rec.Description)
	add("Value proposition", rec.ValueProposition)
	if len(rec.KeyServices) > 0 {
		parts = append(parts, "Key services: "+strings.Join(rec.KeyServices, ", "))
	}
	return strings.Join(parts, "\n")
}
