package aggregate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/cost"
	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/llm"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/pkg/anthropic"
)

// sequenceClient returns one scripted response per call.
type sequenceClient struct {
	texts []string
	calls int
}

func (c *sequenceClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	text := c.texts[len(c.texts)-1]
	if c.calls < len(c.texts) {
		text = c.texts[c.calls]
	}
	c.calls++
	return &anthropic.MessageResponse{
		ID:      "msg_agg",
		Model:   req.Model,
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 2000, OutputTokens: 400},
	}, nil
}

func newAggregator(client anthropic.Client) *Aggregator {
	svc := llm.NewService(
		config.LLMConfig{Workers: 1, LargeModelID: "large-model"},
		cost.NewCalculator(cost.DefaultRates()),
		func(string) anthropic.Client { return client },
	)
	return New(svc, config.AggregationConfig{PerPageChars: 5000, MaxPromptChars: 400000})
}

func goodPages() []extraction.PageContent {
	return []extraction.PageContent{
		{URL: "https://acme.test", Title: "Acme", Text: "Acme builds plumbing software."},
		{URL: "https://acme.test/about", Title: "About", Text: "Founded in 2015 in Denver."},
	}
}

const goodAnswer = `{
	"description": "Acme builds plumbing software.",
	"industry": "construction software",
	"company_stage": {"value": "growth", "confidence": 0.8},
	"is_saas": {"value": "yes", "confidence": 0.9},
	"key_services": ["scheduling", "invoicing", ""],
	"contact_info": {"email": "hi@acme.test", "phone": ""}
}`

func TestAggregateFillsRecord(t *testing.T) {
	t.Parallel()
	client := &sequenceClient{texts: []string{goodAnswer}}
	rec := model.NewRecord(model.Company{Name: "Acme"})

	err := newAggregator(client).Aggregate(context.Background(), rec,
		model.Company{Name: "Acme", Website: "https://acme.test"}, goodPages())
	require.NoError(t, err)

	assert.Equal(t, "Acme builds plumbing software.", rec.Description)
	assert.Equal(t, "construction software", rec.Industry)
	require.NotNil(t, rec.CompanyStage)
	assert.Equal(t, "growth", rec.CompanyStage.Value)
	assert.InDelta(t, 0.8, rec.CompanyStage.Confidence, 1e-9)
	assert.Equal(t, []string{"scheduling", "invoicing"}, rec.KeyServices)
	assert.Equal(t, map[string]string{"email": "hi@acme.test"}, rec.ContactInfo)

	// One call recorded, totals consistent.
	require.Len(t, rec.LLMCalls, 1)
	assert.Equal(t, 2000, rec.TotalInputTokens)
}

func TestAggregateCoercesInvalidEnums(t *testing.T) {
	t.Parallel()
	client := &sequenceClient{texts: []string{`{
		"description": "x",
		"company_stage": {"value": "unicorn", "confidence": 0.99},
		"tech_sophistication": {"value": "high", "confidence": 1.7}
	}`}}
	rec := model.NewRecord(model.Company{Name: "Acme"})

	err := newAggregator(client).Aggregate(context.Background(), rec,
		model.Company{Name: "Acme"}, goodPages())
	require.NoError(t, err)

	require.NotNil(t, rec.CompanyStage)
	assert.Equal(t, model.Unknown, rec.CompanyStage.Value)
	assert.Zero(t, rec.CompanyStage.Confidence)
	// Confidence clamped into [0,1].
	assert.Equal(t, 1.0, rec.TechSophistication.Confidence)
}

func TestAggregateRetriesOnceOnMalformedAnswer(t *testing.T) {
	t.Parallel()
	client := &sequenceClient{texts: []string{"not json at all", goodAnswer}}
	rec := model.NewRecord(model.Company{Name: "Acme"})

	err := newAggregator(client).Aggregate(context.Background(), rec,
		model.Company{Name: "Acme"}, goodPages())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	// Both calls appear in the ledger.
	assert.Len(t, rec.LLMCalls, 2)
	assert.Equal(t, 4000, rec.TotalInputTokens)
}

func TestAggregateFailsAfterSecondMalformedAnswer(t *testing.T) {
	t.Parallel()
	client := &sequenceClient{texts: []string{"nope", "still nope"}}
	rec := model.NewRecord(model.Company{Name: "Acme"})

	err := newAggregator(client).Aggregate(context.Background(), rec,
		model.Company{Name: "Acme"}, goodPages())
	require.Error(t, err)

	var le *model.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, model.LLMMalformedOutput, le.Kind)
	assert.Equal(t, 2, client.calls)
}

func TestAggregateNoUsableContent(t *testing.T) {
	t.Parallel()
	client := &sequenceClient{texts: []string{goodAnswer}}
	rec := model.NewRecord(model.Company{Name: "Acme"})

	pages := []extraction.PageContent{
		{URL: "https://acme.test", Err: assert.AnError},
		{URL: "https://acme.test/about", Text: ""},
	}
	err := newAggregator(client).Aggregate(context.Background(), rec,
		model.Company{Name: "Acme"}, pages)
	assert.ErrorIs(t, err, model.ErrNoContent)
	assert.Zero(t, client.calls)
}

func TestBuildPromptLabelsAndCaps(t *testing.T) {
	t.Parallel()
	pages := []extraction.PageContent{
		{URL: "https://acme.test", Title: "Home", Text: strings.Repeat("a", 100)},
		{URL: "https://acme.test/about", Text: strings.Repeat("b", 100)},
	}
	prompt := buildPrompt(model.Company{Name: "Acme"}, pages, 10, 0)

	assert.Contains(t, prompt, "=== PAGE 1: https://acme.test (Home) ===")
	assert.Contains(t, prompt, "=== PAGE 2: https://acme.test/about ===")
	assert.NotContains(t, prompt, strings.Repeat("a", 11))
	assert.Contains(t, prompt, `"company_stage"`)
	assert.Contains(t, prompt, "startup, growth, mature, enterprise, unknown")
}

func TestBuildPromptDropsTailPagesAtBudget(t *testing.T) {
	t.Parallel()
	pages := []extraction.PageContent{
		{URL: "https://acme.test/a", Text: strings.Repeat("a", 500)},
		{URL: "https://acme.test/b", Text: strings.Repeat("b", 500)},
	}
	base := len(buildPrompt(model.Company{Name: "Acme"}, nil, 500, 0))
	prompt := buildPrompt(model.Company{Name: "Acme"}, pages, 500, base+600)

	assert.Contains(t, prompt, "PAGE 1")
	assert.NotContains(t, prompt, "PAGE 2")
}
