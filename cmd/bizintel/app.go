package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizintel/internal/aggregate"
	"github.com/sells-group/bizintel/internal/browser"
	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/cost"
	"github.com/sells-group/bizintel/internal/discovery"
	"github.com/sells-group/bizintel/internal/embedding"
	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/fetch"
	"github.com/sells-group/bizintel/internal/llm"
	"github.com/sells-group/bizintel/internal/pipeline"
	"github.com/sells-group/bizintel/internal/progress"
	"github.com/sells-group/bizintel/internal/selection"
	"github.com/sells-group/bizintel/internal/social"
	"github.com/sells-group/bizintel/internal/store"
	anthropicpkg "github.com/sells-group/bizintel/pkg/anthropic"
	"github.com/sells-group/bizintel/pkg/jina"
)

// app bundles the wired pipeline with everything that needs closing.
type app struct {
	pipe    *pipeline.Pipeline
	store   store.Store
	bus     *progress.Bus
	cleanup []func()
}

func buildApp(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	a := &app{store: st, bus: progress.NewBus(256)}

	calc := cost.NewCalculator(cost.Merge(modelRates(cfg.LLM.Prices)))
	svc := llm.NewService(cfg.LLM, calc, anthropicpkg.NewClient)
	if cfg.LLM.Prewarm {
		if err := svc.Prewarm(ctx); err != nil {
			a.Close()
			return nil, eris.Wrap(err, "pre-warm llm pool")
		}
	}
	fetcher := fetch.New(cfg.HTTP)

	var renderer extraction.Renderer
	if cfg.Extraction.UseBrowser {
		br := browser.New(cfg.Browser)
		renderer = br
		a.cleanup = append(a.cleanup, br.Close)
	}

	soc, err := social.New(cfg.Social)
	if err != nil {
		a.Close()
		return nil, eris.Wrap(err, "init social extractor")
	}

	jinaClient := jina.NewClient(cfg.Embedding.Key, cfg.Embedding.ModelID,
		jina.WithBaseURL(cfg.Embedding.BaseURL),
		jina.WithDimensions(cfg.Embedding.Dimension))

	a.pipe = pipeline.New(
		discovery.New(fetcher, cfg.Discovery),
		selection.New(svc, cfg.Selection),
		extraction.New(fetcher, renderer, cfg.Extraction),
		aggregate.New(svc, cfg.Aggregation),
		soc,
		embedding.New(jinaClient, calc, cfg.Embedding),
		st, a.bus, cfg.Job)

	return a, nil
}

func (a *app) Close() {
	for _, fn := range a.cleanup {
		fn()
	}
	_ = a.store.Close()
}

func modelRates(prices map[string]config.ModelPricing) map[string]cost.ModelRate {
	out := make(map[string]cost.ModelRate, len(prices))
	for model, p := range prices {
		out[model] = cost.ModelRate{InPer1K: p.InPer1K, OutPer1K: p.OutPer1K}
	}
	return out
}
