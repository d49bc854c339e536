// Package pipeline orchestrates the extraction phases for one company and
// owns the record through its whole lifecycle.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/discovery"
	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/internal/progress"
	"github.com/sells-group/bizintel/internal/selection"
	"github.com/sells-group/bizintel/internal/store"
)

// Phase dependencies, defined here so tests can substitute fakes.
type (
	// Discoverer is the link discovery phase.
	Discoverer interface {
		Discover(ctx context.Context, website string) *discovery.Result
	}
	// Selector is the page selection phase.
	Selector interface {
		Select(ctx context.Context, company model.Company, disc *discovery.Result) (*selection.Selection, error)
	}
	// Extractor is the content extraction phase.
	Extractor interface {
		ExtractAll(ctx context.Context, urls []string) []extraction.PageContent
	}
	// Aggregator is the intelligence aggregation phase.
	Aggregator interface {
		Aggregate(ctx context.Context, rec *model.Record, company model.Company, pages []extraction.PageContent) error
	}
	// SocialExtractor is the social link phase.
	SocialExtractor interface {
		FromPages(pages []extraction.PageContent) map[model.Platform]string
	}
	// Embedder is the embedding phase.
	Embedder interface {
		Embed(ctx context.Context, rec *model.Record) ([]float64, float64, error)
	}
)

// Pipeline runs one company through all phases.
type Pipeline struct {
	disc  Discoverer
	sel   Selector
	ext   Extractor
	agg   Aggregator
	soc   SocialExtractor
	emb   Embedder
	store store.Store
	bus   *progress.Bus
	cfg   config.JobConfig
}

// New wires a Pipeline. store and bus may not be nil; use store.Discard and
// a fresh bus when persistence or progress is unwanted.
func New(disc Discoverer, sel Selector, ext Extractor, agg Aggregator,
	soc SocialExtractor, emb Embedder, st store.Store, bus *progress.Bus, cfg config.JobConfig) *Pipeline {
	return &Pipeline{
		disc: disc, sel: sel, ext: ext, agg: agg, soc: soc, emb: emb,
		store: st, bus: bus, cfg: cfg,
	}
}

// Run executes the full pipeline for one company and always returns a
// terminal record. The record is persisted before return, including partial
// and failed outcomes.
func (p *Pipeline) Run(ctx context.Context, company model.Company) *model.Record {
	rec := model.NewRecord(company)
	log := zap.L().With(
		zap.String("job_id", rec.ID),
		zap.String("company", company.Name))

	if p.cfg.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutSecs)*time.Second)
		defer cancel()
	}

	rec.ScrapeStatus = model.ScrapeStatusRunning
	started := time.Now()
	degraded := false

	// Phase 1: discovery. Never fails outright.
	var disc *discovery.Result
	p.trackPhase(rec.ID, model.PhaseDiscovery, func() error {
		disc = p.disc.Discover(ctx, company.Website)
		return nil
	})
	rec.CrawlDepth = maxDepth(disc.Pages)
	if disc.Origin != "" {
		// The record carries the redirect-resolved origin, not the raw input.
		rec.Website = disc.Origin
	}
	if err := ctx.Err(); err != nil {
		return p.finalize(ctx, rec, started, degraded, jobErr(ctx, err))
	}

	// Phase 2: selection.
	var sel *selection.Selection
	err := p.trackPhase(rec.ID, model.PhaseSelection, func() error {
		var err error
		sel, err = p.sel.Select(ctx, company, disc)
		return err
	})
	if err != nil {
		return p.finalize(ctx, rec, started, degraded, jobErr(ctx, err))
	}
	rec.SelectionMethod = sel.Method
	if sel.Call != nil {
		rec.AddLLMCall(*sel.Call)
	}

	// Phase 3: extraction, with one progress event per page.
	var pages []extraction.PageContent
	p.trackPhase(rec.ID, model.PhaseExtraction, func() error {
		pages = p.ext.ExtractAll(ctx, sel.URLs)
		for i, pg := range pages {
			ev := model.ProgressEvent{
				JobID:   rec.ID,
				Phase:   model.PhaseExtraction,
				Status:  model.EventProgress,
				Message: pg.URL,
				Counters: map[string]int{
					"page":  i + 1,
					"pages": len(pages),
					"chars": pg.Chars,
				},
			}
			if pg.Err != nil {
				ev.Message = pg.URL + ": " + pg.Err.Error()
			}
			p.bus.Publish(ev)
		}
		return nil
	})
	rec.PagesCrawled = sel.URLs
	rec.ScrapedContentDetails = contentDetails(pages)
	rec.CrawlDurationSeconds = time.Since(started).Seconds()
	if err := ctx.Err(); err != nil {
		return p.finalize(ctx, rec, started, degraded, jobErr(ctx, err))
	}

	// Phase 4: aggregation. A degraded answer leaves a partial record but
	// the remaining phases still run on what we have.
	err = p.trackPhase(rec.ID, model.PhaseAggregation, func() error {
		return p.agg.Aggregate(ctx, rec, company, pages)
	})
	if err != nil {
		if errors.Is(err, model.ErrNoContent) || ctx.Err() != nil {
			return p.finalize(ctx, rec, started, degraded, jobErr(ctx, err))
		}
		log.Warn("aggregation degraded", zap.Error(err))
		degraded = true
		rec.ScrapeError = scrapeError(err)
	}

	// Phase 5: social links. Never fatal.
	p.trackPhase(rec.ID, model.PhaseSocial, func() error {
		if links := p.soc.FromPages(pages); len(links) > 0 {
			rec.SocialMedia = links
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return p.finalize(ctx, rec, started, degraded, jobErr(ctx, err))
	}

	// Phase 6: embedding. Failure degrades to a record without a vector.
	err = p.trackPhase(rec.ID, model.PhaseEmbedding, func() error {
		vec, costUSD, err := p.emb.Embed(ctx, rec)
		if err != nil {
			return err
		}
		rec.Embedding = vec
		if costUSD > 0 {
			rec.AddLLMCall(model.LLMCall{ProviderID: "jina:embeddings", CostUSD: costUSD})
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return p.finalize(ctx, rec, started, degraded, jobErr(ctx, err))
		}
		log.Warn("embedding degraded", zap.Error(err))
		degraded = true
		if rec.ScrapeError == nil {
			rec.ScrapeError = scrapeError(err)
		}
	}

	return p.finalize(ctx, rec, started, degraded, nil)
}

// finalize assigns the terminal status, persists the record, and emits the
// closing progress event.
func (p *Pipeline) finalize(ctx context.Context, rec *model.Record, started time.Time, degraded bool, fatal error) *model.Record {
	switch {
	case fatal != nil && hasIntelligence(rec):
		// Late failure after aggregation keeps the partial profile.
		rec.ScrapeStatus = model.ScrapeStatusPartial
		rec.ScrapeError = scrapeError(fatal)
	case fatal != nil:
		rec.ScrapeStatus = model.ScrapeStatusFailed
		rec.ScrapeError = scrapeError(fatal)
	case degraded:
		rec.ScrapeStatus = model.ScrapeStatusPartial
	default:
		rec.ScrapeStatus = model.ScrapeStatusSuccess
	}
	rec.Touch()

	// Persist with a fresh context: the job context may already be dead.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.SaveRecord(saveCtx, rec); err != nil {
		zap.L().Error("persist record failed",
			zap.String("job_id", rec.ID), zap.Error(err))
	}

	status := model.EventCompleted
	if rec.ScrapeStatus == model.ScrapeStatusFailed {
		status = model.EventFailed
	}
	p.bus.Publish(model.ProgressEvent{
		JobID:   rec.ID,
		Phase:   model.PhaseEmbedding,
		Status:  status,
		Message: string(rec.ScrapeStatus),
		Counters: map[string]int{
			"duration_ms": int(time.Since(started).Milliseconds()),
			"llm_calls":   len(rec.LLMCalls),
		},
	})

	zap.L().Info("job finished",
		zap.String("job_id", rec.ID),
		zap.String("company", rec.Name),
		zap.String("status", string(rec.ScrapeStatus)),
		zap.Float64("cost_usd", rec.TotalCostUSD),
		zap.Duration("duration", time.Since(started)))
	return rec
}

// trackPhase emits started/completed/failed events around fn and warns when
// a phase overruns its soft budget. Only the job timeout aborts.
func (p *Pipeline) trackPhase(jobID string, phase model.Phase, fn func() error) error {
	p.bus.Publish(model.ProgressEvent{JobID: jobID, Phase: phase, Status: model.EventStarted})
	start := time.Now()

	err := fn()

	elapsed := time.Since(start)
	if budget := time.Duration(p.cfg.PhaseSoftBudgetSecs) * time.Second; budget > 0 && elapsed > budget {
		zap.L().Warn("phase exceeded soft budget",
			zap.String("job_id", jobID),
			zap.String("phase", string(phase)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", budget))
	}

	ev := model.ProgressEvent{
		JobID:  jobID,
		Phase:  phase,
		Status: model.EventCompleted,
		Counters: map[string]int{
			"duration_ms": int(elapsed.Milliseconds()),
		},
	}
	if err != nil {
		ev.Status = model.EventFailed
		ev.Message = err.Error()
	}
	p.bus.Publish(ev)
	return err
}

// jobErr maps a phase error onto the job-level taxonomy, folding context
// errors into the timeout/cancel sentinels.
func jobErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return model.ErrJobTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return model.ErrCanceled
	default:
		return err
	}
}

func scrapeError(err error) *model.ScrapeError {
	return &model.ScrapeError{
		Kind:    model.ErrorKind(err),
		Message: err.Error(),
	}
}

func hasIntelligence(rec *model.Record) bool {
	return rec.Description != "" || rec.Industry != "" || len(rec.KeyServices) > 0
}

func maxDepth(pages []discovery.Page) int {
	depth := 0
	for _, p := range pages {
		if p.Depth > depth {
			depth = p.Depth
		}
	}
	return depth
}

func contentDetails(pages []extraction.PageContent) map[string]int {
	out := make(map[string]int, len(pages))
	for _, p := range pages {
		if p.Err == nil {
			out[p.URL] = p.Chars
		}
	}
	return out
}
