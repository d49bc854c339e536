// Package batch fans a list of companies out over a bounded worker pool and
// rolls results up into a summary.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/internal/progress"
)

// Runner executes the pipeline for one company. The returned record is
// always terminal.
type Runner interface {
	Run(ctx context.Context, company model.Company) *model.Record
}

// Result pairs a terminal record with its position in the input list.
// Record is nil when the company was skipped after an abort.
type Result struct {
	Index   int
	Company model.Company
	Record  *model.Record
}

// Supervisor runs a batch with bounded concurrency and a consecutive
// failure breaker.
type Supervisor struct {
	runner   Runner
	bus      *progress.Bus
	cfg      config.BatchConfig
	queueCap int
}

// NewSupervisor wires a Supervisor. queueCap bounds the input queue;
// Config.InputQueueCap supplies the usual value.
func NewSupervisor(runner Runner, bus *progress.Bus, cfg config.BatchConfig, queueCap int) *Supervisor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if queueCap <= 0 {
		queueCap = 2 * cfg.Concurrency
	}
	return &Supervisor{runner: runner, bus: bus, cfg: cfg, queueCap: queueCap}
}

type queued struct {
	index   int
	company model.Company
}

// Start launches the batch and returns its id plus a channel yielding each
// completed Result in completion order, tagged with its input index so
// callers can reorder. The channel is buffered for the whole batch and
// closes once every worker has finished; skipped companies never appear.
func (s *Supervisor) Start(ctx context.Context, companies []model.Company) (string, <-chan Result) {
	batchID := uuid.NewString()
	log := zap.L().With(zap.String("batch_id", batchID))
	log.Info("batch started",
		zap.Int("companies", len(companies)),
		zap.Int("concurrency", s.cfg.Concurrency))

	out := make(chan Result, len(companies))
	go func() {
		defer close(out)

		runCtx, abort := context.WithCancel(ctx)
		defer abort()

		tracker := newFailureTracker(len(companies), s.cfg.ConsecutiveFailureThreshold)

		queue := make(chan queued, s.queueCap)
		go func() {
			defer close(queue)
			for i, c := range companies {
				select {
				case queue <- queued{index: i, company: c}:
				case <-runCtx.Done():
					return
				}
			}
		}()

		var (
			mu        sync.Mutex
			completed int
		)

		g := &errgroup.Group{}
		g.SetLimit(s.cfg.Concurrency)
		for item := range queue {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if runCtx.Err() != nil {
					return nil
				}
				rec := s.runner.Run(runCtx, item.company)

				mu.Lock()
				completed++
				done := completed
				mu.Unlock()
				out <- Result{Index: item.index, Company: item.company, Record: rec}

				if tracker.note(item.index, countsAsFailure(rec)) {
					log.Warn("aborting batch: consecutive failures",
						zap.Int("threshold", s.cfg.ConsecutiveFailureThreshold),
						zap.Int("at_index", item.index))
					abort()
				}
				if s.cfg.ProgressEvery > 0 && done%s.cfg.ProgressEvery == 0 {
					s.publishProgress(batchID, done, len(companies))
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return batchID, out
}

// Run drains Start into the roll-up plus one Result per input, ordered by
// input index. Companies never started after an abort come back with a nil
// Record and count as skipped.
func (s *Supervisor) Run(ctx context.Context, companies []model.Company) (*model.BatchSummary, []Result) {
	started := time.Now()
	batchID, stream := s.Start(ctx, companies)

	results := make([]Result, len(companies))
	for i, c := range companies {
		results[i] = Result{Index: i, Company: c}
	}
	for r := range stream {
		results[r.Index] = r
	}

	summary := s.summarize(results, time.Since(started))
	s.publishSummary(batchID, summary)
	zap.L().Info("batch finished",
		zap.String("batch_id", batchID),
		zap.Int("success", summary.Success),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("cost_usd", summary.AggregateCost),
		zap.Duration("duration", summary.Duration))
	return summary, results
}

func (s *Supervisor) summarize(results []Result, dur time.Duration) *model.BatchSummary {
	sum := &model.BatchSummary{Total: len(results), Duration: dur}
	for _, r := range results {
		if r.Record == nil {
			sum.Skipped++
			continue
		}
		switch r.Record.ScrapeStatus {
		case model.ScrapeStatusSuccess:
			sum.Success++
		case model.ScrapeStatusPartial:
			sum.Partial++
		default:
			sum.Failed++
		}
		sum.AggregateCost += r.Record.TotalCostUSD
	}
	return sum
}

func (s *Supervisor) publishProgress(batchID string, done, total int) {
	s.bus.Publish(model.ProgressEvent{
		JobID:  batchID,
		Status: model.EventProgress,
		Counters: map[string]int{
			"completed": done,
			"total":     total,
		},
	})
}

func (s *Supervisor) publishSummary(batchID string, sum *model.BatchSummary) {
	s.bus.Publish(model.ProgressEvent{
		JobID:  batchID,
		Status: model.EventCompleted,
		Counters: map[string]int{
			"total":   sum.Total,
			"success": sum.Success,
			"partial": sum.Partial,
			"failed":  sum.Failed,
			"skipped": sum.Skipped,
		},
	})
}

// countsAsFailure reports whether the record counts toward the breaker.
// Cancellation comes from outside the job (a batch abort or an operator
// interrupt), so it says nothing about the remaining inputs; timeouts do.
func countsAsFailure(rec *model.Record) bool {
	if rec.ScrapeStatus != model.ScrapeStatusFailed {
		return false
	}
	return rec.ScrapeError == nil || rec.ScrapeError.Kind != "Canceled"
}

// failureTracker detects runs of adjacent failed inputs. Adjacency is by
// input index, so out-of-order completion cannot trip it spuriously: an
// index with no outcome yet breaks the run.
type failureTracker struct {
	mu        sync.Mutex
	failed    []bool
	settled   []bool
	threshold int
}

func newFailureTracker(n, threshold int) *failureTracker {
	return &failureTracker{
		failed:    make([]bool, n),
		settled:   make([]bool, n),
		threshold: threshold,
	}
}

// note records an outcome and reports whether the failure run containing
// index has reached the threshold.
func (t *failureTracker) note(index int, failed bool) bool {
	if t.threshold <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settled[index] = true
	t.failed[index] = failed
	if !failed {
		return false
	}

	run := 1
	for i := index - 1; i >= 0 && t.settled[i] && t.failed[i]; i-- {
		run++
	}
	for i := index + 1; i < len(t.failed) && t.settled[i] && t.failed[i]; i++ {
		run++
	}
	return run >= t.threshold
}
