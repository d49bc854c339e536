// Package llm provides the shared model-call service: a fixed worker pool,
// request rate limiting, retries, and cost accounting for every prompt the
// pipeline sends.
package llm

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/cost"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/internal/resilience"
	"github.com/sells-group/bizintel/pkg/anthropic"
)

// Request is a single prompt for the service.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
}

// Response carries the model output plus accounting fields.
type Response struct {
	Text         string
	ProviderID   string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Call converts the response into a record ledger entry.
func (r *Response) Call() model.LLMCall {
	return model.LLMCall{
		ProviderID:   r.ProviderID,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		CostUSD:      r.CostUSD,
	}
}

// Service runs prompts through a bounded pool of API clients.
type Service struct {
	cfg     config.LLMConfig
	pool    chan anthropic.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	calc    *cost.Calculator
	retry   resilience.RetryConfig

	// Warm-up gate: the first request goes alone so an auth or network
	// misconfiguration fails once instead of W times.
	warmMu    sync.Mutex
	warming   bool
	warmed    chan struct{}
	warmRetry chan struct{}
}

// NewService builds a Service. newClient is called once per worker so each
// worker owns its own connection state.
func NewService(cfg config.LLMConfig, calc *cost.Calculator, newClient func(apiKey string) anthropic.Client) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	pool := make(chan anthropic.Client, workers)
	for i := 0; i < workers; i++ {
		pool <- newClient(cfg.Key)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateRPM)/60.0), workers)
	}

	s := &Service{
		cfg:       cfg,
		pool:      pool,
		limiter:   limiter,
		calc:      calc,
		warmed:    make(chan struct{}),
		warmRetry: make(chan struct{}),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("llm circuit state change",
					zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
	}

	s.retry = resilience.RetryConfig{
		MaxAttempts: cfg.MaxRetries + 1,
		ShouldRetry: resilience.IsTransient,
		OnRetry:     resilience.RetryLogger("llm", "complete"),
	}

	return s
}

// Prewarm sends a trivial completion through every pooled worker so auth and
// connectivity problems surface at startup. A worker whose probe fails is
// evicted from the pool; Prewarm fails only when no worker survives, and the
// service must not be used after that.
func (s *Service) Prewarm(ctx context.Context) error {
	workers := cap(s.pool)
	kept := 0
	var firstErr error
	for i := 0; i < workers; i++ {
		var client anthropic.Client
		select {
		case client = <-s.pool:
		case <-ctx.Done():
			return ctx.Err()
		}

		_, err := client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.cfg.SmallModelID,
			MaxTokens: 1,
			Messages:  []anthropic.Message{{Role: "user", Content: "ping"}},
		})
		if err != nil {
			if firstErr == nil {
				firstErr = Classify(err)
			}
			zap.L().Warn("llm worker failed pre-warm, evicting",
				zap.Int("worker", i), zap.Error(err))
			continue
		}
		s.pool <- client
		kept++
	}

	if kept == 0 {
		return firstErr
	}
	if kept < workers {
		zap.L().Warn("llm pool running degraded after pre-warm",
			zap.Int("workers", kept), zap.Int("configured", workers))
	}
	s.leaveGate(true)
	return nil
}

// Complete sends a prompt and returns the text response with token counts
// and cost attached. Errors are *model.LLMError where classifiable.
func (s *Service) Complete(ctx context.Context, req Request) (*Response, error) {
	var client anthropic.Client
	select {
	case client = <-s.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { s.pool <- client }()

	first, err := s.enterGate(ctx)
	if err != nil {
		return nil, err
	}

	msgReq := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.System != "" {
		msgReq.System = []anthropic.SystemBlock{{Text: req.System}}
	}
	if msgReq.MaxTokens <= 0 {
		msgReq.MaxTokens = 4096
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			m, err := client.CreateMessage(ctx, msgReq)
			if err != nil {
				return nil, Classify(err)
			}
			return m, nil
		})
	})

	if first {
		s.leaveGate(err == nil)
	}
	if err != nil {
		return nil, err
	}

	in := int(resp.Usage.InputTokens)
	out := int(resp.Usage.OutputTokens)
	r := &Response{
		Text:         resp.Text(),
		ProviderID:   resp.ID,
		Model:        resp.Model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      s.calc.Tokens(req.Model, in, out),
	}

	zap.L().Debug("llm call complete",
		zap.String("model", req.Model),
		zap.Int("input_tokens", in),
		zap.Int("output_tokens", out),
		zap.Float64("cost_usd", r.CostUSD))

	return r, nil
}

// LargeModel returns the configured large-context model ID.
func (s *Service) LargeModel() string { return s.cfg.LargeModelID }

// SmallModel returns the configured small model ID.
func (s *Service) SmallModel() string { return s.cfg.SmallModelID }

// enterGate admits callers through the warm-up gate. The first caller gets
// first=true and must call leaveGate with the outcome; everyone else blocks
// until a first call has succeeded.
func (s *Service) enterGate(ctx context.Context) (bool, error) {
	for {
		s.warmMu.Lock()
		select {
		case <-s.warmed:
			s.warmMu.Unlock()
			return false, nil
		default:
		}
		if !s.warming {
			s.warming = true
			s.warmMu.Unlock()
			return true, nil
		}
		retry := s.warmRetry
		s.warmMu.Unlock()

		select {
		case <-s.warmed:
			return false, nil
		case <-retry:
			// Warm-up failed; loop so one waiter becomes the new probe.
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (s *Service) leaveGate(success bool) {
	s.warmMu.Lock()
	defer s.warmMu.Unlock()
	if success {
		select {
		case <-s.warmed:
		default:
			close(s.warmed)
		}
		return
	}
	s.warming = false
	close(s.warmRetry)
	s.warmRetry = make(chan struct{})
}

// Classify maps an SDK error onto the service error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	switch sc := anthropic.StatusCode(err); {
	case sc == 401 || sc == 403:
		return &model.LLMError{Kind: model.LLMAuth, Err: err}
	case sc == 402:
		return &model.LLMError{Kind: model.LLMQuota, Err: err}
	case sc == 429:
		return &model.LLMError{Kind: model.LLMRateLimited, Err: err}
	case sc == 408 || sc == 504:
		return &model.LLMError{Kind: model.LLMTimeout, Err: err}
	case sc >= 500:
		// Overloaded upstream behaves like rate limiting.
		return &model.LLMError{Kind: model.LLMRateLimited, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &model.LLMError{Kind: model.LLMTimeout, Err: err}
	}

	return err
}
