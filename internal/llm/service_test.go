package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/cost"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/pkg/anthropic"
)

// fakeClient returns canned responses and counts concurrent calls.
type fakeClient struct {
	respond func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	active  *atomic.Int32
	maxSeen *atomic.Int32
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if f.active != nil {
		cur := f.active.Add(1)
		for {
			prev := f.maxSeen.Load()
			if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		defer f.active.Add(-1)
		time.Sleep(5 * time.Millisecond)
	}
	return f.respond(req)
}

func okResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:    "msg_123",
		Model: "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{
			{Type: "text", Text: text},
		},
		Usage: anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 100},
	}
}

func newTestService(workers int, fc *fakeClient) *Service {
	return NewService(
		config.LLMConfig{Workers: workers, MaxRetries: 1},
		cost.NewCalculator(cost.DefaultRates()),
		func(string) anthropic.Client { return fc },
	)
}

func TestCompleteReturnsTextAndAccounting(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return okResponse("hello"), nil
	}}
	svc := newTestService(1, fc)

	resp, err := svc.Complete(context.Background(), Request{
		Model: "claude-sonnet-4-5-20250929", Prompt: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "msg_123", resp.ProviderID)
	assert.Equal(t, 1000, resp.InputTokens)
	// 1K in at 0.003 + 0.1K out at 0.015.
	assert.InDelta(t, 0.0045, resp.CostUSD, 1e-9)

	call := resp.Call()
	assert.Equal(t, 1000, call.InputTokens)
	assert.Equal(t, 100, call.OutputTokens)
}

func TestCompleteBoundsConcurrency(t *testing.T) {
	t.Parallel()
	var active, maxSeen atomic.Int32
	fc := &fakeClient{
		active:  &active,
		maxSeen: &maxSeen,
		respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return okResponse("ok"), nil
		},
	}
	svc := newTestService(2, fc)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := svc.Complete(ctx, Request{Model: "m", Prompt: "p"})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestWarmGateFailsFastOnAuthError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fc := &fakeClient{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		calls.Add(1)
		return nil, &model.LLMError{Kind: model.LLMAuth, Err: eris.New("bad key")}
	}}
	svc := newTestService(4, fc)

	_, err := svc.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	// Auth errors are not transient, so the probe fails once with no retries.
	assert.Equal(t, int32(1), calls.Load())
}

func TestWarmGateReleasesWaitersAfterSuccess(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return okResponse("ok"), nil
	}}
	svc := newTestService(3, fc)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := svc.Complete(ctx, Request{Model: "m", Prompt: "p"})
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func TestPrewarmEvictsFailedWorkers(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fc := &fakeClient{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if calls.Add(1) == 1 {
			return nil, &model.LLMError{Kind: model.LLMAuth, Err: eris.New("bad worker")}
		}
		return okResponse("pong"), nil
	}}
	svc := newTestService(3, fc)

	require.NoError(t, svc.Prewarm(context.Background()))
	// Every pooled worker was probed once.
	assert.Equal(t, int32(3), calls.Load())

	// The pool still serves requests with the failed worker evicted.
	resp, err := svc.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Text)
}

func TestPrewarmFailsWhenNoWorkerSurvives(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, &model.LLMError{Kind: model.LLMAuth, Err: eris.New("bad key")}
	}}
	svc := newTestService(2, fc)

	err := svc.Prewarm(context.Background())
	var le *model.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, model.LLMAuth, le.Kind)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Classify(nil))

	err := Classify(context.DeadlineExceeded)
	var le *model.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, model.LLMTimeout, le.Kind)

	plain := eris.New("something else")
	assert.Equal(t, plain, Classify(plain))
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a":1} Hope that helps.`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}
