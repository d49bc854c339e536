// Package browser manages a shared headless browser for pages that need
// JavaScript rendering before their HTML is usable.
package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/model"
)

// Renderer renders pages through one shared browser process. Page loads run
// in parallel up to max_parallel_pages; after N consecutive timeouts the
// browser process is assumed wedged and restarted.
type Renderer struct {
	cfg config.BrowserConfig
	sem *semaphore.Weighted

	mu                  sync.Mutex
	browser             *rod.Browser
	launch              *launcher.Launcher
	consecutiveTimeouts int
}

// New builds a Renderer. The browser process starts lazily on first use.
func New(cfg config.BrowserConfig) *Renderer {
	parallel := cfg.MaxParallelPages
	if parallel <= 0 {
		parallel = 1
	}
	return &Renderer{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(parallel)),
	}
}

// Render loads rawURL, waits for the page (and optionally waitFor, a CSS
// selector), and returns the rendered HTML.
func (r *Renderer) Render(ctx context.Context, rawURL, waitFor string) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	browser, err := r.acquireBrowser()
	if err != nil {
		return "", err
	}

	timeout := time.Duration(r.cfg.PageTimeoutSecs) * time.Second
	html, err := renderPage(ctx, browser, rawURL, waitFor, timeout)
	r.noteResult(err)
	if err != nil {
		return "", err
	}
	return html, nil
}

func renderPage(ctx context.Context, browser *rod.Browser, rawURL, waitFor string, timeout time.Duration) (string, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", eris.Wrap(err, "browser: open page")
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(timeout)

	if err := page.Navigate(rawURL); err != nil {
		return "", classifyRenderError(rawURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", classifyRenderError(rawURL, err)
	}
	if waitFor != "" {
		if _, err := page.Element(waitFor); err != nil {
			// Selector never appeared; render what we have.
			zap.L().Debug("wait_for selector not found",
				zap.String("url", rawURL), zap.String("selector", waitFor))
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", classifyRenderError(rawURL, err)
	}
	return html, nil
}

// Close shuts down the browser process.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Renderer) acquireBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	browser := rod.New()
	if r.cfg.ControlURL != "" {
		browser = browser.ControlURL(r.cfg.ControlURL)
	} else {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "browser: launch")
		}
		r.launch = l
		browser = browser.ControlURL(u)
	}

	if err := browser.Connect(); err != nil {
		r.launch = nil
		return nil, eris.Wrap(err, "browser: connect")
	}

	r.browser = browser
	r.consecutiveTimeouts = 0
	return browser, nil
}

// noteResult tracks consecutive timeouts and restarts the browser once the
// threshold is hit. Non-timeout failures do not count.
func (r *Renderer) noteResult(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil || !isRenderTimeout(err) {
		r.consecutiveTimeouts = 0
		return
	}

	r.consecutiveTimeouts++
	threshold := r.cfg.RestartAfterTimeouts
	if threshold <= 0 {
		threshold = 3
	}
	if r.consecutiveTimeouts >= threshold {
		zap.L().Warn("restarting browser after consecutive timeouts",
			zap.Int("timeouts", r.consecutiveTimeouts))
		r.closeLocked()
		r.consecutiveTimeouts = 0
	}
}

func (r *Renderer) closeLocked() {
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
	if r.launch != nil {
		r.launch.Cleanup()
		r.launch = nil
	}
}

func classifyRenderError(rawURL string, err error) error {
	if isRenderTimeout(err) {
		return &model.FetchError{
			Kind: model.FetchTimeout, URL: rawURL, Retryable: true, Err: err,
		}
	}
	return &model.FetchError{Kind: model.FetchMalformed, URL: rawURL, Err: err}
}

func isRenderTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
