// Package fetch implements the polite HTTP fetcher used by discovery,
// extraction, and social link scraping.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/internal/resilience"
)

const maxRedirects = 5

// Result is a fetched document plus its redirect-resolved location.
type Result struct {
	Body       []byte
	FinalURL   string
	StatusCode int
	// Redirected is true when FinalURL differs from the requested URL.
	Redirected bool
}

// Fetcher performs bounded, retried HTTP GETs with browser-like headers.
type Fetcher struct {
	client   *http.Client
	cfg      config.HTTPConfig
	retryCfg resilience.RetryConfig

	tlsWarnOnce sync.Once
}

// New builds a Fetcher from config. TLS verification is relaxed unless
// http.strict_tls is set; many small-business sites have broken chains.
func New(cfg config.HTTPConfig) *Fetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if !cfg.StrictTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	f := &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}

	f.retryCfg = resilience.RetryConfig{
		MaxAttempts: cfg.MaxRetries + 1,
		ShouldRetry: resilience.IsTransient,
		NextDelay:   retryAfterDelay,
		OnRetry:     resilience.RetryLogger("http", "get"),
	}

	return f
}

// Get fetches url with retries. Errors are always *model.FetchError so
// callers can classify without string matching.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Result, error) {
	if !f.cfg.StrictTLS {
		f.tlsWarnOnce.Do(func() {
			zap.L().Warn("TLS certificate verification disabled",
				zap.String("reason", "http.strict_tls=false"))
		})
	}

	return resilience.DoVal(ctx, f.retryCfg, func(ctx context.Context) (*Result, error) {
		return f.getOnce(ctx, rawURL)
	})
}

func (f *Fetcher) getOnce(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &model.FetchError{
			Kind: model.FetchMalformed, URL: rawURL,
			Err: eris.Wrap(err, "fetch: build request"),
		}
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		// CheckRedirect handed back the last 3xx after the redirect cap.
		return nil, &model.FetchError{
			Kind: model.FetchMalformed, URL: rawURL,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("fetch: more than %d redirects", maxRedirects),
		}
	}

	if resp.StatusCode >= 400 {
		fe := &model.FetchError{
			Kind:       model.FetchHTTPStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Retryable:  resilience.IsTransientHTTPStatus(resp.StatusCode),
		}
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			fe.RetryAfter = ra
		}
		return nil, fe
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, &model.FetchError{
			Kind: model.FetchTooLarge, URL: rawURL,
			Err: eris.Errorf("fetch: body exceeds %d bytes", f.cfg.MaxBytes),
		}
	}

	if blocked, marker := DetectBlock(resp.StatusCode, body); blocked {
		zap.L().Debug("bot protection detected",
			zap.String("url", rawURL),
			zap.String("marker", marker))
		return nil, &model.FetchError{
			Kind:       model.FetchHTTPStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("fetch: blocked by %s", marker),
		}
	}

	return &Result{
		Body:       body,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Redirected: finalURL != rawURL,
	}, nil
}

// ResolveOrigin follows redirects from rawURL and returns the normalized
// origin (scheme://host) of the final location.
func (f *Fetcher) ResolveOrigin(ctx context.Context, rawURL string) (string, error) {
	res, err := f.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(res.FinalURL)
	if err != nil {
		return "", &model.FetchError{
			Kind: model.FetchMalformed, URL: res.FinalURL,
			Err: eris.Wrap(err, "fetch: parse final url"),
		}
	}
	return u.Scheme + "://" + u.Host, nil
}

func classifyTransportError(rawURL string, err error) *model.FetchError {
	fe := &model.FetchError{URL: rawURL, Err: err}

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		fe.Kind = model.FetchDNS
		fe.Retryable = dnsErr.Temporary()
	case isTLSError(err):
		fe.Kind = model.FetchTLS
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		fe.Kind = model.FetchTimeout
		fe.Retryable = true
	default:
		fe.Kind = model.FetchMalformed
		fe.Retryable = resilience.IsTransient(err)
	}
	return fe
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:")
}

// retryAfterDelay honors a server-provided Retry-After, capped at 30s.
// Without a hint it returns a negative duration so the exponential backoff
// stays in effect.
func retryAfterDelay(err error) time.Duration {
	var fe *model.FetchError
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		if fe.RetryAfter > 30*time.Second {
			return 30 * time.Second
		}
		return fe.RetryAfter
	}
	return -1
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
