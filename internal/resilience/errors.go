// Package resilience centralizes retry, backoff, and circuit-breaker logic
// for the pipeline's external calls (HTTP fetches, LLM and embedding APIs).
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/bizintel/internal/model"
)

// IsTransient reports whether the error is safe to retry: a retryable
// FetchError, a rate-limited/quota/timeout LLMError, or a network-level
// failure (timeout, reset, DNS).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var fe *model.FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}

	var le *model.LLMError
	if errors.As(err, &le) {
		switch le.Kind {
		case model.LLMRateLimited, model.LLMQuota, model.LLMTimeout:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the status code is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
