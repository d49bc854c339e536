package model

import (
	"errors"
	"fmt"
	"time"
)

// FetchErrorKind classifies HTTP fetch failures.
type FetchErrorKind string

const (
	FetchDNS        FetchErrorKind = "dns"
	FetchTLS        FetchErrorKind = "tls"
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchTooLarge   FetchErrorKind = "too_large"
	FetchMalformed  FetchErrorKind = "malformed"
)

// FetchError is a classified HTTP fetch failure.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Retryable  bool
	// RetryAfter carries a server-provided backoff hint, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// LLMErrorKind classifies model-call failures.
type LLMErrorKind string

const (
	LLMAuth            LLMErrorKind = "auth"
	LLMRateLimited     LLMErrorKind = "rate_limited"
	LLMTimeout         LLMErrorKind = "timeout"
	LLMMalformedOutput LLMErrorKind = "malformed_output"
	LLMQuota           LLMErrorKind = "quota"
)

// LLMError is a classified model-call failure.
type LLMError struct {
	Kind LLMErrorKind
	Err  error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm: %s", e.Kind)
}

func (e *LLMError) Unwrap() error { return e.Err }

// Job-level sentinel errors. Terminal status mapping lives in the pipeline.
var (
	ErrNoContent  = errors.New("no_content")
	ErrCanceled   = errors.New("canceled")
	ErrJobTimeout = errors.New("timeout")
)

// ErrorKind extracts the scrape_error kind string for a job failure.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoContent):
		return "NoContent"
	case errors.Is(err, ErrCanceled):
		return "Canceled"
	case errors.Is(err, ErrJobTimeout):
		return "JobTimeout"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return "FetchError"
	}
	var le *LLMError
	if errors.As(err, &le) {
		return "LLMError"
	}
	return "InternalError"
}
