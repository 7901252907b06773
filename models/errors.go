package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes used in API responses and internal classification.
const (
	ErrCodeEngine               = "ENGINE_ERROR"
	ErrCodeTimeout              = "SCRAPE_TIMEOUT"
	ErrCodeActionsNotSupported  = "ACTIONS_NOT_SUPPORTED"
	ErrCodeBrandingNotSupported = "BRANDING_NOT_SUPPORTED"
	ErrCodePrefetchFailed       = "SPECIALTY_PREFETCH_FAILED"
	ErrCodeInsufficientTime     = "INSUFFICIENT_TIME_FOR_PAGES"
	ErrCodeZeroDataRetention    = "ZERO_DATA_RETENTION_VIOLATION"
	ErrCodeSite                 = "SITE_ERROR"
	ErrCodeSSL                  = "SSL_ERROR"
	ErrCodeDNS                  = "DNS_RESOLUTION_ERROR"
	ErrCodeProxy                = "PROXY_SELECTION_ERROR"
	ErrCodeRobotsDenied         = "ROBOTS_DENIED"
	ErrCodeCancelled            = "REQUEST_CANCELLED"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// Cache fallback signals. Both mean "ask a live engine instead"; neither
// is a failure unless the index engine was explicitly forced.
var (
	ErrCacheMiss   = errors.New("index: cache miss")
	ErrNoFreshData = errors.New("index: no cached data within max age")
)

// IsCacheFallback reports whether err is one of the cache fallback
// signals rather than a real failure.
func IsCacheFallback(err error) bool {
	return errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrNoFreshData)
}

// TimeoutTier distinguishes which deadline fired.
type TimeoutTier string

const (
	// TierScrape is the request-wide deadline owned by the abort
	// coordinator.
	TierScrape TimeoutTier = "scrape"

	// TierEngine and TierParser are sub-operation deadlines owned by the
	// respective collaborator.
	TierEngine TimeoutTier = "engine"
	TierParser TimeoutTier = "parser"
)

// TimeoutError reports an expired deadline, classified by tier.
type TimeoutError struct {
	Tier TimeoutTier
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s-level timeout exceeded", e.Tier)
}

// EngineError reports a misconfigured or unknown engine.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine %q: %v", e.Engine, e.Err)
	}
	return fmt.Sprintf("engine %q is not configured", e.Engine)
}

func (e *EngineError) Unwrap() error { return e.Err }

// UnsupportedFeatureError reports a requested capability that the only
// viable engine cannot provide and that must not be silently degraded.
type UnsupportedFeatureError struct {
	Code    string // ErrCodeActionsNotSupported or ErrCodeBrandingNotSupported
	Feature string
	Engine  string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("feature %q is not supported by engine %q", e.Feature, e.Engine)
}

// PrefetchError reports a failed or contract-violating specialty payload
// download.
type PrefetchError struct {
	Engine      string
	ContentType string
	Err         error
}

func (e *PrefetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("specialty prefetch failed (engine %s, content-type %q): %v", e.Engine, e.ContentType, e.Err)
	}
	return fmt.Sprintf("engine %s returned no inline payload for content-type %q", e.Engine, e.ContentType)
}

func (e *PrefetchError) Unwrap() error { return e.Err }

// InsufficientTimeError reports that the remaining deadline cannot cover
// parsing the detected number of pages.
type InsufficientTimeError struct {
	NumPages  int
	Required  time.Duration
	Remaining time.Duration
}

func (e *InsufficientTimeError) Error() string {
	return fmt.Sprintf("insufficient time to parse %d pages: need ~%s, %s remaining",
		e.NumPages, e.Required, e.Remaining)
}

// ZeroDataRetentionError reports a disallowed artifact request under the
// zero-data-retention policy.
type ZeroDataRetentionError struct {
	Artifact string
}

func (e *ZeroDataRetentionError) Error() string {
	return fmt.Sprintf("%s output is not available under zero data retention", e.Artifact)
}

// SiteError reports an engine-layer network failure, categorised by code
// (SITE_ERROR, SSL_ERROR, DNS_RESOLUTION_ERROR, PROXY_SELECTION_ERROR).
type SiteError struct {
	Code string
	URL  string
	Err  error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("%s fetching %s: %v", e.Code, e.URL, e.Err)
}

func (e *SiteError) Unwrap() error { return e.Err }

// RobotsDeniedError reports a robots.txt disallow verdict.
type RobotsDeniedError struct {
	URL string
}

func (e *RobotsDeniedError) Error() string {
	return fmt.Sprintf("url %s is disallowed by robots.txt", e.URL)
}

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeFor classifies any pipeline error into a caller-facing code.
func CodeFor(err error) string {
	var (
		timeoutErr  *TimeoutError
		engineErr   *EngineError
		featureErr  *UnsupportedFeatureError
		prefetchErr *PrefetchError
		timeErr     *InsufficientTimeError
		zdrErr      *ZeroDataRetentionError
		siteErr     *SiteError
		robotsErr   *RobotsDeniedError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return ErrCodeTimeout
	case errors.As(err, &featureErr):
		return featureErr.Code
	case errors.As(err, &prefetchErr):
		return ErrCodePrefetchFailed
	case errors.As(err, &timeErr):
		return ErrCodeInsufficientTime
	case errors.As(err, &zdrErr):
		return ErrCodeZeroDataRetention
	case errors.As(err, &siteErr):
		return siteErr.Code
	case errors.As(err, &robotsErr):
		return ErrCodeRobotsDenied
	case errors.As(err, &engineErr):
		return ErrCodeEngine
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	default:
		return ErrCodeInternal
	}
}

// Detail builds the API-facing detail for an error.
func Detail(err error) *ErrorDetail {
	return &ErrorDetail{Code: CodeFor(err), Message: err.Error()}
}
