package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the page to acquire.
	URL string `json:"url" binding:"required,url"`

	ScrapeOptions
}

// TimingInfo reports wall-clock durations for a request.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// ScrapeResponse is the envelope returned by the scrape endpoint.
type ScrapeResponse struct {
	Success bool `json:"success"`

	// RequestID identifies this request in logs.
	RequestID string `json:"request_id,omitempty"`

	// Data is the acquired document on success.
	Data *Document `json:"data,omitempty"`

	// UnsupportedFeatures lists requested capabilities the winning
	// engine silently degraded.
	UnsupportedFeatures []string `json:"unsupported_features,omitempty"`

	Error  *ErrorDetail `json:"error,omitempty"`
	Timing TimingInfo   `json:"timing"`
}
