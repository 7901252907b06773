package models

import "time"

// Document is the final output of the acquisition pipeline.
type Document struct {
	// Markdown is the converted main content, when requested.
	Markdown string `json:"markdown,omitempty"`

	// HTML is the cleaned HTML, when requested.
	HTML string `json:"html,omitempty"`

	// RawHTML is the engine output before any transform.
	RawHTML string `json:"raw_html,omitempty"`

	// Links and Images are extracted from the raw HTML, when requested.
	Links  []string `json:"links,omitempty"`
	Images []string `json:"images,omitempty"`

	// Screenshot is a base64-encoded capture, when requested.
	Screenshot string `json:"screenshot,omitempty"`

	// ActionScreenshots holds captures produced by scripted actions.
	ActionScreenshots []string `json:"action_screenshots,omitempty"`

	// Branding is the extracted branding profile, when requested.
	Branding *BrandingProfile `json:"branding,omitempty"`

	Metadata DocumentMetadata `json:"metadata"`
}

// BrandingProfile summarises a site's visual identity.
type BrandingProfile struct {
	SiteName   string `json:"site_name,omitempty"`
	LogoURL    string `json:"logo_url,omitempty"`
	FaviconURL string `json:"favicon_url,omitempty"`
	ThemeColor string `json:"theme_color,omitempty"`
	OGImage    string `json:"og_image,omitempty"`
}

// DocumentMetadata holds provenance and page-level information.
type DocumentMetadata struct {
	// SourceURL is the URL as requested; URL is the final URL after
	// redirects and rewrites.
	SourceURL string `json:"source_url"`
	URL       string `json:"url,omitempty"`

	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`

	// NumPages is set for paginated payloads (PDF, office documents).
	NumPages int `json:"num_pages,omitempty"`

	ContentType string    `json:"content_type,omitempty"`
	ProxyUsed   ProxyTier `json:"proxy_used,omitempty"`

	// CacheState is "hit" when served from the index cache, "miss" when
	// the cache was consulted but a live engine answered, empty when the
	// cache was not consulted.
	CacheState string    `json:"cache_state,omitempty"`
	CachedAt   time.Time `json:"cached_at,omitzero"`

	// EngineUsed names the engine that produced the payload.
	EngineUsed string `json:"engine_used,omitempty"`

	// PostprocessorsUsed lists the transform steps actually applied.
	PostprocessorsUsed []string `json:"postprocessors_used,omitempty"`

	// Warning accumulates human-readable degradation notices.
	Warning string `json:"warning,omitempty"`
}

// AppendWarning merges a notice into the accumulating warning string.
func (m *DocumentMetadata) AppendWarning(msg string) {
	if msg == "" {
		return
	}
	if m.Warning == "" {
		m.Warning = msg
		return
	}
	m.Warning += " " + msg
}
