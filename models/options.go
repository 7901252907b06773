package models

// Format identifies a requested document output.
type Format string

const (
	FormatMarkdown   Format = "markdown"
	FormatHTML       Format = "html"
	FormatRawHTML    Format = "raw_html"
	FormatLinks      Format = "links"
	FormatImages     Format = "images"
	FormatScreenshot Format = "screenshot"
	FormatBranding   Format = "branding"
)

// ProxyTier selects the outbound proxy class for a request.
type ProxyTier string

const (
	ProxyBasic   ProxyTier = "basic"
	ProxyStealth ProxyTier = "stealth"
)

// Viewport is a custom browser viewport for screenshots.
type Viewport struct {
	Width  int `json:"width" binding:"omitempty,min=1"`
	Height int `json:"height" binding:"omitempty,min=1"`
}

// ScreenshotOptions refines the screenshot format.
type ScreenshotOptions struct {
	// FullPage captures the entire scrollable page instead of the viewport.
	FullPage bool `json:"full_page,omitempty"`

	// Viewport overrides the default browser viewport.
	Viewport *Viewport `json:"viewport,omitempty"`

	// Quality is the JPEG quality (1-100). 0 means the engine default (PNG).
	Quality int `json:"quality,omitempty" binding:"omitempty,min=1,max=100"`
}

// Location requests geo-targeted fetching.
type Location struct {
	// Country is an ISO 3166-1 alpha-2 code, e.g. "DE".
	Country string `json:"country,omitempty"`

	// Languages sets the Accept-Language preference order.
	Languages []string `json:"languages,omitempty"`
}

// Action types.
const (
	ActionWait       = "wait"
	ActionClick      = "click"
	ActionScroll     = "scroll"
	ActionExecuteJS  = "execute_js"
	ActionScreenshot = "screenshot"
	ActionPDF        = "pdf"
)

// Action is a single scripted browser interaction, executed in order
// before content extraction.
type Action struct {
	// Type is one of: wait, click, scroll, execute_js, screenshot, pdf.
	Type string `json:"type" binding:"required"`

	Selector     string `json:"selector,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Amount       int    `json:"amount,omitempty"`
	Code         string `json:"code,omitempty"`
}

// ScrapeOptions is the validated, caller-supplied half of a request.
// It is immutable once the pipeline has started.
type ScrapeOptions struct {
	// Formats lists the requested outputs. Default: ["markdown"].
	Formats []Format `json:"formats,omitempty"`

	// Screenshot carries screenshot sub-options; only consulted when
	// Formats contains "screenshot".
	Screenshot *ScreenshotOptions `json:"screenshot,omitempty"`

	// Actions are scripted browser interactions run before extraction.
	Actions []Action `json:"actions,omitempty"`

	// WaitFor is an extra settle delay in milliseconds after navigation.
	WaitFor int `json:"wait_for,omitempty" binding:"omitempty,min=0,max=60000"`

	// Timeout is the overall deadline for the request in milliseconds.
	// 0 means the server default.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1"`

	// MaxAge is the cache freshness budget in milliseconds. A cached
	// snapshot older than this is ignored. 0 disables the cache read.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// MaxPages caps the number of pages parsed from paginated payloads
	// (PDF). 0 means no limit.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=0"`

	// Headers are extra request headers sent to the target.
	Headers map[string]string `json:"headers,omitempty"`

	// IncludeTags / ExcludeTags filter content by CSS selector before
	// extraction.
	IncludeTags []string `json:"include_tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`

	// Location requests geo-targeted fetching.
	Location *Location `json:"location,omitempty"`

	// Mobile emulates a mobile viewport and user agent.
	Mobile bool `json:"mobile,omitempty"`

	// SkipTLSVerification disables certificate validation on the fetch.
	SkipTLSVerification bool `json:"skip_tls_verification,omitempty"`

	// FastMode trades rendering fidelity for latency.
	FastMode bool `json:"fast_mode,omitempty"`

	// Proxy selects the proxy tier. Default: basic.
	Proxy ProxyTier `json:"proxy,omitempty" binding:"omitempty,oneof=basic stealth"`

	// BlockAds controls the ad/tracker blocklist. Default: true.
	BlockAds *bool `json:"block_ads,omitempty"`
}

// Defaults applies default values to unset fields.
func (o *ScrapeOptions) Defaults() {
	if len(o.Formats) == 0 {
		o.Formats = []Format{FormatMarkdown}
	}
	if o.Proxy == "" {
		o.Proxy = ProxyBasic
	}
	if o.BlockAds == nil {
		t := true
		o.BlockAds = &t
	}
}

// HasFormat reports whether a format was requested.
func (o *ScrapeOptions) HasFormat(f Format) bool {
	for _, have := range o.Formats {
		if have == f {
			return true
		}
	}
	return false
}

// AdblockEnabled returns the effective BlockAds value.
func (o *ScrapeOptions) AdblockEnabled() bool {
	return o.BlockAds == nil || *o.BlockAds
}

// InternalOptions is the operator-supplied half of a request. It never
// comes from the public API payload.
type InternalOptions struct {
	// TeamID attributes the request for logging and policy decisions.
	TeamID string `json:"team_id,omitempty"`

	// ForceEngine bypasses cache short-circuiting and engine priority,
	// naming the engine to use directly.
	ForceEngine string `json:"force_engine,omitempty"`

	// ZeroDataRetention forbids producing artifacts that would have to
	// be stored (screenshots, PDF action outputs).
	ZeroDataRetention bool `json:"zero_data_retention,omitempty"`

	// SaveToCache enables writing the result into the index cache, and
	// is one of the gating conditions for reading from it.
	SaveToCache bool `json:"save_to_cache,omitempty"`

	// CheckRobots enforces robots.txt for this team.
	CheckRobots bool `json:"check_robots,omitempty"`

	// AntiBotSolver enables the anti-bot challenge solver.
	AntiBotSolver bool `json:"anti_bot_solver,omitempty"`

	// DisableCache skips the cache read even when all other gating
	// conditions hold.
	DisableCache bool `json:"disable_cache,omitempty"`
}
