package engine

import "github.com/use-agent/harvest/models"

// SelectLiveEngine picks the first engine from the fixed priority order
// (browser → headless → http) that appears in configured, defaulting to
// plain HTTP fetch when nothing else is available. This is a static,
// configuration-driven decision; engine health is the engine's problem.
func SelectLiveEngine(configured []Name) Name {
	for _, want := range LiveEngines {
		for _, have := range configured {
			if have == want {
				return want
			}
		}
	}
	return EngineHTTP
}

// ShouldTryIndex reports whether the cache-backed index engine should be
// attempted before a live engine. Every condition must hold; any
// customization that the cache cannot reproduce disqualifies the read.
func ShouldTryIndex(opts models.ScrapeOptions, internal models.InternalOptions) bool {
	switch {
	case internal.DisableCache:
		return false
	case !internal.SaveToCache:
		// Read-through only makes sense when writes keep it warm.
		return false
	case opts.MaxAge <= 0:
		return false
	case opts.HasFormat(models.FormatScreenshot) || opts.HasFormat(models.FormatBranding):
		return false
	case opts.MaxPages != 0:
		return false
	case opts.Screenshot != nil && (opts.Screenshot.Viewport != nil || opts.Screenshot.Quality != 0):
		return false
	case len(opts.Headers) > 0:
		return false
	case len(opts.Actions) > 0:
		return false
	case opts.Proxy != models.ProxyBasic:
		return false
	}
	return true
}
