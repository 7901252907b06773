package scraper

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains is a set of well-known ad and tracking domains to block
// when ad blocking is enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"googletagservices.com":  {},
	"facebook.net":           {},
	"connect.facebook.net":   {},
	"facebook.com":           {},
	"fbcdn.net":              {},
	"adnxs.com":              {},
	"adsrvr.org":             {},
	"amazon-adsystem.com":    {},
	"criteo.com":             {},
	"criteo.net":             {},
	"outbrain.com":           {},
	"taboola.com":            {},
	"moatads.com":            {},
	"pubmatic.com":           {},
	"rubiconproject.com":     {},
	"scorecardresearch.com":  {},
	"quantserve.com":         {},
	"hotjar.com":             {},
	"mixpanel.com":           {},
	"segment.io":             {},
	"segment.com":            {},
	"analytics.twitter.com":  {},
	"ads-twitter.com":        {},
	"static.ads-twitter.com": {},
	"chartbeat.com":          {},
	"chartbeat.net":          {},
	"optimizely.com":         {},
	"zedo.com":               {},
	"media.net":              {},
	"contextweb.com":         {},
	"bidswitch.net":          {},
	"openx.net":              {},
	"casalemedia.com":        {},
	"demdex.net":             {},
	"krxd.net":               {},
	"bluekai.com":            {},
	"exelator.com":           {},
	"turn.com":               {},
	"mathtag.com":            {},
	"serving-sys.com":        {},
	"eyeota.net":             {},
	"agkn.com":               {},
	"rlcdn.com":              {},
	"sharethis.com":          {},
	"addthis.com":            {},
	"consensu.org":           {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adDomains[host]; ok {
		return true
	}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// binaryCapture records the main-document response when it turns out to
// be a binary payload (PDF, office document) instead of HTML. The
// browser engine must deliver such payloads inline.
type binaryCapture struct {
	mu          sync.Mutex
	found       bool
	contentType string
	statusCode  int
	body        []byte
}

func (c *binaryCapture) set(contentType string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.found {
		return
	}
	c.found = true
	c.contentType = contentType
	c.statusCode = status
	c.body = body
}

func (c *binaryCapture) get() (string, int, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentType, c.statusCode, c.body, c.found
}

// binaryContentType reports whether a main-document content type needs
// specialty handling rather than DOM extraction.
func binaryContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	switch {
	case strings.HasPrefix(ct, "application/pdf"),
		strings.HasPrefix(ct, "application/octet-stream"),
		strings.HasPrefix(ct, "application/msword"),
		strings.HasPrefix(ct, "application/vnd.openxmlformats-officedocument"),
		strings.HasPrefix(ct, "application/vnd.oasis.opendocument"):
		return true
	}
	return false
}

// setupHijack installs a request interceptor that blocks the configured
// resource types and, optionally, known ad/tracking domains. When a
// capture is supplied, main-document responses with binary content
// types are loaded and recorded so the payload is available inline.
//
// Returns the running HijackRouter so the caller can defer router.Stop().
// Returns nil if there is nothing to intercept.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool, capture *binaryCapture) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds && capture == nil {
		return nil
	}

	router := page.HijackRequests()

	if capture != nil {
		// Main-document interception: load the response ourselves so a
		// binary payload can be recorded before Chrome tries to render it.
		_ = router.Add("*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
			if err := h.LoadResponse(http.DefaultClient, true); err != nil {
				h.Response.Fail(proto.NetworkErrorReasonFailed)
				return
			}
			ct := h.Response.Headers().Get("Content-Type")
			if binaryContentType(ct) {
				capture.set(ct, h.Response.Payload().ResponseCode, []byte(h.Response.Body()))
			}
		})
	}

	// Pattern "*" + empty resourceType = intercept ALL requests, then
	// decide per-request whether to block or continue.
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, shouldBlock := blocked[h.Request.Type()]; shouldBlock {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if blockAds {
			if u, err := url.Parse(h.Request.URL().String()); err == nil {
				if isAdDomain(u.Hostname()) {
					h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
					return
				}
			}
		}

		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It exits when router.Stop() is called.
	go router.Run()

	return router
}
