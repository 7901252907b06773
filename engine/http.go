package engine

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/harvest/models"
)

// HTTPEngine is the lightweight live backend using pure net/http with a
// Chrome-like TLS fingerprint. It is the floor of the live priority
// order: no JS rendering, no actions, no screenshots.
type HTTPEngine struct {
	userAgent string
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused per connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Should never happen with a valid utls version; fall back to
		// the zero spec and let UClient use HelloChrome_Auto directly.
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server
	// never negotiates HTTP/2 (which Go's http.Transport cannot handle
	// over a utls connection).
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// NewHTTPEngine creates the plain HTTP fetch engine.
func NewHTTPEngine() *HTTPEngine {
	return &HTTPEngine{userAgent: defaultUserAgent}
}

func (e *HTTPEngine) Name() Name { return EngineHTTP }

func (e *HTTPEngine) Scrape(ctx context.Context, req *Request) (*Result, error) {
	client := e.client(req.SkipTLS)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &models.SiteError{Code: models.ErrCodeSite, URL: req.URL,
			Err: fmt.Errorf("build request: %w", err)}
	}

	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	httpReq.Header.Set("Accept-Language", acceptLanguage(req.Location))
	httpReq.Header.Set("Accept-Encoding", "identity")

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyNetError(req.URL, err)
	}
	defer resp.Body.Close()

	// 32 MB ceiling: PDFs and office documents pass through here.
	const maxBody = 32 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classifyNetError(req.URL, err)
	}

	ct := resp.Header.Get("Content-Type")
	result := &Result{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: ct,
		ProxyUsed:   req.Proxy,
	}

	if isHTMLContentType(ct) {
		result.HTML = string(body)
	} else {
		// Non-HTML payloads are carried as bytes so specialty detection
		// can classify and reuse them without a second fetch.
		result.BinaryPayload = body
	}
	return result, nil
}

// client builds a per-request client so SkipTLS does not leak between
// requests sharing the engine.
func (e *HTTPEngine) client(skipTLS bool) *http.Client {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			cfg := &tls.Config{ServerName: host, InsecureSkipVerify: skipTLS}
			tlsConn := tls.UClient(conn, cfg, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// classifyNetError maps transport failures onto the error taxonomy.
func classifyNetError(url string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &models.SiteError{Code: models.ErrCodeDNS, URL: url, Err: err}
	}
	var certErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) ||
		strings.Contains(err.Error(), "tls:") {
		return &models.SiteError{Code: models.ErrCodeSSL, URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &models.SiteError{Code: models.ErrCodeSite, URL: url, Err: err}
}

// isHTMLContentType returns true if the content type looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// acceptLanguage builds the Accept-Language header from a location
// preference, defaulting to en-US.
func acceptLanguage(loc *models.Location) string {
	if loc == nil || len(loc.Languages) == 0 {
		return "en-US,en;q=0.9"
	}
	return strings.Join(loc.Languages, ",")
}
