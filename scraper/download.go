package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"

	utls "github.com/refraction-networking/utls"

	"github.com/use-agent/harvest/pipeline"
)

const downloadUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxDownloadSize caps a specialty payload download.
const maxDownloadSize = 64 * 1024 * 1024

// Downloader fetches specialty payloads (PDF, office documents) to a
// local temp file with a Chrome TLS fingerprint. It serves the re-download
// path for engines that only returned a content-type hint.
type Downloader struct {
	defaultProxy string
}

// NewDownloader creates a Downloader. proxy may be empty.
func NewDownloader(proxy string) *Downloader {
	return &Downloader{defaultProxy: proxy}
}

// Download retrieves the URL and writes the body to a temp file,
// returning the prefetch descriptor the specialty parsers consume.
func (d *Downloader) Download(ctx context.Context, targetURL string, headers map[string]string) (*pipeline.Prefetch, error) {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, d.defaultProxy)
		},
	}
	if d.defaultProxy != "" {
		if proxyURL, err := url.Parse(d.defaultProxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download: build request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUA)
	req.Header.Set("Accept", "*/*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	f, err := os.CreateTemp("", "harvest-prefetch-*")
	if err != nil {
		return nil, fmt.Errorf("download: create temp file: %w", err)
	}
	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadSize)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("download: write body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("download: close temp file: %w", err)
	}

	return &pipeline.Prefetch{
		FilePath:    f.Name(),
		URL:         targetURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	dialer := &net.Dialer{}

	if proxy != "" {
		if proxyURL, parseErr := url.Parse(proxy); parseErr == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			socksConn, socksErr := dialer.DialContext(ctx, "tcp", proxyURL.Host)
			if socksErr != nil {
				return nil, fmt.Errorf("socks5 dial: %w", socksErr)
			}
			rawConn = socksConn
		}
	}

	if rawConn == nil {
		rawConn, err = dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := utls.UClient(rawConn, &utls.Config{
		ServerName: host,
	}, utls.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
