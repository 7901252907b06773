// Package parser holds the specialized parsers for non-HTML payloads
// (PDF and office documents). Parsers consume the prefetch temp file
// the pipeline already downloaded; they never fetch the network.
package parser

import (
	"context"
	"time"
)

// Request describes one specialty parse over an on-disk payload.
type Request struct {
	// FilePath is the prefetch temp file to parse.
	FilePath string

	// URL and StatusCode are carried through into the result metadata.
	URL        string
	StatusCode int

	// MaxPages caps how many pages are parsed. 0 means no limit.
	MaxPages int

	// Remaining is the time left on the request deadline. 0 means
	// unbounded; otherwise the parser fails fast when the page count
	// cannot be processed in time.
	Remaining time.Duration
}

// Result is the parser output. HTML is always set; Markdown when the
// format converts naturally. Non-payload metadata (status, URL, proxy)
// stays with the caller unless the parser supplies its own.
type Result struct {
	HTML     string
	Markdown string
	Title    string
	NumPages int
}

// Parser is the specialized-parser contract the pipeline invokes after
// specialty detection.
type Parser interface {
	Parse(ctx context.Context, req *Request) (*Result, error)
}
