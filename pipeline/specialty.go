package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/use-agent/harvest/engine"
)

// SpecialtyKind classifies a non-HTML payload.
type SpecialtyKind string

const (
	SpecialtyPDF      SpecialtyKind = "pdf"
	SpecialtyDocument SpecialtyKind = "document"
)

// SpecialtyPlan is the detector output: the classified kind, the
// detected content type when one was present, and an optional prefetch
// descriptor when the payload bytes were already in hand.
type SpecialtyPlan struct {
	Kind        SpecialtyKind
	ContentType string
	Prefetch    *Prefetch
}

// documentContentTypes are the office-document media types routed to
// the document parser.
var documentContentTypes = []string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/vnd.oasis.opendocument.text",
}

// detectSpecialty classifies an engine result as PDF or office
// document, or returns nil when no specialty handling is needed.
//
// Classification order: known content types first, then magic-byte
// sniffing for octet-stream or untyped bodies (%PDF- / PK zip family,
// raw or base64). When the engine delivered the payload inline, a temp
// file is materialized so the specialized parser can reuse it without a
// second network fetch.
func detectSpecialty(res *engine.Result) (*SpecialtyPlan, error) {
	ct := strings.ToLower(strings.TrimSpace(res.ContentType))
	body := payloadBytes(res)

	var kind SpecialtyKind
	switch {
	case matchesAny(ct, documentContentTypes):
		kind = SpecialtyDocument
	case strings.HasPrefix(ct, "application/pdf"):
		kind = SpecialtyPDF
	case ct == "" || strings.HasPrefix(ct, "application/octet-stream"):
		if len(body) == 0 {
			// Nothing to sniff: detection is skipped, the caller treats
			// this as "no specialty handling needed".
			return nil, nil
		}
		kind = sniffKind(body)
		if kind == "" {
			return nil, nil
		}
	default:
		return nil, nil
	}

	plan := &SpecialtyPlan{Kind: kind, ContentType: res.ContentType}

	if len(body) > 0 {
		pf, err := materializePrefetch(res, body)
		if err != nil {
			return nil, err
		}
		plan.Prefetch = pf
	}
	return plan, nil
}

// payloadBytes returns the bytes available for sniffing and prefetch:
// the inline binary payload if the engine supplied one, else the HTML
// field (some engines put raw bodies there).
func payloadBytes(res *engine.Result) []byte {
	if len(res.BinaryPayload) > 0 {
		return res.BinaryPayload
	}
	if res.HTML != "" {
		return []byte(res.HTML)
	}
	return nil
}

// sniffKind inspects leading bytes: %PDF- (or its base64 form JVBERi0)
// means PDF; PK\x03\x04 (or base64 UEsD) is the zip family used by
// modern office formats.
func sniffKind(body []byte) SpecialtyKind {
	switch {
	case bytes.HasPrefix(body, []byte("%PDF-")), bytes.HasPrefix(body, []byte("JVBERi0")):
		return SpecialtyPDF
	case bytes.HasPrefix(body, []byte{'P', 'K', 0x03, 0x04}), bytes.HasPrefix(body, []byte("UEsD")):
		return SpecialtyDocument
	default:
		return ""
	}
}

// materializePrefetch writes the payload to a temp file, decoding the
// base64 form when that is what the engine handed over.
func materializePrefetch(res *engine.Result, body []byte) (*Prefetch, error) {
	if decoded, ok := maybeBase64(body); ok {
		body = decoded
	}

	f, err := os.CreateTemp("", "harvest-prefetch-*")
	if err != nil {
		return nil, fmt.Errorf("create prefetch file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write prefetch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close prefetch file: %w", err)
	}

	return &Prefetch{
		FilePath:    f.Name(),
		URL:         res.URL,
		StatusCode:  res.StatusCode,
		Proxy:       res.ProxyUsed,
		ContentType: res.ContentType,
	}, nil
}

// maybeBase64 decodes body when it is the base64 encoding of a PDF or
// zip payload rather than the raw bytes.
func maybeBase64(body []byte) ([]byte, bool) {
	if !bytes.HasPrefix(body, []byte("JVBERi0")) && !bytes.HasPrefix(body, []byte("UEsD")) {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, false
	}
	return decoded, true
}

func matchesAny(ct string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}
