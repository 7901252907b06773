package pipeline

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/use-agent/harvest/engine"
)

func TestDetectSpecialtyByContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantKind    SpecialtyKind
		wantNil     bool
	}{
		{
			name:        "pdf content type",
			contentType: "application/pdf",
			wantKind:    SpecialtyPDF,
		},
		{
			name:        "pdf with charset suffix",
			contentType: "application/pdf; charset=binary",
			wantKind:    SpecialtyPDF,
		},
		{
			name:        "docx content type",
			contentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			wantKind:    SpecialtyDocument,
		},
		{
			name:        "legacy word",
			contentType: "application/msword",
			wantKind:    SpecialtyDocument,
		},
		{
			name:        "html is not specialty",
			contentType: "text/html",
			body:        []byte("<html></html>"),
			wantNil:     true,
		},
		{
			name:        "octet-stream pdf magic",
			contentType: "application/octet-stream",
			body:        []byte("%PDF-1.5 rest"),
			wantKind:    SpecialtyPDF,
		},
		{
			name:     "no content type, pdf magic",
			body:     []byte("%PDF-1.5"),
			wantKind: SpecialtyPDF,
		},
		{
			name:     "no content type, base64 pdf magic",
			body:     []byte(base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 body"))),
			wantKind: SpecialtyPDF,
		},
		{
			name:        "octet-stream zip magic",
			contentType: "application/octet-stream",
			body:        []byte{'P', 'K', 0x03, 0x04, 0x00},
			wantKind:    SpecialtyDocument,
		},
		{
			name:        "octet-stream base64 zip magic",
			contentType: "application/octet-stream",
			body:        []byte(base64.StdEncoding.EncodeToString([]byte{'P', 'K', 0x03, 0x04, 0x01, 0x02})),
			wantKind:    SpecialtyDocument,
		},
		{
			name:    "no content type, no body",
			wantNil: true,
		},
		{
			name:        "octet-stream unknown magic",
			contentType: "application/octet-stream",
			body:        []byte("GIF89a"),
			wantNil:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &engine.Result{
				URL:           "https://example.com/file",
				StatusCode:    200,
				ContentType:   tt.contentType,
				BinaryPayload: tt.body,
			}
			plan, err := detectSpecialty(res)
			if err != nil {
				t.Fatalf("detectSpecialty: %v", err)
			}
			if tt.wantNil {
				if plan != nil {
					t.Fatalf("plan = %+v, want nil", plan)
				}
				return
			}
			if plan == nil {
				t.Fatal("plan = nil, want a specialty plan")
			}
			if plan.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", plan.Kind, tt.wantKind)
			}
			if plan.ContentType != tt.contentType {
				t.Errorf("content type = %q, want %q", plan.ContentType, tt.contentType)
			}
			if plan.Prefetch != nil {
				os.Remove(plan.Prefetch.FilePath)
			}
		})
	}
}

func TestDetectSpecialtyMaterializesPrefetch(t *testing.T) {
	res := &engine.Result{
		URL:           "https://example.com/doc.pdf",
		StatusCode:    203,
		ContentType:   "application/pdf",
		BinaryPayload: []byte("%PDF-1.5 payload bytes"),
	}

	plan, err := detectSpecialty(res)
	if err != nil {
		t.Fatalf("detectSpecialty: %v", err)
	}
	if plan == nil || plan.Prefetch == nil {
		t.Fatal("expected a prefetch descriptor for an inline payload")
	}
	defer os.Remove(plan.Prefetch.FilePath)

	data, err := os.ReadFile(plan.Prefetch.FilePath)
	if err != nil {
		t.Fatalf("prefetch file unreadable: %v", err)
	}
	if string(data) != "%PDF-1.5 payload bytes" {
		t.Errorf("prefetch content = %q", data)
	}
	if plan.Prefetch.URL != res.URL || plan.Prefetch.StatusCode != res.StatusCode {
		t.Errorf("prefetch provenance = %+v, want url/status carried over", plan.Prefetch)
	}
}

func TestDetectSpecialtyDecodesBase64Payload(t *testing.T) {
	raw := []byte("%PDF-1.7 decoded payload")
	res := &engine.Result{
		URL:           "https://example.com/doc.pdf",
		StatusCode:    200,
		BinaryPayload: []byte(base64.StdEncoding.EncodeToString(raw)),
	}

	plan, err := detectSpecialty(res)
	if err != nil {
		t.Fatalf("detectSpecialty: %v", err)
	}
	if plan == nil || plan.Prefetch == nil {
		t.Fatal("expected a prefetch descriptor")
	}
	defer os.Remove(plan.Prefetch.FilePath)

	data, err := os.ReadFile(plan.Prefetch.FilePath)
	if err != nil {
		t.Fatalf("prefetch file unreadable: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("prefetch content = %q, want decoded bytes", data)
	}
}

func TestDetectSpecialtyHintOnlyLeavesPrefetchEmpty(t *testing.T) {
	res := &engine.Result{
		URL:         "https://example.com/doc.pdf",
		StatusCode:  200,
		ContentType: "application/pdf",
	}

	plan, err := detectSpecialty(res)
	if err != nil {
		t.Fatalf("detectSpecialty: %v", err)
	}
	if plan == nil {
		t.Fatal("plan = nil, want pdf classification from content type alone")
	}
	if plan.Prefetch != nil {
		t.Errorf("prefetch = %+v, want nil for a hint-only result", plan.Prefetch)
	}
}

func TestMetaPrefetchSlotsWriteOnce(t *testing.T) {
	m := &Meta{}
	first := &Prefetch{FilePath: "/tmp/a"}
	second := &Prefetch{FilePath: "/tmp/b"}

	if !m.SetPDFPrefetch(first) {
		t.Fatal("first set rejected")
	}
	if m.SetPDFPrefetch(second) {
		t.Error("second set accepted; slot must be write-once")
	}
	if m.PDFPrefetch() != first {
		t.Error("slot does not hold the first value")
	}
}
