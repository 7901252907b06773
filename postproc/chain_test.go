package postproc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/use-agent/harvest/models"
)

type fakeStep struct {
	name   string
	should bool
	err    error
	mutate func(doc models.Document) models.Document
}

func (f *fakeStep) Name() string                                { return f.name }
func (f *fakeStep) ShouldRun(*Input, *models.Document) bool     { return f.should }
func (f *fakeStep) Run(_ *Input, doc models.Document) (models.Document, error) {
	if f.err != nil {
		return doc, f.err
	}
	if f.mutate != nil {
		return f.mutate(doc), nil
	}
	return doc, nil
}

func TestChainFailingStepIsSkipped(t *testing.T) {
	chain := NewChain(
		&fakeStep{name: "first", should: true, mutate: func(doc models.Document) models.Document {
			doc.HTML = "<p>first</p>"
			return doc
		}},
		&fakeStep{name: "broken", should: true, err: errors.New("boom"), mutate: func(doc models.Document) models.Document {
			doc.HTML = "clobbered"
			return doc
		}},
		&fakeStep{name: "last", should: true, mutate: func(doc models.Document) models.Document {
			doc.Markdown = "from last"
			return doc
		}},
	)

	in := &Input{FinalURL: "https://example.com", Logger: slog.Default()}
	doc := chain.Run(context.Background(), in, models.Document{RawHTML: "<p>raw</p>"})

	if doc.HTML != "<p>first</p>" {
		t.Errorf("HTML = %q, want value from step before the failure", doc.HTML)
	}
	if doc.Markdown != "from last" {
		t.Errorf("Markdown = %q, chain did not continue past the failure", doc.Markdown)
	}
	got := strings.Join(doc.Metadata.PostprocessorsUsed, ",")
	if got != "first,last" {
		t.Errorf("PostprocessorsUsed = %q, want \"first,last\"", got)
	}
}

func TestChainSkipsStepsThatDecline(t *testing.T) {
	ran := false
	chain := NewChain(
		&fakeStep{name: "declined", should: false, mutate: func(doc models.Document) models.Document {
			ran = true
			return doc
		}},
	)

	in := &Input{FinalURL: "https://example.com"}
	doc := chain.Run(context.Background(), in, models.Document{})

	if ran {
		t.Error("step ran despite ShouldRun returning false")
	}
	if len(doc.Metadata.PostprocessorsUsed) != 0 {
		t.Errorf("PostprocessorsUsed = %v, want empty", doc.Metadata.PostprocessorsUsed)
	}
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	ran := false
	chain := NewChain(
		&fakeStep{name: "never", should: true, mutate: func(doc models.Document) models.Document {
			ran = true
			return doc
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chain.Run(ctx, &Input{FinalURL: "https://example.com"}, models.Document{})

	if ran {
		t.Error("step ran after context cancellation")
	}
}

func TestSanitizeStripsScripts(t *testing.T) {
	in := &Input{
		Options:  models.ScrapeOptions{Formats: []models.Format{models.FormatHTML}},
		FinalURL: "https://example.com",
	}
	doc := models.Document{RawHTML: `<article><script>alert(1)</script><p onclick="x()">hello</p></article>`}

	s := &Sanitize{}
	if !s.ShouldRun(in, &doc) {
		t.Fatal("sanitize declined an html request")
	}
	out, err := s.Run(in, doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out.HTML, "script") || strings.Contains(out.HTML, "onclick") {
		t.Errorf("sanitized HTML still contains active content: %q", out.HTML)
	}
	if !strings.Contains(out.HTML, "hello") {
		t.Errorf("sanitized HTML lost text content: %q", out.HTML)
	}
	if out.RawHTML != doc.RawHTML {
		t.Error("RawHTML was modified by sanitize")
	}
}

func TestFilterExcludeAndInclude(t *testing.T) {
	html := `<div><nav>menu</nav><main><p>body</p></main><footer>foot</footer></div>`

	tests := []struct {
		name    string
		opts    models.ScrapeOptions
		want    []string
		notWant []string
	}{
		{
			name:    "exclude removes elements",
			opts:    models.ScrapeOptions{ExcludeTags: []string{"nav", "footer"}},
			want:    []string{"body"},
			notWant: []string{"menu", "foot"},
		},
		{
			name:    "include keeps only matches",
			opts:    models.ScrapeOptions{IncludeTags: []string{"main"}},
			want:    []string{"body"},
			notWant: []string{"menu", "foot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Input{Options: tt.opts, FinalURL: "https://example.com"}
			f := &Filter{}
			out, err := f.Run(in, models.Document{HTML: html})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.HTML, w) {
					t.Errorf("filtered HTML missing %q: %q", w, out.HTML)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out.HTML, nw) {
					t.Errorf("filtered HTML still contains %q: %q", nw, out.HTML)
				}
			}
		})
	}
}

func TestLinksExtractsAbsoluteDeduplicated(t *testing.T) {
	raw := `<body>
		<a href="/about">About</a>
		<a href="/about">About again</a>
		<a href="https://other.example/page">Other</a>
		<a href="mailto:x@example.com">Mail</a>
	</body>`

	in := &Input{
		Options:  models.ScrapeOptions{Formats: []models.Format{models.FormatLinks}},
		FinalURL: "https://example.com/start",
	}
	l := &Links{}
	out, err := l.Run(in, models.Document{RawHTML: raw})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"https://example.com/about", "https://other.example/page"}
	if len(out.Links) != len(want) {
		t.Fatalf("Links = %v, want %v", out.Links, want)
	}
	for i, w := range want {
		if out.Links[i] != w {
			t.Errorf("Links[%d] = %q, want %q", i, out.Links[i], w)
		}
	}
}

func TestBrandingExtraction(t *testing.T) {
	raw := `<html><head>
		<title>Example Site</title>
		<meta property="og:site_name" content="Example"/>
		<meta property="og:image" content="/og.png"/>
		<meta name="theme-color" content="#112233"/>
		<link rel="icon" href="/icon.svg"/>
	</head><body><header><img src="/logo.png" alt="company logo"/></header></body></html>`

	in := &Input{
		Options:  models.ScrapeOptions{Formats: []models.Format{models.FormatBranding}},
		FinalURL: "https://example.com/",
	}
	b := &Branding{}
	out, err := b.Run(in, models.Document{RawHTML: raw})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Branding == nil {
		t.Fatal("Branding is nil")
	}
	if out.Branding.SiteName != "Example" {
		t.Errorf("SiteName = %q", out.Branding.SiteName)
	}
	if out.Branding.OGImage != "https://example.com/og.png" {
		t.Errorf("OGImage = %q", out.Branding.OGImage)
	}
	if out.Branding.ThemeColor != "#112233" {
		t.Errorf("ThemeColor = %q", out.Branding.ThemeColor)
	}
	if out.Branding.FaviconURL != "https://example.com/icon.svg" {
		t.Errorf("FaviconURL = %q", out.Branding.FaviconURL)
	}
	if out.Branding.LogoURL != "https://example.com/logo.png" {
		t.Errorf("LogoURL = %q", out.Branding.LogoURL)
	}
}
