package postproc

import (
	"github.com/microcosm-cc/bluemonday"

	"github.com/use-agent/harvest/models"
)

// Sanitize strips scripts, event handlers and other active content from
// the raw HTML before the content transforms see it. The cleaned HTML
// becomes the working HTML field; RawHTML stays untouched.
type Sanitize struct{}

func (s *Sanitize) Name() string { return "sanitize" }

func (s *Sanitize) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, s.Name()) {
		return false
	}
	if doc.RawHTML == "" {
		return false
	}
	return in.Options.HasFormat(models.FormatHTML) || in.Options.HasFormat(models.FormatMarkdown)
}

func (s *Sanitize) Run(_ *Input, doc models.Document) (models.Document, error) {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowAttrs("src", "alt").OnElements("img")
	policy.AllowElements("html", "head", "body", "title", "article", "main", "section", "header", "footer", "nav", "aside", "figure", "figcaption")

	doc.HTML = policy.Sanitize(doc.RawHTML)
	return doc, nil
}
