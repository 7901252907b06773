package postproc

import (
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/harvest/models"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be considered valid. Below this threshold we
// assume the algorithm failed to locate the main content and keep the
// working HTML as-is.
const minContentLength = 50

// Readability runs the Mozilla Readability algorithm to isolate the main
// content of a page. It only runs for markdown output without explicit
// include selectors; a user who asked for specific selectors has already
// decided what the content is.
type Readability struct{}

func (r *Readability) Name() string { return "readability" }

func (r *Readability) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, r.Name()) {
		return false
	}
	if doc.HTML == "" {
		return false
	}
	if len(in.Options.IncludeTags) > 0 {
		return false
	}
	return in.Options.HasFormat(models.FormatMarkdown)
}

func (r *Readability) Run(in *Input, doc models.Document) (models.Document, error) {
	parsedURL, err := nurl.Parse(in.FinalURL)
	if err != nil {
		return doc, err
	}

	article, err := readability.FromReader(strings.NewReader(doc.HTML), parsedURL)
	if err != nil {
		return doc, err
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		// Too little extracted content means readability likely missed
		// the article body; keep the full HTML instead.
		return doc, nil
	}

	doc.HTML = article.Content
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = article.Title
	}
	if doc.Metadata.Description == "" {
		doc.Metadata.Description = article.Excerpt
	}
	if doc.Metadata.Language == "" {
		doc.Metadata.Language = article.Language
	}
	return doc, nil
}
