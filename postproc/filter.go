package postproc

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/harvest/models"
)

// Filter applies include/exclude CSS-selector filtering to the working
// HTML: excluded elements are removed first, then only included
// elements are kept when include selectors are present.
type Filter struct{}

func (f *Filter) Name() string { return "filter" }

func (f *Filter) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, f.Name()) {
		return false
	}
	if doc.HTML == "" && doc.RawHTML == "" {
		return false
	}
	return len(in.Options.IncludeTags) > 0 || len(in.Options.ExcludeTags) > 0
}

func (f *Filter) Run(in *Input, doc models.Document) (models.Document, error) {
	working := doc.HTML
	if working == "" {
		working = doc.RawHTML
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(working))
	if err != nil {
		return doc, err
	}

	for _, selector := range in.Options.ExcludeTags {
		gq.Find(selector).Remove()
	}

	if len(in.Options.IncludeTags) > 0 {
		included, err := selectOuterHTML(gq, in.Options.IncludeTags)
		if err != nil {
			return doc, err
		}
		if included != "" {
			doc.HTML = included
			return doc, nil
		}
		// No include match: fall through with the exclude-filtered HTML
		// so downstream still has something to work with.
	}

	filtered, err := gq.Html()
	if err != nil {
		return doc, err
	}
	doc.HTML = filtered
	return doc, nil
}

// selectOuterHTML concatenates the outer HTML of all elements matching
// any of the selectors. Selectors are validated with cascadia first so
// a bad selector is an error rather than a silent no-op.
func selectOuterHTML(gq *goquery.Document, selectors []string) (string, error) {
	for _, s := range selectors {
		if _, err := cascadia.Parse(s); err != nil {
			return "", err
		}
	}

	combined := strings.Join(selectors, ", ")
	matches := gq.Find(combined)
	if matches.Length() == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	var renderErr error
	matches.Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			if err := html.Render(&buf, node); err != nil && renderErr == nil {
				renderErr = err
			}
		}
	})
	return buf.String(), renderErr
}
