package postproc

import (
	nurl "net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/use-agent/harvest/models"
)

// Markdown converts the working HTML to Markdown with html-to-markdown
// v2. The converter is goroutine-safe and built once per chain.
type Markdown struct {
	conv *converter.Converter
}

// NewMarkdown builds the markdown step with its converter configured
// for clean output:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta,
//     link, input, textarea and HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: preserves table structure with minimal cell padding.
func NewMarkdown() *Markdown {
	return &Markdown{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

func (m *Markdown) Name() string { return "markdown" }

func (m *Markdown) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, m.Name()) {
		return false
	}
	if doc.Markdown != "" {
		// Specialty parsers produce markdown directly; do not overwrite.
		return false
	}
	if doc.HTML == "" {
		return false
	}
	return in.Options.HasFormat(models.FormatMarkdown)
}

func (m *Markdown) Run(in *Input, doc models.Document) (models.Document, error) {
	md, err := m.conv.ConvertString(doc.HTML, converter.WithDomain(domainOf(in.FinalURL)))
	if err != nil {
		return doc, err
	}
	doc.Markdown = md
	return doc, nil
}

// domainOf extracts scheme://host from a URL so relative links in the
// converted markdown resolve to absolute ones.
func domainOf(rawURL string) string {
	u, err := nurl.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
