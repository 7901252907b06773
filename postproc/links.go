package postproc

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
)

// Links collects every hyperlink from the raw HTML as absolute URLs.
type Links struct{}

func (l *Links) Name() string { return "links" }

func (l *Links) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, l.Name()) {
		return false
	}
	if doc.RawHTML == "" {
		return false
	}
	return in.Options.HasFormat(models.FormatLinks)
}

func (l *Links) Run(in *Input, doc models.Document) (models.Document, error) {
	base, err := url.Parse(in.FinalURL)
	if err != nil {
		return doc, err
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.RawHTML))
	if err != nil {
		return doc, err
	}

	links := []string{}
	seen := make(map[string]struct{})
	gq.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}

		// Resolve relative URLs against the base.
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		// Skip fragments, javascript:, mailto:, tel: etc.
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		absURL := resolved.String()
		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}
		links = append(links, absURL)
	})

	doc.Links = links
	return doc, nil
}
