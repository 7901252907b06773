package postproc

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
)

// Images collects every image source from the raw HTML as absolute URLs.
type Images struct{}

func (i *Images) Name() string { return "images" }

func (i *Images) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, i.Name()) {
		return false
	}
	if doc.RawHTML == "" {
		return false
	}
	return in.Options.HasFormat(models.FormatImages)
}

func (i *Images) Run(in *Input, doc models.Document) (models.Document, error) {
	base, err := url.Parse(in.FinalURL)
	if err != nil {
		return doc, err
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.RawHTML))
	if err != nil {
		return doc, err
	}

	images := []string{}
	seen := make(map[string]struct{})
	gq.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, exists := s.Attr("src")
		if !exists || src == "" {
			return
		}

		resolved, err := base.Parse(src)
		if err != nil {
			return
		}
		// Skip data URIs.
		if resolved.Scheme == "data" {
			return
		}

		absURL := resolved.String()
		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}
		images = append(images, absURL)
	})

	doc.Images = images
	return doc, nil
}
