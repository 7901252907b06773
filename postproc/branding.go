package postproc

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
)

// Branding pulls site identity out of the page head: site name, logo,
// favicon, theme color and the Open Graph image.
type Branding struct{}

func (b *Branding) Name() string { return "branding" }

func (b *Branding) ShouldRun(in *Input, doc *models.Document) bool {
	if applied(in, b.Name()) {
		return false
	}
	if doc.RawHTML == "" {
		return false
	}
	return in.Options.HasFormat(models.FormatBranding)
}

func (b *Branding) Run(in *Input, doc models.Document) (models.Document, error) {
	base, err := url.Parse(in.FinalURL)
	if err != nil {
		return doc, err
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.RawHTML))
	if err != nil {
		return doc, err
	}

	profile := &models.BrandingProfile{}

	gq.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		switch prop {
		case "og:site_name":
			profile.SiteName = content
		case "og:image":
			profile.OGImage = absolutize(base, content)
		case "og:logo":
			if profile.LogoURL == "" {
				profile.LogoURL = absolutize(base, content)
			}
		}
	})

	gq.Find(`meta[name="theme-color"]`).Each(func(_ int, s *goquery.Selection) {
		if content, _ := s.Attr("content"); content != "" && profile.ThemeColor == "" {
			profile.ThemeColor = content
		}
	})

	gq.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		switch strings.ToLower(rel) {
		case "icon", "shortcut icon", "apple-touch-icon":
			if profile.FaviconURL == "" {
				profile.FaviconURL = absolutize(base, href)
			}
		}
	})

	// Common logo conventions when no og:logo is declared.
	if profile.LogoURL == "" {
		gq.Find(`img[class*="logo"], img[id*="logo"], img[alt*="logo" i], header img`).Each(func(_ int, s *goquery.Selection) {
			if profile.LogoURL != "" {
				return
			}
			if src, _ := s.Attr("src"); src != "" {
				profile.LogoURL = absolutize(base, src)
			}
		})
	}

	if profile.SiteName == "" {
		profile.SiteName = strings.TrimSpace(gq.Find("title").First().Text())
	}
	if profile.FaviconURL == "" {
		// Browsers fall back to /favicon.ico, so do we.
		profile.FaviconURL = absolutize(base, "/favicon.ico")
	}

	doc.Branding = profile
	return doc, nil
}

// absolutize resolves a possibly relative reference against the page URL.
func absolutize(base *url.URL, ref string) string {
	resolved, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return resolved.String()
}
