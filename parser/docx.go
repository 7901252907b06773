package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

// Docx parses Word (and structurally similar zip-based) documents by
// reading word/document.xml from the archive.
type Docx struct{}

// NewDocx creates the document parser.
func NewDocx() *Docx { return &Docx{} }

func (d *Docx) Parse(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open document archive: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	type paragraph struct {
		text  string
		level int
	}

	decoder := xml.NewDecoder(rc)
	var paragraphs []paragraph
	var title string
	var currentText strings.Builder
	var inParagraph bool
	var paragraphStyle string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "p":
				inParagraph = true
				currentText.Reset()
				paragraphStyle = ""
			case t.Name.Local == "pStyle" && inParagraph:
				for _, attr := range t.Attr {
					if attr.Name.Local == "val" {
						paragraphStyle = attr.Value
					}
				}
			}

		case xml.CharData:
			if inParagraph {
				currentText.Write(t)
			}

		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}
				level := headingLevel(paragraphStyle)
				if level > 0 && title == "" {
					title = text
				}
				paragraphs = append(paragraphs, paragraph{text: text, level: level})
			}
		}
	}

	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("no text content found in document")
	}

	var md, htm strings.Builder
	for i, p := range paragraphs {
		if i > 0 {
			md.WriteString("\n\n")
		}
		if p.level > 0 {
			md.WriteString(strings.Repeat("#", p.level))
			md.WriteByte(' ')
			md.WriteString(p.text)
			fmt.Fprintf(&htm, "<h%d>%s</h%d>\n", p.level, html.EscapeString(p.text), p.level)
		} else {
			md.WriteString(p.text)
			fmt.Fprintf(&htm, "<p>%s</p>\n", html.EscapeString(p.text))
		}
	}

	return &Result{
		HTML:     htm.String(),
		Markdown: md.String(),
		Title:    title,
		NumPages: 1,
	}, nil
}

// headingLevel maps a Word paragraph style name to a heading level,
// e.g. "Heading1" → 1, "Title" → 1.
func headingLevel(style string) int {
	lower := strings.ToLower(style)
	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}
	if strings.HasPrefix(lower, "heading") {
		rest := lower[len("heading"):]
		if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
			return int(rest[0] - '0')
		}
	}
	return 0
}
