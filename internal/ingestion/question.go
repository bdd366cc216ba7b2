package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	FormatText = "text"
	FormatHTML = "html"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanQuestion turns a submitted question into plain text. HTML input, as
// pasted from a rich-text editor, is reduced to its visible text. Runs of
// whitespace collapse to a single space.
func CleanQuestion(format, input string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return collapse(input), nil
	case FormatHTML:
		return cleanHTML(input)
	default:
		return "", fmt.Errorf("unsupported question format %q", format)
	}
}

func cleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript, template").Remove()
	// Block elements would otherwise glue neighbouring words together.
	doc.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return collapse(doc.Find("body").Text()), nil
}

func collapse(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
