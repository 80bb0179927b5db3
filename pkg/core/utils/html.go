package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// HTMLToText extracts readable text from an uploaded HTML document, dropping
// scripts, styles and navigation chrome. Table cells are joined with " | ".
func HTMLToText(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer, header, svg").Remove()

	var sb strings.Builder
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	doc.Find("title").Remove()

	doc.Find("body").Find("h1, h2, h3, h4, p, li, tr, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are emitted by their innermost element.
		if s.Find("p, li, tr, pre").Length() > 0 {
			return
		}
		var line string
		if goquery.NodeName(s) == "tr" {
			var cells []string
			s.Find("th, td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, strings.Join(strings.Fields(c.Text()), " "))
			})
			line = strings.Join(cells, " | ")
		} else {
			line = strings.Join(strings.Fields(s.Text()), " ")
		}
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	})

	out := sb.String()
	if strings.TrimSpace(out) == "" {
		out = strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(out, "\n\n")), nil
}
