package utils

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CleanMarkdown strips an outer code fence wrapped around a model answer,
// including its language tag.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)
	if len(cleaned) < 6 || !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(cleaned[:nl]); !strings.ContainsAny(tag, " {[") {
			cleaned = cleaned[nl+1:]
		}
	}
	return strings.TrimSpace(cleaned)
}

var residualMarkup = regexp.MustCompile(`[*#_<>]+`)

// PlainText renders markdown as plain paragraphs: emphasis, headings,
// list markers and links are reduced to their text.
func PlainText(input string) string {
	source := []byte(CleanMarkdown(input))
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var paragraphs []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
		cur.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.FencedCodeBlock, *ast.CodeBlock:
			if !entering {
				flush()
				return ast.WalkContinue, nil
			}
			if lines := n.Lines(); lines != nil && (isCode(n)) {
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					cur.Write(seg.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.CodeSpan:
			if entering {
				for c := node.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						cur.Write(t.Segment.Value(source))
					}
				}
				return ast.WalkSkipChildren, nil
			}
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	flush()

	out := strings.Join(paragraphs, "\n\n")
	return strings.TrimSpace(residualMarkup.ReplaceAllString(out, ""))
}

func isCode(n ast.Node) bool {
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return true
	}
	return false
}
