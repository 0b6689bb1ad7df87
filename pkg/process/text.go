package process

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ExtractText returns the visible text of an HTML document with whitespace
// collapsed. Script, style and other non-content subtrees are skipped.
func ExtractText(body io.Reader) (string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	extractTextNodes(doc, &sb)

	text := sb.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text), nil
}

func extractTextNodes(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg":
			return
		}
	}

	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextNodes(c, sb)
	}
}

// Excerpt truncates text to at most max bytes, cutting at a word boundary
// where one exists within the last 40 bytes.
func Excerpt(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexByte(cut, ' '); i > 0 && i > max-40 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
