package search

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// parseHTMLResults flattens the organic results of a DuckDuckGo HTML results
// page into "title: snippet" lines. Sponsored results are skipped.
func parseHTMLResults(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return NoResultText
	}

	parts := make([]string, 0, maxSnippets)
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(parts) >= maxSnippets {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if hasClass(n, "result--ad") {
				return
			}
			if line := resultLine(n); line != "" && !seen[line] {
				seen[line] = true
				parts = append(parts, line)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(parts) == 0 {
		return NoResultText
	}
	return strings.Join(parts, "\n")
}

func resultLine(n *html.Node) string {
	title := textOf(findClass(n, "result__a"))
	snippet := textOf(findClass(n, "result__snippet"))
	switch {
	case title == "":
		return snippet
	case snippet == "":
		return title
	default:
		return title + ": " + snippet
	}
}

// findClass returns the first descendant of n carrying class, or nil.
func findClass(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && hasClass(c, class) {
			return c
		}
		if found := findClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// textOf joins the text under n with single spaces.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
