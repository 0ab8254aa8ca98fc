package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

// CleanText strips markup from text that is known to carry it, such as
// PubMed ArticleTitle and AbstractText inner XML, unescapes entities and
// collapses whitespace. Plain-text values must go through PlainText instead:
// a bare "<" there is content, not a tag.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := html.Parse(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return collapse(s)
	}
	var sb strings.Builder
	collectText(doc, &sb)
	return collapse(sb.String())
}

// PlainText unescapes entities and collapses whitespace without interpreting
// any markup.
func PlainText(s string) string {
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return collapse(s)
}

var skipTags = map[string]bool{"script": true, "style": true}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if skipTags[n.Data] {
			return
		}
		switch n.Data {
		case "br", "p", "div", "li":
			sb.WriteString(" ")
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
