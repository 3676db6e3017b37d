// Package render turns response bodies into short single-line excerpts fit
// for error messages and logs.
package render

import (
	"strings"
	"unicode/utf8"

	xhtml "golang.org/x/net/html"
)

// DefaultExcerptLen bounds an excerpt in runes.
const DefaultExcerptLen = 300

// Excerpt returns a whitespace-collapsed excerpt of body, at most limit runes.
// HTML bodies (by content type or a leading tag) are reduced to their
// visible text first. limit <= 0 means DefaultExcerptLen.
func Excerpt(contentType, body string, limit int) string {
	if limit <= 0 {
		limit = DefaultExcerptLen
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if strings.Contains(contentType, "html") || (strings.HasPrefix(body, "<") && !strings.HasPrefix(body, "<?xml")) {
		body = HTMLToText(body)
	}
	return truncate(strings.Join(strings.Fields(body), " "), limit)
}

// HTMLToText returns the visible text of an HTML document. Script and style
// content is dropped; block elements become line breaks.
func HTMLToText(raw string) string {
	if raw == "" {
		return ""
	}

	tokenizer := xhtml.NewTokenizer(strings.NewReader(raw))
	var sb strings.Builder
	skip := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case xhtml.ErrorToken:
			return strings.TrimSpace(sb.String())

		case xhtml.StartTagToken:
			t := tokenizer.Token()
			switch t.Data {
			case "script", "style", "noscript", "template":
				skip++
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "title":
				sb.WriteString("\n")
			}

		case xhtml.SelfClosingTagToken:
			if tokenizer.Token().Data == "br" {
				sb.WriteString("\n")
			}

		case xhtml.EndTagToken:
			t := tokenizer.Token()
			switch t.Data {
			case "script", "style", "noscript", "template":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "title":
				sb.WriteString("\n")
			}

		case xhtml.TextToken:
			if skip > 0 {
				continue
			}
			sb.Write(tokenizer.Text())
		}
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
