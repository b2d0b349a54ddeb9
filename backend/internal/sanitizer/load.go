package sanitizer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// stripPolicy removes every tag; used only on the degraded path
var stripPolicy = bluemonday.StrictPolicy()

// Elements whose text never renders as page content
var nonVisibleElements = map[string]bool{
	"script":   true,
	"style":    true,
	"template": true,
}

// decodeBody converts body to UTF-8. Valid UTF-8 is passed through untouched;
// anything else goes through charset detection.
func decodeBody(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}

	r, err := charset.NewReaderLabel(detectCharset(body), bytes.NewReader(body))
	if err != nil {
		return strings.ToValidUTF8(string(body), "�")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(body), "�")
	}
	return strings.ToValidUTF8(string(decoded), "�")
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Charset == "" {
		return "windows-1252"
	}
	return strings.ToLower(result.Charset)
}

// parseDocument builds a DOM for text. The HTML5 parser recovers from almost
// any input, but a panic or read error is still reported as an error so the
// caller can fall back to plain text.
func parseDocument(text string) (doc *goquery.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("markup parser panic: %v", r)
		}
	}()

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	return doc, nil
}

// visibleText collects rendered text nodes, skipping comments and
// script/style/template bodies. Text nodes are joined with a space.
func visibleText(doc *goquery.Document) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if nonVisibleElements[strings.ToLower(n.Data)] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return normalizeWhitespace(b.String())
}

// plainText strips all markup from text without building a DOM
func plainText(text string) string {
	return normalizeWhitespace(html.UnescapeString(stripPolicy.Sanitize(text)))
}

// normalizeWhitespace collapses runs of whitespace into one space
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most max runes without splitting a character
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
