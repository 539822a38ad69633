// Package textclean turns feed HTML into the plain and normalized text stored
// with each article.
package textclean

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

var (
	urlPattern        = regexp.MustCompile(`http\S+|www\.\S+`)
	nonLetters        = regexp.MustCompile(`[^a-zA-Z\s]`)
	redundantNewLines = regexp.MustCompile(`\n{3,}`)
)

// Clean produces the clean_content form of text: URLs removed, everything
// but ASCII letters replaced by spaces, whitespace collapsed, lowercased.
func Clean(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = nonLetters.ReplaceAllString(text, " ")
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// PlainText extracts readable text from an HTML fragment or page. Readability
// is tried first; short fragments it cannot handle fall back to the
// concatenated text nodes.
func PlainText(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		base = u
	}

	if article, err := readability.FromReader(strings.NewReader(html), base); err == nil {
		if text := cleanupText(article.TextContent); text != "" {
			return text
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanupText(html)
	}
	return cleanupText(doc.Text())
}

// FirstImage returns the absolute URL of the first <img> in html.
func FirstImage(html, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src, ok := doc.Find("img[src]").First().Attr("src")
	if !ok {
		return ""
	}
	return resolveURL(strings.TrimSpace(src), pageURL)
}

// Slug returns the last non-empty path segment of link.
func Slug(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

func cleanupText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(redundantNewLines.ReplaceAllString(text, "\n"))
}

func resolveURL(raw, base string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}
