package web

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
)

// ParseError reports markup that could not be turned into a document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// skippedSchemes never lead to crawlable pages
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// LinkExtractor pulls anchor hrefs out of HTML with goquery.
type LinkExtractor struct{}

func NewLinkExtractor() *LinkExtractor {
	return &LinkExtractor{}
}

var _ core.LinkExtractor = (*LinkExtractor)(nil)

// Extract returns the absolute, fragment-free targets of every a[href] in
// body, resolved against baseURL, in document order.
func (e *LinkExtractor) Extract(baseURL string, body string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ParseError{URL: baseURL, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: baseURL, Err: err}
	}

	links := make([]string, 0)
	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists {
			return
		}
		if absURL := resolveURL(base, href); absURL != "" {
			links = append(links, absURL)
		}
	})

	return links, nil
}

// resolveURL resolves href against base; it returns "" for hrefs that are
// not navigable pages.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}
