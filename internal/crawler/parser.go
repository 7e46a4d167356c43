package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// nonNavigablePrefixes are href prefixes that never lead to a page.
var nonNavigablePrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// Parser extracts the title and anchor links from an HTML page.
// Links are resolved against the page URL; only http(s) links are kept.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// ParseResult contains the information the crawler needs from a page.
type ParseResult struct {
	// Title is the page title from <title> tag.
	Title string

	// Links are the resolved anchor hrefs in document order.
	// Duplicates are kept; the frontier removes them.
	Links []string
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts the title and links.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Links: make([]string, 0),
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// processElement handles HTML element nodes.
func (p *Parser) processElement(n *html.Node, result *ParseResult) {
	switch n.Data {
	case "title":
		if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}
	case "a":
		if resolved := p.resolveURL(getAttr(n, "href")); resolved != "" {
			result.Links = append(result.Links, resolved)
		}
	}
}

// resolveURL resolves an href against the base URL.
// It returns "" for empty, non-navigable or non-http(s) links.
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	lower := strings.ToLower(href)
	for _, prefix := range nonNavigablePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
		return resolved.String()
	default:
		return ""
	}
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
