// Package crawler discovers the pages of a site for auditing.
//
// The Spider performs a breadth-first walk from a start URL. It follows
// only <a href> links on the start URL's origin (scheme and host), keeps
// each normalized URL at most once, and stops at a page cap. Responses
// with an error status or a non-HTML content type are dropped and never
// retried.
//
// # Components
//
//   - Spider: the frontier, fetches and per-site request settings
//   - Parser: HTML parser that extracts the title and anchor links
//   - NormalizeURL: the frontier key (lower-case scheme and host,
//     "/" for an empty path, fragment removed)
//
// # Politeness
//
//   - optional delay between requests (WithDelay)
//   - optional robots.txt checks for discovered links (WithRobots)
//   - response bodies are read up to a size limit
//
// # Usage
//
//	client := crawler.NewHTTPClient(25 * time.Second)
//	spider := crawler.NewSpider(client, crawler.WithMaxPages(25))
//	pages, err := spider.Crawl(ctx, "https://example.com/")
package crawler
