package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
)

var (
	// ErrHTTPStatus is returned for responses with a status of 400 or above.
	ErrHTTPStatus = errors.New("error status")

	// ErrNotHTML is returned for responses whose content type is not text/html.
	ErrNotHTML = errors.New("not an HTML page")
)

// Spider discovers the pages of one site breadth-first.
// It only follows anchor links that stay on the start URL's origin.
// A URL is marked seen when it is enqueued, so every URL is fetched at
// most once and a failed fetch is never retried.
type Spider struct {
	// client performs the page fetches. Its Timeout bounds each fetch.
	client *http.Client

	// maxPages caps the number of pages returned, the start page included.
	maxPages int

	// delay is the time to wait between requests.
	delay time.Duration

	// userAgent is the User-Agent header to use.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// headers are extra request headers from the per-site settings.
	headers map[string]string

	// cookie is sent as the Cookie header when set.
	cookie string

	// ignorePatterns are URL path patterns to skip during crawling.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	// If set, only URLs matching these patterns are crawled.
	followPatterns []string

	// respectRobots enables robots.txt checks for discovered links.
	respectRobots bool

	// robots is the robots.txt group for userAgent, nil when not loaded.
	robots *robotstxt.Group

	logger *slog.Logger

	// seen holds every normalized URL that was ever enqueued.
	seen map[string]bool

	// mutex protects seen and pageCount for Stats callers.
	mutex sync.Mutex

	// pageCount tracks pages accepted into the output.
	pageCount int
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the maximum number of pages to return.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the delay between requests.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithSpiderUserAgent sets a custom User-Agent header.
func WithSpiderUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithSpiderMaxBodySize sets the maximum response body size.
func WithSpiderMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithHeaders sets extra request headers sent with every fetch.
func WithHeaders(headers map[string]string) SpiderOption {
	return func(s *Spider) {
		s.headers = headers
	}
}

// WithCookie sets the Cookie header sent with every fetch.
func WithCookie(cookie string) SpiderOption {
	return func(s *Spider) {
		s.cookie = cookie
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// URLs matching any of these patterns will not be crawled.
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithRobots makes the spider load robots.txt from the start origin and
// skip links it disallows for the configured User-Agent.
func WithRobots(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = enabled
	}
}

// WithSpiderLogger sets the logger for dropped pages and robots.txt.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHTTPClient returns the client used for page fetches.
// Every request is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewSpider creates a new Spider with the given HTTP client.
func NewSpider(client *http.Client, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:      client,
		maxPages:    config.DefaultMaxPages,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		logger:      slog.Default(),
		seen:        make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Crawl walks the site from startURL and returns the HTML pages found,
// in breadth-first discovery order and at most maxPages long.
//
// Fetch failures, error statuses and non-HTML responses are logged and
// dropped. When ctx is cancelled the pages collected so far are returned
// together with ctx.Err().
func (s *Spider) Crawl(ctx context.Context, startURL string) ([]*model.Page, error) {
	start, err := NormalizeURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	site, ok := originOf(start)
	if !ok {
		return nil, fmt.Errorf("invalid start URL: %q has no host", startURL)
	}

	s.Reset()
	if s.respectRobots {
		s.loadRobots(ctx, site)
	}

	pages := make([]*model.Page, 0)
	s.markSeen(start)
	queue := []string{start}

	for len(queue) > 0 && len(pages) < s.maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		current := queue[0]
		queue = queue[1:]

		page, links, err := s.fetchPage(ctx, current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pages, ctxErr
			}
			s.logger.Debug("dropping page", "url", current, "error", err)
		} else {
			pages = append(pages, page)
			s.mutex.Lock()
			s.pageCount++
			s.mutex.Unlock()

			for _, link := range links {
				if next, ok := s.admit(site, link); ok {
					queue = append(queue, next)
				}
			}
		}

		if s.delay > 0 && len(queue) > 0 && len(pages) < s.maxPages {
			select {
			case <-ctx.Done():
				return pages, ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	return pages, nil
}

// admit normalizes a discovered link and marks it seen when it may be
// enqueued. Links off the origin are rejected without being marked.
func (s *Spider) admit(site origin, link string) (string, bool) {
	next, err := NormalizeURL(link)
	if err != nil {
		return "", false
	}
	if !site.sameOrigin(next) || !s.shouldCrawl(next) {
		return "", false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.seen[next] {
		return "", false
	}
	s.seen[next] = true
	return next, true
}

// fetchPage fetches a single page and extracts its title and links.
func (s *Spider) fetchPage(ctx context.Context, pageURL string) (*model.Page, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotHTML, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}

	parser, err := NewParser(pageURL)
	if err != nil {
		return nil, nil, err
	}
	result, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &model.Page{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Title:       result.Title,
		FetchedAt:   time.Now(),
	}
	return page, result.Links, nil
}

// setHeaders applies the User-Agent, per-site headers and cookie.
func (s *Spider) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}
}

// loadRobots fetches robots.txt for the origin. Any failure leaves the
// crawl unrestricted.
func (s *Spider) loadRobots(ctx context.Context, site origin) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.robotsURL(), nil)
	if err != nil {
		return
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("robots.txt unavailable", "url", site.robotsURL(), "error", err)
		return
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		s.logger.Warn("failed to parse robots.txt", "url", site.robotsURL(), "error", err)
		return
	}
	s.robots = data.FindGroup(s.userAgent)
}

// Reset clears the seen-set, page count and robots rules. Crawl calls it
// before each run, so one Spider can crawl several start URLs.
func (s *Spider) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.seen = make(map[string]bool)
	s.pageCount = 0
	s.robots = nil
}

// Stats returns current crawl statistics.
func (s *Spider) Stats() SpiderStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return SpiderStats{
		PagesVisited: s.pageCount,
		URLsQueued:   len(s.seen),
	}
}

// SpiderStats contains crawl statistics.
type SpiderStats struct {
	// PagesVisited is the number of pages accepted into the output.
	PagesVisited int

	// URLsQueued is the number of unique URLs ever enqueued.
	URLsQueued int
}

// markSeen records a normalized URL in the seen-set.
func (s *Spider) markSeen(pageURL string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.seen[pageURL] = true
}

// shouldCrawl checks a URL against robots.txt and the ignore/follow patterns.
//
// Logic:
//  1. If robots.txt disallows the path, skip it
//  2. If URL matches any ignorePattern, skip it
//  3. If followPatterns is set and URL matches none, skip it
//  4. Otherwise, crawl it
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	if s.robots != nil && !s.robots.Test(path) {
		return false
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
