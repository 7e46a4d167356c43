package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned when a start URL is not http or https.
var ErrUnsupportedScheme = errors.New("only http and https URLs can be crawled")

// NormalizeURL returns the frontier key for rawURL.
// Scheme and host are lower-cased, an empty path becomes "/",
// the query is kept and the fragment is removed.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	return normalize(u)
}

func normalize(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.String())
	}

	n := *u
	n.Scheme = scheme
	n.Host = strings.ToLower(u.Host)
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" && n.RawPath == "" {
		n.Path = "/"
	}
	return n.String(), nil
}

// EnsureScheme prefixes https:// when the target has no scheme,
// so "example.com" can be passed on the command line.
func EnsureScheme(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || strings.Contains(target, "://") {
		return target
	}
	return "https://" + target
}

// origin is the (scheme, host) pair every crawled page must share.
type origin struct {
	scheme string
	host   string
}

func originOf(pageURL string) (origin, bool) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return origin{}, false
	}
	return origin{
		scheme: strings.ToLower(u.Scheme),
		host:   strings.ToLower(u.Host),
	}, true
}

// sameOrigin reports whether pageURL belongs to o.
func (o origin) sameOrigin(pageURL string) bool {
	other, ok := originOf(pageURL)
	return ok && other == o
}

// robotsURL returns the robots.txt location for the origin.
func (o origin) robotsURL() string {
	return o.scheme + "://" + o.host + "/robots.txt"
}
