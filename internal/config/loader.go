package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the per-site crawl settings file name.
const DefaultConfigFile = ".siteaudit"

var (
	// ErrConfigNotFound is returned when the site config file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidSiteConfig is returned when a site entry fails validation.
	ErrInvalidSiteConfig = errors.New("invalid site configuration")
)

// LoadConfigFile reads the per-site crawl settings file. Unknown keys are
// rejected so a misspelled "maxpages" does not silently fall back to the
// default. Site keys are reduced to a lower-case host, so
// "https://Example.com/" and "example.com" address the same site.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var raw File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := validateSiteConfig("defaults", raw.Defaults); err != nil {
		return nil, err
	}

	cf := &File{Defaults: raw.Defaults, Sites: make(map[string]SiteConfig, len(raw.Sites))}
	for key, sc := range raw.Sites {
		host := siteHost(key)
		if host == "" {
			return nil, fmt.Errorf("%w: empty site key %q", ErrInvalidSiteConfig, key)
		}
		if err := validateSiteConfig(host, sc); err != nil {
			return nil, err
		}
		if _, dup := cf.Sites[host]; dup {
			return nil, fmt.Errorf("%w: site %s is listed twice", ErrInvalidSiteConfig, host)
		}
		cf.Sites[host] = sc
	}
	return cf, nil
}

// siteHost strips an optional scheme, path and port from a site key.
func siteHost(key string) string {
	host := strings.TrimSpace(strings.ToLower(key))
	if _, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
	}
	host, _, _ = strings.Cut(host, "/")
	if strings.HasPrefix(host, "[") {
		h, _, _ := strings.Cut(host[1:], "]")
		return h
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return host
}

// validateSiteConfig checks the values the crawler cannot recover from.
func validateSiteConfig(name string, sc SiteConfig) error {
	if sc.MaxPages < 0 {
		return fmt.Errorf("%w: %s: maxPages must not be negative", ErrInvalidSiteConfig, name)
	}
	for _, patterns := range [][]string{sc.IgnorePatterns, sc.FollowPatterns} {
		for _, p := range patterns {
			if _, err := filepath.Match(p, ""); err != nil {
				return fmt.Errorf("%w: %s: bad pattern %q", ErrInvalidSiteConfig, name, p)
			}
		}
	}
	for k := range sc.Headers {
		if strings.TrimSpace(k) == "" || strings.ContainsAny(k, ": \t") {
			return fmt.Errorf("%w: %s: bad header name %q", ErrInvalidSiteConfig, name, k)
		}
	}
	return nil
}

// FindConfigFile returns the site config file to use. An explicit path is
// returned only if it exists. Otherwise .siteaudit is looked up in the
// current directory, the home directory and the XDG config directory.
// It returns "" when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		return firstExisting(configPath)
	}

	candidates := []string{DefaultConfigFile}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), DefaultConfigFile))
	return firstExisting(candidates...)
}

// firstExisting returns the first candidate that exists on disk, or "".
func firstExisting(candidates ...string) string {
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
