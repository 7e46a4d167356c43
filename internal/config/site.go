package config

import (
	"slices"
	"strings"
)

// SiteConfig holds crawl settings for one site.
type SiteConfig struct {
	// Cookie is sent with every crawl request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers for crawl requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxPages overrides the global page cap for this site when positive.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are URL path globs the crawler never follows.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict the crawler to matching URL paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .siteaudit configuration file.
type File struct {
	// Sites maps a host (e.g. "example.com") to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the merged settings for a host.
// Host matching is case-insensitive.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		for k, v := range cf.Sites {
			if strings.EqualFold(k, host) {
				siteConfig, ok = v, true
				break
			}
		}
	}
	if !ok {
		return cf.Defaults
	}
	return MergeSiteConfig(cf.Defaults, siteConfig)
}

// MergeSiteConfig overlays the non-zero fields of override on defaults.
// Headers are merged key by key; pattern lists are replaced.
func MergeSiteConfig(defaults, override SiteConfig) SiteConfig {
	result := defaults

	if override.Cookie != "" {
		result.Cookie = override.Cookie
	}
	if override.MaxPages > 0 {
		result.MaxPages = override.MaxPages
	}
	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(defaults.Headers)+len(override.Headers))
		for k, v := range defaults.Headers {
			merged[k] = v
		}
		for k, v := range override.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if len(override.IgnorePatterns) > 0 {
		result.IgnorePatterns = override.IgnorePatterns
	}
	if len(override.FollowPatterns) > 0 {
		result.FollowPatterns = override.FollowPatterns
	}

	return result
}

// HeaderNames returns the lower-cased names of every header configured
// in defaults or any site, sorted and without duplicates.
func (cf *File) HeaderNames() []string {
	if cf == nil {
		return nil
	}

	var names []string
	add := func(headers map[string]string) {
		for k := range headers {
			names = append(names, strings.ToLower(k))
		}
	}
	add(cf.Defaults.Headers)
	for _, sc := range cf.Sites {
		add(sc.Headers)
	}

	slices.Sort(names)
	return slices.Compact(names)
}
