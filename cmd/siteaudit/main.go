// Package main provides the entry point for the SiteAudit CLI.
//
// SiteAudit crawls a website, runs Lighthouse on every page it finds,
// grades each failing audit against a severity rules file and writes
// per-page findings with root causes and recommendations.
//
// Usage:
//
//	siteaudit init
//	siteaudit scan https://example.com
//	siteaudit compare https://example.com
//
// See --help for all available options.
package main

// main is the entry point for SiteAudit.
func main() {
	Execute()
}
