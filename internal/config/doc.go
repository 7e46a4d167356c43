// Package config provides configuration structures and loaders for SiteAudit.
//
// It covers three inputs:
//   - Config and LLMConfig, populated from CLI flags, with environment
//     variables supplying defaults for unset provider fields
//   - the severity rules file (rules.yaml), parsed into Rules; any problem
//     with it is a *RulesError and aborts the run before crawling
//   - the optional .siteaudit file with per-site crawl settings
package config
