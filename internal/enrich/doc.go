// Package enrich fills in root-cause and recommendation text for findings.
//
// Two providers run in a fixed order for each page:
//
//   - TemplateProvider maps well-known rule ids to canned text with
//     placeholders taken from the finding itself. It never overwrites.
//   - a Generator (RemoteProvider talks to an OpenAI-compatible
//     /chat/completions endpoint) is asked for the findings still
//     lacking a recommendation, subject to a severity floor and caps.
//
// Remote answers pass through a Normalizer, an ordered table of
// RewriteRule values, and are stored in an append-only JSONL Cache keyed
// by the finding signature. The Engine broadcasts each answer to every
// finding that shares the signature (or, in rule mode, the page, rule
// and severity), filling blank fields only.
package enrich
