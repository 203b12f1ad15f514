// Package scraper defines the external Scraper collaborator (§6): a pure,
// single-URL scrape function. The worker never sees an unclassified error —
// every failure mode is reduced to a Result with Success=false and a typed
// error string.
package scraper

import "context"

// Result is the outcome of a single scrape attempt.
type Result struct {
	Success bool
	Title   string
	Content string
	Error   string
}

// Scraper fetches and extracts a single URL's title and content. It must
// honor ctx's deadline and must never panic or return an unclassified error
// to the caller — all failures are reported via Result.Error.
type Scraper interface {
	Scrape(ctx context.Context, url string) Result
}
