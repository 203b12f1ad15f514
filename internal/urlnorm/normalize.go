// Package urlnorm implements the sole deduplication key for the Article
// Store: a pure normalization function over raw URLs.
package urlnorm

import (
	"net/url"
	"strings"
)

// Normalize lowercases scheme, host, and path, strips a trailing slash from
// the path, and preserves the query string verbatim appended as `?q`. It is
// idempotent: Normalize(Normalize(u)) == Normalize(u) for any URL u.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	path := strings.ToLower(u.EscapedPath())
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	normalized := scheme + "://" + host + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized, nil
}
