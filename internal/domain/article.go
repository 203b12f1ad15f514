// Package domain provides the core record and message types shared across
// the scheduler: articles, jobs, task envelopes, and progress events.
package domain

import "time"

// ArticleStatus is the lifecycle state of an Article.
type ArticleStatus string

const (
	ArticleStatusPending  ArticleStatus = "PENDING"
	ArticleStatusScraping ArticleStatus = "SCRAPING"
	ArticleStatusScraped  ArticleStatus = "SCRAPED"
	ArticleStatusFailed   ArticleStatus = "FAILED"
)

// MaxArticleContentLength is the upper bound on Article.Content, in runes.
const MaxArticleContentLength = 50_000

// Article is the durable cache record keyed by normalized URL. It is the
// sole deduplication key for the admission path.
type Article struct {
	ID             string        `db:"id"              json:"id"`
	URL            string        `db:"url"              json:"url"`
	Source         string        `db:"source"           json:"source"`
	Category       string        `db:"category"         json:"category"`
	Priority       int           `db:"priority"         json:"priority"`
	Status         ArticleStatus `db:"status"           json:"status"`
	Title          *string       `db:"title"            json:"title,omitempty"`
	Content        *string       `db:"content"          json:"content,omitempty"`
	ErrorMessage   *string       `db:"error_message"    json:"error_message,omitempty"`
	ScrapedAt      *time.Time    `db:"scraped_at"        json:"scraped_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at"        json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"        json:"updated_at"`
	ReferenceCount int           `db:"reference_count"  json:"reference_count"`
	RetryCount     int           `db:"retry_count"       json:"retry_count"`
}

// IsScraped reports whether the article has reached its terminal success state.
func (a *Article) IsScraped() bool {
	return a.Status == ArticleStatusScraped
}

// CachedRelativeTo reports whether the article was already SCRAPED strictly
// before the given job's creation time — the `results` endpoint's
// `cached=true` rule (§6).
func (a *Article) CachedRelativeTo(jobCreatedAt time.Time) bool {
	return a.ScrapedAt != nil && a.ScrapedAt.Before(jobCreatedAt)
}
