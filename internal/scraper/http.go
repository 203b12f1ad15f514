package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fieldnote/scrapesched/internal/domain"
)

// DefaultTimeout is the default value of the per-URL scrape deadline (§6
// `scrape_timeout`) in configuration. HTTPScraper does not apply it itself;
// a scrape is bounded only by ctx and the injected http.Client.
const DefaultTimeout = 30 * time.Second

const (
	// maxBodyBytes bounds how much of the response body we read, regardless
	// of Content-Length, to avoid unbounded memory use on hostile servers.
	maxBodyBytes = 10 << 20 // 10 MiB

	// contentSelectorList is a single selector group matched against the
	// parsed document; the first matching element in document order supplies
	// the content, and the whole body's text is the fallback when that is
	// empty. Mirrors the teacher's container-then-fallback extraction strategy.
	contentSelectorList = "article, main, [role='article'], .content, .article-content, .post-content"
)

// HTTPScraper is the default Scraper implementation: an HTTP GET followed
// by goquery-based title/content extraction.
type HTTPScraper struct {
	client *http.Client
}

// NewHTTPScraper builds an HTTPScraper using the given HTTP client. Pass
// nil to use http.DefaultClient.
func NewHTTPScraper(client *http.Client) *HTTPScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPScraper{client: client}
}

// Scrape fetches url and extracts its title and main content via goquery.
// HTTP 404/403 and >=400 responses are classified into distinct error
// strings per §6; it never returns a Go error, only a Result.
func (s *HTTPScraper) Scrape(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("network error: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if classified, ok := classifyStatus(resp.StatusCode); !ok {
		return Result{Success: false, Error: classified}
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("parse error: %v", err)}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := strings.TrimSpace(doc.Find(contentSelectorList).First().Text())
	if content == "" {
		content = strings.TrimSpace(doc.Find("body").Text())
	}

	if content == "" {
		return Result{Success: false, Error: "empty content"}
	}

	return Result{Success: true, Title: title, Content: truncateContent(content)}
}

// truncateContent bounds content to domain.MaxArticleContentLength runes.
// The articles.content column itself has no length constraint.
func truncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= domain.MaxArticleContentLength {
		return content
	}
	return string(runes[:domain.MaxArticleContentLength])
}

// classifyStatus returns ("", true) when the status is a success, or
// (classified error string, false) otherwise.
func classifyStatus(status int) (string, bool) {
	switch {
	case status == http.StatusNotFound:
		return "not found (404)", false
	case status == http.StatusForbidden:
		return "forbidden (403)", false
	case status >= 500:
		return fmt.Sprintf("server error (%d)", status), false
	case status >= 400:
		return fmt.Sprintf("client error (%d)", status), false
	default:
		return "", true
	}
}
