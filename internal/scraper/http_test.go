package scraper_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/scraper"
)

func TestHTTPScraper_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Hello</title></head><body><article>Some real content here.</article></body></html>`))
	}))
	defer srv.Close()

	s := scraper.NewHTTPScraper(srv.Client())
	result := s.Scrape(t.Context(), srv.URL)

	assert.True(t, result.Success)
	assert.Equal(t, "Hello", result.Title)
	assert.Contains(t, result.Content, "Some real content here.")
}

func TestHTTPScraper_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := scraper.NewHTTPScraper(srv.Client())
	result := s.Scrape(t.Context(), srv.URL)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "404")
}

func TestHTTPScraper_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := scraper.NewHTTPScraper(srv.Client())
	result := s.Scrape(t.Context(), srv.URL)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "403")
}

func TestHTTPScraper_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	s := scraper.NewHTTPScraper(srv.Client())
	result := s.Scrape(t.Context(), srv.URL)

	assert.False(t, result.Success)
	assert.Equal(t, "empty content", result.Error)
}

func TestHTTPScraper_TruncatesOverlongContent(t *testing.T) {
	huge := strings.Repeat("x", domain.MaxArticleContentLength+500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article>%s</article></body></html>`, huge)
	}))
	defer srv.Close()

	s := scraper.NewHTTPScraper(srv.Client())
	result := s.Scrape(t.Context(), srv.URL)

	assert.True(t, result.Success)
	assert.Len(t, []rune(result.Content), domain.MaxArticleContentLength)
}
