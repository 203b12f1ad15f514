// Package articlestore implements the durable Article repository: a
// Postgres-backed mapping from normalized URL to article record, with
// status, content, and reference count (§3 Article).
package articlestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fieldnote/scrapesched/internal/domain"
)

// postgresUniqueViolation is the SQLSTATE code for a unique-index violation.
const postgresUniqueViolation = "23505"

// Store is the Postgres-backed Article repository.
type Store struct {
	db *sqlx.DB
}

// New builds a Store over an existing database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetByNormalizedURL returns the article keyed by normalized URL, or
// domain.ErrArticleNotFound if none exists.
func (s *Store) GetByNormalizedURL(ctx context.Context, normalizedURL string) (*domain.Article, error) {
	var a domain.Article
	query := `
		SELECT id, url, source, category, priority, status, title, content,
		       error_message, scraped_at, created_at, updated_at,
		       reference_count, retry_count
		FROM articles
		WHERE url = $1
	`
	err := s.db.GetContext(ctx, &a, query, normalizedURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, fmt.Errorf("get article by url: %w", err)
	}
	return &a, nil
}

// BulkGetByNormalizedURLs fetches every existing record among the given
// normalized URLs, keyed by normalized URL (§4.2 step 2). URLs with no
// matching row are simply absent from the result.
func (s *Store) BulkGetByNormalizedURLs(ctx context.Context, normalizedURLs []string) (map[string]*domain.Article, error) {
	result := make(map[string]*domain.Article, len(normalizedURLs))
	if len(normalizedURLs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, url, source, category, priority, status, title, content,
		       error_message, scraped_at, created_at, updated_at,
		       reference_count, retry_count
		FROM articles
		WHERE url IN (?)
	`, normalizedURLs)
	if err != nil {
		return nil, fmt.Errorf("build bulk lookup query: %w", err)
	}
	query = s.db.Rebind(query)

	var rows []domain.Article
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("bulk get articles: %w", err)
	}

	for i := range rows {
		row := rows[i]
		result[row.URL] = &row
	}
	return result, nil
}

// CreatePending inserts a new PENDING article. If a concurrent insert has
// already created the row (unique-index violation on url), the violation
// is caught and the existing row is re-read and returned instead — the
// explicit try-insert/catch-conflict/re-read shape called for in place of
// an ON CONFLICT upsert.
func (s *Store) CreatePending(ctx context.Context, normalizedURL, source, category string, priority int) (*domain.Article, error) {
	a := &domain.Article{
		ID:             uuid.New().String(),
		URL:            normalizedURL,
		Source:         source,
		Category:       category,
		Priority:       priority,
		Status:         domain.ArticleStatusPending,
		ReferenceCount: 1,
	}

	query := `
		INSERT INTO articles (id, url, source, category, priority, status, reference_count, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, 1, 0)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query, a.ID, a.URL, a.Source, a.Category, a.Priority, a.Status).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err == nil {
		return a, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == postgresUniqueViolation {
		existing, readErr := s.GetByNormalizedURL(ctx, normalizedURL)
		if readErr != nil {
			return nil, fmt.Errorf("re-read after conflict: %w", readErr)
		}
		return existing, nil
	}

	return nil, fmt.Errorf("create pending article: %w", err)
}

// ResetToPending clears error_message and transitions a non-SCRAPED
// article back to PENDING (the "reusable-pending" classification, §4.2).
func (s *Store) ResetToPending(ctx context.Context, id string) error {
	query := `
		UPDATE articles
		SET status = $1, error_message = NULL, updated_at = $2
		WHERE id = $3
	`
	_, err := s.db.ExecContext(ctx, query, domain.ArticleStatusPending, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reset article to pending: %w", err)
	}
	return nil
}

// IncrementReferenceCount bumps reference_count for an article reused by
// another job. Best-effort: non-atomic with task emission (§4.2).
func (s *Store) IncrementReferenceCount(ctx context.Context, id string) error {
	query := `UPDATE articles SET reference_count = reference_count + 1, updated_at = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("increment reference count: %w", err)
	}
	return nil
}

// MarkScraping transitions an article into SCRAPING (§4.4 step 2).
func (s *Store) MarkScraping(ctx context.Context, id string) error {
	query := `UPDATE articles SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := s.db.ExecContext(ctx, query, domain.ArticleStatusScraping, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark article scraping: %w", err)
	}
	return nil
}

// MarkScraped writes the successful scrape result (§4.4 step 4).
func (s *Store) MarkScraped(ctx context.Context, id, title, content string) error {
	now := time.Now().UTC()
	query := `
		UPDATE articles
		SET status = $1, title = $2, content = $3, scraped_at = $4,
		    error_message = NULL, updated_at = $4
		WHERE id = $5
	`
	_, err := s.db.ExecContext(ctx, query, domain.ArticleStatusScraped, title, content, now, id)
	if err != nil {
		return fmt.Errorf("mark article scraped: %w", err)
	}
	return nil
}

// MarkFailed writes the permanent failure result (§4.4 step 5, retries exhausted).
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `UPDATE articles SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`
	_, err := s.db.ExecContext(ctx, query, domain.ArticleStatusFailed, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark article failed: %w", err)
	}
	return nil
}

// IncrementRetryCount bumps retry_count and resets the article to PENDING
// ahead of a re-push into the broker (§4.4 step 5, retrying).
func (s *Store) IncrementRetryCount(ctx context.Context, id string) error {
	query := `
		UPDATE articles
		SET status = $1, retry_count = retry_count + 1, updated_at = $2
		WHERE id = $3
	`
	_, err := s.db.ExecContext(ctx, query, domain.ArticleStatusPending, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("increment retry count: %w", err)
	}
	return nil
}

// GetByID returns a single article by its opaque ID.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	var a domain.Article
	query := `
		SELECT id, url, source, category, priority, status, title, content,
		       error_message, scraped_at, created_at, updated_at,
		       reference_count, retry_count
		FROM articles
		WHERE id = $1
	`
	err := s.db.GetContext(ctx, &a, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, fmt.Errorf("get article by id: %w", err)
	}
	return &a, nil
}

// GetByIDs returns the articles matching the given IDs, in no particular order.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]*domain.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, url, source, category, priority, status, title, content,
		       error_message, scraped_at, created_at, updated_at,
		       reference_count, retry_count
		FROM articles
		WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("build batch lookup query: %w", err)
	}
	query = s.db.Rebind(query)

	var rows []domain.Article
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get articles by ids: %w", err)
	}

	result := make([]*domain.Article, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}
