// Package jobstore implements the durable Job repository: a Postgres-backed
// mapping from job ID to aggregate counters, member article IDs, and
// lifecycle state (§3 Job, §4.3).
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fieldnote/scrapesched/internal/domain"
)

// Store is the Postgres-backed Job repository.
type Store struct {
	db *sqlx.DB
}

// New builds a Store over an existing database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job with counters initialized per the admitter's
// classification (§4.2 step 4).
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, status, total_articles, new_articles, cached_articles,
		                   completed_count, failed_count, article_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		job.ID, job.Status, job.TotalArticles, job.NewArticles, job.CachedArticles,
		job.CompletedCount, job.FailedCount, pq.Array(job.ArticleIDs),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID returns the job by ID, or domain.ErrJobNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	var articleIDs pq.StringArray
	query := `
		SELECT id, status, total_articles, new_articles, cached_articles,
		       completed_count, failed_count, article_ids, created_at, updated_at, completed_at
		FROM jobs
		WHERE id = $1
	`
	row := s.db.QueryRowxContext(ctx, query, id)
	err := row.Scan(
		&j.ID, &j.Status, &j.TotalArticles, &j.NewArticles, &j.CachedArticles,
		&j.CompletedCount, &j.FailedCount, &articleIDs, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	j.ArticleIDs = []string(articleIDs)
	return &j, nil
}

// List returns jobs optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, statusFilter string, limit, skip int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	query := `
		SELECT id, status, total_articles, new_articles, cached_articles,
		       completed_count, failed_count, article_ids, created_at, updated_at, completed_at
		FROM jobs
	`
	args := []any{}
	if statusFilter != "" {
		query += " WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3"
		args = append(args, statusFilter, limit, skip)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1 OFFSET $2"
		args = append(args, limit, skip)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		var j domain.Job
		var articleIDs pq.StringArray
		if err := rows.Scan(
			&j.ID, &j.Status, &j.TotalArticles, &j.NewArticles, &j.CachedArticles,
			&j.CompletedCount, &j.FailedCount, &articleIDs, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		j.ArticleIDs = []string(articleIDs)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// IncrementCompleted bumps completed_count by one and returns the job's
// post-increment counters, for the caller to run the completion check
// against (§4.3).
func (s *Store) IncrementCompleted(ctx context.Context, id string) (*domain.Job, error) {
	query := `UPDATE jobs SET completed_count = completed_count + 1, updated_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return nil, fmt.Errorf("increment completed count: %w", err)
	}
	return s.GetByID(ctx, id)
}

// IncrementFailed bumps failed_count by one and returns the job's
// post-increment counters (§4.3).
func (s *Store) IncrementFailed(ctx context.Context, id string) (*domain.Job, error) {
	query := `UPDATE jobs SET failed_count = failed_count + 1, updated_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return nil, fmt.Errorf("increment failed count: %w", err)
	}
	return s.GetByID(ctx, id)
}

// TransitionTo performs the guarded one-shot terminal (or IN_PROGRESS)
// transition: `UPDATE jobs SET status = $1 ... WHERE id = $2 AND status =
// ANY($3)`. It returns true iff this call won the transition (RowsAffected
// == 1); false means the job was already in some other status (commonly
// because CANCELLED is absorbing, or because a concurrent writer already
// performed the same transition) — not an error (§4.3 J3).
func (s *Store) TransitionTo(ctx context.Context, id string, newStatus domain.JobStatus, from []domain.JobStatus) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	var query string
	var args []any
	if newStatus.IsTerminal() {
		query = `
			UPDATE jobs SET status = $1, completed_at = $2, updated_at = $2
			WHERE id = $3 AND status = ANY($4)
		`
		args = []any{newStatus, time.Now().UTC(), id, pq.Array(fromStrs)}
	} else {
		query = `
			UPDATE jobs SET status = $1, updated_at = $2
			WHERE id = $3 AND status = ANY($4)
		`
		args = []any{newStatus, time.Now().UTC(), id, pq.Array(fromStrs)}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
