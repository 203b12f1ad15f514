// Package admitter implements the admission path (§4.2): it partitions an
// incoming batch into cached, reusable-pending, and fresh articles, creates
// the Job record, and pushes residual work into the Broker. Constructed
// with its collaborators as explicit fields rather than an ambient
// singleton, grounded on the teacher's ServiceParams-style dependency
// injection (internal/job/service.go).
package admitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/urlnorm"
)

// MaxBatchSize is the upper bound on articles accepted per submit call (§4.2).
const MaxBatchSize = 100

// ArticleRequest is one article in an incoming batch.
type ArticleRequest struct {
	URL      string
	Source   string
	Category string
	Priority int
}

// SubmitResult is returned from Submit, mirroring the REST `/jobs/submit`
// response shape (§6).
type SubmitResult struct {
	JobID     string
	Status    domain.JobStatus
	Total     int
	New       int
	Cached    int
	Message   string
}

// ArticleStore is the subset of articlestore.Store the Admitter depends on.
type ArticleStore interface {
	BulkGetByNormalizedURLs(ctx context.Context, urls []string) (map[string]*domain.Article, error)
	CreatePending(ctx context.Context, normalizedURL, source, category string, priority int) (*domain.Article, error)
	ResetToPending(ctx context.Context, id string) error
	IncrementReferenceCount(ctx context.Context, id string) error
}

// JobStore is the subset of jobstore.Store the Admitter depends on.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	TransitionTo(ctx context.Context, id string, newStatus domain.JobStatus, from []domain.JobStatus) (bool, error)
}

// Broker is the subset of broker.Broker the Admitter depends on.
type Broker interface {
	Push(ctx context.Context, task domain.TaskEnvelope) error
	Publish(ctx context.Context, event domain.ProgressEvent) error
	CancelJob(ctx context.Context, jobID string) (int, error)
}

// Service is the Admitter: one logical instance is invoked per incoming
// batch (§2).
type Service struct {
	articles ArticleStore
	jobs     JobStore
	broker   Broker
	logger   logger.Logger
}

// New constructs an Admitter Service from its explicit collaborators.
func New(articles ArticleStore, jobs JobStore, broker Broker, log logger.Logger) *Service {
	return &Service{articles: articles, jobs: jobs, broker: broker, logger: log}
}

// classification buckets one request after the bulk lookup (§4.2 step 3).
type classifiedArticle struct {
	req     ArticleRequest
	article *domain.Article
	cached  bool
}

// Submit runs the admission algorithm (§4.2) against a validated batch.
func (s *Service) Submit(ctx context.Context, batch []ArticleRequest) (SubmitResult, error) {
	if err := validateBatch(batch); err != nil {
		return SubmitResult{}, err
	}

	normalized := make([]string, len(batch))
	for i, req := range batch {
		n, err := urlnorm.Normalize(req.URL)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
		}
		normalized[i] = n
	}

	existing, err := s.articles.BulkGetByNormalizedURLs(ctx, normalized)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("bulk lookup existing articles: %w", err)
	}

	classified := make([]classifiedArticle, len(batch))
	for i, req := range batch {
		classified[i] = classify(normalized[i], req, existing)
	}

	var cachedCount int
	var toScrapeIdx []int
	for i, c := range classified {
		if c.cached {
			cachedCount++
		} else {
			toScrapeIdx = append(toScrapeIdx, i)
		}
	}

	articleIDs := make([]string, 0, len(batch))
	resolved, err := s.resolveArticles(ctx, normalized, classified)
	if err != nil {
		return SubmitResult{}, err
	}
	for _, a := range resolved {
		articleIDs = append(articleIDs, a.ID)
	}

	job := &domain.Job{
		ID:             uuid.New().String(),
		Status:         domain.JobStatusPending,
		TotalArticles:  len(batch),
		NewArticles:    len(toScrapeIdx),
		CachedArticles: cachedCount,
		CompletedCount: cachedCount,
		FailedCount:    0,
		ArticleIDs:     articleIDs,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return SubmitResult{}, fmt.Errorf("create job: %w", err)
	}

	if len(toScrapeIdx) == 0 {
		if _, err := s.jobs.TransitionTo(ctx, job.ID, domain.JobStatusCompleted, domain.NonTerminalJobStatuses()); err != nil {
			return SubmitResult{}, fmt.Errorf("transition job to completed: %w", err)
		}
		s.publish(ctx, job.ID, domain.JobStatusCompleted, job.CompletedCount, job.FailedCount, job.TotalArticles)

		return SubmitResult{
			JobID: job.ID, Status: domain.JobStatusCompleted,
			Total: job.TotalArticles, New: job.NewArticles, Cached: job.CachedArticles,
			Message: "all articles already scraped",
		}, nil
	}

	for n, idx := range toScrapeIdx {
		a := resolved[idx]
		task := domain.TaskEnvelope{
			TaskID:    uuid.New().String(),
			JobID:     job.ID,
			ArticleID: a.ID,
			URL:       a.URL,
			Source:    a.Source,
			Category:  a.Category,
			Priority:  a.Priority,
		}
		if err := s.broker.Push(ctx, task); err != nil {
			s.logger.Error("broker push failed mid-admission",
				logger.String("job_id", job.ID),
				logger.Int("emitted", n),
				logger.Int("total_new", len(toScrapeIdx)),
				logger.Error(err),
			)
			return SubmitResult{}, fmt.Errorf("push task: %w", err)
		}
	}

	if _, err := s.jobs.TransitionTo(ctx, job.ID, domain.JobStatusInProgress, domain.NonTerminalJobStatuses()); err != nil {
		return SubmitResult{}, fmt.Errorf("transition job to in_progress: %w", err)
	}
	s.publish(ctx, job.ID, domain.JobStatusInProgress, job.CompletedCount, job.FailedCount, job.TotalArticles)

	return SubmitResult{
		JobID: job.ID, Status: domain.JobStatusInProgress,
		Total: job.TotalArticles, New: job.NewArticles, Cached: job.CachedArticles,
		Message: "job admitted",
	}, nil
}

// cancellableStatuses are the job statuses a cancel request may originate
// from (§4.6 step 1; also the CAS guard for the terminal transition).
var cancellableStatuses = []domain.JobStatus{domain.JobStatusPending, domain.JobStatusInProgress}

// Cancel implements cancel(job_id) (§4.6): it scans the broker's lanes for
// tasks belonging to job_id, removes them, and performs the guarded one-shot
// transition to CANCELLED. A job already terminal (including already
// CANCELLED, per R2) yields domain.ErrJobNotCancellable.
func (s *Service) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusInProgress {
		return nil, domain.ErrJobNotCancellable
	}

	removed, err := s.broker.CancelJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("cancel lane scan: %w", err)
	}
	s.logger.Info("cancelling job",
		logger.String("job_id", jobID),
		logger.Int("tasks_removed", removed),
	)

	ok, err := s.jobs.TransitionTo(ctx, jobID, domain.JobStatusCancelled, cancellableStatuses)
	if err != nil {
		return nil, fmt.Errorf("transition job to cancelled: %w", err)
	}
	if !ok {
		// A worker raced us to a terminal transition between the read above
		// and this CAS; the job is no longer cancellable.
		return nil, domain.ErrJobNotCancellable
	}

	job.Status = domain.JobStatusCancelled
	s.publish(ctx, job.ID, domain.JobStatusCancelled, job.CompletedCount, job.FailedCount, job.TotalArticles)
	return job, nil
}

// resolveArticles materializes a domain.Article for every classified
// request: cached articles get a reference-count bump, reusable-pending
// articles get reset, and fresh articles get created.
func (s *Service) resolveArticles(ctx context.Context, normalized []string, classified []classifiedArticle) ([]*domain.Article, error) {
	resolved := make([]*domain.Article, len(classified))
	for i, c := range classified {
		switch {
		case c.cached:
			if err := s.articles.IncrementReferenceCount(ctx, c.article.ID); err != nil {
				return nil, fmt.Errorf("increment reference count: %w", err)
			}
			resolved[i] = c.article
		case c.article != nil:
			if err := s.articles.ResetToPending(ctx, c.article.ID); err != nil {
				return nil, fmt.Errorf("reset article to pending: %w", err)
			}
			resolved[i] = c.article
		default:
			a, err := s.articles.CreatePending(ctx, normalized[i], c.req.Source, c.req.Category, c.req.Priority)
			if err != nil {
				return nil, fmt.Errorf("create pending article: %w", err)
			}
			resolved[i] = a
		}
	}
	return resolved, nil
}

func (s *Service) publish(ctx context.Context, jobID string, status domain.JobStatus, completed, failed, total int) {
	event := domain.NewJobUpdate(jobID, string(status), completed, failed, total)
	if err := s.broker.Publish(ctx, event); err != nil {
		s.logger.Warn("publish progress event failed", logger.String("job_id", jobID), logger.Error(err))
	}
}

func classify(normalizedURL string, req ArticleRequest, existing map[string]*domain.Article) classifiedArticle {
	a, ok := existing[normalizedURL]
	if !ok {
		return classifiedArticle{req: req}
	}
	if a.IsScraped() {
		return classifiedArticle{req: req, article: a, cached: true}
	}
	return classifiedArticle{req: req, article: a}
}

func validateBatch(batch []ArticleRequest) error {
	if len(batch) == 0 {
		return domain.ErrEmptyBatch
	}
	if len(batch) > MaxBatchSize {
		return domain.ErrBatchTooLarge
	}
	seen := make(map[string]struct{}, len(batch))
	for _, req := range batch {
		if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
			return domain.ErrInvalidURL
		}
		if _, dup := seen[req.URL]; dup {
			return domain.ErrDuplicateURL
		}
		seen[req.URL] = struct{}{}
	}
	return nil
}
