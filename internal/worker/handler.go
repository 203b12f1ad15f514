package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/scraper"
)

// JobReader is the subset of jobstore.Store a TaskHandler needs to load a
// job and apply its post-increment lifecycle transition.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	IncrementCompleted(ctx context.Context, id string) (*domain.Job, error)
	IncrementFailed(ctx context.Context, id string) (*domain.Job, error)
	TransitionTo(ctx context.Context, id string, newStatus domain.JobStatus, from []domain.JobStatus) (bool, error)
}

// ArticleWriter is the subset of articlestore.Store a TaskHandler needs to
// drive an article through SCRAPING -> {SCRAPED, PENDING (retry), FAILED}.
type ArticleWriter interface {
	MarkScraping(ctx context.Context, id string) error
	MarkScraped(ctx context.Context, id, title, content string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	IncrementRetryCount(ctx context.Context, id string) error
}

// TaskBroker is the subset of broker.Broker a TaskHandler needs to
// re-schedule a retry and publish progress events.
type TaskBroker interface {
	PushRetry(ctx context.Context, task domain.TaskEnvelope) error
	Publish(ctx context.Context, event domain.ProgressEvent) error
}

// Scraper is the external scrape collaborator (§6): a pure function from
// URL to a classified result.
type Scraper interface {
	Scrape(ctx context.Context, url string) scraper.Result
}

// Handler implements process(task) (§4.4): the algorithm a Worker's
// TaskHandler runs for every pulled task envelope.
type Handler struct {
	jobs     JobReader
	articles ArticleWriter
	broker   TaskBroker
	scraper  Scraper
	cfg      Config
	logger   logger.Logger
}

// NewHandler builds a Handler from its explicit collaborators.
func NewHandler(jobs JobReader, articles ArticleWriter, brk TaskBroker, scraper Scraper, cfg Config, log logger.Logger) *Handler {
	return &Handler{jobs: jobs, articles: articles, broker: brk, scraper: scraper, cfg: cfg, logger: log}
}

// Handle implements the TaskHandler signature consumed by Pool/Worker.
func (h *Handler) Handle(ctx context.Context, task *domain.TaskEnvelope) error {
	job, err := h.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			h.logger.Warn("discarding task for unknown job", logger.String("job_id", task.JobID), logger.String("task_id", task.TaskID))
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status == domain.JobStatusCancelled {
		h.logger.Debug("discarding task for cancelled job", logger.String("job_id", task.JobID), logger.String("task_id", task.TaskID))
		return nil
	}

	if err := h.articles.MarkScraping(ctx, task.ArticleID); err != nil {
		return fmt.Errorf("mark article scraping: %w", err)
	}

	scrapeCtx, cancel := context.WithTimeout(ctx, h.cfg.JobTimeout)
	result := h.scraper.Scrape(scrapeCtx, task.URL)
	cancel()

	if result.Success {
		return h.onSuccess(ctx, task, result)
	}
	return h.onFailure(ctx, task, result)
}

func (h *Handler) onSuccess(ctx context.Context, task *domain.TaskEnvelope, result scraper.Result) error {
	if err := h.articles.MarkScraped(ctx, task.ArticleID, result.Title, result.Content); err != nil {
		return fmt.Errorf("mark article scraped: %w", err)
	}

	job, err := h.jobs.IncrementCompleted(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("increment completed count: %w", err)
	}
	return h.runCompletionCheck(ctx, task.JobID, job)
}

func (h *Handler) onFailure(ctx context.Context, task *domain.TaskEnvelope, result scraper.Result) error {
	if task.RetryCount < h.cfg.MaxRetryAttempts {
		delay := h.cfg.RetryDelay(task.RetryCount)
		h.logger.Debug("scheduling retry",
			logger.String("job_id", task.JobID),
			logger.String("task_id", task.TaskID),
			logger.Int("retry_count", task.RetryCount),
			logger.Duration("delay", delay),
			logger.String("error", result.Error),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := h.articles.IncrementRetryCount(ctx, task.ArticleID); err != nil {
			return fmt.Errorf("increment retry count: %w", err)
		}

		retryTask := *task
		retryTask.RetryCount++
		if err := h.broker.PushRetry(ctx, retryTask); err != nil {
			return fmt.Errorf("push retry task: %w", err)
		}
		return nil
	}

	if err := h.articles.MarkFailed(ctx, task.ArticleID, result.Error); err != nil {
		return fmt.Errorf("mark article failed: %w", err)
	}

	job, err := h.jobs.IncrementFailed(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("increment failed count: %w", err)
	}
	return h.runCompletionCheck(ctx, task.JobID, job)
}

// runCompletionCheck applies §4.3's completion check against the job's
// post-increment counters and publishes the resulting progress event.
func (h *Handler) runCompletionCheck(ctx context.Context, jobID string, job *domain.Job) error {
	next := domain.NextStatus(job.Status, job.Processed(), job.CompletedCount, job.FailedCount, job.TotalArticles)

	if next != job.Status {
		if _, err := h.jobs.TransitionTo(ctx, jobID, next, []domain.JobStatus{job.Status}); err != nil {
			return fmt.Errorf("transition job to %s: %w", next, err)
		}
	}

	event := domain.NewJobUpdate(jobID, string(next), job.CompletedCount, job.FailedCount, job.TotalArticles)
	if err := h.broker.Publish(ctx, event); err != nil {
		h.logger.Warn("publish progress event failed", logger.String("job_id", jobID), logger.Error(err))
	}
	return nil
}
