// Package api implements the REST surface (§6): admission, status, results,
// cancellation, and listing, as a gin router grounded on the teacher's
// internal/api/jobs_handler.go.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldnote/scrapesched/internal/admitter"
	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
)

const (
	defaultListLimit = 50
	defaultListSkip  = 0
)

// Admitter is the subset of admitter.Service the handler depends on.
type Admitter interface {
	Submit(ctx context.Context, batch []admitter.ArticleRequest) (admitter.SubmitResult, error)
	Cancel(ctx context.Context, jobID string) (*domain.Job, error)
}

// JobReader is the subset of jobstore.Store the handler depends on for
// read-only endpoints (status, results, list).
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, statusFilter string, limit, skip int) ([]*domain.Job, error)
}

// ArticleReader is the subset of articlestore.Store the handler depends on
// to materialize the results endpoint.
type ArticleReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Article, error)
}

// JobsHandler serves the /jobs/* REST surface (§6).
type JobsHandler struct {
	admitter Admitter
	jobs     JobReader
	articles ArticleReader
	logger   logger.Logger
}

// NewJobsHandler builds a JobsHandler from its explicit collaborators.
func NewJobsHandler(admitter Admitter, jobs JobReader, articles ArticleReader, log logger.Logger) *JobsHandler {
	return &JobsHandler{admitter: admitter, jobs: jobs, articles: articles, logger: log}
}

// Submit handles POST /jobs/submit.
func (h *JobsHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	batch := make([]admitter.ArticleRequest, len(req.Articles))
	for i, a := range req.Articles {
		batch[i] = admitter.ArticleRequest{URL: a.URL, Source: a.Source, Category: a.Category, Priority: a.Priority}
	}

	result, err := h.admitter.Submit(c.Request.Context(), batch)
	if err != nil {
		h.respondSubmitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submitResponse{
		JobID:   result.JobID,
		Status:  string(result.Status),
		Total:   result.Total,
		New:     result.New,
		Cached:  result.Cached,
		Message: result.Message,
	})
}

func (h *JobsHandler) respondSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrBatchTooLarge),
		errors.Is(err, domain.ErrDuplicateURL),
		errors.Is(err, domain.ErrInvalidURL):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("submit failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to admit batch"})
	}
}

// Status handles GET /jobs/{id}/status.
func (h *JobsHandler) Status(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondJobLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Total:     job.TotalArticles,
		Completed: job.CompletedCount,
		Failed:    job.FailedCount,
		Pending:   job.Pending(),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
}

// Results handles GET /jobs/{id}/results.
func (h *JobsHandler) Results(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := h.jobs.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.respondJobLookupError(c, err)
		return
	}

	articles, err := h.articles.GetByIDs(ctx, job.ArticleIDs)
	if err != nil {
		h.logger.Error("results lookup failed", logger.String("job_id", job.ID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load results"})
		return
	}

	resp := resultsResponse{Total: job.TotalArticles, Status: string(job.Status)}
	for _, a := range articles {
		switch a.Status {
		case domain.ArticleStatusScraped:
			var title, content string
			if a.Title != nil {
				title = *a.Title
			}
			if a.Content != nil {
				content = *a.Content
			}
			resp.Results = append(resp.Results, resultArticle{
				ArticleID: a.ID,
				URL:       a.URL,
				Title:     title,
				Content:   content,
				Cached:    a.CachedRelativeTo(job.CreatedAt),
			})
			resp.Successful++
		case domain.ArticleStatusFailed:
			var errMsg string
			if a.ErrorMessage != nil {
				errMsg = *a.ErrorMessage
			}
			resp.FailedArticles = append(resp.FailedArticles, failedArticle{
				ArticleID:    a.ID,
				URL:          a.URL,
				ErrorMessage: errMsg,
			})
			resp.Failed++
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Cancel handles DELETE /jobs/{id}.
func (h *JobsHandler) Cancel(c *gin.Context) {
	job, err := h.admitter.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		case errors.Is(err, domain.ErrJobNotCancellable):
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("cancel failed", logger.String("job_id", c.Param("id")), logger.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to cancel job"})
		}
		return
	}

	c.JSON(http.StatusOK, cancelResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "job cancelled",
	})
}

// List handles GET /jobs.
func (h *JobsHandler) List(c *gin.Context) {
	statusFilter := c.Query("status_filter")
	limit := parseIntQuery(c, "limit", defaultListLimit)
	skip := parseIntQuery(c, "skip", defaultListSkip)

	jobs, err := h.jobs.List(c.Request.Context(), statusFilter, limit, skip)
	if err != nil {
		h.logger.Error("list jobs failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list jobs"})
		return
	}

	out := make([]statusResponse, len(jobs))
	for i, job := range jobs {
		out[i] = statusResponse{
			JobID:     job.ID,
			Status:    string(job.Status),
			Total:     job.TotalArticles,
			Completed: job.CompletedCount,
			Failed:    job.FailedCount,
			Pending:   job.Pending(),
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *JobsHandler) respondJobLookupError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	h.logger.Error("job lookup failed", logger.Error(err))
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load job"})
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
