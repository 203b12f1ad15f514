package worker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/scraper"
	"github.com/fieldnote/scrapesched/internal/scraper/mocks"
	"github.com/fieldnote/scrapesched/internal/worker"
)

type fakeJobReader struct {
	job         *domain.Job
	transitions []domain.JobStatus
}

func (f *fakeJobReader) GetByID(_ context.Context, id string) (*domain.Job, error) {
	if f.job == nil {
		return nil, domain.ErrJobNotFound
	}
	return f.job, nil
}

func (f *fakeJobReader) IncrementCompleted(_ context.Context, id string) (*domain.Job, error) {
	f.job.CompletedCount++
	return f.job, nil
}

func (f *fakeJobReader) IncrementFailed(_ context.Context, id string) (*domain.Job, error) {
	f.job.FailedCount++
	return f.job, nil
}

func (f *fakeJobReader) TransitionTo(_ context.Context, id string, newStatus domain.JobStatus, from []domain.JobStatus) (bool, error) {
	for _, s := range from {
		if f.job.Status == s {
			f.job.Status = newStatus
			f.transitions = append(f.transitions, newStatus)
			return true, nil
		}
	}
	return false, nil
}

type fakeArticleWriter struct {
	scrapingIDs []string
	scrapedIDs  []string
	failedIDs   []string
	retryIDs    []string
}

func (f *fakeArticleWriter) MarkScraping(_ context.Context, id string) error {
	f.scrapingIDs = append(f.scrapingIDs, id)
	return nil
}
func (f *fakeArticleWriter) MarkScraped(_ context.Context, id, title, content string) error {
	f.scrapedIDs = append(f.scrapedIDs, id)
	return nil
}
func (f *fakeArticleWriter) MarkFailed(_ context.Context, id, errMsg string) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}
func (f *fakeArticleWriter) IncrementRetryCount(_ context.Context, id string) error {
	f.retryIDs = append(f.retryIDs, id)
	return nil
}

type fakeTaskBroker struct {
	retried   []domain.TaskEnvelope
	published []domain.ProgressEvent
}

func (f *fakeTaskBroker) PushRetry(_ context.Context, task domain.TaskEnvelope) error {
	f.retried = append(f.retried, task)
	return nil
}
func (f *fakeTaskBroker) Publish(_ context.Context, event domain.ProgressEvent) error {
	f.published = append(f.published, event)
	return nil
}

// newMockScraper builds a go.uber.org/mock MockScraper stubbed to return
// result for any call, matching the teacher's EXPECT()-then-inject idiom
// (internal/crawler/events/eventbus_test.go) rather than a hand-rolled fake.
func newMockScraper(t *testing.T, result scraper.Result) *mocks.MockScraper {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	m := mocks.NewMockScraper(ctrl)
	m.EXPECT().Scrape(gomock.Any(), gomock.Any()).Return(result).AnyTimes()
	return m
}

func testConfig() worker.Config {
	cfg := worker.DefaultConfig()
	cfg.RetryBaseDelay = 0
	cfg.RetryMaxDelay = 0
	cfg.JobTimeout = 0
	return cfg
}

func TestHandler_SuccessCompletesJob(t *testing.T) {
	jobs := &fakeJobReader{job: &domain.Job{ID: "j1", Status: domain.JobStatusInProgress, TotalArticles: 1}}
	articles := &fakeArticleWriter{}
	brk := &fakeTaskBroker{}
	scr := newMockScraper(t, scraper.Result{Success: true, Title: "T", Content: "C"})

	h := worker.NewHandler(jobs, articles, brk, scr, testConfig(), logger.NewNop())

	task := &domain.TaskEnvelope{TaskID: "t1", JobID: "j1", ArticleID: "a1", URL: "https://x/y"}
	err := h.Handle(context.Background(), task)
	require.NoError(t, err)

	assert.Contains(t, articles.scrapedIDs, "a1")
	assert.Equal(t, domain.JobStatusCompleted, jobs.job.Status)
	require.Len(t, brk.published, 1)
	assert.Equal(t, "COMPLETED", brk.published[0].Status)
}

func TestHandler_FailureRetries(t *testing.T) {
	jobs := &fakeJobReader{job: &domain.Job{ID: "j1", Status: domain.JobStatusInProgress, TotalArticles: 1}}
	articles := &fakeArticleWriter{}
	brk := &fakeTaskBroker{}
	scr := newMockScraper(t, scraper.Result{Success: false, Error: "server error (500)"})

	cfg := testConfig()
	cfg.MaxRetryAttempts = 3
	h := worker.NewHandler(jobs, articles, brk, scr, cfg, logger.NewNop())

	task := &domain.TaskEnvelope{TaskID: "t1", JobID: "j1", ArticleID: "a1", URL: "https://x/y", RetryCount: 0}
	err := h.Handle(context.Background(), task)
	require.NoError(t, err)

	require.Len(t, brk.retried, 1)
	assert.Equal(t, 1, brk.retried[0].RetryCount)
	assert.Contains(t, articles.retryIDs, "a1")
	assert.Empty(t, articles.failedIDs)
}

func TestHandler_RetryExhaustionFails(t *testing.T) {
	jobs := &fakeJobReader{job: &domain.Job{ID: "j1", Status: domain.JobStatusInProgress, TotalArticles: 1}}
	articles := &fakeArticleWriter{}
	brk := &fakeTaskBroker{}
	scr := newMockScraper(t, scraper.Result{Success: false, Error: "not found (404)"})

	cfg := testConfig()
	cfg.MaxRetryAttempts = 2
	h := worker.NewHandler(jobs, articles, brk, scr, cfg, logger.NewNop())

	task := &domain.TaskEnvelope{TaskID: "t1", JobID: "j1", ArticleID: "a1", URL: "https://x/y", RetryCount: 2}
	err := h.Handle(context.Background(), task)
	require.NoError(t, err)

	assert.Empty(t, brk.retried)
	assert.Contains(t, articles.failedIDs, "a1")
	assert.Equal(t, domain.JobStatusFailed, jobs.job.Status)
}

func TestHandler_DiscardsTaskForCancelledJob(t *testing.T) {
	jobs := &fakeJobReader{job: &domain.Job{ID: "j1", Status: domain.JobStatusCancelled, TotalArticles: 1}}
	articles := &fakeArticleWriter{}
	brk := &fakeTaskBroker{}
	scr := newMockScraper(t, scraper.Result{})

	h := worker.NewHandler(jobs, articles, brk, scr, testConfig(), logger.NewNop())

	task := &domain.TaskEnvelope{TaskID: "t1", JobID: "j1", ArticleID: "a1", URL: "https://x/y"}
	err := h.Handle(context.Background(), task)
	require.NoError(t, err)

	assert.Empty(t, articles.scrapingIDs)
	assert.Empty(t, brk.published)
}
