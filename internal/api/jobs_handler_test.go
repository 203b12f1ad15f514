package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldnote/scrapesched/internal/admitter"
	"github.com/fieldnote/scrapesched/internal/api"
	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
)

type fakeAdmitter struct {
	submitResult admitter.SubmitResult
	submitErr    error
	cancelJob    *domain.Job
	cancelErr    error
}

func (f *fakeAdmitter) Submit(_ context.Context, _ []admitter.ArticleRequest) (admitter.SubmitResult, error) {
	return f.submitResult, f.submitErr
}

func (f *fakeAdmitter) Cancel(_ context.Context, _ string) (*domain.Job, error) {
	return f.cancelJob, f.cancelErr
}

type fakeJobReader struct {
	job     *domain.Job
	getErr  error
	listOut []*domain.Job
}

func (f *fakeJobReader) GetByID(_ context.Context, _ string) (*domain.Job, error) {
	return f.job, f.getErr
}

func (f *fakeJobReader) List(_ context.Context, _ string, _, _ int) ([]*domain.Job, error) {
	return f.listOut, nil
}

type fakeArticleReader struct {
	articles []*domain.Article
}

func (f *fakeArticleReader) GetByIDs(_ context.Context, _ []string) ([]*domain.Article, error) {
	return f.articles, nil
}

func TestSubmit_ReturnsCreated(t *testing.T) {
	adm := &fakeAdmitter{submitResult: admitter.SubmitResult{
		JobID: "j1", Status: domain.JobStatusInProgress, Total: 2, New: 1, Cached: 1,
	}}
	handler := api.NewJobsHandler(adm, &fakeJobReader{}, &fakeArticleReader{}, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	body := `{"articles":[{"url":"https://x.com/a"},{"url":"https://x.com/b"}]}`
	req := httptest.NewRequest(http.MethodPost, "/jobs/submit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "j1", resp["job_id"])
}

func TestSubmit_RejectsEmptyBatchWith422(t *testing.T) {
	adm := &fakeAdmitter{submitErr: domain.ErrEmptyBatch}
	handler := api.NewJobsHandler(adm, &fakeJobReader{}, &fakeArticleReader{}, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/jobs/submit", bytes.NewBufferString(`{"articles":[{"url":"https://x.com/a"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStatus_ReturnsPendingComputedField(t *testing.T) {
	jobs := &fakeJobReader{job: &domain.Job{
		ID: "j1", Status: domain.JobStatusInProgress, TotalArticles: 5, CompletedCount: 2, FailedCount: 1,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}}
	handler := api.NewJobsHandler(&fakeAdmitter{}, jobs, &fakeArticleReader{}, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 2, resp["pending"], 0)
}

func TestStatus_UnknownJobReturns404(t *testing.T) {
	jobs := &fakeJobReader{getErr: domain.ErrJobNotFound}
	handler := api.NewJobsHandler(&fakeAdmitter{}, jobs, &fakeArticleReader{}, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResults_SeparatesSuccessesFromFailures(t *testing.T) {
	createdAt := time.Now()
	scrapedBefore := createdAt.Add(-time.Hour)
	scrapedAfter := createdAt.Add(time.Hour)
	title, content, errMsg := "T", "C", "boom"

	jobs := &fakeJobReader{job: &domain.Job{
		ID: "j1", Status: domain.JobStatusCompleted, TotalArticles: 3,
		ArticleIDs: []string{"a1", "a2", "a3"}, CreatedAt: createdAt,
	}}
	articles := &fakeArticleReader{articles: []*domain.Article{
		{ID: "a1", URL: "https://x.com/a1", Status: domain.ArticleStatusScraped, Title: &title, Content: &content, ScrapedAt: &scrapedBefore},
		{ID: "a2", URL: "https://x.com/a2", Status: domain.ArticleStatusScraped, Title: &title, Content: &content, ScrapedAt: &scrapedAfter},
		{ID: "a3", URL: "https://x.com/a3", Status: domain.ArticleStatusFailed, ErrorMessage: &errMsg},
	}}
	handler := api.NewJobsHandler(&fakeAdmitter{}, jobs, articles, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/results", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 2, resp["successful"], 0)
	assert.InDelta(t, 1, resp["failed"], 0)
	results := resp["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, true, first["cached"])
	second := results[1].(map[string]any)
	assert.Equal(t, false, second["cached"])
}

func TestCancel_NotCancellableReturns400(t *testing.T) {
	adm := &fakeAdmitter{cancelErr: domain.ErrJobNotCancellable}
	handler := api.NewJobsHandler(adm, &fakeJobReader{}, &fakeArticleReader{}, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	req := httptest.NewRequest(http.MethodDelete, "/jobs/j1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel_Success(t *testing.T) {
	adm := &fakeAdmitter{cancelJob: &domain.Job{ID: "j1", Status: domain.JobStatusCancelled}}
	handler := api.NewJobsHandler(adm, &fakeJobReader{}, &fakeArticleReader{}, logger.NewNop())
	router := api.NewRouter(handler, logger.NewNop())

	req := httptest.NewRequest(http.MethodDelete, "/jobs/j1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELLED", resp["status"])
}
