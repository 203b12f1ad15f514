package api

import "time"

// submitArticleRequest is one article in an incoming POST /jobs/submit batch.
type submitArticleRequest struct {
	URL      string `json:"url" binding:"required"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

// submitRequest is the POST /jobs/submit request body (§6).
type submitRequest struct {
	Articles []submitArticleRequest `json:"articles" binding:"required,min=1"`
}

// submitResponse mirrors the POST /jobs/submit success shape (§6).
type submitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Total   int    `json:"total"`
	New     int    `json:"new"`
	Cached  int    `json:"cached"`
	Message string `json:"message"`
}

// statusResponse mirrors GET /jobs/{id}/status (§6).
type statusResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// resultArticle is one entry in results.results[] (§6).
type resultArticle struct {
	ArticleID string `json:"article_id"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	Cached    bool   `json:"cached"`
}

// failedArticle is one entry in results.failed_articles[] (§6).
type failedArticle struct {
	ArticleID    string `json:"article_id"`
	URL          string `json:"url"`
	ErrorMessage string `json:"error_message"`
}

// resultsResponse mirrors GET /jobs/{id}/results (§6).
type resultsResponse struct {
	Results        []resultArticle `json:"results"`
	FailedArticles []failedArticle `json:"failed_articles"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Total          int             `json:"total"`
	Status         string          `json:"status"`
}

// cancelResponse mirrors the DELETE /jobs/{id} success shape (§6).
type cancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// errorResponse is the uniform error body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
