package domain

// ProgressEvent is published on the `job_updates` channel and fanned out to
// registered observers (§4.7).
type ProgressEvent struct {
	Type        string  `json:"type"`
	JobID       string  `json:"job_id"`
	ArticleID   *string `json:"article_id,omitempty"`
	Status      string  `json:"status"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Total       int     `json:"total"`
}

// EventTypeJobUpdate is the only event type ever published on job_updates.
const EventTypeJobUpdate = "job_update"

// NewJobUpdate builds a job-level progress event (no article scope).
func NewJobUpdate(jobID, status string, completed, failed, total int) ProgressEvent {
	return ProgressEvent{
		Type:      EventTypeJobUpdate,
		JobID:     jobID,
		Status:    status,
		Completed: completed,
		Failed:    failed,
		Total:     total,
	}
}

// WithArticle returns a copy of e scoped to a specific article.
func (e ProgressEvent) WithArticle(articleID string) ProgressEvent {
	e.ArticleID = &articleID
	return e
}
