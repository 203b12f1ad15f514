package domain

// TaskEnvelope is the ephemeral record carrying one unit of scrape work
// through the Broker. It lives only in a lane list, never in a store.
type TaskEnvelope struct {
	TaskID     string `json:"task_id"`
	JobID      string `json:"job_id"`
	ArticleID  string `json:"article_id"`
	URL        string `json:"url"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retry_count"`
}

// Valid reports whether the envelope carries the fields required to
// process it. Malformed envelopes are logged and dropped rather than
// crashing a worker (§9).
func (t *TaskEnvelope) Valid() bool {
	return t != nil && t.TaskID != "" && t.JobID != "" && t.ArticleID != "" && t.URL != ""
}
