package domain

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether s is one of the job's absorbing states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// NonTerminalJobStatuses lists the statuses a guarded terminal transition
// may originate from (the CAS guard clause).
func NonTerminalJobStatuses() []JobStatus {
	return []JobStatus{JobStatusPending, JobStatusInProgress}
}

// Job is the durable aggregate counter record for one admitted batch.
type Job struct {
	ID              string     `db:"id"               json:"id"`
	Status          JobStatus  `db:"status"            json:"status"`
	TotalArticles   int        `db:"total_articles"   json:"total_articles"`
	NewArticles     int        `db:"new_articles"     json:"new_articles"`
	CachedArticles  int        `db:"cached_articles"  json:"cached_articles"`
	CompletedCount  int        `db:"completed_count"  json:"completed_count"`
	FailedCount     int        `db:"failed_count"     json:"failed_count"`
	ArticleIDs      []string   `db:"article_ids"      json:"article_ids"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
	CompletedAt     *time.Time `db:"completed_at"      json:"completed_at,omitempty"`
}

// Pending returns max(0, total - completed - failed), the REST `status`
// endpoint's `pending` field.
func (j *Job) Pending() int {
	p := j.TotalArticles - j.CompletedCount - j.FailedCount
	if p < 0 {
		return 0
	}
	return p
}

// Processed returns the count of articles that have reached a terminal
// per-article outcome for this job.
func (j *Job) Processed() int {
	return j.CompletedCount + j.FailedCount
}

// NextStatus computes the lifecycle transition implied by the current
// counters, per §4.3's completion check. It does not mutate j; callers
// apply the result via a guarded store transition.
//
// current is the job's status immediately before this check runs; it is
// needed because CANCELLED is absorbing and must never be overridden here.
func NextStatus(current JobStatus, processed, completed, failed, total int) JobStatus {
	if current == JobStatusCancelled {
		return JobStatusCancelled
	}
	if processed < total {
		if current == JobStatusPending {
			return JobStatusInProgress
		}
		return current
	}
	if completed == 0 && failed > 0 {
		return JobStatusFailed
	}
	return JobStatusCompleted
}
