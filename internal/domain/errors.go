package domain

import "errors"

var (
	// ErrArticleNotFound is returned when a normalized URL has no matching row.
	ErrArticleNotFound = errors.New("article not found")

	// ErrJobNotFound is returned when a job ID has no matching row.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable is returned when cancel is attempted on a job
	// that is already terminal.
	ErrJobNotCancellable = errors.New("job is not cancellable")

	// ErrEmptyBatch is returned when submit is called with zero articles.
	ErrEmptyBatch = errors.New("batch must contain at least one article")

	// ErrBatchTooLarge is returned when submit is called with more than 100 articles.
	ErrBatchTooLarge = errors.New("batch cannot exceed 100 articles")

	// ErrDuplicateURL is returned when a batch contains the same raw URL twice.
	ErrDuplicateURL = errors.New("batch contains a duplicate url")

	// ErrInvalidURL is returned when an article URL is not http(s).
	ErrInvalidURL = errors.New("url must start with http:// or https://")
)
