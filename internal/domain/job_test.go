package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldnote/scrapesched/internal/domain"
)

func TestNextStatus_PendingMovesToInProgressBeforeAllProcessed(t *testing.T) {
	got := domain.NextStatus(domain.JobStatusPending, 1, 1, 0, 3)
	assert.Equal(t, domain.JobStatusInProgress, got)
}

func TestNextStatus_AllCompletedIsCompleted(t *testing.T) {
	got := domain.NextStatus(domain.JobStatusInProgress, 3, 3, 0, 3)
	assert.Equal(t, domain.JobStatusCompleted, got)
}

func TestNextStatus_AllFailedIsFailed(t *testing.T) {
	got := domain.NextStatus(domain.JobStatusInProgress, 2, 0, 2, 2)
	assert.Equal(t, domain.JobStatusFailed, got)
}

func TestNextStatus_MixedSuccessIsCompleted(t *testing.T) {
	got := domain.NextStatus(domain.JobStatusInProgress, 3, 2, 1, 3)
	assert.Equal(t, domain.JobStatusCompleted, got)
}

func TestNextStatus_CancelledIsAbsorbing(t *testing.T) {
	got := domain.NextStatus(domain.JobStatusCancelled, 3, 3, 0, 3)
	assert.Equal(t, domain.JobStatusCancelled, got)
}

func TestJob_Pending_NeverNegative(t *testing.T) {
	j := &domain.Job{TotalArticles: 2, CompletedCount: 2, FailedCount: 1}
	assert.Equal(t, 0, j.Pending())
}

func TestJob_Pending_Normal(t *testing.T) {
	j := &domain.Job{TotalArticles: 5, CompletedCount: 2, FailedCount: 1}
	assert.Equal(t, 2, j.Pending())
}
