package domain

import (
	"fmt"
	"time"
)

// EmbeddingJobStatus represents the status of an embedding backfill job
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"
	EmbeddingJobStatusProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"
)

// EmbeddingJob asks the backfill worker to recompute the embedding of an
// entry whose content changed without a fresh embedding.
type EmbeddingJob struct {
	ID          string
	EntryID     int64
	Status      EmbeddingJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewEmbeddingJob creates a new EmbeddingJob instance
func NewEmbeddingJob(
	id string,
	entryID int64,
	status EmbeddingJobStatus,
	retries int32,
	errMsg string,
	createdAt time.Time,
	processedAt *time.Time,
) *EmbeddingJob {
	return &EmbeddingJob{
		ID:          id,
		EntryID:     entryID,
		Status:      status,
		Retries:     retries,
		Error:       errMsg,
		CreatedAt:   createdAt,
		ProcessedAt: processedAt,
	}
}

// ValidateEmbeddingJob validates an EmbeddingJob instance
func ValidateEmbeddingJob(j *EmbeddingJob) error {
	if j == nil {
		return fmt.Errorf("embedding job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("embedding job ID is required")
	}

	if j.EntryID <= 0 {
		return fmt.Errorf("embedding job EntryID is required")
	}

	if !isValidEmbeddingJobStatus(j.Status) {
		return fmt.Errorf("embedding job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("embedding job Retries cannot be negative")
	}

	return nil
}

// isValidEmbeddingJobStatus checks if an EmbeddingJobStatus is valid
func isValidEmbeddingJobStatus(s EmbeddingJobStatus) bool {
	switch s {
	case EmbeddingJobStatusPending, EmbeddingJobStatusProcessing,
		EmbeddingJobStatusCompleted, EmbeddingJobStatusFailed:
		return true
	}
	return false
}
