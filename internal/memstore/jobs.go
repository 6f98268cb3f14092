package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
)

const claimBatch = 100

type EmbeddingJobRepository struct {
	handle
}

func (r *EmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	if err := domain.ValidateEmbeddingJob(job); err != nil {
		return domain.ErrInvalidInput.WithCause(err)
	}
	defer r.lock()()

	if _, ok := r.s.entries[job.EntryID]; !ok {
		return domain.ErrKnowledgeNotFound
	}
	r.s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *EmbeddingJobRepository) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	defer r.rlock()()

	j, ok := r.s.jobs[id]
	if !ok {
		return nil, ErrEmbeddingJobNotFound
	}
	return cloneJob(j), nil
}

// GetPendingJobs moves the oldest pending jobs to processing and returns them.
func (r *EmbeddingJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.EmbeddingJob, error) {
	defer r.lock()()

	pending := []*domain.EmbeddingJob{}
	for _, j := range r.s.jobs {
		if j.Status == domain.EmbeddingJobStatusPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(i, k int) bool {
		return pending[i].CreatedAt.Before(pending[k].CreatedAt)
	})
	if len(pending) > claimBatch {
		pending = pending[:claimBatch]
	}

	claimed := make([]*domain.EmbeddingJob, 0, len(pending))
	for _, j := range pending {
		j.Status = domain.EmbeddingJobStatusProcessing
		j.ProcessedAt = nil
		claimed = append(claimed, cloneJob(j))
	}
	return claimed, nil
}

func (r *EmbeddingJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error {
	defer r.lock()()

	j, ok := r.s.jobs[jobID]
	if !ok {
		return ErrEmbeddingJobNotFound
	}
	j.Status = status
	j.Error = errMsg
	j.ProcessedAt = nil
	if status == domain.EmbeddingJobStatusCompleted || status == domain.EmbeddingJobStatusFailed {
		now := time.Now().UTC()
		j.ProcessedAt = &now
	}
	return nil
}

func (r *EmbeddingJobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	defer r.lock()()

	j, ok := r.s.jobs[jobID]
	if !ok {
		return ErrEmbeddingJobNotFound
	}
	j.Retries++
	return nil
}

func cloneJob(j *domain.EmbeddingJob) *domain.EmbeddingJob {
	c := *j
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
