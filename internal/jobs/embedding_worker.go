package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"go.uber.org/zap"
)

const (
	// MaxRetries is the maximum number of attempts for a backfill job
	MaxRetries = 3

	releaseTimeout = 5 * time.Second
)

// EmbeddingJobRepository defines the interface for embedding job persistence
type EmbeddingJobRepository interface {
	// GetPendingJobs retrieves and claims pending embedding jobs
	GetPendingJobs(ctx context.Context) ([]*domain.EmbeddingJob, error)

	UpdateJobStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error

	IncrementRetries(ctx context.Context, jobID string) error
}

// EmbeddingService recomputes the embedding of one knowledge entry.
type EmbeddingService interface {
	GenerateEmbedding(ctx context.Context, entryID int64) error
}

// EmbeddingWorker processes embedding backfill jobs
type EmbeddingWorker struct {
	repo    EmbeddingJobRepository
	service EmbeddingService
	logger  *zap.Logger
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(repo EmbeddingJobRepository, service EmbeddingService, logger *zap.Logger) *EmbeddingWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingWorker{
		repo:    repo,
		service: service,
		logger:  logger,
	}
}

// ProcessJobs implements the JobProcessor interface. When ctx is cancelled
// mid-batch the jobs not yet attempted are released back to pending.
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info("processing embedding jobs", zap.Int("count", len(jobs)))

	for i, job := range jobs {
		if ctx.Err() != nil {
			w.release(ctx, jobs[i:])
			return ctx.Err()
		}
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("error processing job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	return nil
}

func (w *EmbeddingWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	if job.EntryID <= 0 {
		return w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, "job has no knowledge entry")
	}

	if err := w.service.GenerateEmbedding(ctx, job.EntryID); err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	w.logger.Debug("embedding job completed", zap.String("job_id", job.ID), zap.Int64("entry_id", job.EntryID))
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *EmbeddingWorker) handleJobFailure(ctx context.Context, job *domain.EmbeddingJob, jobErr error) error {
	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	attempt := job.Retries + 1
	if attempt >= MaxRetries {
		w.logger.Warn("embedding job exceeded max retries",
			zap.String("job_id", job.ID),
			zap.Int64("entry_id", job.EntryID),
			zap.Int("max_retries", MaxRetries),
			zap.Error(jobErr),
		)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	w.logger.Info("embedding job will be retried",
		zap.String("job_id", job.ID),
		zap.Int32("attempt", attempt),
		zap.Error(jobErr),
	)
	errMsg := fmt.Sprintf("retry %d: %v", attempt, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}

func (w *EmbeddingWorker) release(ctx context.Context, jobs []*domain.EmbeddingJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for _, job := range jobs {
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, job.Error); err != nil {
			w.logger.Warn("failed to release embedding job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
