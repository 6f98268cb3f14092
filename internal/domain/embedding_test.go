package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingJob(t *testing.T) {
	now := time.Now()
	job := NewEmbeddingJob("job1", 42, EmbeddingJobStatusPending, 0, "", now, nil)

	assert.Equal(t, "job1", job.ID)
	assert.Equal(t, int64(42), job.EntryID)
	assert.Equal(t, EmbeddingJobStatusPending, job.Status)
	assert.Equal(t, int32(0), job.Retries)
	assert.Empty(t, job.Error)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.ProcessedAt)
}

func TestValidateEmbeddingJob(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		job     *EmbeddingJob
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid job",
			job:  &EmbeddingJob{ID: "job1", EntryID: 1, Status: EmbeddingJobStatusPending, CreatedAt: now},
		},
		{
			name:    "missing ID",
			job:     &EmbeddingJob{EntryID: 1, Status: EmbeddingJobStatusPending, CreatedAt: now},
			wantErr: true,
			errMsg:  "ID",
		},
		{
			name:    "missing EntryID",
			job:     &EmbeddingJob{ID: "job1", Status: EmbeddingJobStatusPending, CreatedAt: now},
			wantErr: true,
			errMsg:  "EntryID",
		},
		{
			name:    "invalid Status",
			job:     &EmbeddingJob{ID: "job1", EntryID: 1, Status: EmbeddingJobStatus("queued"), CreatedAt: now},
			wantErr: true,
			errMsg:  "Status",
		},
		{
			name:    "negative Retries",
			job:     &EmbeddingJob{ID: "job1", EntryID: 1, Status: EmbeddingJobStatusFailed, Retries: -1, CreatedAt: now},
			wantErr: true,
			errMsg:  "Retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmbeddingJob(tt.job)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
