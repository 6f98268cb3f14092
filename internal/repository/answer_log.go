package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerLogRepository stores answered questions for the feedback loop.
type AnswerLogRepository struct {
	pool *pgxpool.Pool
}

func NewAnswerLogRepository(pool *pgxpool.Pool) *AnswerLogRepository {
	return &AnswerLogRepository{pool: pool}
}

func (r *AnswerLogRepository) Create(ctx context.Context, record *domain.AnswerRecord) error {
	cited := record.CitedEntryIDs
	if cited == nil {
		cited = []int64{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answer_logs (id, organization_id, case_id, question, answer_text, cited_entry_ids, grounded, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID,
		nullableString(record.ContextScope.OrganizationID),
		nullableString(record.ContextScope.CaseID),
		record.Question,
		record.AnswerText,
		cited,
		record.Grounded,
		record.DurationMS,
		record.CreatedAt,
	)
	return err
}

func (r *AnswerLogRepository) RecordFeedback(ctx context.Context, organizationID, answerID string, helpful bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE answer_logs
		 SET helpful = $1, feedback_at = $2
		 WHERE id = $3 AND organization_id IS NOT DISTINCT FROM $4`,
		helpful,
		time.Now().UTC(),
		answerID,
		nullableString(organizationID),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAnswerNotFound
	}
	return nil
}
