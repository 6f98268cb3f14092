package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
)

// AnswerLogRepository persists answered questions and their feedback.
type AnswerLogRepository interface {
	Create(ctx context.Context, record *domain.AnswerRecord) error
	RecordFeedback(ctx context.Context, organizationID, answerID string, helpful bool) error
}

// AnswerFeedbackService records whether an answer helped the customer.
type AnswerFeedbackService struct {
	repo AnswerLogRepository
}

func NewAnswerFeedbackService(repo AnswerLogRepository) *AnswerFeedbackService {
	return &AnswerFeedbackService{repo: repo}
}

// RecordFeedback marks an answer of the caller's organization as helpful or not.
func (s *AnswerFeedbackService) RecordFeedback(ctx context.Context, caller domain.Caller, answerID string, helpful bool) error {
	ctx, span := telemetry.StartSpan(ctx, "AnswerFeedbackService.RecordFeedback", telemetry.SpanAttributes{
		OrgID:     caller.OrganizationID,
		Operation: "feedback",
	})
	defer span.End()

	if strings.TrimSpace(answerID) == "" {
		return domain.NewDomainError(domain.ErrCodeInvalidInput, "answer ID is required")
	}
	return s.repo.RecordFeedback(ctx, caller.OrganizationID, answerID, helpful)
}
