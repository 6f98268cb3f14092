package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/zenithvault/internal/api"
	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/go-chi/chi/v5"
)

type AnswerService interface {
	Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerOutput, error)
}

type RetrievalService interface {
	Retrieve(ctx context.Context, input service.RetrieveInput) ([]domain.RetrievalResult, error)
}

type FeedbackService interface {
	RecordFeedback(ctx context.Context, caller domain.Caller, answerID string, helpful bool) error
}

type AnswerHandler struct {
	answers   AnswerService
	retriever RetrievalService
	feedback  FeedbackService
}

func NewAnswerHandler(answers AnswerService, retriever RetrievalService, feedback FeedbackService) *AnswerHandler {
	return &AnswerHandler{answers: answers, retriever: retriever, feedback: feedback}
}

type AnswerRequest struct {
	Question    string              `json:"question"`
	CaseContext *CaseContextRequest `json:"case_context,omitempty"`
}

type CaseContextRequest struct {
	CaseID      string `json:"case_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

type RetrieveRequest struct {
	Question  string  `json:"question"`
	Limit     int     `json:"limit" validate:"gte=0,lte=50"`
	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
}

type FeedbackRequest struct {
	Helpful *bool `json:"helpful" validate:"required"`
}

type CitationResponse struct {
	ID         int64   `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

type AnswerResponse struct {
	ResponseText string             `json:"response_text"`
	Sources      []int64            `json:"sources"`
	Citations    []CitationResponse `json:"citations"`
	Grounded     bool               `json:"grounded"`
	AnswerID     string             `json:"answer_id,omitempty"`
}

type RetrievalResultResponse struct {
	Entry      *KnowledgeResponse `json:"entry"`
	Similarity float64            `json:"similarity"`
}

func citationsToResponse(results []domain.RetrievalResult) []CitationResponse {
	out := make([]CitationResponse, 0, len(results))
	for _, r := range results {
		if r.Entry == nil {
			continue
		}
		out = append(out, CitationResponse{
			ID:         r.Entry.ID,
			Type:       string(r.Entry.Type),
			Title:      r.Entry.Title,
			Similarity: r.Similarity,
		})
	}
	return out
}

// Answer answers a question grounded on the caller's knowledge base.
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	input := service.AnswerInput{
		Question:       req.Question,
		OrganizationID: caller.OrganizationID,
	}
	if req.CaseContext != nil {
		input.CaseContext = &domain.CaseContext{
			CaseID:      req.CaseContext.CaseID,
			Subject:     req.CaseContext.Subject,
			Description: req.CaseContext.Description,
		}
	}

	out, err := h.answers.Answer(r.Context(), input)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	sources := out.Sources
	if sources == nil {
		sources = []int64{}
	}
	api.Success(w, http.StatusOK, AnswerResponse{
		ResponseText: out.ResponseText,
		Sources:      sources,
		Citations:    citationsToResponse(out.Citations),
		Grounded:     out.Grounded(),
		AnswerID:     out.AnswerID,
	})
}

// Retrieve returns the entries that would ground an answer to the question.
func (h *AnswerHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req RetrieveRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	results, err := h.retriever.Retrieve(r.Context(), service.RetrieveInput{
		Question:       req.Question,
		OrganizationID: caller.OrganizationID,
		Limit:          req.Limit,
		Threshold:      req.Threshold,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]RetrievalResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, RetrievalResultResponse{
			Entry:      knowledgeToResponse(res.Entry),
			Similarity: res.Similarity,
		})
	}
	api.Success(w, http.StatusOK, out)
}

// Feedback records whether an answer helped.
func (h *AnswerHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	if err := h.feedback.RecordFeedback(r.Context(), caller, chi.URLParam(r, "id"), *req.Helpful); err != nil {
		api.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
