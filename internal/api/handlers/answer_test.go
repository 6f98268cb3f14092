package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerOutput), args.Error(1)
}

type MockRetrievalService struct {
	mock.Mock
}

func (m *MockRetrievalService) Retrieve(ctx context.Context, input service.RetrieveInput) ([]domain.RetrievalResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievalResult), args.Error(1)
}

type MockFeedbackService struct {
	mock.Mock
}

func (m *MockFeedbackService) RecordFeedback(ctx context.Context, caller domain.Caller, answerID string, helpful bool) error {
	args := m.Called(ctx, caller, answerID, helpful)
	return args.Error(0)
}

func newAnswerHandler() (*AnswerHandler, *MockAnswerService, *MockRetrievalService, *MockFeedbackService) {
	answers := new(MockAnswerService)
	retriever := new(MockRetrievalService)
	feedback := new(MockFeedbackService)
	return NewAnswerHandler(answers, retriever, feedback), answers, retriever, feedback
}

func TestAnswerHandler_Answer_Grounded(t *testing.T) {
	handler, answers, _, _ := newAnswerHandler()

	entry := newTestEntry(12, "")
	answers.On("Answer", mock.Anything, service.AnswerInput{
		Question:       "I forgot my password",
		OrganizationID: "org-1",
		CaseContext:    &domain.CaseContext{CaseID: "case-9", Subject: "Login", Description: "Customer is locked out"},
	}).Return(&service.AnswerOutput{
		ResponseText: "Use the reset link on the sign-in page.",
		Sources:      []int64{12},
		Citations:    []domain.RetrievalResult{{Entry: entry, Similarity: 0.91}},
		AnswerID:     "answer-1",
	}, nil)

	body := `{"question":"I forgot my password","case_context":{"case_id":"case-9","subject":"Login","description":"Customer is locked out"}}`
	w := httptest.NewRecorder()

	handler.Answer(w, requestAs(orgMember, http.MethodPost, "/answer", body, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{
		"response_text":"Use the reset link on the sign-in page.",
		"sources":[12],
		"citations":[{"id":12,"type":"faq","title":"How do I reset my password?","similarity":0.91}],
		"grounded":true,
		"answer_id":"answer-1"
	}}`, w.Body.String())
	answers.AssertExpectations(t)
}

func TestAnswerHandler_Answer_UngroundedHasEmptySources(t *testing.T) {
	handler, answers, _, _ := newAnswerHandler()

	answers.On("Answer", mock.Anything, mock.MatchedBy(func(in service.AnswerInput) bool {
		return in.CaseContext == nil && in.OrganizationID == "org-1"
	})).Return(&service.AnswerOutput{ResponseText: "The knowledge base has no answer.", Sources: []int64{}}, nil)

	w := httptest.NewRecorder()
	handler.Answer(w, requestAs(orgMember, http.MethodPost, "/answer", `{"question":"What is the meaning of life?"}`, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, []interface{}{}, data["sources"])
	assert.Equal(t, []interface{}{}, data["citations"])
	assert.Equal(t, false, data["grounded"])
	assert.NotContains(t, data, "answer_id")
}

func TestAnswerHandler_Answer_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"empty question", &domain.PipelineError{Stage: domain.StageIdle, Err: domain.ErrEmptyQuestion}, http.StatusBadRequest, false},
		{"embedding unavailable", &domain.PipelineError{Stage: domain.StageEmbedding, Err: domain.ErrEmbeddingUnavailable}, http.StatusServiceUnavailable, true},
		{"generation unavailable", &domain.PipelineError{Stage: domain.StageGenerating, Err: domain.ErrGenerationUnavailable}, http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, answers, _, _ := newAnswerHandler()
			answers.On("Answer", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := httptest.NewRecorder()
			handler.Answer(w, requestAs(orgMember, http.MethodPost, "/answer", `{"question":" "}`, nil))

			assert.Equal(t, tt.status, w.Code)
			if tt.retryable {
				assert.Contains(t, w.Body.String(), `"retryable":true`)
			} else {
				assert.NotContains(t, w.Body.String(), "retryable")
			}
		})
	}
}

func TestAnswerHandler_Retrieve(t *testing.T) {
	handler, _, retriever, _ := newAnswerHandler()

	retriever.On("Retrieve", mock.Anything, service.RetrieveInput{
		Question:       "reset password",
		OrganizationID: "org-1",
		Limit:          3,
		Threshold:      0.5,
	}).Return([]domain.RetrievalResult{
		{Entry: newTestEntry(12, ""), Similarity: 0.9},
		{Entry: newTestEntry(4, "org-1"), Similarity: 0.8},
	}, nil)

	w := httptest.NewRecorder()
	handler.Retrieve(w, requestAs(orgMember, http.MethodPost, "/retrieve", `{"question":"reset password","limit":3,"threshold":0.5}`, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"similarity":0.9`)
	assert.Contains(t, w.Body.String(), `"id":4`)
	retriever.AssertExpectations(t)
}

func TestAnswerHandler_Retrieve_RejectsOutOfRangeParameters(t *testing.T) {
	handler, _, retriever, _ := newAnswerHandler()

	for _, body := range []string{
		`{"question":"q","threshold":1.5}`,
		`{"question":"q","limit":-1}`,
		`{"question":"q","limit":500}`,
	} {
		w := httptest.NewRecorder()
		handler.Retrieve(w, requestAs(orgMember, http.MethodPost, "/retrieve", body, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything)
}

func TestAnswerHandler_Feedback(t *testing.T) {
	handler, _, _, feedback := newAnswerHandler()

	feedback.On("RecordFeedback", mock.Anything, orgMember, "answer-1", false).Return(nil)
	feedback.On("RecordFeedback", mock.Anything, orgMember, "answer-2", true).Return(domain.ErrAnswerNotFound)

	w := httptest.NewRecorder()
	handler.Feedback(w, requestAs(orgMember, http.MethodPost, "/answers/answer-1/feedback", `{"helpful":false}`, map[string]string{"id": "answer-1"}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.Feedback(w, requestAs(orgMember, http.MethodPost, "/answers/answer-2/feedback", `{"helpful":true}`, map[string]string{"id": "answer-2"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.Feedback(w, requestAs(orgMember, http.MethodPost, "/answers/answer-1/feedback", `{}`, map[string]string{"id": "answer-1"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "helpful is required")

	feedback.AssertExpectations(t)
}
