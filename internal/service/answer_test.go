package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerationProvider struct {
	mock.Mock
}

func (m *MockGenerationProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockQuestionRetriever struct {
	mock.Mock
}

func (m *MockQuestionRetriever) Retrieve(ctx context.Context, input RetrieveInput) ([]domain.RetrievalResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievalResult), args.Error(1)
}

type MockAnswerLogRepository struct {
	mock.Mock
}

func (m *MockAnswerLogRepository) Create(ctx context.Context, record *domain.AnswerRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAnswerLogRepository) RecordFeedback(ctx context.Context, organizationID, answerID string, helpful bool) error {
	args := m.Called(ctx, organizationID, answerID, helpful)
	return args.Error(0)
}

func resetPasswordResult() domain.RetrievalResult {
	return domain.RetrievalResult{
		Entry: &domain.KnowledgeEntry{
			ID:      12,
			Title:   "Reset password",
			Content: "Click 'Forgot password' on the login page and follow the emailed link.",
			Type:    domain.KnowledgeTypeFAQ,
		},
		Similarity: 0.91,
	}
}

func TestAnswerComposer_Answer_Grounded(t *testing.T) {
	retriever := new(MockQuestionRetriever)
	generator := new(MockGenerationProvider)
	answerLog := new(MockAnswerLogRepository)

	retriever.On("Retrieve", mock.Anything, RetrieveInput{Question: "How do I reset my password?", OrganizationID: "org-1"}).
		Return([]domain.RetrievalResult{resetPasswordResult()}, nil)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return strings.Contains(p.User, "[source:12] Reset password") &&
			strings.Contains(p.User, "Subject: Login issue")
	})).Return("Click 'Forgot password' on the login page [source:12].", nil)
	answerLog.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.AnswerRecord) bool {
		return r.ID == "answer-1" && r.Grounded && r.ContextScope.CaseID == "case-9" && r.ContextScope.OrganizationID == "org-1"
	})).Return(nil)

	composer := NewAnswerComposer(retriever, generator, answerLog, nil).WithUUIDGenerator(NewMockUUIDGenerator("answer-1"))
	out, err := composer.Answer(context.Background(), AnswerInput{
		Question:       "How do I reset my password?",
		OrganizationID: "org-1",
		CaseContext:    &domain.CaseContext{CaseID: "case-9", Subject: "Login issue"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Click 'Forgot password' on the login page.", out.ResponseText)
	assert.Equal(t, []int64{12}, out.Sources)
	require.Len(t, out.Citations, 1)
	assert.InDelta(t, 0.91, out.Citations[0].Similarity, 1e-9)
	assert.Equal(t, "answer-1", out.AnswerID)
	assert.True(t, out.Grounded())
	answerLog.AssertExpectations(t)
}

func TestAnswerComposer_Answer_NoKnowledge(t *testing.T) {
	retriever := new(MockQuestionRetriever)
	generator := new(MockGenerationProvider)

	retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]domain.RetrievalResult{}, nil)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return strings.Contains(p.User, "none matched")
	})).Return("The knowledge base has no answer for this.", nil)

	composer := NewAnswerComposer(retriever, generator, nil, nil)
	out, err := composer.Answer(context.Background(), AnswerInput{Question: "What is the meaning of life?"})

	require.NoError(t, err)
	assert.NotEmpty(t, out.ResponseText)
	assert.NotNil(t, out.Sources)
	assert.Empty(t, out.Sources)
	assert.False(t, out.Grounded())
	assert.Empty(t, out.AnswerID)
}

func TestAnswerComposer_Answer_EmptyQuestion(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	generator := new(MockGenerationProvider)
	retriever := NewRetriever(embedder, new(MockVectorSearch), nil)

	composer := NewAnswerComposer(retriever, generator, nil, nil)
	_, err := composer.Answer(context.Background(), AnswerInput{Question: "  "})

	var pe *domain.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageIdle, pe.Stage)
	assert.Equal(t, domain.ErrCodeInvalidInput, domain.CodeOf(err))
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAnswerComposer_Answer_EmbeddingUnavailable(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	generator := new(MockGenerationProvider)
	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	retriever := NewRetriever(embedder, new(MockVectorSearch), nil)

	composer := NewAnswerComposer(retriever, generator, nil, nil)
	out, err := composer.Answer(context.Background(), AnswerInput{Question: "How do I reset my password?"})

	assert.Nil(t, out)
	var pe *domain.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageEmbedding, pe.Stage)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAnswerComposer_Answer_GenerationUnavailable(t *testing.T) {
	retriever := new(MockQuestionRetriever)
	generator := new(MockGenerationProvider)
	answerLog := new(MockAnswerLogRepository)
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]domain.RetrievalResult{resetPasswordResult()}, nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("overloaded"))

	composer := NewAnswerComposer(retriever, generator, answerLog, nil)
	_, err := composer.Answer(context.Background(), AnswerInput{Question: "q"})

	var pe *domain.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageGenerating, pe.Stage)
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	assert.True(t, domain.IsRetryable(err))
	answerLog.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAnswerComposer_Answer_BlankCompletion(t *testing.T) {
	retriever := new(MockQuestionRetriever)
	generator := new(MockGenerationProvider)
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]domain.RetrievalResult{resetPasswordResult()}, nil)

	composer := NewAnswerComposer(retriever, generator, nil, nil)

	for _, completion := range []string{"   ", "[source:12]"} {
		generator.ExpectedCalls = nil
		generator.On("Generate", mock.Anything, mock.Anything).Return(completion, nil)

		_, err := composer.Answer(context.Background(), AnswerInput{Question: "q"})

		assert.ErrorIs(t, err, domain.ErrGenerationUnavailable, "completion %q", completion)
	}
}

func TestAnswerComposer_Answer_RetrievalFailureKeepsStage(t *testing.T) {
	retriever := new(MockQuestionRetriever)
	generator := new(MockGenerationProvider)
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	composer := NewAnswerComposer(retriever, generator, nil, nil)
	_, err := composer.Answer(context.Background(), AnswerInput{Question: "q"})

	var pe *domain.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageEmbedding, pe.Stage)
}

func TestAnswerComposer_Answer_AnswerLogFailureIsIgnored(t *testing.T) {
	retriever := new(MockQuestionRetriever)
	generator := new(MockGenerationProvider)
	answerLog := new(MockAnswerLogRepository)
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]domain.RetrievalResult{resetPasswordResult()}, nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return("Use the link.", nil)
	answerLog.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	composer := NewAnswerComposer(retriever, generator, answerLog, nil)
	out, err := composer.Answer(context.Background(), AnswerInput{Question: "q"})

	require.NoError(t, err)
	assert.Equal(t, []int64{12}, out.Sources)
	assert.Empty(t, out.AnswerID)
}

func TestAnswerComposer_Answer_Cancelled(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, context.Canceled)
	generator := new(MockGenerationProvider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	composer := NewAnswerComposer(NewRetriever(embedder, new(MockVectorSearch), nil), generator, nil, nil)
	_, err := composer.Answer(ctx, AnswerInput{Question: "q"})

	assert.ErrorIs(t, err, context.Canceled)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAnswerFeedbackService_RecordFeedback(t *testing.T) {
	ctx := context.Background()
	caller := domain.Caller{OrganizationID: "org-1"}

	t.Run("records feedback", func(t *testing.T) {
		repo := new(MockAnswerLogRepository)
		repo.On("RecordFeedback", mock.Anything, "org-1", "answer-1", true).Return(nil)

		err := NewAnswerFeedbackService(repo).RecordFeedback(ctx, caller, "answer-1", true)

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("unknown answer", func(t *testing.T) {
		repo := new(MockAnswerLogRepository)
		repo.On("RecordFeedback", mock.Anything, "org-1", "nope", false).Return(domain.ErrAnswerNotFound)

		err := NewAnswerFeedbackService(repo).RecordFeedback(ctx, caller, "nope", false)

		assert.ErrorIs(t, err, domain.ErrAnswerNotFound)
	})

	t.Run("blank id", func(t *testing.T) {
		repo := new(MockAnswerLogRepository)
		err := NewAnswerFeedbackService(repo).RecordFeedback(ctx, caller, " ", true)

		assert.Equal(t, domain.ErrCodeInvalidInput, domain.CodeOf(err))
		repo.AssertNotCalled(t, "RecordFeedback", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
