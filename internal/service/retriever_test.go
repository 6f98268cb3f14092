package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func result(id int64, orgID string, similarity float64) domain.RetrievalResult {
	return domain.RetrievalResult{
		Entry:      &domain.KnowledgeEntry{ID: id, Title: "entry", Content: "body", Type: domain.KnowledgeTypeFAQ, OrganizationID: orgID},
		Similarity: similarity,
	}
}

func TestRetriever_EmptyQuestion(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorSearch)
	retriever := NewRetriever(embedder, store, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := retriever.Retrieve(context.Background(), RetrieveInput{Question: q})

		var pe *domain.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, domain.StageIdle, pe.Stage)
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	}
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_UsesDefaults(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorSearch)
	embedder.On("GenerateEmbedding", mock.Anything, "How do I reset my password?").Return([]float32{1, 0}, nil)
	store.On("SimilaritySearch", mock.Anything, []float32{1, 0}, DefaultRetrievalThreshold, DefaultRetrievalLimit*defaultCandidateMultiplier).
		Return([]domain.RetrievalResult{result(1, "", 0.9), result(2, "", 0.8)}, nil)

	retriever := NewRetriever(embedder, store, nil)
	results, err := retriever.Retrieve(context.Background(), RetrieveInput{Question: "  How do I reset my password? "})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Entry.ID)
	assert.Equal(t, int64(2), results[1].Entry.ID)
	store.AssertExpectations(t)
}

func TestRetriever_FiltersOtherOrganizations(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorSearch)
	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	store.On("SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]domain.RetrievalResult{
		result(1, "org-b", 0.99),
		result(2, "org-a", 0.95),
		result(3, "", 0.9),
		result(4, "org-b", 0.85),
		result(5, "org-a", 0.8),
	}, nil)

	retriever := NewRetriever(embedder, store, nil)

	t.Run("organization caller", func(t *testing.T) {
		results, err := retriever.Retrieve(context.Background(), RetrieveInput{Question: "q", OrganizationID: "org-a", Limit: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, int64(2), results[0].Entry.ID)
		assert.Equal(t, int64(3), results[1].Entry.ID)
	})

	t.Run("global caller", func(t *testing.T) {
		results, err := retriever.Retrieve(context.Background(), RetrieveInput{Question: "q"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, int64(3), results[0].Entry.ID)
	})
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorSearch)
	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	retriever := NewRetriever(embedder, store, nil)
	_, err := retriever.Retrieve(context.Background(), RetrieveInput{Question: "q"})

	var pe *domain.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageEmbedding, pe.Stage)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	store.AssertNotCalled(t, "SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_StoreFailure(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorSearch)
	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	store.On("SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	var stages []domain.PipelineStage
	ctx := withStageObserver(context.Background(), func(s domain.PipelineStage) { stages = append(stages, s) })

	retriever := NewRetriever(embedder, store, nil)
	_, err := retriever.Retrieve(ctx, RetrieveInput{Question: "q"})

	var pe *domain.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageRetrieving, pe.Stage)
	assert.Equal(t, []domain.PipelineStage{domain.StageRetrieving}, stages)
}

func TestCandidateLimit(t *testing.T) {
	assert.Equal(t, 20, candidateLimit(5, 4))
	assert.Equal(t, maxCandidates, candidateLimit(100, 4))
	assert.Equal(t, 300, candidateLimit(300, 4), "never below the requested limit")
}
