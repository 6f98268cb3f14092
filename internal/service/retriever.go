package service

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultRetrievalLimit     = 5
	DefaultRetrievalThreshold = 0.7

	// Retrieval over-fetches before the tenant filter so entries of other
	// organizations do not push visible ones out of the top results.
	defaultCandidateMultiplier = 4
	maxCandidates              = 200
)

// RetrieverConfig holds retrieval defaults.
type RetrieverConfig struct {
	Limit               int
	Threshold           float64
	CandidateMultiplier int
	EmbeddingTimeout    time.Duration
}

// DefaultRetrieverConfig returns the default retrieval settings.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Limit:               DefaultRetrievalLimit,
		Threshold:           DefaultRetrievalThreshold,
		CandidateMultiplier: defaultCandidateMultiplier,
		EmbeddingTimeout:    DefaultExternalCallTimeout,
	}
}

// SimilaritySearcher is the knowledge store surface the retriever needs.
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.RetrievalResult, error)
}

// Retriever turns a question into the ranked entries visible to the caller.
type Retriever struct {
	embedder EmbeddingProvider
	store    SimilaritySearcher
	cfg      RetrieverConfig
	metrics  Metrics
	logger   *zap.Logger
}

// NewRetriever creates a Retriever with default settings.
func NewRetriever(embedder EmbeddingProvider, store SimilaritySearcher, logger *zap.Logger) *Retriever {
	return NewRetrieverWithConfig(embedder, store, logger, DefaultRetrieverConfig())
}

// NewRetrieverWithConfig creates a Retriever with custom settings.
func NewRetrieverWithConfig(embedder EmbeddingProvider, store SimilaritySearcher, logger *zap.Logger, cfg RetrieverConfig) *Retriever {
	defaults := DefaultRetrieverConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = defaults.CandidateMultiplier
	}
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = defaults.EmbeddingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		metrics:  NopMetrics{},
		logger:   logger,
	}
}

// WithMetrics sets the metrics sink.
func (r *Retriever) WithMetrics(m Metrics) *Retriever {
	if m != nil {
		r.metrics = m
	}
	return r
}

// RetrieveInput describes one retrieval. Zero Limit or Threshold fall back
// to the configured defaults.
type RetrieveInput struct {
	Question       string
	OrganizationID string
	Limit          int
	Threshold      float64
}

// Retrieve embeds the question, searches the store and keeps the results
// visible to the caller's organization, in the store's order.
func (r *Retriever) Retrieve(ctx context.Context, input RetrieveInput) ([]domain.RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		OrgID:     input.OrganizationID,
		Operation: "retrieve",
	})
	defer span.End()

	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, &domain.PipelineError{Stage: domain.StageIdle, Err: domain.ErrEmptyQuestion}
	}

	limit := input.Limit
	if limit <= 0 {
		limit = r.cfg.Limit
	}
	threshold := input.Threshold
	if threshold <= 0 {
		threshold = r.cfg.Threshold
	}

	embedding, err := embedText(ctx, r.embedder, r.cfg.EmbeddingTimeout, r.metrics, question)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageEmbedding, Err: err}
	}
	notifyStage(ctx, domain.StageRetrieving)

	candidates, err := r.store.SimilaritySearch(ctx, embedding, threshold, candidateLimit(limit, r.cfg.CandidateMultiplier))
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageRetrieving, Err: err}
	}

	results := filterVisible(candidates, input.OrganizationID, limit)
	r.metrics.RetrievalCompleted(len(candidates), len(results))
	r.logger.Debug("retrieval completed",
		zap.String("organization_id", input.OrganizationID),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// filterVisible keeps global entries and entries of organizationID, stopping
// at limit. The input order is preserved.
func filterVisible(candidates []domain.RetrievalResult, organizationID string, limit int) []domain.RetrievalResult {
	results := make([]domain.RetrievalResult, 0, min(len(candidates), limit))
	for _, c := range candidates {
		if c.Entry == nil || !c.Entry.VisibleTo(organizationID) {
			continue
		}
		results = append(results, c)
		if len(results) == limit {
			break
		}
	}
	return results
}

func candidateLimit(limit, multiplier int) int {
	n := limit * multiplier
	if n > maxCandidates {
		n = maxCandidates
	}
	if n < limit {
		n = limit
	}
	return n
}
