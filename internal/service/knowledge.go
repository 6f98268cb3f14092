package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/pagination"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KnowledgeRepositoryInterface defines the record storage the knowledge store is built on
type KnowledgeRepositoryInterface interface {
	Create(ctx context.Context, entry *domain.KnowledgeEntry) error
	GetByID(ctx context.Context, id int64) (*domain.KnowledgeEntry, error)
	ListVisible(ctx context.Context, filter ListFilter) ([]*domain.KnowledgeEntry, error)
	ListVisibleWithCursor(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error)
	ReplaceContent(ctx context.Context, id int64, title, content string, embedding []float32, updatedAt time.Time) error
	UpdateEmbedding(ctx context.Context, id int64, content string, embedding []float32) error
	Delete(ctx context.Context, id int64) error
}

// VectorSearchProvider ranks stored entries by cosine similarity to a query
// embedding. It applies no tenant filtering.
type VectorSearchProvider interface {
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.RetrievalResult, error)
}

// EmbeddingJobRepositoryInterface defines the repository interface for embedding job persistence
type EmbeddingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// ListFilter selects the entries of a listing. Global entries are always
// included; OrganizationID, when set, adds that organization's entries.
type ListFilter struct {
	OrganizationID string
}

// ListFilterFor applies the listing visibility rule: only admins of an
// organization see its entries next to the global ones.
func ListFilterFor(organizationID string, isAdmin bool) ListFilter {
	if isAdmin && organizationID != "" {
		return ListFilter{OrganizationID: organizationID}
	}
	return ListFilter{}
}

type KnowledgePageResult struct {
	Items      []*domain.KnowledgeEntry
	NextCursor string
	HasMore    bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// KnowledgeServiceConfig tunes ingestion.
type KnowledgeServiceConfig struct {
	IngestConcurrency int
	EmbeddingTimeout  time.Duration
}

// DefaultKnowledgeServiceConfig returns the default ingestion settings.
func DefaultKnowledgeServiceConfig() KnowledgeServiceConfig {
	return KnowledgeServiceConfig{
		IngestConcurrency: 4,
		EmbeddingTimeout:  DefaultExternalCallTimeout,
	}
}

// KnowledgeService is the knowledge store: ingestion, listing, deletion and
// similarity search over knowledge entries.
type KnowledgeService struct {
	repo     KnowledgeRepositoryInterface
	search   VectorSearchProvider
	embedder EmbeddingProvider
	txRunner TxRunner
	uuidGen  UUIDGenerator
	cfg      KnowledgeServiceConfig
	metrics  Metrics
	logger   *zap.Logger
}

// NewKnowledgeService creates a new KnowledgeService instance
func NewKnowledgeService(
	repo KnowledgeRepositoryInterface,
	search VectorSearchProvider,
	embedder EmbeddingProvider,
	txRunner TxRunner,
	logger *zap.Logger,
) *KnowledgeService {
	return NewKnowledgeServiceWithConfig(repo, search, embedder, txRunner, logger, DefaultKnowledgeServiceConfig())
}

// NewKnowledgeServiceWithConfig creates a KnowledgeService with custom settings
func NewKnowledgeServiceWithConfig(
	repo KnowledgeRepositoryInterface,
	search VectorSearchProvider,
	embedder EmbeddingProvider,
	txRunner TxRunner,
	logger *zap.Logger,
	cfg KnowledgeServiceConfig,
) *KnowledgeService {
	defaults := DefaultKnowledgeServiceConfig()
	if cfg.IngestConcurrency <= 0 {
		cfg.IngestConcurrency = defaults.IngestConcurrency
	}
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = defaults.EmbeddingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeService{
		repo:     repo,
		search:   search,
		embedder: embedder,
		txRunner: txRunner,
		uuidGen:  &DefaultUUIDGenerator{},
		cfg:      cfg,
		metrics:  NopMetrics{},
		logger:   logger,
	}
}

// WithMetrics sets the metrics sink.
func (s *KnowledgeService) WithMetrics(m Metrics) *KnowledgeService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithUUIDGenerator overrides job id generation (for testing).
func (s *KnowledgeService) WithUUIDGenerator(gen UUIDGenerator) *KnowledgeService {
	if gen != nil {
		s.uuidGen = gen
	}
	return s
}

// IngestInput is a batch of entries of one type for one scope.
type IngestInput struct {
	Entries        []domain.IngestEntry
	Type           domain.KnowledgeType
	OrganizationID string // empty ingests global entries
}

// IngestResult reports how many entries of the batch were stored.
type IngestResult struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Partial reports whether some entries of the batch were skipped.
func (r IngestResult) Partial() bool {
	return r.Processed < r.Total
}

// Ingest embeds and stores a batch of entries. The payload is validated as a
// whole first; afterwards an entry whose embedding or write fails is skipped
// and counted in Total only. Embeddings are computed concurrently and entries
// are written in input order so ids follow the batch order.
func (s *KnowledgeService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Ingest", telemetry.SpanAttributes{
		OrgID:     input.OrganizationID,
		Operation: "ingest",
	})
	defer span.End()

	if err := validateIngestInput(input); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(input.Entries))
	var g errgroup.Group
	g.SetLimit(s.cfg.IngestConcurrency)
	for i, entry := range input.Entries {
		g.Go(func() error {
			embedding, err := embedText(ctx, s.embedder, s.cfg.EmbeddingTimeout, s.metrics, buildEmbeddingText(entry.Title, entry.Content))
			if err != nil {
				s.logger.Warn("skipping knowledge entry, embedding failed",
					zap.Int("index", i),
					zap.String("title", entry.Title),
					zap.Error(err),
				)
				return nil
			}
			embeddings[i] = embedding
			return nil
		})
	}
	_ = g.Wait()

	result := &IngestResult{Total: len(input.Entries)}
	for i, in := range input.Entries {
		if embeddings[i] == nil {
			continue
		}
		entry := domain.NewKnowledgeEntry(in.Title, in.Content, input.Type, embeddings[i], input.OrganizationID, time.Now().UTC())
		if err := s.repo.Create(ctx, entry); err != nil {
			s.logger.Warn("skipping knowledge entry, write failed",
				zap.Int("index", i),
				zap.String("title", in.Title),
				zap.Error(err),
			)
			continue
		}
		result.Processed++
	}

	s.metrics.IngestCompleted(result.Processed, result.Total)
	if result.Partial() {
		s.logger.Info("partial knowledge ingestion",
			zap.Int("processed", result.Processed),
			zap.Int("total", result.Total),
			zap.String("organization_id", input.OrganizationID),
		)
	}
	return result, nil
}

// Import validates a tagged import payload and ingests it grouped by type.
// Counts of all groups are summed.
func (s *KnowledgeService) Import(ctx context.Context, items []domain.KnowledgeImportItem, organizationID string) (*IngestResult, error) {
	if err := domain.ValidateImportItems(items); err != nil {
		return nil, err
	}

	groups := map[domain.KnowledgeType][]domain.IngestEntry{}
	var order []domain.KnowledgeType
	for _, item := range items {
		kind := item.Kind()
		if _, seen := groups[kind]; !seen {
			order = append(order, kind)
		}
		groups[kind] = append(groups[kind], item.Entry())
	}

	total := &IngestResult{}
	for _, kind := range order {
		res, err := s.Ingest(ctx, IngestInput{Entries: groups[kind], Type: kind, OrganizationID: organizationID})
		if err != nil {
			return nil, err
		}
		total.Processed += res.Processed
		total.Total += res.Total
	}
	return total, nil
}

// Get retrieves a knowledge entry by ID
func (s *KnowledgeService) Get(ctx context.Context, id int64) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Get", telemetry.SpanAttributes{
		KnowledgeID: strconv.FormatInt(id, 10),
		Operation:   "get",
	})
	defer span.End()

	return s.repo.GetByID(ctx, id)
}

// ReingestInput replaces the text of an existing entry.
type ReingestInput struct {
	ID      int64
	Title   string
	Content string
}

// Reingest replaces an entry's title and content. The new embedding is
// written together with the content; if it cannot be computed the embedding
// is cleared and a backfill job is queued in the same transaction.
func (s *KnowledgeService) Reingest(ctx context.Context, input ReingestInput) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Reingest", telemetry.SpanAttributes{
		KnowledgeID: strconv.FormatInt(input.ID, 10),
		Operation:   "reingest",
	})
	defer span.End()

	text := domain.IngestEntry{Title: input.Title, Content: input.Content}
	if err := text.Validate(); err != nil {
		return nil, domain.ErrInvalidInput.WithCause(err)
	}

	entry, err := s.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	embedding, embedErr := embedText(ctx, s.embedder, s.cfg.EmbeddingTimeout, s.metrics, buildEmbeddingText(input.Title, input.Content))
	if embedErr == nil {
		if err := s.repo.ReplaceContent(ctx, entry.ID, input.Title, input.Content, embedding, now); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn("re-ingested entry without embedding, queueing backfill",
			zap.Int64("entry_id", entry.ID),
			zap.Error(embedErr),
		)
		if err := s.replaceAndQueue(ctx, entry.ID, input.Title, input.Content, now); err != nil {
			return nil, err
		}
	}

	entry.Title = input.Title
	entry.Content = input.Content
	entry.Embedding = embedding
	entry.UpdatedAt = now
	return entry, nil
}

func (s *KnowledgeService) replaceAndQueue(ctx context.Context, id int64, title, content string, now time.Time) error {
	job := domain.NewEmbeddingJob(s.uuidGen.NewString(), id, domain.EmbeddingJobStatusPending, 0, "", now, nil)

	if s.txRunner == nil {
		return s.repo.ReplaceContent(ctx, id, title, content, nil, now)
	}
	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Knowledge().ReplaceContent(ctx, id, title, content, nil, now); err != nil {
			return err
		}
		return repos.EmbeddingJobs().Create(ctx, job)
	})
}

// Delete permanently removes an entry.
func (s *KnowledgeService) Delete(ctx context.Context, id int64) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Delete", telemetry.SpanAttributes{
		KnowledgeID: strconv.FormatInt(id, 10),
		Operation:   "delete",
	})
	defer span.End()

	return s.repo.Delete(ctx, id)
}

// List returns the entries a caller may see in the knowledge base manager,
// newest first.
func (s *KnowledgeService) List(ctx context.Context, organizationID string, isAdmin bool) ([]*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.List", telemetry.SpanAttributes{
		OrgID:     organizationID,
		Operation: "list",
	})
	defer span.End()

	entries, err := s.repo.ListVisible(ctx, ListFilterFor(organizationID, isAdmin))
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*domain.KnowledgeEntry{}
	}
	return entries, nil
}

type ListKnowledgeInput struct {
	Caller domain.Caller
	Cursor string
	Limit  int
}

type ListKnowledgeOutput struct {
	Items   []*domain.KnowledgeEntry
	Cursor  string
	HasMore bool
}

// ListPage is List with cursor pagination.
func (s *KnowledgeService) ListPage(ctx context.Context, input ListKnowledgeInput) (*ListKnowledgeOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.ListPage", telemetry.SpanAttributes{
		OrgID:     input.Caller.OrganizationID,
		Operation: "list",
	})
	defer span.End()

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.ErrInvalidInput.WithCause(err)
	}
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	filter := ListFilterFor(input.Caller.OrganizationID, input.Caller.IsAdmin)
	result, err := s.repo.ListVisibleWithCursor(ctx, filter, cursor, limit)
	if err != nil {
		return nil, err
	}

	items := result.Items
	if items == nil {
		items = []*domain.KnowledgeEntry{}
	}
	return &ListKnowledgeOutput{
		Items:   items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// SimilaritySearch returns entries more similar than threshold to the query
// embedding, most similar first, ties in insertion order. No tenant
// filtering is applied here.
func (s *KnowledgeService) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 || len(embedding) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	results, err := s.search.SimilaritySearch(ctx, embedding, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if results == nil {
		results = []domain.RetrievalResult{}
	}
	return results, nil
}

func validateIngestInput(input IngestInput) error {
	if len(input.Entries) == 0 {
		return domain.ErrInvalidInput.WithCause(fmt.Errorf("no entries to ingest"))
	}
	switch input.Type {
	case domain.KnowledgeTypeFAQ, domain.KnowledgeTypeDocumentation:
	default:
		return domain.ErrInvalidKnowledgeType.WithCause(fmt.Errorf("unknown type %q", input.Type))
	}
	for i, entry := range input.Entries {
		if err := entry.Validate(); err != nil {
			return domain.ErrInvalidInput.WithCause(fmt.Errorf("entry %d: %w", i, err))
		}
	}
	return nil
}
