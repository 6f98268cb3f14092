package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/zenithvault/internal/config"
	"github.com/cloo-solutions/zenithvault/internal/database"
	"github.com/cloo-solutions/zenithvault/internal/jobs"
	"github.com/cloo-solutions/zenithvault/internal/memstore"
	"github.com/cloo-solutions/zenithvault/internal/repository"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"go.uber.org/zap"
)

var errPostgresRequired = errors.New("this command needs persistent storage: set ZENITH_STORE=postgres")

// knowledgeStore is the record storage contract both backends implement.
type knowledgeStore interface {
	service.KnowledgeRepositoryInterface
	service.VectorSearchProvider
}

// backend bundles the repositories of one storage backend.
type backend struct {
	knowledge knowledgeStore
	jobs      jobs.EmbeddingJobRepository
	orgs      service.OrgRepository
	keys      service.APIKeyRepository
	answers   service.AnswerLogRepository
	tx        service.TxRunner
	close     func()
}

func (b *backend) Close() {
	if b.close != nil {
		b.close()
	}
}

func newMemoryBackend() *backend {
	store := memstore.New()
	return &backend{
		knowledge: store.Knowledge(),
		jobs:      store.EmbeddingJobs(),
		orgs:      store.Orgs(),
		keys:      store.APIKeys(),
		answers:   store.AnswerLog(),
		tx:        store.TxRunner(),
	}
}

// openBackend connects to the configured store. With migrate set, pending
// migrations are applied before the pool is opened.
func openBackend(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*backend, error) {
	if !cfg.UsesPostgres() {
		logger.Warn("using the in-memory store; data is lost on exit")
		return newMemoryBackend(), nil
	}

	if migrate {
		if err := database.Migrate(cfg.DatabaseURL, database.DefaultMigrationsSource, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database")

	return &backend{
		knowledge: repository.NewKnowledgeRepository(pool),
		jobs:      repository.NewEmbeddingJobRepository(pool),
		orgs:      repository.NewOrgRepository(pool),
		keys:      repository.NewAPIKeyRepository(pool),
		answers:   repository.NewAnswerLogRepository(pool),
		tx:        repository.NewTxRunner(pool),
		close:     pool.Close,
	}, nil
}

// openPersistentBackend is openBackend for commands whose effect must
// outlive the process.
func openPersistentBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	if !cfg.UsesPostgres() {
		return nil, errPostgresRequired
	}
	return openBackend(ctx, cfg, false, logger)
}
