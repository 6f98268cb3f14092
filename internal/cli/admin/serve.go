package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/api/handlers"
	"github.com/cloo-solutions/zenithvault/internal/config"
	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/jobs"
	"github.com/cloo-solutions/zenithvault/internal/logging"
	"github.com/cloo-solutions/zenithvault/internal/metrics"
	"github.com/cloo-solutions/zenithvault/internal/server"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/cloo-solutions/zenithvault/internal/storage"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the Zenith Vault answer API and the embedding backfill worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides ZENITH_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.SentryDSN != "" {
		// 10% sampling outside development
		sampleRate := 0.1
		if cfg.SentryEnvironment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: sampleRate,
			Logger:           logger,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	be, err := openBackend(ctx, cfg, !noMigrate, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	m := metrics.New()
	prov, err := buildProviders(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer prov.Close()

	imports, err := buildImportStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	app := buildApp(cfg, be, prov, imports, m, logger)

	if err := bootstrap(ctx, cfg, app.auth, be.orgs, logger); err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go app.worker.Start(workerCtx)
	logger.Info("embedding backfill worker started", zap.Duration("interval", cfg.BackfillInterval))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	logger.Info("shutting down")

	app.worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// app is the wired service: HTTP handler, backfill worker and the auth
// service used for bootstrapping.
type app struct {
	handler http.Handler
	worker  *jobs.Worker
	auth    *service.AuthService
}

func buildApp(cfg *config.Config, be *backend, prov *providers, imports service.ImportObjectStore, m *metrics.Prometheus, logger *zap.Logger) *app {
	knowledgeSvc := service.NewKnowledgeServiceWithConfig(be.knowledge, be.knowledge, prov.ingest, be.tx, logger, service.KnowledgeServiceConfig{
		IngestConcurrency: cfg.IngestConcurrency,
		EmbeddingTimeout:  cfg.EmbeddingTimeout,
	}).WithMetrics(m)

	retriever := service.NewRetrieverWithConfig(prov.embedder, knowledgeSvc, logger, service.RetrieverConfig{
		Limit:            cfg.RetrievalLimit,
		Threshold:        cfg.RetrievalThreshold,
		EmbeddingTimeout: cfg.EmbeddingTimeout,
	}).WithMetrics(m)

	composer := service.NewAnswerComposerWithConfig(retriever, prov.generator, be.answers, logger, service.AnswerComposerConfig{
		GenerationTimeout: cfg.GenerationTimeout,
	}).WithMetrics(m)

	authSvc := service.NewAuthService(be.orgs, be.keys, nil)

	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeSvc)
	if imports != nil {
		knowledgeHandler = knowledgeHandler.WithImports(service.NewImportService(imports, knowledgeSvc, logger))
	}

	embeddingSvc := service.NewEmbeddingService(prov.ingest, be.knowledge, logger).
		WithMetrics(m).
		WithTimeout(cfg.EmbeddingTimeout)
	worker := jobs.NewWorker(jobs.NewEmbeddingWorker(be.jobs, embeddingSvc, logger), cfg.BackfillInterval, logger)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:      authSvc,
		KnowledgeHandler:   knowledgeHandler,
		AnswerHandler:      handlers.NewAnswerHandler(composer, retriever, service.NewAnswerFeedbackService(be.answers)),
		AuthHandler:        handlers.NewAuthHandler(authSvc),
		Metrics:            m,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	return &app{handler: router, worker: worker, auth: authSvc}
}

func buildImportStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.ImportObjectStore, error) {
	if !cfg.HasS3() {
		logger.Info("object storage not configured, storage imports disabled")
		return nil, nil
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	logger.Info("S3 bucket ready", zap.String("bucket", cfg.S3Bucket))
	return s3Client, nil
}

// bootstrap creates the initial organization and registers the initial API
// key. Without an organization name the key is a platform admin key.
func bootstrap(ctx context.Context, cfg *config.Config, authSvc *service.AuthService, orgs service.OrgRepository, logger *zap.Logger) error {
	var orgID string
	if cfg.InitOrgName != "" {
		org, err := orgs.GetByName(ctx, cfg.InitOrgName)
		switch {
		case errors.Is(err, domain.ErrOrganizationNotFound):
			org, err = authSvc.CreateOrg(ctx, cfg.InitOrgName)
			if err != nil {
				return fmt.Errorf("failed to create org: %w", err)
			}
			logger.Info("bootstrap: created organization", zap.String("org_id", org.ID), zap.String("name", org.Name))
		case err != nil:
			return fmt.Errorf("failed to check existing org: %w", err)
		default:
			logger.Info("bootstrap: organization already exists", zap.String("org_id", org.ID), zap.String("name", org.Name))
		}
		orgID = org.ID
	}

	if cfg.InitAPIKey == "" {
		return nil
	}
	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return fmt.Errorf("invalid ZENITH_INIT_API_KEY format (expected 'zv_<64 hex chars>')")
	}

	err := authSvc.EnsureAPIKey(ctx, service.CreateAPIKeyInput{
		OrgID:   orgID,
		Name:    "bootstrap",
		IsAdmin: true,
	}, cfg.InitAPIKey)
	if err != nil {
		return fmt.Errorf("failed to register API key: %w", err)
	}
	logger.Info("bootstrap: admin API key ready", zap.String("org_id", orgID))
	return nil
}
