package admin

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/jobs"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/spf13/cobra"
)

func KBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Maintain the knowledge base",
		Long:  "Import knowledge directly into the store and run embedding backfills",
	}

	cmd.AddCommand(KBImportCmd())
	cmd.AddCommand(KBBackfillCmd())

	return cmd
}

func KBImportCmd() *cobra.Command {
	var orgRef string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a knowledge payload",
		Long: `Import a JSON array of knowledge items into the global knowledge base,
or into an organization's with --org. Use "-" to read stdin.

Each item is either {"type":"faq","question":...,"answer":...}
or {"type":"documentation","title":...,"content":...}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				cfg := s.cfg
				embedder, err := openAIClient(cfg)
				if err != nil {
					return err
				}

				orgID := ""
				if orgRef != "" {
					if orgID, err = resolveOrgID(ctx, s.backend.orgs, orgRef); err != nil {
						return err
					}
				}

				knowledgeSvc := service.NewKnowledgeServiceWithConfig(s.backend.knowledge, s.backend.knowledge, embedder, s.backend.tx, s.logger, service.KnowledgeServiceConfig{
					IngestConcurrency: cfg.IngestConcurrency,
					EmbeddingTimeout:  cfg.EmbeddingTimeout,
				})
				return runKBImport(ctx, cmd.OutOrStdout(), knowledgeSvc, orgID, data)
			})
		},
	}

	cmd.Flags().StringVarP(&orgRef, "org", "o", "", "Organization ID or name (default: global knowledge base)")

	return cmd
}

func runKBImport(ctx context.Context, w io.Writer, importer service.KnowledgeImporter, orgID string, data []byte) error {
	items, err := domain.ParseImportItems(data)
	if err != nil {
		return err
	}

	res, err := importer.Import(ctx, items, orgID)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	scope := "global knowledge base"
	if orgID != "" {
		scope = "organization " + orgID
	}
	fmt.Fprintf(w, "Imported %d of %d entries into the %s\n", res.Processed, res.Total, scope)
	if res.Partial() {
		fmt.Fprintf(w, "%d entries were skipped; see the log for details\n", res.Total-res.Processed)
	}
	return nil
}

func KBBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Run one embedding backfill pass",
		Long:  "Recompute the embeddings queued for backfill once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				cfg := s.cfg
				embedder, err := openAIClient(cfg)
				if err != nil {
					return err
				}

				embeddingSvc := service.NewEmbeddingService(embedder, s.backend.knowledge, s.logger).WithTimeout(cfg.EmbeddingTimeout)
				if err := jobs.NewEmbeddingWorker(s.backend.jobs, embeddingSvc, s.logger).ProcessJobs(ctx); err != nil {
					return fmt.Errorf("backfill failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Backfill pass complete")
				return nil
			})
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no input provided")
	}
	return data, nil
}
