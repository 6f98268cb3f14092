package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloo-solutions/zenithvault/internal/config"
	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/logging"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

func OrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
		Long:  "Create and list organizations",
	}

	cmd.AddCommand(OrgCreateCmd())
	cmd.AddCommand(OrgListCmd())

	return cmd
}

func OrgCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new organization",
		Long:  "Create a new organization with the specified name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				return runOrgCreate(ctx, cmd.OutOrStdout(), s.auth, args[0], outputFormat)
			})
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOrgCreate(ctx context.Context, w io.Writer, authSvc *service.AuthService, name, outputFormat string) error {
	org, err := authSvc.CreateOrg(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(w, orgJSON(org))
	}
	fmt.Fprintf(w, "Organization created: %s (%s)\n", org.Name, org.ID)
	return nil
}

func OrgListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all organizations",
		Long:  "List all organizations in the system",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				return runOrgList(ctx, cmd.OutOrStdout(), s.auth, outputFormat)
			})
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOrgList(ctx context.Context, w io.Writer, authSvc *service.AuthService, outputFormat string) error {
	orgs, err := authSvc.ListOrgs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}

	if outputFormat == "json" {
		items := make([]map[string]interface{}, len(orgs))
		for i, org := range orgs {
			items[i] = orgJSON(org)
		}
		return writeJSON(w, map[string]interface{}{"items": items})
	}

	if len(orgs) == 0 {
		fmt.Fprintln(w, "No organizations found")
		return nil
	}
	fmt.Fprintln(w, "Organizations:")
	for _, org := range orgs {
		fmt.Fprintf(w, "  %s: %s (created: %s)\n", org.ID, org.Name, org.CreatedAt.Format(timeLayout))
	}
	return nil
}

func orgJSON(org *domain.Organization) map[string]interface{} {
	return map[string]interface{}{
		"id":         org.ID,
		"name":       org.Name,
		"created_at": org.CreatedAt,
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// adminServices are the services the management commands run against.
type adminServices struct {
	cfg     *config.Config
	backend *backend
	auth    *service.AuthService
	logger  *zap.Logger
}

func withAdminServices(ctx context.Context, fn func(ctx context.Context, s *adminServices) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	be, err := openPersistentBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	return fn(ctx, &adminServices{
		cfg:     cfg,
		backend: be,
		auth:    service.NewAuthService(be.orgs, be.keys, nil),
		logger:  logger,
	})
}
