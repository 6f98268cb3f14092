package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// resolveOrgID accepts an organization ID or name.
func resolveOrgID(ctx context.Context, orgs service.OrgRepository, orgRef string) (string, error) {
	var (
		org *domain.Organization
		err error
	)
	if _, parseErr := uuid.Parse(orgRef); parseErr == nil {
		org, err = orgs.GetByID(ctx, orgRef)
	} else {
		org, err = orgs.GetByName(ctx, orgRef)
	}
	if err != nil {
		if errors.Is(err, domain.ErrOrganizationNotFound) {
			return "", fmt.Errorf("organization not found: %s", orgRef)
		}
		return "", err
	}
	return org.ID, nil
}

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke API keys",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

type apiKeyCreateOptions struct {
	OrgRef   string
	Name     string
	Admin    bool
	Platform bool
	Output   string
}

func APIKeyCreateCmd() *cobra.Command {
	var opts apiKeyCreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key for an organization, or a platform admin key.

Examples:
  # Key for the support chat widget of an organization
  zenithd apikey create --org acme --name "chat widget"

  # Key that manages the organization's knowledge base
  zenithd apikey create --org acme --name "kb editor" --admin

  # Platform key that manages the global knowledge base
  zenithd apikey create --platform --name "platform"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				return runAPIKeyCreate(ctx, cmd.OutOrStdout(), s.auth, s.backend.orgs, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.OrgRef, "org", "o", "", "Organization ID or name")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "API key name (required)")
	cmd.Flags().BoolVar(&opts.Admin, "admin", false, "Allow the key to manage the organization's knowledge base and keys")
	cmd.Flags().BoolVar(&opts.Platform, "platform", false, "Create a platform admin key (no organization)")
	cmd.Flags().StringVar(&opts.Output, "output", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("name")
	cmd.MarkFlagsMutuallyExclusive("org", "platform")
	cmd.MarkFlagsOneRequired("org", "platform")

	return cmd
}

func runAPIKeyCreate(ctx context.Context, w io.Writer, authSvc *service.AuthService, orgs service.OrgRepository, opts apiKeyCreateOptions) error {
	input := service.CreateAPIKeyInput{Name: opts.Name, IsAdmin: opts.Admin || opts.Platform}
	if !opts.Platform {
		orgID, err := resolveOrgID(ctx, orgs, opts.OrgRef)
		if err != nil {
			return err
		}
		input.OrgID = orgID
	}

	token, err := authSvc.CreateAPIKey(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	if opts.Output == "json" {
		return writeJSON(w, map[string]interface{}{
			"name":     input.Name,
			"org_id":   input.OrgID,
			"is_admin": input.IsAdmin,
			"token":    token,
		})
	}

	if input.OrgID == "" {
		fmt.Fprintln(w, "Platform admin API key created")
	} else {
		fmt.Fprintf(w, "API key created for organization %s\n", input.OrgID)
	}
	fmt.Fprintf(w, "Key Name: %s\n", input.Name)
	fmt.Fprintf(w, "Admin: %t\n", input.IsAdmin)
	fmt.Fprintf(w, "Token: %s\n", token)
	fmt.Fprintln(w, "\nSave this token now. You won't be able to see it again!")
	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for an organization",
		Long:  "List all API keys for a specific organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgRef, _ := cmd.Flags().GetString("org")
			outputFormat, _ := cmd.Flags().GetString("output")
			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				return runAPIKeyList(ctx, cmd.OutOrStdout(), s.auth, s.backend.orgs, orgRef, outputFormat)
			})
		},
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runAPIKeyList(ctx context.Context, w io.Writer, authSvc *service.AuthService, orgs service.OrgRepository, orgRef, outputFormat string) error {
	orgID, err := resolveOrgID(ctx, orgs, orgRef)
	if err != nil {
		return err
	}

	keys, err := authSvc.ListAPIKeys(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	if outputFormat == "json" {
		items := make([]map[string]interface{}, len(keys))
		for i, key := range keys {
			items[i] = map[string]interface{}{
				"id":         key.ID,
				"name":       key.Name,
				"org_id":     key.OrgID,
				"is_admin":   key.IsAdmin,
				"created_at": key.CreatedAt,
				"revoked_at": key.RevokedAt,
				"revoked":    key.IsRevoked(),
			}
		}
		return writeJSON(w, map[string]interface{}{"items": items})
	}

	if len(keys) == 0 {
		fmt.Fprintf(w, "No API keys found for organization %s\n", orgID)
		return nil
	}
	fmt.Fprintf(w, "API keys for organization %s:\n", orgID)
	for _, key := range keys {
		status := "active"
		if key.IsRevoked() {
			status = "revoked"
		}
		role := "member"
		if key.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(w, "  %s: %s (%s, %s, created: %s)\n", key.ID, key.Name, role, status, key.CreatedAt.Format(timeLayout))
	}
	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key by its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return withAdminServices(cmd.Context(), func(ctx context.Context, s *adminServices) error {
				return runAPIKeyRevoke(ctx, cmd.OutOrStdout(), s.auth, args[0], outputFormat)
			})
		},
	}

	cmd.Flags().String("output", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(ctx context.Context, w io.Writer, authSvc *service.AuthService, keyID, outputFormat string) error {
	if err := authSvc.RevokeAPIKey(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(w, map[string]interface{}{
			"id":      keyID,
			"revoked": true,
		})
	}
	fmt.Fprintf(w, "API key %s revoked successfully\n", keyID)
	return nil
}
