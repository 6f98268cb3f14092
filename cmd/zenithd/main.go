package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/zenithvault/internal/cli"
	"github.com/cloo-solutions/zenithvault/internal/cli/admin"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "zenithd",
		Short:   "Zenith Vault server and administration",
		Long:    "Run the Zenith Vault API server, apply migrations, and manage organizations, API keys, and the knowledge base",
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.OrgCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.KBCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
