package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/zenithvault/internal/cli"
	"github.com/cloo-solutions/zenithvault/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "zenith",
		Short: "Zenith Vault CLI - grounded answers for customer support",
		Long: `Zenith Vault CLI asks questions against the knowledge base and maintains it.

Environment variables:
  ZENITH_API_KEY   API key for authentication (required)
  ZENITH_API_URL   API base URL (default: http://localhost:8080)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.RetrieveCmd())
	rootCmd.AddCommand(client.FeedbackCmd())
	rootCmd.AddCommand(client.KBCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
