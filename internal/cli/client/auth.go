package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Login, logout, and check which API key the zenith CLI uses",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

func AuthLoginCmd() *cobra.Command {
	var (
		apiKey  string
		apiURL  string
		timeout string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with API key",
		Long:  "Store API key and URL in the global config (~/.config/zenith/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The root command's --api-key is the same flag.
			if apiKey == "" {
				apiKey, _ = cmd.Flags().GetString("api-key")
			}
			return runAuthLogin(cmd.InOrStdin(), cmd.OutOrStdout(), &GlobalConfig{
				APIKey:  apiKey,
				APIURL:  apiURL,
				Timeout: timeout,
			})
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key (zv_...)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Request timeout, e.g. 90s (default 60s)")

	return cmd
}

func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear credentials",
		Long:  "Remove stored credentials from the global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout())
		},
	}
}

func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the current credential source and the masked API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAuthStatus(cmd.OutOrStdout(), outputJSON)
		},
	}
}

func runAuthLogin(stdin io.Reader, w io.Writer, config *GlobalConfig) error {
	if config.APIKey == "" {
		fmt.Fprint(w, "Enter API key: ")
		input, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && input == "" {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		config.APIKey = strings.TrimSpace(input)
	}

	if !IsValidAPIKey(config.APIKey) {
		return fmt.Errorf("invalid API key format (expected: zv_ + 64 hex characters)")
	}

	if err := SaveGlobalConfig(config); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(w, "Successfully logged in")
	return nil
}

func runAuthLogout(w io.Writer) error {
	if err := DeleteGlobalConfig(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	fmt.Fprintln(w, "Successfully logged out")
	return nil
}

func runAuthStatus(w io.Writer, outputJSON bool) error {
	source, apiKey, apiURL := GetCredentialSource("", "")

	if outputJSON {
		status := map[string]interface{}{
			"authenticated": source != SourceNone,
			"source":        string(source),
		}
		if source != SourceNone {
			status["api_key"] = maskAPIKey(apiKey)
			status["api_url"] = apiURL
		}
		return writeJSON(w, status)
	}

	if source == SourceNone {
		fmt.Fprintln(w, "Not authenticated")
		fmt.Fprintln(w, "Run 'zenith auth login' to authenticate")
		return nil
	}

	fmt.Fprintln(w, "Authenticated: yes")
	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintf(w, "API Key: %s\n", maskAPIKey(apiKey))
	fmt.Fprintf(w, "API URL: %s\n", apiURL)
	return nil
}

func maskAPIKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
