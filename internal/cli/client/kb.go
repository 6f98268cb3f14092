package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// Knowledge represents a knowledge entry from the API.
type Knowledge struct {
	ID             int64  `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	OrganizationID string `json:"organization_id,omitempty"`
	Global         bool   `json:"global"`
	HasEmbedding   bool   `json:"has_embedding"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Scope names who the entry belongs to.
func (k Knowledge) Scope() string {
	if k.Global {
		return "global"
	}
	return "org " + k.OrganizationID
}

// IngestResult reports how many entries of a batch were stored.
type IngestResult struct {
	Processed int  `json:"processed"`
	Total     int  `json:"total"`
	Partial   bool `json:"partial"`
}

type knowledgePage struct {
	Items   []Knowledge `json:"items"`
	Cursor  string      `json:"cursor,omitempty"`
	HasMore bool        `json:"has_more"`
}

type importUpload struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
}

const importContentType = "application/json"

func KBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge base",
		Long: `List, read, and maintain knowledge entries.

Reads return the entries the API key may see: the organization's own entries
plus the global ones. Writes need an admin key and go to the key's scope.`,
	}

	cmd.AddCommand(KBListCmd())
	cmd.AddCommand(KBGetCmd())
	cmd.AddCommand(KBIngestCmd())
	cmd.AddCommand(KBImportCmd())
	cmd.AddCommand(KBUpdateCmd())
	cmd.AddCommand(KBDeleteCmd())

	return cmd
}

func KBListCmd() *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List knowledge entries",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runKBList(cmd.OutOrStdout(), api, limit, all, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Entries per page")
	cmd.Flags().BoolVar(&all, "all", false, "Follow cursors until every entry is listed")

	return cmd
}

func runKBList(w io.Writer, api *APIClient, limit int, all, outputJSON bool) error {
	var entries []Knowledge
	cursor := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		resp, err := api.Get("/knowledge?" + q.Encode())
		if err != nil {
			return fmt.Errorf("failed to list knowledge: %w", err)
		}

		var page knowledgePage
		if err := json.Unmarshal(resp.Data, &page); err != nil {
			return fmt.Errorf("failed to parse knowledge list: %w", err)
		}
		entries = append(entries, page.Items...)

		if !all || !page.HasMore || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	if outputJSON {
		if entries == nil {
			entries = []Knowledge{}
		}
		return writeJSON(w, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No knowledge entries found")
		return nil
	}
	for _, k := range entries {
		embedded := ""
		if !k.HasEmbedding {
			embedded = ", pending embedding"
		}
		fmt.Fprintf(w, "[%d] %s (%s, %s%s)\n", k.ID, k.Title, k.Type, k.Scope(), embedded)
	}
	return nil
}

func KBGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show a knowledge entry",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runKBGet(cmd.OutOrStdout(), api, id, outputJSON)
		},
	}
}

func runKBGet(w io.Writer, api *APIClient, id int64, outputJSON bool) error {
	resp, err := api.Get(fmt.Sprintf("/knowledge/%d", id))
	if err != nil {
		return fmt.Errorf("failed to get knowledge: %w", err)
	}

	var k Knowledge
	if err := json.Unmarshal(resp.Data, &k); err != nil {
		return fmt.Errorf("failed to parse knowledge: %w", err)
	}

	if outputJSON {
		return writeJSON(w, k)
	}

	fmt.Fprintf(w, "Title: %s\n", k.Title)
	fmt.Fprintf(w, "Type: %s\n", k.Type)
	fmt.Fprintf(w, "Scope: %s\n", k.Scope())
	fmt.Fprintf(w, "Embedded: %t\n", k.HasEmbedding)
	fmt.Fprintf(w, "Created: %s\n", k.CreatedAt)
	fmt.Fprintf(w, "Updated: %s\n", k.UpdatedAt)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Content ---")
	fmt.Fprintln(w, k.Content)
	return nil
}

type ingestEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ingestRequest struct {
	Type    string        `json:"type"`
	Entries []ingestEntry `json:"entries"`
}

func KBIngestCmd() *cobra.Command {
	var (
		entryType string
		title     string
		content   string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Add knowledge entries of one type",
		Long: `Add one entry with --title and --content, or a batch with --file.

The file holds a JSON array of {"title":...,"content":...} objects; use "-" for stdin.

Examples:
  zenith kb ingest --type faq --title "How do I reset my password?" --content "Use the reset link."
  zenith kb ingest --type documentation --file docs.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			req := ingestRequest{Type: entryType}
			if file != "" {
				data, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &req.Entries); err != nil {
					return fmt.Errorf("invalid entries file: %w", err)
				}
			} else {
				req.Entries = []ingestEntry{{Title: title, Content: content}}
			}

			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runKBIngest(cmd.OutOrStdout(), api, req, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&entryType, "type", "t", "", "Entry type: faq or documentation (required)")
	cmd.Flags().StringVar(&title, "title", "", "Entry title")
	cmd.Flags().StringVar(&content, "content", "", "Entry content")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of entries")
	_ = cmd.MarkFlagRequired("type")
	cmd.MarkFlagsMutuallyExclusive("file", "title")
	cmd.MarkFlagsMutuallyExclusive("file", "content")
	cmd.MarkFlagsRequiredTogether("title", "content")
	cmd.MarkFlagsOneRequired("file", "title")

	return cmd
}

func runKBIngest(w io.Writer, api *APIClient, req ingestRequest, outputJSON bool) error {
	resp, err := api.Post("/knowledge/ingest", req)
	if err != nil {
		return fmt.Errorf("failed to ingest knowledge: %w", err)
	}
	return printIngestResult(w, resp, outputJSON)
}

func KBImportCmd() *cobra.Command {
	var viaStorage bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a mixed FAQ and documentation payload",
		Long: `Import a JSON array of tagged items. Use "-" for stdin.

Each item is either {"type":"faq","question":...,"answer":...}
or {"type":"documentation","title":...,"content":...}.

Large payloads can go through object storage with --via-storage: the file is
uploaded to a presigned URL and the server imports it from there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			if viaStorage {
				return runKBImportViaStorage(cmd.OutOrStdout(), cmd.ErrOrStderr(), api, data, outputJSON)
			}
			return runKBImport(cmd.OutOrStdout(), api, data, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&viaStorage, "via-storage", false, "Upload the payload to object storage first")

	return cmd
}

func runKBImport(w io.Writer, api *APIClient, data []byte, outputJSON bool) error {
	resp, err := api.PostRaw("/knowledge/import", data)
	if err != nil {
		return fmt.Errorf("failed to import knowledge: %w", err)
	}
	return printIngestResult(w, resp, outputJSON)
}

func runKBImportViaStorage(w, progress io.Writer, api *APIClient, data []byte, outputJSON bool) error {
	resp, err := api.Post("/knowledge/import/upload", nil)
	if err != nil {
		return fmt.Errorf("failed to start upload: %w", err)
	}

	var upload importUpload
	if err := json.Unmarshal(resp.Data, &upload); err != nil {
		return fmt.Errorf("failed to parse upload: %w", err)
	}

	err = api.Upload(upload.UploadURL, data, importContentType, func(current, total int64) {
		if total > 0 {
			fmt.Fprintf(progress, "\rUploading... %d%%", current*100/total)
		}
	})
	fmt.Fprintln(progress)
	if err != nil {
		return err
	}

	resp, err = api.Post("/knowledge/import/from-storage", map[string]string{"key": upload.Key})
	if err != nil {
		return fmt.Errorf("failed to import knowledge: %w", err)
	}
	return printIngestResult(w, resp, outputJSON)
}

func printIngestResult(w io.Writer, resp *APIResponse, outputJSON bool) error {
	var res IngestResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}

	if outputJSON {
		return writeJSON(w, res)
	}

	fmt.Fprintf(w, "Stored %d of %d entries\n", res.Processed, res.Total)
	if res.Partial {
		fmt.Fprintf(w, "%d entries were skipped; check the server log\n", res.Total-res.Processed)
	}
	return nil
}

func KBUpdateCmd() *cobra.Command {
	var req ingestEntry

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the title and content of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runKBUpdate(cmd.OutOrStdout(), api, id, req, outputJSON)
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "New title (required)")
	cmd.Flags().StringVar(&req.Content, "content", "", "New content (required)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

func runKBUpdate(w io.Writer, api *APIClient, id int64, req ingestEntry, outputJSON bool) error {
	resp, err := api.Put(fmt.Sprintf("/knowledge/%d", id), req)
	if err != nil {
		return fmt.Errorf("failed to update knowledge: %w", err)
	}

	var k Knowledge
	if err := json.Unmarshal(resp.Data, &k); err != nil {
		return fmt.Errorf("failed to parse knowledge: %w", err)
	}

	if outputJSON {
		return writeJSON(w, k)
	}
	fmt.Fprintf(w, "Updated [%d] %s\n", k.ID, k.Title)
	return nil
}

func KBDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a knowledge entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runKBDelete(cmd.OutOrStdout(), api, id)
		},
	}
}

func runKBDelete(w io.Writer, api *APIClient, id int64) error {
	if _, err := api.Delete(fmt.Sprintf("/knowledge/%d", id)); err != nil {
		return fmt.Errorf("failed to delete knowledge: %w", err)
	}
	fmt.Fprintf(w, "Deleted [%d]\n", id)
	return nil
}

func parseEntryID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid knowledge ID: %s", s)
	}
	return id, nil
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

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
