package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// Citation is a knowledge entry an answer was grounded on.
type Citation struct {
	ID         int64   `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// Answer is the response of POST /answer.
type Answer struct {
	ResponseText string     `json:"response_text"`
	Sources      []int64    `json:"sources"`
	Citations    []Citation `json:"citations"`
	Grounded     bool       `json:"grounded"`
	AnswerID     string     `json:"answer_id,omitempty"`
}

type caseContext struct {
	CaseID      string `json:"case_id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
}

type askRequest struct {
	Question    string       `json:"question"`
	CaseContext *caseContext `json:"case_context,omitempty"`
}

func AskCmd() *cobra.Command {
	var cc caseContext

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a customer question from the knowledge base",
		Long: `Ask a question and get an answer grounded only in the knowledge base.

Examples:
  zenith ask "How do I reset my password?"

  # Attach the support case the question came from
  zenith ask "Where is my invoice?" --case-id 4711 --subject "Billing"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			req := askRequest{Question: strings.Join(args, " ")}
			if cc != (caseContext{}) {
				req.CaseContext = &cc
			}
			return runAsk(cmd.OutOrStdout(), api, req, outputJSON)
		},
	}

	cmd.Flags().StringVar(&cc.CaseID, "case-id", "", "Support case ID")
	cmd.Flags().StringVar(&cc.Subject, "subject", "", "Support case subject")
	cmd.Flags().StringVar(&cc.Description, "description", "", "Support case description")

	return cmd
}

func runAsk(w io.Writer, api *APIClient, req askRequest, outputJSON bool) error {
	resp, err := api.Post("/answer", req)
	if err != nil {
		return fmt.Errorf("failed to get answer: %w", err)
	}

	var answer Answer
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		return writeJSON(w, answer)
	}

	fmt.Fprintln(w, answer.ResponseText)
	if !answer.Grounded {
		fmt.Fprintln(w, "\n(no matching knowledge; not grounded)")
	}
	if len(answer.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, c := range answer.Citations {
			fmt.Fprintf(w, "  [%d] %s (%s, %.2f)\n", c.ID, c.Title, c.Type, c.Similarity)
		}
	}
	if answer.AnswerID != "" {
		fmt.Fprintf(w, "\nAnswer ID: %s\n", answer.AnswerID)
	}
	return nil
}

// RetrievalResult is one entry returned by POST /retrieve.
type RetrievalResult struct {
	Entry      Knowledge `json:"entry"`
	Similarity float64   `json:"similarity"`
}

type retrieveRequest struct {
	Question  string  `json:"question"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func RetrieveCmd() *cobra.Command {
	var req retrieveRequest

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Show the knowledge that would ground an answer",
		Long:  "Run retrieval only and list the matching entries with their similarity, without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			req.Question = strings.Join(args, " ")
			return runRetrieve(cmd.OutOrStdout(), api, req, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 0, "Maximum number of entries (server default when 0)")
	cmd.Flags().Float64Var(&req.Threshold, "threshold", 0, "Minimum similarity (server default when 0)")

	return cmd
}

func runRetrieve(w io.Writer, api *APIClient, req retrieveRequest, outputJSON bool) error {
	resp, err := api.Post("/retrieve", req)
	if err != nil {
		return fmt.Errorf("failed to retrieve: %w", err)
	}

	var results []RetrievalResult
	if err := json.Unmarshal(resp.Data, &results); err != nil {
		return fmt.Errorf("failed to parse results: %w", err)
	}

	if outputJSON {
		return writeJSON(w, results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No matching knowledge")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(w, "%.3f  [%d] %s (%s, %s)\n", r.Similarity, r.Entry.ID, r.Entry.Title, r.Entry.Type, r.Entry.Scope())
	}
	return nil
}

func FeedbackCmd() *cobra.Command {
	var helpful, notHelpful bool

	cmd := &cobra.Command{
		Use:   "feedback <answer-id>",
		Short: "Record whether an answer helped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runFeedback(cmd.OutOrStdout(), api, args[0], helpful)
		},
	}

	cmd.Flags().BoolVar(&helpful, "helpful", false, "The answer helped")
	cmd.Flags().BoolVar(&notHelpful, "not-helpful", false, "The answer did not help")
	cmd.MarkFlagsMutuallyExclusive("helpful", "not-helpful")
	cmd.MarkFlagsOneRequired("helpful", "not-helpful")

	return cmd
}

func runFeedback(w io.Writer, api *APIClient, answerID string, helpful bool) error {
	if _, err := api.Post("/answers/"+url.PathEscape(answerID)+"/feedback", map[string]bool{"helpful": helpful}); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	fmt.Fprintf(w, "Feedback recorded for answer %s\n", answerID)
	return nil
}
