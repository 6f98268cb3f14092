package service

import (
	"strings"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBuildPrompt(t *testing.T) {
	results := []domain.RetrievalResult{
		{Entry: &domain.KnowledgeEntry{ID: 12, Title: "Reset password", Content: "Use the reset link on the login page."}, Similarity: 0.92},
		{Entry: &domain.KnowledgeEntry{ID: 3, Title: "Account lockout", Content: "Accounts unlock after 15 minutes."}, Similarity: 0.81},
	}
	caseCtx := &domain.CaseContext{CaseID: "case-1", Subject: "Locked out", Description: "Customer cannot log in."}

	prompt := buildPrompt(defaultSystemPrompt, "How do I reset my password?", caseCtx, results, defaultMaxSourceChars)

	assert.Equal(t, defaultSystemPrompt, prompt.System)
	user := prompt.User
	caseIdx := strings.Index(user, "Subject: Locked out")
	firstIdx := strings.Index(user, "[source:12] Reset password")
	secondIdx := strings.Index(user, "[source:3] Account lockout")
	questionIdx := strings.Index(user, "Question: How do I reset my password?")

	assert.True(t, caseIdx >= 0 && firstIdx > caseIdx, "case context comes first")
	assert.True(t, secondIdx > firstIdx, "sources keep ranked order")
	assert.True(t, questionIdx > secondIdx, "question comes last")
	assert.Contains(t, user, "Description: Customer cannot log in.")
}

func TestBuildPrompt_NoSources(t *testing.T) {
	prompt := buildPrompt(defaultSystemPrompt, "What is the meaning of life?", nil, nil, defaultMaxSourceChars)

	assert.Contains(t, prompt.User, "none matched")
	assert.NotContains(t, prompt.User, "Service case context")
	assert.NotContains(t, prompt.User, "[source:")
}

func TestBuildPrompt_TruncatesLongSources(t *testing.T) {
	results := []domain.RetrievalResult{{Entry: &domain.KnowledgeEntry{ID: 1, Title: "Long", Content: strings.Repeat("é", 50)}}}

	prompt := buildPrompt("", "q", nil, results, 10)

	assert.Contains(t, prompt.User, strings.Repeat("é", 10)+"…")
	assert.NotContains(t, prompt.User, strings.Repeat("é", 11))
}

func TestPrompt_String(t *testing.T) {
	assert.Equal(t, "user", Prompt{User: "user"}.String())
	assert.Equal(t, "sys\n\nuser", Prompt{System: "sys", User: "user"}.String())
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name     string
		response string
		supplied []int64
		wantText string
		wantIDs  []int64
	}{
		{
			name:     "cited subset in order of appearance",
			response: "Use the reset link [source:12]. Locked accounts unlock later [Source: 3].",
			supplied: []int64{3, 12, 40},
			wantText: "Use the reset link. Locked accounts unlock later.",
			wantIDs:  []int64{12, 3},
		},
		{
			name:     "duplicates collapse",
			response: "A [source:1] B [source:1]",
			supplied: []int64{1, 2},
			wantText: "A B",
			wantIDs:  []int64{1},
		},
		{
			name:     "unknown ids are ignored",
			response: "Answer [source:99].",
			supplied: []int64{1, 2},
			wantText: "Answer.",
			wantIDs:  []int64{1, 2},
		},
		{
			name:     "no markers attributes every supplied source",
			response: "Use the reset link.",
			supplied: []int64{5, 6},
			wantText: "Use the reset link.",
			wantIDs:  []int64{5, 6},
		},
		{
			name:     "nothing supplied yields no sources",
			response: "I could not find this [source:4].",
			supplied: nil,
			wantText: "I could not find this.",
			wantIDs:  []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ids := extractCitations(tt.response, tt.supplied)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestExtractCitations_SourcesAreSubsetOfSupplied(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		supplied := rapid.SliceOfDistinct(rapid.Int64Range(1, 50), func(id int64) int64 { return id }).Draw(t, "supplied")
		cited := rapid.SliceOf(rapid.Int64Range(1, 60)).Draw(t, "cited")

		var b strings.Builder
		for _, id := range cited {
			b.WriteString("text ")
			b.WriteString(sourceMarker(id))
			b.WriteString(" ")
		}

		text, ids := extractCitations(b.String(), supplied)

		if strings.Contains(text, "[source:") {
			t.Fatalf("marker left in text: %q", text)
		}
		known := map[int64]bool{}
		for _, id := range supplied {
			known[id] = true
		}
		seen := map[int64]bool{}
		for _, id := range ids {
			if !known[id] {
				t.Fatalf("source %d was not supplied", id)
			}
			if seen[id] {
				t.Fatalf("source %d repeated", id)
			}
			seen[id] = true
		}
		if len(supplied) == 0 && len(ids) != 0 {
			t.Fatalf("sources without supplied entries: %v", ids)
		}
		if len(supplied) > 0 && len(ids) == 0 {
			t.Fatalf("supplied entries but no sources")
		}
	})
}
