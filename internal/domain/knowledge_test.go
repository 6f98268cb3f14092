package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKnowledgeType(t *testing.T) {
	tests := []struct {
		input   string
		want    KnowledgeType
		wantErr bool
	}{
		{"faq", KnowledgeTypeFAQ, false},
		{" FAQ ", KnowledgeTypeFAQ, false},
		{"documentation", KnowledgeTypeDocumentation, false},
		{"guide", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKnowledgeType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidKnowledgeType)
				assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewKnowledgeEntry(t *testing.T) {
	now := time.Now().UTC()
	entry := NewKnowledgeEntry("Reset password", "Go to Settings > Security > Reset", KnowledgeTypeFAQ, []float32{0.1, 0.2}, "", now)

	assert.Zero(t, entry.ID)
	assert.Equal(t, "Reset password", entry.Title)
	assert.Equal(t, KnowledgeTypeFAQ, entry.Type)
	assert.True(t, entry.IsGlobal())
	assert.True(t, entry.HasEmbedding())
	assert.Equal(t, now, entry.CreatedAt)
	assert.Equal(t, now, entry.UpdatedAt)
}

func TestKnowledgeEntryVisibleTo(t *testing.T) {
	global := &KnowledgeEntry{OrganizationID: ""}
	scoped := &KnowledgeEntry{OrganizationID: "org-a"}

	assert.True(t, global.VisibleTo(""))
	assert.True(t, global.VisibleTo("org-b"))
	assert.True(t, scoped.VisibleTo("org-a"))
	assert.False(t, scoped.VisibleTo("org-b"))
	assert.False(t, scoped.VisibleTo(""))
}

func TestIngestEntryValidate(t *testing.T) {
	assert.NoError(t, IngestEntry{Title: "Q1", Content: "A1"}.Validate())
	assert.ErrorContains(t, IngestEntry{Title: " ", Content: "A1"}.Validate(), "title")
	assert.ErrorContains(t, IngestEntry{Title: "Q1", Content: ""}.Validate(), "content")
}

func TestValidateKnowledgeEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   *KnowledgeEntry
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid entry",
			entry: &KnowledgeEntry{Title: "Q", Content: "A", Type: KnowledgeTypeFAQ},
		},
		{
			name:    "nil entry",
			wantErr: true,
			errMsg:  "nil",
		},
		{
			name:    "missing Title",
			entry:   &KnowledgeEntry{Content: "A", Type: KnowledgeTypeFAQ},
			wantErr: true,
			errMsg:  "Title",
		},
		{
			name:    "missing Content",
			entry:   &KnowledgeEntry{Title: "Q", Type: KnowledgeTypeDocumentation},
			wantErr: true,
			errMsg:  "Content",
		},
		{
			name:    "invalid Type",
			entry:   &KnowledgeEntry{Title: "Q", Content: "A", Type: KnowledgeType("policy")},
			wantErr: true,
			errMsg:  "Type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKnowledgeEntry(tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
