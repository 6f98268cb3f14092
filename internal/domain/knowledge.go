package domain

import (
	"fmt"
	"strings"
	"time"
)

// KnowledgeType represents the type of knowledge entry
type KnowledgeType string

const (
	KnowledgeTypeFAQ           KnowledgeType = "faq"
	KnowledgeTypeDocumentation KnowledgeType = "documentation"
)

// ParseKnowledgeType converts a raw string into a KnowledgeType.
func ParseKnowledgeType(s string) (KnowledgeType, error) {
	t := KnowledgeType(strings.ToLower(strings.TrimSpace(s)))
	if !isValidKnowledgeType(t) {
		return "", ErrInvalidKnowledgeType.WithCause(fmt.Errorf("unknown type %q", s))
	}
	return t, nil
}

// KnowledgeEntry is a single FAQ answer or documentation section.
type KnowledgeEntry struct {
	ID             int64
	Title          string
	Content        string
	Type           KnowledgeType
	Embedding      []float32 // nil until computed
	OrganizationID string    // empty means globally visible
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewKnowledgeEntry creates a new KnowledgeEntry instance. The ID is assigned
// by the store on creation.
func NewKnowledgeEntry(
	title, content string,
	knowledgeType KnowledgeType,
	embedding []float32,
	organizationID string,
	now time.Time,
) *KnowledgeEntry {
	return &KnowledgeEntry{
		Title:          title,
		Content:        content,
		Type:           knowledgeType,
		Embedding:      embedding,
		OrganizationID: organizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsGlobal reports whether the entry is visible to every tenant.
func (k *KnowledgeEntry) IsGlobal() bool {
	return k.OrganizationID == ""
}

// HasEmbedding reports whether an embedding has been computed for the current content.
func (k *KnowledgeEntry) HasEmbedding() bool {
	return len(k.Embedding) > 0
}

// VisibleTo reports whether a caller of organizationID may read the entry.
func (k *KnowledgeEntry) VisibleTo(organizationID string) bool {
	return k.IsGlobal() || k.OrganizationID == organizationID
}

// IngestEntry is the text of one entry to ingest.
type IngestEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate checks that both fields carry text.
func (e IngestEntry) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// ValidateKnowledgeEntry validates a KnowledgeEntry instance
func ValidateKnowledgeEntry(k *KnowledgeEntry) error {
	if k == nil {
		return fmt.Errorf("knowledge entry cannot be nil")
	}

	if strings.TrimSpace(k.Title) == "" {
		return fmt.Errorf("knowledge entry Title is required")
	}

	if strings.TrimSpace(k.Content) == "" {
		return fmt.Errorf("knowledge entry Content is required")
	}

	if !isValidKnowledgeType(k.Type) {
		return fmt.Errorf("knowledge entry Type is invalid: %s", k.Type)
	}

	return nil
}

// isValidKnowledgeType checks if a KnowledgeType is valid
func isValidKnowledgeType(t KnowledgeType) bool {
	switch t {
	case KnowledgeTypeFAQ, KnowledgeTypeDocumentation:
		return true
	}
	return false
}
