package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KnowledgeImportItem is one element of a bulk import payload. The concrete
// variant is selected by the payload's "type" field.
type KnowledgeImportItem interface {
	Kind() KnowledgeType
	Entry() IngestEntry
	Validate() error
}

// FAQImportItem is an import item of type "faq".
type FAQImportItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (FAQImportItem) Kind() KnowledgeType { return KnowledgeTypeFAQ }

func (i FAQImportItem) Entry() IngestEntry {
	return IngestEntry{Title: strings.TrimSpace(i.Question), Content: strings.TrimSpace(i.Answer)}
}

func (i FAQImportItem) Validate() error {
	if strings.TrimSpace(i.Question) == "" {
		return fmt.Errorf("faq question is required")
	}
	if strings.TrimSpace(i.Answer) == "" {
		return fmt.Errorf("faq answer is required")
	}
	return nil
}

// DocumentationImportItem is an import item of type "documentation".
type DocumentationImportItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (DocumentationImportItem) Kind() KnowledgeType { return KnowledgeTypeDocumentation }

func (i DocumentationImportItem) Entry() IngestEntry {
	return IngestEntry{Title: strings.TrimSpace(i.Title), Content: strings.TrimSpace(i.Content)}
}

func (i DocumentationImportItem) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("documentation title is required")
	}
	if strings.TrimSpace(i.Content) == "" {
		return fmt.Errorf("documentation content is required")
	}
	return nil
}

// ParseImportItems decodes a JSON array of tagged import items and validates
// every element. The whole payload is rejected if any element is malformed.
func ParseImportItems(data []byte) ([]KnowledgeImportItem, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrInvalidImportPayload.WithCause(err)
	}

	items := make([]KnowledgeImportItem, 0, len(raw))
	for i, msg := range raw {
		item, err := decodeImportItem(msg)
		if err != nil {
			return nil, ErrInvalidImportPayload.WithCause(fmt.Errorf("item %d: %w", i, err))
		}
		items = append(items, item)
	}

	if err := ValidateImportItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// ValidateImportItems checks an already decoded payload.
func ValidateImportItems(items []KnowledgeImportItem) error {
	if len(items) == 0 {
		return ErrInvalidImportPayload.WithCause(fmt.Errorf("no items"))
	}
	for i, item := range items {
		if item == nil {
			return ErrInvalidImportPayload.WithCause(fmt.Errorf("item %d: missing", i))
		}
		if err := item.Validate(); err != nil {
			return ErrInvalidImportPayload.WithCause(fmt.Errorf("item %d: %w", i, err))
		}
	}
	return nil
}

func decodeImportItem(msg json.RawMessage) (KnowledgeImportItem, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return nil, err
	}

	switch KnowledgeType(strings.ToLower(strings.TrimSpace(probe.Type))) {
	case KnowledgeTypeFAQ:
		var item FAQImportItem
		if err := json.Unmarshal(msg, &item); err != nil {
			return nil, err
		}
		return item, nil
	case KnowledgeTypeDocumentation:
		var item DocumentationImportItem
		if err := json.Unmarshal(msg, &item); err != nil {
			return nil, err
		}
		return item, nil
	case "":
		return nil, fmt.Errorf("type is required")
	default:
		return nil, fmt.Errorf("unknown type %q", probe.Type)
	}
}
