package domain

import (
	"fmt"
	"time"
)

// RetrievalResult pairs an entry with its similarity to a query.
type RetrievalResult struct {
	Entry      *KnowledgeEntry
	Similarity float64 // in [0,1]
}

// CaseContext is the situational context of a service case the question was asked from.
type CaseContext struct {
	CaseID      string
	Subject     string
	Description string
}

// IsEmpty reports whether the context carries no text to ground on.
func (c *CaseContext) IsEmpty() bool {
	return c == nil || (c.Subject == "" && c.Description == "")
}

// ContextScope records where an answer was requested from.
type ContextScope struct {
	OrganizationID string
	CaseID         string
}

// AnswerRecord is a persisted question and its grounded answer.
type AnswerRecord struct {
	ID            string
	Question      string
	AnswerText    string
	CitedEntryIDs []int64
	ContextScope  ContextScope
	Grounded      bool
	DurationMS    int64
	Helpful       *bool
	CreatedAt     time.Time
}

// NewAnswerRecord creates a new AnswerRecord instance
func NewAnswerRecord(id, question, answerText string, cited []int64, scope ContextScope, duration time.Duration, createdAt time.Time) *AnswerRecord {
	if cited == nil {
		cited = []int64{}
	}
	return &AnswerRecord{
		ID:            id,
		Question:      question,
		AnswerText:    answerText,
		CitedEntryIDs: cited,
		ContextScope:  scope,
		Grounded:      len(cited) > 0,
		DurationMS:    duration.Milliseconds(),
		CreatedAt:     createdAt,
	}
}

// PipelineStage is a step of a single question/answer invocation.
type PipelineStage string

const (
	StageIdle       PipelineStage = "idle"
	StageEmbedding  PipelineStage = "embedding"
	StageRetrieving PipelineStage = "retrieving"
	StageComposing  PipelineStage = "composing"
	StageGenerating PipelineStage = "generating"
	StageSuccess    PipelineStage = "success"
	StageFailed     PipelineStage = "failed"
)

// IsTerminal reports whether no further transition can follow the stage.
func (s PipelineStage) IsTerminal() bool {
	return s == StageSuccess || s == StageFailed
}

// PipelineError reports the stage an answer invocation failed in. The
// wrapped error carries the domain code.
type PipelineError struct {
	Stage PipelineStage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("answer failed during %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
