package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAnswerRecord(t *testing.T) {
	now := time.Now().UTC()
	rec := NewAnswerRecord("ans-1", "How do I reset my password?", "Use Settings.", []int64{3, 1},
		ContextScope{OrganizationID: "org-a", CaseID: "case-9"}, 1500*time.Millisecond, now)

	assert.Equal(t, "ans-1", rec.ID)
	assert.Equal(t, []int64{3, 1}, rec.CitedEntryIDs)
	assert.True(t, rec.Grounded)
	assert.Equal(t, int64(1500), rec.DurationMS)
	assert.Equal(t, "case-9", rec.ContextScope.CaseID)
	assert.Nil(t, rec.Helpful)
}

func TestNewAnswerRecordUngrounded(t *testing.T) {
	rec := NewAnswerRecord("ans-2", "Refund policy?", "We cannot confirm.", nil, ContextScope{}, 0, time.Now())

	assert.NotNil(t, rec.CitedEntryIDs)
	assert.Empty(t, rec.CitedEntryIDs)
	assert.False(t, rec.Grounded)
}

func TestCaseContextIsEmpty(t *testing.T) {
	var nilCtx *CaseContext
	assert.True(t, nilCtx.IsEmpty())
	assert.True(t, (&CaseContext{CaseID: "c1"}).IsEmpty())
	assert.False(t, (&CaseContext{Subject: "Login broken"}).IsEmpty())
}
