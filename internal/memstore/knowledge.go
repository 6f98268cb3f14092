package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/pagination"
	"github.com/cloo-solutions/zenithvault/internal/service"
)

// KnowledgeRepository stores knowledge entries and ranks them by cosine
// similarity with a linear scan.
type KnowledgeRepository struct {
	handle
}

func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	if err := domain.ValidateKnowledgeEntry(k); err != nil {
		return domain.ErrInvalidInput.WithCause(err)
	}
	defer r.lock()()

	r.s.nextEntryID++
	k.ID = r.s.nextEntryID
	r.s.entries[k.ID] = cloneEntry(k)
	return nil
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id int64) (*domain.KnowledgeEntry, error) {
	defer r.rlock()()

	e, ok := r.s.entries[id]
	if !ok {
		return nil, domain.ErrKnowledgeNotFound
	}
	return cloneEntry(e), nil
}

// ListVisible returns the global entries plus those of filter.OrganizationID,
// newest first.
func (r *KnowledgeRepository) ListVisible(ctx context.Context, filter service.ListFilter) ([]*domain.KnowledgeEntry, error) {
	defer r.rlock()()
	return r.visibleSorted(filter, nil), nil
}

func (r *KnowledgeRepository) ListVisibleWithCursor(ctx context.Context, filter service.ListFilter, cursor *pagination.Cursor, limit int) (*service.KnowledgePageResult, error) {
	if limit <= 0 {
		limit = 20
	}
	defer r.rlock()()

	items := r.visibleSorted(filter, cursor)
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var next string
	if hasMore {
		last := items[len(items)-1]
		next = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return &service.KnowledgePageResult{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

// visibleSorted orders by (created_at, id) descending and keeps the entries
// strictly after cursor.
func (r *KnowledgeRepository) visibleSorted(filter service.ListFilter, cursor *pagination.Cursor) []*domain.KnowledgeEntry {
	items := []*domain.KnowledgeEntry{}
	for _, e := range r.s.entries {
		if !e.IsGlobal() && (filter.OrganizationID == "" || e.OrganizationID != filter.OrganizationID) {
			continue
		}
		if cursor != nil && !before(e, cursor.Timestamp, cursor.LastID) {
			continue
		}
		items = append(items, cloneEntry(e))
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return items
}

// before reports whether e sorts strictly below (ts, id).
func before(e *domain.KnowledgeEntry, ts time.Time, id int64) bool {
	if e.CreatedAt.Equal(ts) {
		return e.ID < id
	}
	return e.CreatedAt.Before(ts)
}

func (r *KnowledgeRepository) ReplaceContent(ctx context.Context, id int64, title, content string, embedding []float32, updatedAt time.Time) error {
	defer r.lock()()

	e, ok := r.s.entries[id]
	if !ok {
		return domain.ErrKnowledgeNotFound
	}
	e.Title = title
	e.Content = content
	e.Embedding = copyVector(embedding)
	e.UpdatedAt = updatedAt
	return nil
}

func (r *KnowledgeRepository) UpdateEmbedding(ctx context.Context, id int64, content string, embedding []float32) error {
	defer r.lock()()

	e, ok := r.s.entries[id]
	if !ok {
		return domain.ErrKnowledgeNotFound
	}
	if e.Content != content {
		return service.ErrStaleContent
	}
	e.Embedding = copyVector(embedding)
	return nil
}

func (r *KnowledgeRepository) Delete(ctx context.Context, id int64) error {
	defer r.lock()()

	if _, ok := r.s.entries[id]; !ok {
		return domain.ErrKnowledgeNotFound
	}
	delete(r.s.entries, id)
	for jobID, j := range r.s.jobs {
		if j.EntryID == id {
			delete(r.s.jobs, jobID)
		}
	}
	return nil
}

// SimilaritySearch keeps entries strictly above threshold, most similar
// first, ties by ascending id.
func (r *KnowledgeRepository) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.RetrievalResult, error) {
	defer r.rlock()()

	results := []domain.RetrievalResult{}
	for _, e := range r.s.entries {
		if !e.HasEmbedding() {
			continue
		}
		if len(e.Embedding) != len(embedding) {
			return nil, fmt.Errorf("different vector dimensions %d and %d", len(e.Embedding), len(embedding))
		}
		sim := cosineSimilarity(e.Embedding, embedding)
		if sim <= threshold {
			continue
		}
		results = append(results, domain.RetrievalResult{Entry: cloneEntry(e), Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity is clamped to [0,1]. A zero vector is similar to nothing.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

func cloneEntry(e *domain.KnowledgeEntry) *domain.KnowledgeEntry {
	c := *e
	c.Embedding = copyVector(e.Embedding)
	return &c
}

func copyVector(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
