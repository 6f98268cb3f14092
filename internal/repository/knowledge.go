package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/pagination"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const knowledgeColumns = `id, title, content, type, organization_id, created_at, updated_at`

type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

// Create inserts the entry and sets its store-assigned ID.
func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO knowledge_entries (title, content, type, embedding, organization_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		k.Title, k.Content, k.Type, vectorOrNil(k.Embedding), nullableString(k.OrganizationID), k.CreatedAt, k.UpdatedAt,
	).Scan(&k.ID)
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id int64) (*domain.KnowledgeEntry, error) {
	var k domain.KnowledgeEntry
	var orgID, embedding *string
	err := r.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+`, embedding::text
		 FROM knowledge_entries WHERE id = $1`,
		id,
	).Scan(&k.ID, &k.Title, &k.Content, &k.Type, &orgID, &k.CreatedAt, &k.UpdatedAt, &embedding)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	k.OrganizationID = stringOrEmpty(orgID)
	if k.Embedding, err = parseEmbedding(k.ID, embedding); err != nil {
		return nil, err
	}
	return &k, nil
}

// ListVisible returns the global entries plus those of filter.OrganizationID,
// newest first.
func (r *KnowledgeRepository) ListVisible(ctx context.Context, filter service.ListFilter) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeColumns+`, embedding::text
		 FROM knowledge_entries
		 WHERE organization_id IS NULL OR organization_id = $1
		 ORDER BY created_at DESC, id DESC`,
		nullableString(filter.OrganizationID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func (r *KnowledgeRepository) ListVisibleWithCursor(ctx context.Context, filter service.ListFilter, cursor *pagination.Cursor, limit int) (*service.KnowledgePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+knowledgeColumns+`, embedding::text
			 FROM knowledge_entries
			 WHERE (organization_id IS NULL OR organization_id = $1) AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			nullableString(filter.OrganizationID), cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+knowledgeColumns+`, embedding::text
			 FROM knowledge_entries
			 WHERE organization_id IS NULL OR organization_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			nullableString(filter.OrganizationID), limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanKnowledgeRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.CreatedAt)
	}

	return &service.KnowledgePageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ReplaceContent overwrites title, content and embedding together. A nil
// embedding clears the stored one.
func (r *KnowledgeRepository) ReplaceContent(ctx context.Context, id int64, title, content string, embedding []float32, updatedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries SET title = $1, content = $2, embedding = $3, updated_at = $4
		 WHERE id = $5`,
		title, content, vectorOrNil(embedding), updatedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

// UpdateEmbedding stores an embedding computed for content. It returns
// service.ErrStaleContent when the entry's content no longer matches.
func (r *KnowledgeRepository) UpdateEmbedding(ctx context.Context, id int64, content string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries SET embedding = $1 WHERE id = $2 AND content = $3`,
		pgvector.NewVector(embedding), id, content,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM knowledge_entries WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return service.ErrStaleContent
	}
	return domain.ErrKnowledgeNotFound
}

func (r *KnowledgeRepository) Delete(ctx context.Context, id int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

// SimilaritySearch ranks embedded entries by cosine similarity, keeping those
// strictly above threshold. Ties are broken by ascending id.
func (r *KnowledgeRepository) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.RetrievalResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeColumns+`, embedding::text, similarity
		 FROM (
			 SELECT `+knowledgeColumns+`, embedding, LEAST(1, GREATEST(0, 1 - (embedding <=> $1))) AS similarity
			 FROM knowledge_entries
			 WHERE embedding IS NOT NULL
		 ) ranked
		 WHERE similarity > $2
		 ORDER BY similarity DESC, id ASC
		 LIMIT $3`,
		pgvector.NewVector(embedding), threshold, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.RetrievalResult{}
	for rows.Next() {
		var k domain.KnowledgeEntry
		var orgID, embedding *string
		var similarity float64
		if err := rows.Scan(&k.ID, &k.Title, &k.Content, &k.Type, &orgID, &k.CreatedAt, &k.UpdatedAt, &embedding, &similarity); err != nil {
			return nil, err
		}
		k.OrganizationID = stringOrEmpty(orgID)
		if k.Embedding, err = parseEmbedding(k.ID, embedding); err != nil {
			return nil, err
		}
		results = append(results, domain.RetrievalResult{Entry: &k, Similarity: similarity})
	}
	return results, rows.Err()
}

func scanKnowledgeRows(rows pgx.Rows) ([]*domain.KnowledgeEntry, error) {
	results := []*domain.KnowledgeEntry{}
	for rows.Next() {
		var k domain.KnowledgeEntry
		var orgID, embedding *string
		if err := rows.Scan(&k.ID, &k.Title, &k.Content, &k.Type, &orgID, &k.CreatedAt, &k.UpdatedAt, &embedding); err != nil {
			return nil, err
		}
		k.OrganizationID = stringOrEmpty(orgID)
		var err error
		if k.Embedding, err = parseEmbedding(k.ID, embedding); err != nil {
			return nil, err
		}
		results = append(results, &k)
	}
	return results, rows.Err()
}

// parseEmbedding decodes the text form of a vector column. NULL is nil.
func parseEmbedding(id int64, text *string) ([]float32, error) {
	if text == nil {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Parse(*text); err != nil {
		return nil, fmt.Errorf("failed to parse embedding of entry %d: %w", id, err)
	}
	return v.Slice(), nil
}

func vectorOrNil(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
