package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apiKeyColumns = `id, org_id, name, key_hash, is_admin, created_at, revoked_at`

type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, nullableString(key.OrgID), key.Name, key.KeyHash, key.IsAdmin, key.CreatedAt, key.RevokedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAPIKeyAlreadyExists
	}
	return err
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return r.getOne(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
}

func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return r.getOne(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
}

func (r *APIKeyRepository) getOne(ctx context.Context, query, arg string) (*domain.APIKey, error) {
	key, err := scanAPIKey(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return key, nil
}

// GetByOrgID lists the keys of an organization, or the platform keys when
// orgID is empty.
func (r *APIKeyRepository) GetByOrgID(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+apiKeyColumns+`
		 FROM api_keys WHERE org_id IS NOT DISTINCT FROM $1 ORDER BY created_at DESC`,
		nullableString(orgID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []*domain.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	now := time.Now().UTC()
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var key domain.APIKey
	var orgID *string
	if err := row.Scan(&key.ID, &orgID, &key.Name, &key.KeyHash, &key.IsAdmin, &key.CreatedAt, &key.RevokedAt); err != nil {
		return nil, err
	}
	key.OrgID = stringOrEmpty(orgID)
	return &key, nil
}
