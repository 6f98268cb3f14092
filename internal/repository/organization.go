package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

type OrgRepository struct {
	pool *pgxpool.Pool
}

func NewOrgRepository(pool *pgxpool.Pool) *OrgRepository {
	return &OrgRepository{pool: pool}
}

func (r *OrgRepository) Create(ctx context.Context, org *domain.Organization) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrOrganizationAlreadyExists
	}
	return err
}

func (r *OrgRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id)
}

func (r *OrgRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM organizations WHERE name = $1`, name)
}

func (r *OrgRepository) getOne(ctx context.Context, query string, arg string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.pool.QueryRow(ctx, query, arg).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrgRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, created_at FROM organizations ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []*domain.Organization{}
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
