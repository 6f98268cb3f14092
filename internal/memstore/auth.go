package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
)

type OrgRepository struct {
	handle
}

func (r *OrgRepository) Create(ctx context.Context, org *domain.Organization) error {
	defer r.lock()()

	for _, o := range r.s.orgs {
		if o.ID == org.ID || o.Name == org.Name {
			return domain.ErrOrganizationAlreadyExists
		}
	}
	c := *org
	r.s.orgs[org.ID] = &c
	return nil
}

func (r *OrgRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	defer r.rlock()()

	o, ok := r.s.orgs[id]
	if !ok {
		return nil, domain.ErrOrganizationNotFound
	}
	c := *o
	return &c, nil
}

func (r *OrgRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	defer r.rlock()()

	for _, o := range r.s.orgs {
		if o.Name == name {
			c := *o
			return &c, nil
		}
	}
	return nil, domain.ErrOrganizationNotFound
}

// List returns organizations newest first.
func (r *OrgRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	defer r.rlock()()

	orgs := make([]*domain.Organization, 0, len(r.s.orgs))
	for _, o := range r.s.orgs {
		c := *o
		orgs = append(orgs, &c)
	}
	sort.Slice(orgs, func(i, j int) bool {
		if !orgs[i].CreatedAt.Equal(orgs[j].CreatedAt) {
			return orgs[i].CreatedAt.After(orgs[j].CreatedAt)
		}
		return orgs[i].ID > orgs[j].ID
	})
	return orgs, nil
}

type APIKeyRepository struct {
	handle
}

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	defer r.lock()()

	for _, k := range r.s.keys {
		if k.ID == key.ID || k.KeyHash == key.KeyHash {
			return domain.ErrAPIKeyAlreadyExists
		}
	}
	if key.OrgID != "" {
		if _, ok := r.s.orgs[key.OrgID]; !ok {
			return domain.ErrOrganizationNotFound
		}
	}
	r.s.keys[key.ID] = cloneKey(key)
	return nil
}

func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	defer r.rlock()()

	for _, k := range r.s.keys {
		if k.KeyHash == hash {
			return cloneKey(k), nil
		}
	}
	return nil, domain.ErrAPIKeyNotFound
}

// GetByOrgID lists the keys of an organization, or the platform keys when
// orgID is empty, newest first.
func (r *APIKeyRepository) GetByOrgID(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	defer r.rlock()()

	keys := []*domain.APIKey{}
	for _, k := range r.s.keys {
		if k.OrgID == orgID {
			keys = append(keys, cloneKey(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

// Revoke fails with ErrAPIKeyNotFound for unknown and already revoked keys.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	defer r.lock()()

	k, ok := r.s.keys[id]
	if !ok || k.IsRevoked() {
		return domain.ErrAPIKeyNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return nil
}

func cloneKey(k *domain.APIKey) *domain.APIKey {
	c := *k
	if k.RevokedAt != nil {
		t := *k.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

type AnswerLogRepository struct {
	handle
}

func (r *AnswerLogRepository) Create(ctx context.Context, record *domain.AnswerRecord) error {
	defer r.lock()()

	c := *record
	c.CitedEntryIDs = append([]int64{}, record.CitedEntryIDs...)
	r.s.answers[record.ID] = &c
	return nil
}

// RecordFeedback only matches answers given to organizationID.
func (r *AnswerLogRepository) RecordFeedback(ctx context.Context, organizationID, answerID string, helpful bool) error {
	defer r.lock()()

	a, ok := r.s.answers[answerID]
	if !ok || a.ContextScope.OrganizationID != organizationID {
		return domain.ErrAnswerNotFound
	}
	a.Helpful = &helpful
	return nil
}

// Answer returns a logged answer, for inspection in tests.
func (r *AnswerLogRepository) Answer(id string) (*domain.AnswerRecord, bool) {
	defer r.rlock()()

	a, ok := r.s.answers[id]
	if !ok {
		return nil, false
	}
	c := *a
	return &c, true
}
