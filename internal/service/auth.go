package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
)

const apiKeyPrefix = "zv_"

type OrgRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetByName(ctx context.Context, name string) (*domain.Organization, error)
	List(ctx context.Context) ([]*domain.Organization, error)
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByOrgID(ctx context.Context, orgID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// AuthService is the tenant/session provider: it issues API keys and
// resolves them to the caller identity the pipeline runs as.
type AuthService struct {
	orgRepo OrgRepository
	keyRepo APIKeyRepository
	uuidGen UUIDGenerator
}

func NewAuthService(orgRepo OrgRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &AuthService{
		orgRepo: orgRepo,
		keyRepo: keyRepo,
		uuidGen: uuidGen,
	}
}

func (s *AuthService) CreateOrg(ctx context.Context, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "organization name is required")
	}

	if _, err := s.orgRepo.GetByName(ctx, name); err == nil {
		return nil, domain.ErrOrganizationAlreadyExists
	} else if !errors.Is(err, domain.ErrOrganizationNotFound) {
		return nil, err
	}

	org := domain.NewOrganization(s.uuidGen.NewString(), name, time.Now().UTC())
	if err := domain.ValidateOrganization(org); err != nil {
		return nil, domain.ErrInvalidInput.WithCause(err)
	}

	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}

	return org, nil
}

func (s *AuthService) ListOrgs(ctx context.Context) ([]*domain.Organization, error) {
	return s.orgRepo.List(ctx)
}

// CreateAPIKeyInput describes a key to issue. An empty OrgID issues a
// platform key, which must be an admin key.
type CreateAPIKeyInput struct {
	OrgID   string
	Name    string
	IsAdmin bool
}

// CreateAPIKey issues a new key and returns its plaintext token. The token
// is not stored and cannot be recovered.
func (s *AuthService) CreateAPIKey(ctx context.Context, input CreateAPIKeyInput) (string, error) {
	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}

	if err := s.createKey(ctx, input, token); err != nil {
		return "", err
	}
	return token, nil
}

// EnsureAPIKey registers a predefined token, for bootstrapping a deployment.
// Registering a token that already exists is a no-op.
func (s *AuthService) EnsureAPIKey(ctx context.Context, input CreateAPIKeyInput, token string) error {
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeInvalidInput, "invalid API key format (expected zv_<64 hex chars>)")
	}

	if _, err := s.keyRepo.GetByHash(ctx, hashToken(token)); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrAPIKeyNotFound) {
		return err
	}

	return s.createKey(ctx, input, token)
}

func (s *AuthService) createKey(ctx context.Context, input CreateAPIKeyInput, token string) error {
	if strings.TrimSpace(input.Name) == "" {
		return domain.NewDomainError(domain.ErrCodeInvalidInput, "API key name is required")
	}
	if input.OrgID == "" && !input.IsAdmin {
		return domain.NewDomainError(domain.ErrCodeInvalidInput, "keys without an organization must be admin keys")
	}

	if input.OrgID != "" {
		if _, err := s.orgRepo.GetByID(ctx, input.OrgID); err != nil {
			return err
		}
	}

	key := domain.NewAPIKey(s.uuidGen.NewString(), input.OrgID, strings.TrimSpace(input.Name), hashToken(token), input.IsAdmin, time.Now().UTC(), nil)
	if err := domain.ValidateAPIKey(key); err != nil {
		return domain.ErrInvalidInput.WithCause(err)
	}

	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a bearer token to the caller it authenticates.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (domain.Caller, error) {
	if !IsValidAPIToken(token) {
		return domain.Caller{}, domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return domain.Caller{}, domain.ErrInvalidAPIKey
		}
		return domain.Caller{}, err
	}

	if key.IsRevoked() {
		return domain.Caller{}, domain.ErrAPIKeyRevoked
	}

	return key.Caller(), nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeInvalidInput, "API key ID is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

// ListAPIKeys lists the keys of an organization, or the platform keys when
// orgID is empty.
func (s *AuthService) ListAPIKeys(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	return s.keyRepo.GetByOrgID(ctx, orgID)
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
