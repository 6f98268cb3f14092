package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/api"
	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/go-chi/chi/v5"
)

type AuthService interface {
	CreateOrg(ctx context.Context, name string) (*domain.Organization, error)
	ListOrgs(ctx context.Context) ([]*domain.Organization, error)
	CreateAPIKey(ctx context.Context, input service.CreateAPIKeyInput) (string, error)
	ListAPIKeys(ctx context.Context, orgID string) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
}

// AuthHandler manages tenants and their keys. Organizations are managed by
// platform admins only; org admins may issue and list keys of their own
// organization.
type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type CreateOrgRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type OrgResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	OrgID   string `json:"org_id"`
	Name    string `json:"name" validate:"required"`
	IsAdmin bool   `json:"is_admin"`
}

type APIKeyResponse struct {
	ID        string `json:"id,omitempty"`
	Token     string `json:"token,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at,omitempty"`
	RevokedAt string `json:"revoked_at,omitempty"`
}

func orgToResponse(o *domain.Organization) OrgResponse {
	return OrgResponse{ID: o.ID, Name: o.Name, CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339)}
}

func (h *AuthHandler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePlatformAdmin(w, r); !ok {
		return
	}

	var req CreateOrgRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	org, err := h.svc.CreateOrg(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, orgToResponse(org))
}

func (h *AuthHandler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePlatformAdmin(w, r); !ok {
		return
	}

	orgs, err := h.svc.ListOrgs(r.Context())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]OrgResponse, len(orgs))
	for i, o := range orgs {
		out[i] = orgToResponse(o)
	}
	api.Success(w, http.StatusOK, out)
}

func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	if !canManageKeys(caller, req.OrgID) {
		api.HandleError(w, r, domain.ErrAdminRequired)
		return
	}

	token, err := h.svc.CreateAPIKey(r.Context(), service.CreateAPIKeyInput{
		OrgID:   req.OrgID,
		Name:    req.Name,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, APIKeyResponse{
		Token:   token,
		OrgID:   req.OrgID,
		Name:    req.Name,
		IsAdmin: req.IsAdmin,
	})
}

// ListAPIKeys lists the keys of the org_id query parameter, or the platform
// keys when it is empty.
func (h *AuthHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	orgID := r.URL.Query().Get("org_id")
	if !canManageKeys(caller, orgID) {
		api.HandleError(w, r, domain.ErrAdminRequired)
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), orgID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = APIKeyResponse{
			ID:        k.ID,
			OrgID:     k.OrgID,
			Name:      k.Name,
			IsAdmin:   k.IsAdmin,
			CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339),
		}
		if k.RevokedAt != nil {
			out[i].RevokedAt = k.RevokedAt.UTC().Format(time.RFC3339)
		}
	}
	api.Success(w, http.StatusOK, out)
}

func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePlatformAdmin(w, r); !ok {
		return
	}

	if err := h.svc.RevokeAPIKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func canManageKeys(caller domain.Caller, orgID string) bool {
	if !caller.IsAdmin {
		return false
	}
	return caller.IsPlatform() || caller.OrganizationID == orgID
}

func requirePlatformAdmin(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return caller, false
	}
	if !caller.IsAdmin || !caller.IsPlatform() {
		api.HandleError(w, r, domain.NewDomainError(domain.ErrCodeForbidden, "platform admin api key required"))
		return caller, false
	}
	return caller, true
}
