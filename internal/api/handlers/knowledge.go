package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/api"
	"github.com/cloo-solutions/zenithvault/internal/api/middleware"
	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
	Import(ctx context.Context, items []domain.KnowledgeImportItem, organizationID string) (*service.IngestResult, error)
	Get(ctx context.Context, id int64) (*domain.KnowledgeEntry, error)
	Reingest(ctx context.Context, input service.ReingestInput) (*domain.KnowledgeEntry, error)
	Delete(ctx context.Context, id int64) error
	ListPage(ctx context.Context, input service.ListKnowledgeInput) (*service.ListKnowledgeOutput, error)
}

type ImportService interface {
	InitUpload(ctx context.Context, caller domain.Caller) (*service.ImportUpload, error)
	ImportFromStorage(ctx context.Context, caller domain.Caller, key string) (*service.IngestResult, error)
}

type KnowledgeHandler struct {
	svc     KnowledgeService
	imports ImportService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

// WithImports enables the object storage import endpoints.
func (h *KnowledgeHandler) WithImports(imports ImportService) *KnowledgeHandler {
	h.imports = imports
	return h
}

type IngestRequest struct {
	Type    string               `json:"type" validate:"required,oneof=faq documentation"`
	Entries []IngestEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type IngestEntryRequest struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type ReingestRequest struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type ImportFromStorageRequest struct {
	Key string `json:"key" validate:"required"`
}

type KnowledgeResponse struct {
	ID             int64  `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	OrganizationID string `json:"organization_id,omitempty"`
	Global         bool   `json:"global"`
	HasEmbedding   bool   `json:"has_embedding"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func knowledgeToResponse(k *domain.KnowledgeEntry) *KnowledgeResponse {
	return &KnowledgeResponse{
		ID:             k.ID,
		Type:           string(k.Type),
		Title:          k.Title,
		Content:        k.Content,
		OrganizationID: k.OrganizationID,
		Global:         k.IsGlobal(),
		HasEmbedding:   k.HasEmbedding(),
		CreatedAt:      k.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      k.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type IngestResponse struct {
	Processed int  `json:"processed"`
	Total     int  `json:"total"`
	Partial   bool `json:"partial"`
}

func ingestToResponse(r *service.IngestResult) IngestResponse {
	return IngestResponse{Processed: r.Processed, Total: r.Total, Partial: r.Partial()}
}

// Ingest stores a batch of entries in the caller's scope.
func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req IngestRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	knowledgeType, err := domain.ParseKnowledgeType(req.Type)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	entries := make([]domain.IngestEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = domain.IngestEntry{Title: e.Title, Content: e.Content}
	}

	result, err := h.svc.Ingest(r.Context(), service.IngestInput{
		Entries:        entries,
		Type:           knowledgeType,
		OrganizationID: caller.OrganizationID,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, ingestToResponse(result))
}

// Import stores a tagged import payload sent as the request body.
func (h *KnowledgeHandler) Import(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items, err := domain.ParseImportItems(body)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	result, err := h.svc.Import(r.Context(), items, caller.OrganizationID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, ingestToResponse(result))
}

// InitImportUpload returns a presigned URL to upload a large import payload to.
func (h *KnowledgeHandler) InitImportUpload(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if h.imports == nil {
		api.Error(w, http.StatusNotImplemented, "object storage is not configured")
		return
	}

	upload, err := h.imports.InitUpload(r.Context(), caller)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, upload)
}

// ImportFromStorage imports a payload previously uploaded to object storage.
func (h *KnowledgeHandler) ImportFromStorage(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if h.imports == nil {
		api.Error(w, http.StatusNotImplemented, "object storage is not configured")
		return
	}

	var req ImportFromStorageRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	result, err := h.imports.ImportFromStorage(r.Context(), caller, req.Key)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, ingestToResponse(result))
}

// Get returns one entry. Entries the caller may not list are not found.
func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	id, ok := entryID(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	if !caller.CanList(entry) {
		api.HandleError(w, r, domain.ErrKnowledgeNotFound)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(entry))
}

// Update replaces an entry's text.
func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	id, ok := entryID(w, r)
	if !ok {
		return
	}

	var req ReingestRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, r, err)
		return
	}

	if !h.authorizeManage(w, r, caller, id) {
		return
	}

	entry, err := h.svc.Reingest(r.Context(), service.ReingestInput{
		ID:      id,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(entry))
}

// Delete permanently removes an entry.
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	id, ok := entryID(w, r)
	if !ok {
		return
	}

	if !h.authorizeManage(w, r, caller, id) {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type KnowledgeListResponse struct {
	Items   []*KnowledgeResponse `json:"items"`
	Cursor  string               `json:"cursor,omitempty"`
	HasMore bool                 `json:"has_more"`
}

// List returns the caller's knowledge base listing, newest first.
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.ListPage(r.Context(), service.ListKnowledgeInput{
		Caller: caller,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	responses := make([]*KnowledgeResponse, len(output.Items))
	for i, k := range output.Items {
		responses[i] = knowledgeToResponse(k)
	}

	api.Success(w, http.StatusOK, KnowledgeListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

// authorizeManage writes a not found response unless the caller manages the
// entry's scope.
func (h *KnowledgeHandler) authorizeManage(w http.ResponseWriter, r *http.Request, caller domain.Caller, id int64) bool {
	entry, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return false
	}
	if !caller.CanManage(entry) {
		api.HandleError(w, r, domain.ErrKnowledgeNotFound)
		return false
	}
	return true
}

func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
	}
	return caller, ok
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.Error(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
