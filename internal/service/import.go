package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
	"go.uber.org/zap"
)

const (
	importKeyPrefix   = "imports/"
	importContentType = "application/json"

	// DefaultMaxImportBytes bounds import payloads read from storage.
	DefaultMaxImportBytes = 10 << 20
)

// ImportObjectStore is the object storage an import payload is uploaded to.
type ImportObjectStore interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	UploadURLExpiry() time.Duration
	GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// KnowledgeImporter ingests a decoded import payload.
type KnowledgeImporter interface {
	Import(ctx context.Context, items []domain.KnowledgeImportItem, organizationID string) (*IngestResult, error)
}

// ImportService runs imports whose payload is too large for a request body:
// the client uploads the JSON document to a presigned URL and then asks for
// it to be imported.
type ImportService struct {
	store    ImportObjectStore
	importer KnowledgeImporter
	uuidGen  UUIDGenerator
	maxBytes int64
	logger   *zap.Logger
}

func NewImportService(store ImportObjectStore, importer KnowledgeImporter, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		store:    store,
		importer: importer,
		uuidGen:  &DefaultUUIDGenerator{},
		maxBytes: DefaultMaxImportBytes,
		logger:   logger,
	}
}

// WithUUIDGenerator overrides object key generation (for testing).
func (s *ImportService) WithUUIDGenerator(gen UUIDGenerator) *ImportService {
	if gen != nil {
		s.uuidGen = gen
	}
	return s
}

// ImportUpload is where the client uploads an import payload.
type ImportUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InitUpload issues an object key in the caller's scope and a presigned URL
// to upload the payload to.
func (s *ImportService) InitUpload(ctx context.Context, caller domain.Caller) (*ImportUpload, error) {
	ctx, span := telemetry.StartSpan(ctx, "ImportService.InitUpload", telemetry.SpanAttributes{
		OrgID:     caller.OrganizationID,
		Operation: "import_upload",
	})
	defer span.End()

	if !caller.IsAdmin {
		return nil, domain.ErrAdminRequired
	}

	key := importKey(caller.OrganizationID, s.uuidGen.NewString())
	url, err := s.store.GenerateUploadURL(ctx, key, importContentType)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrStorageOperationFail.WithCause(err)
	}

	return &ImportUpload{
		Key:       key,
		UploadURL: url,
		ExpiresAt: time.Now().UTC().Add(s.store.UploadURLExpiry()),
	}, nil
}

// ImportFromStorage imports an uploaded payload into the caller's scope and
// removes the object afterwards. Keys issued for another scope are reported
// as not found.
func (s *ImportService) ImportFromStorage(ctx context.Context, caller domain.Caller, key string) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ImportService.ImportFromStorage", telemetry.SpanAttributes{
		OrgID:     caller.OrganizationID,
		Operation: "import_from_storage",
	})
	defer span.End()

	if !caller.IsAdmin {
		return nil, domain.ErrAdminRequired
	}
	if strings.TrimSpace(key) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "object key is required")
	}
	if !keyInScope(key, caller.OrganizationID) {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "import object not found")
	}

	data, err := s.store.GetObject(ctx, key, s.maxBytes)
	if err != nil {
		if domain.CodeOf(err) != "" {
			return nil, err
		}
		span.SetError(err)
		return nil, domain.ErrStorageOperationFail.WithCause(err)
	}

	items, err := domain.ParseImportItems(data)
	if err != nil {
		return nil, err
	}

	result, err := s.importer.Import(ctx, items, caller.OrganizationID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteObject(ctx, key); err != nil {
		s.logger.Warn("failed to delete imported object", zap.String("key", key), zap.Error(err))
	}
	s.logger.Info("imported knowledge from storage",
		zap.String("key", key),
		zap.String("organization_id", caller.OrganizationID),
		zap.Int("processed", result.Processed),
		zap.Int("total", result.Total),
	)
	return result, nil
}

// importKey builds the object key of an import payload. The global scope is
// stored under "global".
func importKey(organizationID, id string) string {
	return fmt.Sprintf("%s%s/%s.json", importKeyPrefix, importScope(organizationID), id)
}

func keyInScope(key, organizationID string) bool {
	rest, ok := strings.CutPrefix(key, importKeyPrefix+importScope(organizationID)+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

func importScope(organizationID string) string {
	if organizationID == "" {
		return "global"
	}
	return organizationID
}
