// Package uploads stores incoming document images and serves them back
// for review. Small files also land in the blob cache so review pages
// keep working after the hourly disk sweep.
package uploads

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/config"
	apperrors "github.com/gmsas95/docsheet/internal/errors"
	"github.com/gmsas95/docsheet/internal/extract"
	"github.com/gmsas95/docsheet/internal/metrics"
	"github.com/gmsas95/docsheet/internal/security"
	"github.com/gmsas95/docsheet/internal/store"
)

type Service struct {
	store   *store.Store
	config  config.UploadsConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(st *store.Store, cfg config.UploadsConfig, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Service{store: st, config: cfg, metrics: m, logger: logger}, nil
}

// Save validates and persists one uploaded file, registering a queued
// document owned by ownerEmail. The document ID doubles as the stored
// filename so review URLs stay stable.
func (s *Service) Save(ownerEmail, docType, filename string, data []byte) (*store.Document, error) {
	if !extract.ValidType(docType) {
		s.metrics.RecordUpload(false)
		return nil, apperrors.ErrBadDocumentType
	}

	name := security.SanitizeFilename(filename)
	if name == "" {
		s.metrics.RecordUpload(false)
		return nil, apperrors.ErrBadFileType
	}
	if !security.AllowedExtension(name, s.config.AllowedExts) {
		s.metrics.RecordUpload(false)
		return nil, apperrors.ErrBadFileType
	}

	// Insert the row before touching disk or the blob cache. The
	// primary key reserves the ID, so a same-second duplicate name
	// retries with a suffix instead of clobbering an earlier upload.
	stamp := time.Now().Format("20060102150405")
	doc := &store.Document{
		OwnerEmail:   ownerEmail,
		Type:         docType,
		OriginalName: name,
		SizeBytes:    int64(len(data)),
	}

	for attempt := 0; ; attempt++ {
		id := stamp + "_" + name
		if attempt > 0 {
			id = fmt.Sprintf("%s_%d_%s", stamp, attempt, name)
		}

		safe, err := security.ValidatePathInRoot(id, s.config.Dir)
		if err != nil {
			s.metrics.RecordUpload(false)
			return nil, apperrors.Wrap(err, "UPLOAD_003", "unsafe filename")
		}

		doc.ID = id
		doc.StoredPath = safe.Path()
		err = s.store.CreateDocument(doc)
		if err == nil {
			break
		}
		if !store.IsDuplicateID(err) || attempt >= 10 {
			s.metrics.RecordUpload(false)
			return nil, err
		}
	}

	if err := os.WriteFile(doc.StoredPath, data, 0644); err != nil {
		if derr := s.store.DeleteDocument(doc.ID); derr != nil {
			s.logger.Warn("failed to roll back document row", zap.String("id", doc.ID), zap.Error(derr))
		}
		s.metrics.RecordUpload(false)
		return nil, apperrors.Wrap(err, "GEN_003", "failed to store upload")
	}

	if int64(len(data)) <= s.config.InlineMaxSize {
		ttl := time.Duration(s.config.BlobTTLHours) * time.Hour
		if err := s.store.SetBlob(doc.ID, data, ttl); err != nil {
			s.logger.Warn("blob cache write failed", zap.String("id", doc.ID), zap.Error(err))
		} else {
			doc.Inline = true
			if err := s.store.UpdateDocument(doc); err != nil {
				s.logger.Warn("failed to flag inline document", zap.String("id", doc.ID), zap.Error(err))
			}
		}
	}

	s.metrics.RecordUpload(true)
	s.logger.Info("upload stored",
		zap.String("id", doc.ID),
		zap.String("owner", ownerEmail),
		zap.String("type", docType),
		zap.Int("size", len(data)),
	)
	return doc, nil
}

// Open returns the image bytes for a document, blob cache first.
func (s *Service) Open(doc *store.Document) ([]byte, error) {
	data, err := s.store.GetBlob(doc.ID)
	if err == nil {
		return data, nil
	}
	if !store.IsBlobMissing(err) {
		return nil, err
	}
	if doc.StoredPath == "" {
		return nil, apperrors.ErrDocumentNotFound
	}
	data, err = os.ReadFile(doc.StoredPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrDocumentNotFound
		}
		return nil, apperrors.Wrap(err, "GEN_003", "stored file unreadable")
	}
	return data, nil
}

// Remove deletes the on-disk copy after a document has been saved to
// the spreadsheet. The blob cache copy keeps serving the review page
// until its TTL runs out.
func (s *Service) Remove(doc *store.Document) {
	if doc.StoredPath == "" {
		return
	}
	if err := os.Remove(doc.StoredPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove stored file",
			zap.String("id", doc.ID),
			zap.Error(err),
		)
		return
	}
	doc.StoredPath = ""
	if err := s.store.UpdateDocument(doc); err != nil {
		s.logger.Warn("failed to clear stored path", zap.String("id", doc.ID), zap.Error(err))
	}
}

// ContentType maps a stored filename to its download media type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
