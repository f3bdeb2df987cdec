// Package service contains business logic for cropbatch.
//
// This file implements the session coordinator: session lifecycle, crop state
// per image, aspect ratio selection and export settings.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/metrics"
	"github.com/DukeRupert/cropbatch/internal/session"
	"github.com/DukeRupert/cropbatch/internal/storage"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SessionService owns the state of every cropping session.
type SessionService interface {
	// Create starts an empty session with the default export settings.
	Create(ctx context.Context) (*domain.Session, error)

	// Get returns a snapshot of the session.
	// Returns domain.ENOTFOUND if the session doesn't exist.
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)

	// List returns snapshots of all live sessions.
	List(ctx context.Context) []*domain.Session

	// Delete ends a session and removes its stored originals and exports.
	// Returns domain.ENOTFOUND if the session doesn't exist.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// Image returns one image record.
	// Returns domain.ENOTFOUND if the session or image doesn't exist.
	Image(ctx context.Context, sessionID, imageID uuid.UUID) (*domain.ImageRecord, error)

	// InitializeCrop recomputes the crop from the natural dimensions and the
	// image's current aspect ratio.
	// Returns domain.EUNSUPPORTED if the image could not be decoded on intake.
	InitializeCrop(ctx context.Context, sessionID, imageID uuid.UUID) (*domain.ImageRecord, error)

	// SetCrop replaces the crop with one captured by the user.
	// Returns a *domain.ValidationError if the crop is out of bounds.
	SetCrop(ctx context.Context, sessionID, imageID uuid.UUID, crop domain.CropRect) (*domain.ImageRecord, error)

	// ClearCrop removes the crop so the image exports uncropped.
	ClearCrop(ctx context.Context, sessionID, imageID uuid.UUID) (*domain.ImageRecord, error)

	// SetAspectRatio changes the image's ratio and resets its crop to the
	// initial crop for that ratio. Manual crops are discarded.
	// Returns domain.EINVALID for IDs not in the ratio table.
	SetAspectRatio(ctx context.Context, sessionID, imageID uuid.UUID, ratioID string) (*domain.ImageRecord, error)

	// SetExportConfig replaces the session's output format and quality.
	// Returns a *domain.ValidationError for unsupported formats or qualities
	// outside 1-100.
	SetExportConfig(ctx context.Context, sessionID uuid.UUID, cfg domain.ExportConfig) (*domain.Session, error)

	// UpdateExportConfig merges a partial change into the session's current
	// settings under the store lock, so concurrent partial updates never
	// overwrite each other.
	UpdateExportConfig(ctx context.Context, sessionID uuid.UUID, patch domain.ExportConfigPatch) (*domain.Session, error)

	// OpenOriginal streams the bytes of a dropped image. Caller must close.
	OpenOriginal(ctx context.Context, sessionID, imageID uuid.UUID) (io.ReadCloser, *domain.ImageRecord, error)

	// Preview renders a JPEG of the image fitting within maxSize x maxSize.
	Preview(ctx context.Context, sessionID, imageID uuid.UUID, maxSize int) ([]byte, error)
}

// SessionServiceConfig holds session defaults.
type SessionServiceConfig struct {
	DefaultExport  domain.ExportConfig
	PreviewMaxSize int
}

// =============================================================================
// Implementation
// =============================================================================

type sessionService struct {
	store    *session.Store
	storage  storage.Storage
	previews PreviewRenderer
	cfg      SessionServiceConfig
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	store *session.Store,
	storage storage.Storage,
	previews PreviewRenderer,
	cfg SessionServiceConfig,
	logger *slog.Logger,
) SessionService {
	if cfg.DefaultExport.Format == "" {
		cfg.DefaultExport = domain.DefaultExportConfig()
	}
	if cfg.PreviewMaxSize <= 0 {
		cfg.PreviewMaxSize = domain.PreviewMaxSize
	}
	return &sessionService{
		store:    store,
		storage:  storage,
		previews: previews,
		cfg:      cfg,
		logger:   logger,
	}
}

// =============================================================================
// Session Lifecycle
// =============================================================================

func (s *sessionService) Create(ctx context.Context) (*domain.Session, error) {
	const op = "session.create"

	if err := s.cfg.DefaultExport.Validate(); err != nil {
		return nil, domain.Internal(err, op, "invalid default export settings")
	}

	sess := s.store.Create()
	if sess.Export != s.cfg.DefaultExport {
		updated, err := s.store.Update(sess.ID, func(next *domain.Session) error {
			next.Export = s.cfg.DefaultExport
			return nil
		})
		if err != nil {
			return nil, err
		}
		sess = updated
	}

	metrics.SessionsActive.Inc()
	s.logger.Info("session created", "session_id", sess.ID)
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	return s.store.Get(sessionID)
}

func (s *sessionService) List(ctx context.Context) []*domain.Session {
	return s.store.List()
}

func (s *sessionService) Delete(ctx context.Context, sessionID uuid.UUID) error {
	const op = "session.delete"

	if err := s.store.Delete(sessionID); err != nil {
		return err
	}
	metrics.SessionsActive.Dec()

	if err := s.storage.DeletePrefix(ctx, storage.SessionPrefix(sessionID)); err != nil {
		return domain.Internal(err, op, "failed to remove session files")
	}

	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// =============================================================================
// Crop State
// =============================================================================

func (s *sessionService) Image(ctx context.Context, sessionID, imageID uuid.UUID) (*domain.ImageRecord, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	record, ok := sess.Image(imageID)
	if !ok {
		return nil, domain.NotFound("session.image", "image", imageID.String())
	}
	return &record, nil
}

func (s *sessionService) InitializeCrop(ctx context.Context, sessionID, imageID uuid.UUID) (*domain.ImageRecord, error) {
	const op = "session.initialize_crop"

	return s.updateImage(op, sessionID, imageID, func(record *domain.ImageRecord) error {
		return resetCrop(op, record)
	})
}

func (s *sessionService) SetCrop(ctx context.Context, sessionID, imageID uuid.UUID, crop domain.CropRect) (*domain.ImageRecord, error) {
	const op = "session.set_crop"

	return s.updateImage(op, sessionID, imageID, func(record *domain.ImageRecord) error {
		if err := crop.Validate(record.NaturalWidth, record.NaturalHeight); err != nil {
			return err
		}
		c := crop
		record.Crop = &c
		return nil
	})
}

func (s *sessionService) ClearCrop(ctx context.Context, sessionID, imageID uuid.UUID) (*domain.ImageRecord, error) {
	return s.updateImage("session.clear_crop", sessionID, imageID, func(record *domain.ImageRecord) error {
		record.Crop = nil
		return nil
	})
}

func (s *sessionService) SetAspectRatio(ctx context.Context, sessionID, imageID uuid.UUID, ratioID string) (*domain.ImageRecord, error) {
	const op = "session.set_aspect_ratio"

	if !domain.IsValidAspectRatio(ratioID) {
		return nil, domain.Invalid(op, fmt.Sprintf("Unknown aspect ratio %q", ratioID))
	}

	return s.updateImage(op, sessionID, imageID, func(record *domain.ImageRecord) error {
		record.AspectRatio = ratioID
		if !record.IsDecoded() {
			// Nothing to crop yet; keep the tag for the record.
			record.Crop = nil
			return nil
		}
		return resetCrop(op, record)
	})
}

// updateImage replaces one record inside the session with a mutated copy.
func (s *sessionService) updateImage(op string, sessionID, imageID uuid.UUID, fn func(*domain.ImageRecord) error) (*domain.ImageRecord, error) {
	var updated domain.ImageRecord

	_, err := s.store.Update(sessionID, func(sess *domain.Session) error {
		record, ok := sess.Image(imageID)
		if !ok {
			return domain.NotFound(op, "image", imageID.String())
		}
		if err := fn(&record); err != nil {
			return err
		}
		sess.ReplaceImage(record)
		updated = record.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("image updated",
		"op", op,
		"session_id", sessionID,
		"image_id", imageID,
		"aspect_ratio", updated.AspectRatioID(),
		"has_crop", updated.HasCrop(),
	)
	return &updated, nil
}

func resetCrop(op string, record *domain.ImageRecord) error {
	if !record.IsDecoded() {
		return domain.Unsupported(nil, op, fmt.Sprintf("%s could not be decoded", record.OriginalFilename))
	}
	crop := domain.InitialCrop(
		float64(record.NaturalWidth),
		float64(record.NaturalHeight),
		domain.AspectRatioFor(record.AspectRatioID()),
	)
	record.Crop = &crop
	return nil
}

// =============================================================================
// Export Settings
// =============================================================================

func (s *sessionService) SetExportConfig(ctx context.Context, sessionID uuid.UUID, cfg domain.ExportConfig) (*domain.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sess, err := s.store.Update(sessionID, func(next *domain.Session) error {
		next.Export = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("export settings updated",
		"session_id", sessionID,
		"format", cfg.Format,
		"quality", cfg.Quality,
	)
	return sess, nil
}

func (s *sessionService) UpdateExportConfig(ctx context.Context, sessionID uuid.UUID, patch domain.ExportConfigPatch) (*domain.Session, error) {
	sess, err := s.store.Update(sessionID, func(next *domain.Session) error {
		cfg := patch.Apply(next.Export)
		if err := cfg.Validate(); err != nil {
			return err
		}
		next.Export = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("export settings updated",
		"session_id", sessionID,
		"format", sess.Export.Format,
		"quality", sess.Export.Quality,
	)
	return sess, nil
}

// =============================================================================
// Originals and Previews
// =============================================================================

func (s *sessionService) OpenOriginal(ctx context.Context, sessionID, imageID uuid.UUID) (io.ReadCloser, *domain.ImageRecord, error) {
	const op = "session.open_original"

	record, err := s.Image(ctx, sessionID, imageID)
	if err != nil {
		return nil, nil, err
	}

	rc, _, err := s.storage.Get(ctx, record.SourceKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil, domain.NotFound(op, "original", imageID.String())
		}
		return nil, nil, domain.Internal(err, op, "failed to open original")
	}
	return rc, record, nil
}

func (s *sessionService) Preview(ctx context.Context, sessionID, imageID uuid.UUID, maxSize int) ([]byte, error) {
	const op = "session.preview"

	if maxSize <= 0 || maxSize > s.cfg.PreviewMaxSize {
		maxSize = s.cfg.PreviewMaxSize
	}

	rc, record, err := s.OpenOriginal(ctx, sessionID, imageID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	preview, w, h, err := s.previews.Render(rc, maxSize)
	if err != nil {
		return nil, domain.Unsupported(err, op, fmt.Sprintf("%s could not be decoded", record.OriginalFilename))
	}

	s.logger.Debug("preview rendered",
		"session_id", sessionID,
		"image_id", imageID,
		"width", w,
		"height", h,
	)
	return preview, nil
}
