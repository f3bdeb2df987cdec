package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/metrics"
	"github.com/DukeRupert/cropbatch/internal/session"
	"github.com/DukeRupert/cropbatch/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ExportService renders every image of a session into the configured format.
type ExportService interface {
	// Export processes the session's images in collection order, one at a
	// time. A failure on one image is recorded in the result and the loop
	// continues. The result carries a single notice for the whole batch.
	// Returns domain.EINVALID if the session has no images.
	// Returns the context error if ctx is canceled mid-run.
	Export(ctx context.Context, sessionID uuid.UUID) (*domain.ExportResult, error)

	// OpenArtifact streams an exported file. Caller must close.
	// Returns domain.ENOTFOUND if the session or file doesn't exist.
	OpenArtifact(ctx context.Context, sessionID, exportID uuid.UUID, filename string) (io.ReadCloser, storage.ObjectInfo, error)
}

// ExportServiceConfig configures the export pipeline.
type ExportServiceConfig struct {
	// Concurrency is the number of export runs allowed at once across all
	// sessions. Default: 1.
	Concurrency int64

	// URLExpiry is passed to Storage.URL for artifact links. Zero means
	// permanent URLs where the backend supports them.
	URLExpiry time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type exportService struct {
	store     *session.Store
	storage   storage.Storage
	codec     ImageCodec
	notifier  Notifier
	slots     *semaphore.Weighted
	urlExpiry time.Duration
	logger    *slog.Logger
	now       func() time.Time
	queued    func()
}

// NewExportService creates a new ExportService.
func NewExportService(
	store *session.Store,
	storage storage.Storage,
	codec ImageCodec,
	notifier Notifier,
	cfg ExportServiceConfig,
	logger *slog.Logger,
) ExportService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if notifier == nil {
		notifier = NopNotifier
	}
	return &exportService{
		store:     store,
		storage:   storage,
		codec:     codec,
		notifier:  notifier,
		slots:     semaphore.NewWeighted(cfg.Concurrency),
		urlExpiry: cfg.URLExpiry,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *exportService) Export(ctx context.Context, sessionID uuid.UUID) (*domain.ExportResult, error) {
	const op = "export.run"

	metrics.ExportsWaiting.Inc()
	if s.queued != nil {
		s.queued()
	}
	err := s.slots.Acquire(ctx, 1)
	metrics.ExportsWaiting.Dec()
	if err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	// Snapshot after acquiring a slot so a queued export sees the latest
	// crops and settings.
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.Images) == 0 {
		return nil, domain.Invalid(op, "No images to export")
	}

	cfg := sess.Export
	format := cfg.Format.Extension()

	result := &domain.ExportResult{
		ID:        uuid.New(),
		SessionID: sessionID,
		Config:    cfg,
		Artifacts: []domain.Artifact{},
		Failures:  []domain.ExportFailure{},
		StartedAt: s.now().UTC(),
	}

	logger := s.logger.With("session_id", sessionID, "export_id", result.ID)
	attrs := []any{"format", cfg.Format, "images", len(sess.Images)}
	if q, ok := cfg.QualityFraction(); ok {
		attrs = append(attrs, "quality", q)
	}
	logger.Info("export started", attrs...)

	names := newNameSet()
	for _, record := range sess.Images {
		if err := ctx.Err(); err != nil {
			metrics.ExportAbandoned(format)
			logger.Warn("export abandoned", "error", err, "exported", len(result.Artifacts))
			return nil, err
		}

		filename := names.claim(domain.ExportFilename(record, cfg.Format))
		artifact, err := s.exportImage(ctx, result.ID, record, cfg, filename)
		if err != nil {
			if ctx.Err() != nil {
				metrics.ExportAbandoned(format)
				logger.Warn("export abandoned", "error", ctx.Err(), "exported", len(result.Artifacts))
				return nil, ctx.Err()
			}
			metrics.ImageExportFailed(format)
			logger.Error("image export failed",
				"image_id", record.ID,
				"filename", record.OriginalFilename,
				"error", err,
			)
			result.Failures = append(result.Failures, domain.ExportFailure{
				ImageID:  record.ID,
				Filename: record.OriginalFilename,
				Code:     domain.ErrorCode(err),
				Message:  domain.ErrorMessage(err),
			})
			continue
		}

		metrics.ImageExported(format, artifact.SizeBytes)
		result.Artifacts = append(result.Artifacts, artifact)
	}

	result.CompletedAt = s.now().UTC()
	result.Notice = domain.ExportNotice(len(result.Failures))
	s.notifier.Notify(sessionID, result.Notice)

	duration := result.CompletedAt.Sub(result.StartedAt)
	metrics.ExportCompleted(format, duration, len(sess.Images), len(result.Failures))
	logger.Info("export completed",
		"artifacts", len(result.Artifacts),
		"failures", len(result.Failures),
		"duration", duration,
	)

	return result, nil
}

// exportImage loads, crops, encodes and stores one image.
func (s *exportService) exportImage(ctx context.Context, exportID uuid.UUID, record domain.ImageRecord, cfg domain.ExportConfig, filename string) (domain.Artifact, error) {
	const op = "export.image"

	if !record.IsDecoded() {
		return domain.Artifact{}, domain.Unsupported(nil, op, fmt.Sprintf("%s could not be decoded", record.OriginalFilename))
	}

	rc, _, err := s.storage.Get(ctx, record.SourceKey)
	if err != nil {
		return domain.Artifact{}, domain.Internal(err, op, "failed to load original")
	}
	src, err := s.codec.Decode(rc)
	rc.Close()
	if err != nil {
		return domain.Artifact{}, domain.Unsupported(err, op, fmt.Sprintf("%s could not be decoded", record.OriginalFilename))
	}

	var out image.Image = src
	if record.Crop != nil {
		rect := record.Crop.SourceRect(record.NaturalWidth, record.NaturalHeight)
		surface, err := RenderCrop(src, rect)
		if err != nil {
			return domain.Artifact{}, domain.Unsupported(err, op, fmt.Sprintf("Crop of %s is empty", record.OriginalFilename))
		}
		out = surface
	}

	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, out, cfg); err != nil {
		return domain.Artifact{}, domain.Unsupported(err, op, fmt.Sprintf("Failed to encode %s as %s", record.OriginalFilename, cfg.Format.Label()))
	}
	size := int64(buf.Len())

	key := storage.ExportKey(record.SessionID, exportID, filename)
	err = s.storage.Put(ctx, key, &buf, storage.PutOptions{
		ContentType: string(cfg.Format),
		Overwrite:   true,
		Filename:    filename,
	})
	if err != nil {
		return domain.Artifact{}, domain.Internal(err, op, "failed to store exported file")
	}

	url, err := s.storage.URL(ctx, key, s.urlExpiry)
	if err != nil {
		s.logger.Warn("failed to build artifact URL", "key", key, "error", err)
	}

	bounds := out.Bounds()
	return domain.Artifact{
		ImageID:     record.ID,
		Filename:    filename,
		Key:         key,
		URL:         url,
		ContentType: string(cfg.Format),
		SizeBytes:   size,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Cropped:     record.HasCrop(),
	}, nil
}

func (s *exportService) OpenArtifact(ctx context.Context, sessionID, exportID uuid.UUID, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	const op = "export.open_artifact"

	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return nil, storage.ObjectInfo{}, domain.Invalid(op, "Invalid filename")
	}
	if _, err := s.store.Get(sessionID); err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	rc, info, err := s.storage.Get(ctx, storage.ExportKey(sessionID, exportID, filename))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, storage.ObjectInfo{}, domain.NotFound(op, "export file", filename)
		}
		return nil, storage.ObjectInfo{}, domain.Internal(err, op, "failed to open exported file")
	}
	return rc, info, nil
}

// =============================================================================
// Filenames
// =============================================================================

// nameSet hands out unique filenames within one export run.
type nameSet map[string]int

func newNameSet() nameSet {
	return make(nameSet)
}

// claim returns name, or name with "-2", "-3", ... before its extension if
// it was already taken.
func (n nameSet) claim(name string) string {
	n[name]++
	count := n[name]
	if count == 1 {
		return name
	}

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}
	for {
		candidate := fmt.Sprintf("%s-%d%s", base, count, ext)
		if n[candidate] == 0 {
			n[candidate]++
			return candidate
		}
		count++
	}
}
