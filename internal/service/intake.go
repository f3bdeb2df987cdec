// Package service contains business logic for cropbatch.
//
// This file implements intake: turning a drop of files into image records.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/metrics"
	"github.com/DukeRupert/cropbatch/internal/session"
	"github.com/DukeRupert/cropbatch/internal/storage"
	"github.com/google/uuid"
)

// =============================================================================
// Types
// =============================================================================

// IncomingFile is one file of a drop.
type IncomingFile struct {
	Filename    string
	ContentType string // Declared MIME type; empty if unknown
	Data        io.Reader
}

// Rejection reasons reported in IntakeResult.Rejected.
const (
	RejectNotImage = "not_image"
	RejectTooLarge = "too_large"
	RejectStorage  = "storage"
)

// RejectedFile names a dropped file that was not added to the session.
type RejectedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// IntakeResult is the outcome of one drop.
type IntakeResult struct {
	Images   []domain.ImageRecord `json:"images"`
	Rejected []RejectedFile       `json:"rejected"`
	Notice   domain.Notice        `json:"notice"`
}

// =============================================================================
// Interface Definition
// =============================================================================

// IntakeService accepts dropped files into a session.
type IntakeService interface {
	// Accept filters files to images, stores their bytes, decodes them once to
	// learn their dimensions, and appends one record per image to the session
	// in drop order. Each record starts with the default aspect ratio and its
	// initial crop.
	// Returns domain.EINVALID if no file is an image; the session is unchanged.
	// Returns domain.ENOTFOUND if the session doesn't exist.
	Accept(ctx context.Context, sessionID uuid.UUID, files []IncomingFile) (*IntakeResult, error)
}

// IntakeServiceConfig holds intake limits.
type IntakeServiceConfig struct {
	MaxImageSize int64
}

// =============================================================================
// Implementation
// =============================================================================

type intakeService struct {
	store    *session.Store
	storage  storage.Storage
	codec    ImageCodec
	notifier Notifier
	maxSize  int64
	logger   *slog.Logger
	now      func() time.Time
}

// NewIntakeService creates a new IntakeService.
func NewIntakeService(
	store *session.Store,
	storage storage.Storage,
	codec ImageCodec,
	notifier Notifier,
	cfg IntakeServiceConfig,
	logger *slog.Logger,
) IntakeService {
	maxSize := cfg.MaxImageSize
	if maxSize <= 0 {
		maxSize = domain.MaxImageSize
	}
	if notifier == nil {
		notifier = NopNotifier
	}
	return &intakeService{
		store:    store,
		storage:  storage,
		codec:    codec,
		notifier: notifier,
		maxSize:  maxSize,
		logger:   logger,
		now:      time.Now,
	}
}

// candidate is a file that passed the image filter.
type candidate struct {
	filename    string
	contentType string
	data        []byte
}

func (s *intakeService) Accept(ctx context.Context, sessionID uuid.UUID, files []IncomingFile) (*IntakeResult, error) {
	const op = "intake.accept"

	if _, err := s.store.Get(sessionID); err != nil {
		return nil, err
	}

	result := &IntakeResult{
		Images:   []domain.ImageRecord{},
		Rejected: []RejectedFile{},
	}

	candidates := make([]candidate, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := io.ReadAll(io.LimitReader(f.Data, s.maxSize+1))
		if err != nil {
			return nil, domain.Internal(err, op, "failed to read dropped file")
		}

		contentType := storage.DetectContentType(f.ContentType, f.Filename, bytes.NewReader(data))
		if !storage.IsImage(contentType) {
			s.logger.Warn("dropped file is not an image",
				"session_id", sessionID,
				"filename", f.Filename,
				"content_type", contentType,
			)
			metrics.IntakeRejected(RejectNotImage)
			result.Rejected = append(result.Rejected, RejectedFile{Filename: f.Filename, Reason: RejectNotImage})
			continue
		}

		if int64(len(data)) > s.maxSize {
			s.logger.Warn("dropped image is too large",
				"session_id", sessionID,
				"filename", f.Filename,
				"max_size", s.maxSize,
			)
			metrics.IntakeRejected(RejectTooLarge)
			result.Rejected = append(result.Rejected, RejectedFile{Filename: f.Filename, Reason: RejectTooLarge})
			continue
		}

		candidates = append(candidates, candidate{filename: f.Filename, contentType: contentType, data: data})
	}

	if len(candidates) == 0 && !hasRejection(result.Rejected, RejectTooLarge) {
		s.notifier.Notify(sessionID, domain.IntakeNotice(0))
		return nil, domain.Invalid(op, domain.MsgImagesOnly)
	}

	var storedKeys []string
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			s.cleanup(storedKeys)
			return nil, err
		}

		record, err := s.ingest(ctx, sessionID, c)
		if err != nil {
			if ctx.Err() != nil {
				s.cleanup(storedKeys)
				return nil, ctx.Err()
			}
			s.logger.Error("failed to store dropped image",
				"session_id", sessionID,
				"filename", c.filename,
				"error", err,
			)
			metrics.IntakeRejected(RejectStorage)
			result.Rejected = append(result.Rejected, RejectedFile{Filename: c.filename, Reason: RejectStorage})
			continue
		}

		storedKeys = append(storedKeys, record.SourceKey)
		result.Images = append(result.Images, record)
	}

	if len(result.Images) == 0 {
		notice := domain.Notice{Level: domain.NoticeError, Message: domain.MsgNoImagesAdded}
		s.notifier.Notify(sessionID, notice)
		if hasRejection(result.Rejected, RejectTooLarge) {
			return nil, domain.Errorf(domain.ETOOLARGE, op, "Images must be smaller than %d MB", s.maxSize/(1024*1024))
		}
		return nil, domain.Errorf(domain.EINTERNAL, op, "%s", domain.MsgNoImagesAdded)
	}

	_, err := s.store.Update(sessionID, func(sess *domain.Session) error {
		sess.Images = append(sess.Images, result.Images...)
		return nil
	})
	if err != nil {
		// The session ended while the drop was being processed.
		s.cleanup(storedKeys)
		return nil, err
	}

	metrics.ImagesIngested.Add(float64(len(result.Images)))
	result.Notice = domain.IntakeNotice(len(result.Images))
	s.notifier.Notify(sessionID, result.Notice)

	s.logger.Info("images added to session",
		"session_id", sessionID,
		"accepted", len(result.Images),
		"rejected", len(result.Rejected),
	)

	return result, nil
}

// ingest stores one image and builds its record. Images that fail to decode
// are kept without dimensions or crop.
func (s *intakeService) ingest(ctx context.Context, sessionID uuid.UUID, c candidate) (domain.ImageRecord, error) {
	imageID := uuid.New()

	keyName := c.filename
	if path.Ext(strings.ReplaceAll(keyName, "\\", "/")) == "" {
		keyName += storage.ExtensionForContentType(c.contentType)
	}
	key := storage.OriginalKey(sessionID, imageID, keyName)

	err := s.storage.Put(ctx, key, bytes.NewReader(c.data), storage.PutOptions{
		ContentType: c.contentType,
		MaxSize:     s.maxSize,
		Overwrite:   true,
	})
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("store original: %w", err)
	}

	record := domain.ImageRecord{
		ID:               imageID,
		SessionID:        sessionID,
		SourceKey:        key,
		OriginalFilename: c.filename,
		ContentType:      c.contentType,
		SizeBytes:        int64(len(c.data)),
		CreatedAt:        s.now().UTC(),
	}

	img, err := s.codec.Decode(bytes.NewReader(c.data))
	if err != nil {
		s.logger.Warn("dropped image could not be decoded",
			"session_id", sessionID,
			"image_id", imageID,
			"filename", c.filename,
			"error", err,
		)
		return record, nil
	}

	bounds := img.Bounds()
	record.NaturalWidth = bounds.Dx()
	record.NaturalHeight = bounds.Dy()
	crop := domain.InitialCrop(float64(record.NaturalWidth), float64(record.NaturalHeight), domain.AspectRatioFor(record.AspectRatioID()))
	record.Crop = &crop

	return record, nil
}

// cleanup removes originals stored by an intake that did not complete.
func (s *intakeService) cleanup(keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(context.Background(), key); err != nil {
			s.logger.Warn("failed to remove orphaned original", "key", key, "error", err)
		}
	}
}

func hasRejection(rejected []RejectedFile, reason string) bool {
	for _, r := range rejected {
		if r.Reason == reason {
			return true
		}
	}
	return false
}
