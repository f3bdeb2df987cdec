// Package handler contains HTTP handlers for cropbatch.
//
// This file implements the session API: sessions, image intake, crop state,
// aspect ratios, export settings, and the notice feed.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/service"
	"github.com/google/uuid"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// NoticeFeed streams a session's notices over a long-lived connection.
type NoticeFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error
}

// =============================================================================
// Handler Configuration
// =============================================================================

// SessionHandlerConfig holds request limits.
type SessionHandlerConfig struct {
	// MaxUploadSize caps the whole multipart body of one drop.
	MaxUploadSize int64
}

// SessionHandler handles session-related HTTP requests.
type SessionHandler struct {
	sessions service.SessionService
	intake   service.IntakeService
	notices  NoticeFeed
	cfg      SessionHandlerConfig
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessions service.SessionService,
	intake service.IntakeService,
	notices NoticeFeed,
	cfg SessionHandlerConfig,
	logger *slog.Logger,
) *SessionHandler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 32 * domain.MaxImageSize
	}
	return &SessionHandler{
		sessions: sessions,
		intake:   intake,
		notices:  notices,
		cfg:      cfg,
		logger:   logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers all session routes with the provided mux.
//
// Routes:
// - GET    /api/aspect-ratios                                  -> ListAspectRatios
// - GET    /api/sessions                                       -> List
// - POST   /api/sessions                                       -> Create
// - GET    /api/sessions/{id}                                  -> Get
// - DELETE /api/sessions/{id}                                  -> Delete
// - POST   /api/sessions/{id}/images                           -> Upload
// - GET    /api/sessions/{id}/images/{imageId}/original        -> ServeOriginal
// - GET    /api/sessions/{id}/images/{imageId}/preview         -> ServePreview
// - PUT    /api/sessions/{id}/images/{imageId}/crop            -> SetCrop
// - POST   /api/sessions/{id}/images/{imageId}/crop/initialize -> InitializeCrop
// - DELETE /api/sessions/{id}/images/{imageId}/crop            -> ClearCrop
// - PUT    /api/sessions/{id}/images/{imageId}/aspect-ratio    -> SetAspectRatio
// - PUT    /api/sessions/{id}/export-config                    -> SetExportConfig
// - GET    /api/sessions/{id}/notices                          -> Notices
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/aspect-ratios", h.ListAspectRatios)
	mux.HandleFunc("GET /api/sessions", h.List)
	mux.HandleFunc("POST /api/sessions", h.Create)
	mux.HandleFunc("GET /api/sessions/{id}", h.Get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.Delete)
	mux.HandleFunc("POST /api/sessions/{id}/images", h.Upload)
	mux.HandleFunc("GET /api/sessions/{id}/images/{imageId}/original", h.ServeOriginal)
	mux.HandleFunc("GET /api/sessions/{id}/images/{imageId}/preview", h.ServePreview)
	mux.HandleFunc("PUT /api/sessions/{id}/images/{imageId}/crop", h.SetCrop)
	mux.HandleFunc("POST /api/sessions/{id}/images/{imageId}/crop/initialize", h.InitializeCrop)
	mux.HandleFunc("DELETE /api/sessions/{id}/images/{imageId}/crop", h.ClearCrop)
	mux.HandleFunc("PUT /api/sessions/{id}/images/{imageId}/aspect-ratio", h.SetAspectRatio)
	mux.HandleFunc("PUT /api/sessions/{id}/export-config", h.SetExportConfig)
	mux.HandleFunc("GET /api/sessions/{id}/notices", h.Notices)
}

// =============================================================================
// Request Types
// =============================================================================

// AspectRatioRequest selects a ratio from the table.
type AspectRatioRequest struct {
	AspectRatio string `json:"aspect_ratio"`
}

// ExportConfigRequest changes the output format and/or quality. Omitted
// fields keep their current value. Format accepts a MIME type or a bare
// subtype such as "jpeg".
type ExportConfigRequest struct {
	Format  *string `json:"format"`
	Quality *int    `json:"quality"`
}

// =============================================================================
// Sessions
// =============================================================================

// ListAspectRatios handles GET /api/aspect-ratios.
func (h *SessionHandler) ListAspectRatios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.AspectRatios())
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List(r.Context()))
}

// Create handles POST /api/sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Intake
// =============================================================================

// Upload handles POST /api/sessions/{id}/images.
//
// Files are read from the multipart fields "files" and "images", in the order
// they appear.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, "intake.upload",
				"Upload exceeds %d MB", h.cfg.MaxUploadSize/(1024*1024)))
			return
		}
		h.logger.Info("failed to parse multipart form", "error", err)
		BadRequestResponse(w, r, h.logger, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["images"]...)
	if len(headers) == 0 {
		BadRequestResponse(w, r, h.logger, "No files uploaded")
		return
	}

	files := make([]service.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			InternalErrorResponse(w, r, h.logger, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()

		files = append(files, service.IncomingFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        f,
		})
	}

	result, err := h.intake.Accept(r.Context(), sessionID, files)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// =============================================================================
// Originals and Previews
// =============================================================================

// ServeOriginal handles GET /api/sessions/{id}/images/{imageId}/original.
func (h *SessionHandler) ServeOriginal(w http.ResponseWriter, r *http.Request) {
	sessionID, imageID, ok := h.imageIDs(w, r)
	if !ok {
		return
	}

	rc, record, err := h.sessions.OpenOriginal(r.Context(), sessionID, imageID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", record.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream original", "image_id", imageID, "error", err)
	}
}

// ServePreview handles GET /api/sessions/{id}/images/{imageId}/preview?max=N.
func (h *SessionHandler) ServePreview(w http.ResponseWriter, r *http.Request) {
	sessionID, imageID, ok := h.imageIDs(w, r)
	if !ok {
		return
	}

	maxSize := 0
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequestResponse(w, r, h.logger, "max must be a positive integer")
			return
		}
		maxSize = n
	}

	preview, err := h.sessions.Preview(r.Context(), sessionID, imageID, maxSize)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(preview)
}

// =============================================================================
// Crop State
// =============================================================================

// SetCrop handles PUT /api/sessions/{id}/images/{imageId}/crop.
func (h *SessionHandler) SetCrop(w http.ResponseWriter, r *http.Request) {
	sessionID, imageID, ok := h.imageIDs(w, r)
	if !ok {
		return
	}

	var crop domain.CropRect
	if !h.decodeJSON(w, r, &crop) {
		return
	}

	record, err := h.sessions.SetCrop(r.Context(), sessionID, imageID, crop)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// InitializeCrop handles POST /api/sessions/{id}/images/{imageId}/crop/initialize.
func (h *SessionHandler) InitializeCrop(w http.ResponseWriter, r *http.Request) {
	sessionID, imageID, ok := h.imageIDs(w, r)
	if !ok {
		return
	}

	record, err := h.sessions.InitializeCrop(r.Context(), sessionID, imageID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ClearCrop handles DELETE /api/sessions/{id}/images/{imageId}/crop.
func (h *SessionHandler) ClearCrop(w http.ResponseWriter, r *http.Request) {
	sessionID, imageID, ok := h.imageIDs(w, r)
	if !ok {
		return
	}

	record, err := h.sessions.ClearCrop(r.Context(), sessionID, imageID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// SetAspectRatio handles PUT /api/sessions/{id}/images/{imageId}/aspect-ratio.
func (h *SessionHandler) SetAspectRatio(w http.ResponseWriter, r *http.Request) {
	sessionID, imageID, ok := h.imageIDs(w, r)
	if !ok {
		return
	}

	var req AspectRatioRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	record, err := h.sessions.SetAspectRatio(r.Context(), sessionID, imageID, req.AspectRatio)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// =============================================================================
// Export Settings
// =============================================================================

// SetExportConfig handles PUT /api/sessions/{id}/export-config.
func (h *SessionHandler) SetExportConfig(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req ExportConfigRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	var patch domain.ExportConfigPatch
	if req.Format != nil {
		format, err := domain.ParseFormat(*req.Format)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		patch.Format = &format
	}
	patch.Quality = req.Quality

	updated, err := h.sessions.UpdateExportConfig(r.Context(), sessionID, patch)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Export)
}

// =============================================================================
// Notice Feed
// =============================================================================

// Notices handles GET /api/sessions/{id}/notices by upgrading to a websocket.
func (h *SessionHandler) Notices(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.notices.Serve(w, r, sessionID); err != nil {
		h.logger.Info("notice feed upgrade failed", "session_id", sessionID, "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return parseID(w, r, h.logger, "id", "session")
}

func (h *SessionHandler) imageIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	sessionID, ok := parseID(w, r, h.logger, "id", "session")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	imageID, ok := parseID(w, r, h.logger, "imageId", "image")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, imageID, true
}

func (h *SessionHandler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeJSON(w, r, h.logger, v)
}

// parseID reads a UUID path value, writing a 400 response if it is malformed.
func parseID(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		BadRequestResponse(w, r, logger, fmt.Sprintf("Invalid %s ID", resource))
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON decodes a size-limited JSON body, writing a 400 response on
// malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		logger.Info("failed to decode request body", "path", r.URL.Path, "error", err)
		BadRequestResponse(w, r, logger, "Invalid JSON body")
		return false
	}
	return true
}
