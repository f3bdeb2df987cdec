package handler

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/DukeRupert/cropbatch/internal/service"
)

// ExportHandler handles export runs and artifact downloads.
type ExportHandler struct {
	exports service.ExportService
	logger  *slog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exports service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		logger:  logger,
	}
}

// RegisterRoutes registers export routes with the provided mux.
//
// Routes:
// - POST /api/sessions/{id}/export                         -> Export
// - GET  /api/sessions/{id}/exports/{exportId}/{filename}  -> Download
func (h *ExportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{id}/export", h.Export)
	mux.HandleFunc("GET /api/sessions/{id}/exports/{exportId}/{filename}", h.Download)
}

// Export handles POST /api/sessions/{id}/export.
//
// Partial failures still return 200; the result lists them and carries the
// batch notice.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, h.logger, "id", "session")
	if !ok {
		return
	}

	result, err := h.exports.Export(r.Context(), sessionID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Download handles GET /api/sessions/{id}/exports/{exportId}/{filename}.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, h.logger, "id", "session")
	if !ok {
		return
	}
	exportID, ok := parseID(w, r, h.logger, "exportId", "export")
	if !ok {
		return
	}
	filename := r.PathValue("filename")

	rc, info, err := h.exports.OpenArtifact(r.Context(), sessionID, exportID, filename)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream export", "export_id", exportID, "filename", filename, "error", err)
	}
}
