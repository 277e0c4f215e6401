package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/pkg/link"
	"github.com/marmos91/relaystream/pkg/metadata"
)

// FilesHandler handles the published file records under /api/v1/files.
type FilesHandler struct {
	store  metadata.Store
	engine Streamer
	media  *MediaHandler
}

// NewFilesHandler creates a files handler. engine fills in name and size
// on create when the request leaves them out.
func NewFilesHandler(store metadata.Store, engine Streamer, media *MediaHandler) *FilesHandler {
	return &FilesHandler{store: store, engine: engine, media: media}
}

// CreateFileRequest is the request body for POST /api/v1/files.
type CreateFileRequest struct {
	FileName    string `json:"file_name,omitempty"`
	ContainerID int64  `json:"container_id"`
	ItemID      int64  `json:"item_id"`
	MimeType    string `json:"mime_type,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// FileResponse is a record plus its shareable links.
type FileResponse struct {
	*metadata.FileRecord
	Link      string `json:"link"`
	StreamURL string `json:"stream_url"`
}

func (h *FilesHandler) toResponse(r *http.Request, rec *metadata.FileRecord) FileResponse {
	fh := link.FileHandle{ContainerID: rec.ContainerID, ItemID: rec.ItemID}
	return FileResponse{
		FileRecord: rec,
		Link:       link.EncodeHandle(fh),
		StreamURL:  h.media.StreamURL(r, fh),
	}
}

// List handles GET /api/v1/files.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRecords(r.Context())
	if err != nil {
		logger.ErrorCtx(r.Context(), "Failed to list file records", logger.Err(err))
		InternalServerError(w, "Failed to list files")
		return
	}

	out := make([]FileResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, h.toResponse(r, rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/files/{id}.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(r, rec))
}

// Create handles POST /api/v1/files.
func (h *FilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		BadRequest(w, "item_id must be positive")
		return
	}

	rec := &metadata.FileRecord{
		FileName:    strings.TrimSpace(req.FileName),
		ContainerID: req.ContainerID,
		ItemID:      req.ItemID,
		MimeType:    req.MimeType,
	}
	if req.Size != nil {
		rec.Size = *req.Size
	}

	if rec.FileName == "" || req.Size == nil {
		info, err := h.engine.Stat(r.Context(), link.FileHandle{ContainerID: req.ContainerID, ItemID: req.ItemID})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		if rec.FileName == "" {
			rec.FileName = info.Name
		}
		if req.Size == nil {
			rec.Size = info.Size
		}
		if rec.MimeType == "" {
			rec.MimeType = info.MimeType
		}
	}

	if _, err := h.store.CreateRecord(r.Context(), rec); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	logger.InfoCtx(r.Context(), "File published",
		logger.Filename(rec.FileName),
		logger.ContainerID(rec.ContainerID),
		logger.ItemID(rec.ItemID))
	writeJSON(w, http.StatusCreated, h.toResponse(r, rec))
}

// Delete handles DELETE /api/v1/files/{id}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FilesHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, metadata.ErrRecordNotFound):
		NotFound(w, "File not found")
	case errors.Is(err, metadata.ErrDuplicateRecord):
		Conflict(w, "A record for this container and item already exists")
	case errors.Is(err, metadata.ErrInvalidRecord):
		UnprocessableEntity(w, err.Error())
	default:
		logger.ErrorCtx(r.Context(), "File record operation failed", logger.Err(err))
		InternalServerError(w, "Internal error")
	}
}
