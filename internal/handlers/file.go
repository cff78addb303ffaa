package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/banksoal/apiserver/internal/services"
	"github.com/banksoal/apiserver/types"
)

const (
	maxMultipartMemory = 32 << 20
	maxUploadBytes     = 64 << 20
	formFieldCategory  = "category"
	formFieldReplace   = "replace"
	formFieldFile      = "file"
)

// FileService is the file use-case surface the handlers need.
type FileService interface {
	Upload(ctx context.Context, actor types.Actor, in services.Upload) (types.File, error)
	Download(ctx context.Context, id int64) (services.Content, error)
	SoftDelete(ctx context.Context, actor types.Actor, id int64) (types.File, error)
	Restore(ctx context.Context, actor types.Actor, id int64) (types.File, error)
	Purge(ctx context.Context, actor types.Actor, id int64) error
	RecycleBin(ctx context.Context) ([]types.File, error)
	History(ctx context.Context, questionSetID int64, category string) ([]types.File, error)
	CombinePreview(ctx context.Context, questionSetID int64, kind string) (services.Content, error)
}

// FileHandler provides HTTP handlers for question set files.
type FileHandler struct {
	files FileService
}

func NewFileHandler(files FileService) *FileHandler {
	return &FileHandler{files: files}
}

// FileRouter registers the /files routes on the given router.
func FileRouter(r chi.Router, files FileService) {
	handler := NewFileHandler(files)

	r.Get("/recycle-bin/all", handler.RecycleBin)
	r.Get("/download/{fileID}", handler.DownloadFile)
	r.Get("/combine-preview/{questionSetID}", handler.CombinePreview)
	r.Route("/{fileID}", func(r chi.Router) {
		r.Patch("/soft-delete", handler.SoftDeleteFile)
		r.Patch("/restore", handler.RestoreFile)
		r.Delete("/permanent", handler.PurgeFile)
	})
}

func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	questionSetID, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	replace, err := parseOptionalBool(r.FormValue(formFieldReplace))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid replace flag")
		return
	}
	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	created, err := h.files.Upload(r.Context(), actor, services.Upload{
		QuestionSetID: questionSetID,
		Category:      r.FormValue(formFieldCategory),
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Content:       file,
		Replace:       replace,
	})
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to upload file")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *FileHandler) FileHistory(w http.ResponseWriter, r *http.Request) {
	questionSetID, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.files.History(r.Context(), questionSetID, r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to load file history")
		return
	}
	writeJSON(w, http.StatusOK, newItemsResponse(items))
}

func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "fileID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := h.files.Download(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "file not found", "failed to download file")
		return
	}
	writeContent(w, content.ContentType, "attachment", content.File.OriginalName, content.Data)
}

func (h *FileHandler) CombinePreview(w http.ResponseWriter, r *http.Request) {
	questionSetID, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("type"))
	if kind == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	content, err := h.files.CombinePreview(r.Context(), questionSetID, kind)
	if err != nil {
		writeServiceError(w, r, err, "preview not found", "failed to build preview")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeContent(w, content.ContentType, "inline", content.File.OriginalName, content.Data)
}

func (h *FileHandler) SoftDeleteFile(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.files.SoftDelete, "file moved to the recycle bin")
}

func (h *FileHandler) RestoreFile(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.files.Restore, "file restored")
}

func (h *FileHandler) lifecycle(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, types.Actor, int64) (types.File, error),
	message string,
) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "fileID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := apply(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err, "file not found", "failed to update file")
		return
	}
	writeJSON(w, http.StatusOK, LifecycleResponse{Success: true, Data: f, Message: message})
}

func (h *FileHandler) PurgeFile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "fileID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.files.Purge(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err, "file not found", "failed to delete file")
		return
	}
	writeJSON(w, http.StatusOK, LifecycleResponse{Success: true, Message: "file permanently deleted"})
}

func (h *FileHandler) RecycleBin(w http.ResponseWriter, r *http.Request) {
	items, err := h.files.RecycleBin(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "file not found", "failed to list recycle bin")
		return
	}
	writeJSON(w, http.StatusOK, newItemsResponse(items))
}
