package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/banksoal/apiserver/internal/export"
	"github.com/banksoal/apiserver/types"
)

// QuestionSetService is the question set use-case surface the handlers need.
type QuestionSetService interface {
	List(ctx context.Context, filter types.QuestionSetFilter, offset, limit int) ([]types.QuestionSet, int, error)
	Get(ctx context.Context, id int64, download bool) (types.QuestionSet, error)
	Create(ctx context.Context, actor types.Actor, qs types.QuestionSet) (types.QuestionSet, error)
	Update(ctx context.Context, actor types.Actor, id int64, patch types.QuestionSetPatch) (types.QuestionSet, error)
	SoftDelete(ctx context.Context, actor types.Actor, id int64) (types.QuestionSet, error)
	Restore(ctx context.Context, actor types.Actor, id int64) (types.QuestionSet, error)
	Purge(ctx context.Context, actor types.Actor, id int64) error
	RecycleBin(ctx context.Context) ([]types.QuestionSet, error)
}

// Exporter builds export archives.
type Exporter interface {
	Export(ctx context.Context, actor types.Actor, id int64) (*export.Archive, error)
}

// QuestionSetHandler provides HTTP handlers for question sets.
type QuestionSetHandler struct {
	questionSets QuestionSetService
	exporter     Exporter
}

func NewQuestionSetHandler(questionSets QuestionSetService, exporter Exporter) *QuestionSetHandler {
	return &QuestionSetHandler{questionSets: questionSets, exporter: exporter}
}

// QuestionSetRouter registers question set routes on the given router.
// File routes nested under a set are registered by FileRouter.
func QuestionSetRouter(r chi.Router, questionSets QuestionSetService, exporter Exporter, files FileService) {
	handler := NewQuestionSetHandler(questionSets, exporter)
	fileHandler := NewFileHandler(files)

	r.Get("/", handler.ListQuestionSets)
	r.Post("/", handler.CreateQuestionSet)
	r.Get("/recycle-bin/all", handler.RecycleBin)
	r.Route("/{questionSetID}", func(r chi.Router) {
		r.Get("/", handler.GetQuestionSet)
		r.Patch("/", handler.UpdateQuestionSet)
		r.Delete("/", handler.PurgeQuestionSet)
		r.Patch("/soft-delete", handler.SoftDeleteQuestionSet)
		r.Patch("/restore", handler.RestoreQuestionSet)
		r.Get("/export", handler.ExportQuestionSet)
		r.Post("/files", fileHandler.UploadFile)
		r.Get("/files/history", fileHandler.FileHistory)
	})
}

// QuestionSetListResponse is the paginated list response payload.
type QuestionSetListResponse struct {
	Items []types.QuestionSet `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

func (h *QuestionSetHandler) ListQuestionSets(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.questionSets.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to list question sets")
		return
	}
	if items == nil {
		items = []types.QuestionSet{}
	}

	writeJSON(w, http.StatusOK, QuestionSetListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func parseFilter(r *http.Request) (types.QuestionSetFilter, error) {
	q := r.URL.Query()
	filter := types.QuestionSetFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Topic: strings.TrimSpace(q.Get("topic")),
	}

	if raw := strings.TrimSpace(q.Get("subject")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return filter, errors.New("invalid subject")
		}
		filter.SubjectID = id
	}
	if raw := strings.TrimSpace(q.Get("difficulty")); raw != "" {
		filter.Difficulty = types.Difficulty(raw)
		if !filter.Difficulty.Valid() {
			return filter, errors.New("invalid difficulty")
		}
	}
	year, err := parseOptionalInt(q.Get("year"))
	if err != nil || year < 0 {
		return filter, errors.New("invalid year")
	}
	filter.Year = year
	return filter, nil
}

func (h *QuestionSetHandler) GetQuestionSet(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	download, err := parseOptionalBool(r.URL.Query().Get("download"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid download flag")
		return
	}

	qs, err := h.questionSets.Get(r.Context(), id, download)
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to fetch question set")
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *QuestionSetHandler) CreateQuestionSet(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req types.QuestionSet
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.questionSets.Create(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to create question set")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *QuestionSetHandler) UpdateQuestionSet(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch types.QuestionSetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.questionSets.Update(r.Context(), actor, id, patch)
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to update question set")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *QuestionSetHandler) SoftDeleteQuestionSet(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.questionSets.SoftDelete, "question set moved to the recycle bin")
}

func (h *QuestionSetHandler) RestoreQuestionSet(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.questionSets.Restore, "question set restored")
}

func (h *QuestionSetHandler) lifecycle(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, types.Actor, int64) (types.QuestionSet, error),
	message string,
) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	qs, err := apply(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to update question set")
		return
	}
	writeJSON(w, http.StatusOK, LifecycleResponse{Success: true, Data: qs, Message: message})
}

func (h *QuestionSetHandler) PurgeQuestionSet(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.questionSets.Purge(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to delete question set")
		return
	}
	writeJSON(w, http.StatusOK, LifecycleResponse{Success: true, Message: "question set permanently deleted"})
}

func (h *QuestionSetHandler) RecycleBin(w http.ResponseWriter, r *http.Request) {
	items, err := h.questionSets.RecycleBin(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to list recycle bin")
		return
	}
	writeJSON(w, http.StatusOK, newItemsResponse(items))
}

func (h *QuestionSetHandler) ExportQuestionSet(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "questionSetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	archive, err := h.exporter.Export(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err, "question set not found", "failed to export question set")
		return
	}
	writeContent(w, "application/zip", "attachment", archive.Filename, archive.Data)
}
