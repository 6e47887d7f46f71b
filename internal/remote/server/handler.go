package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"github.com/kilupskalvis/doclink/internal/remote"
	"github.com/kilupskalvis/doclink/internal/remote/blobstore"
	"github.com/kilupskalvis/doclink/internal/replica"
)

// Attributes of io.cozy.files documents written on upload.
const (
	attrName = "name"
	attrDir  = "dir_id"
	attrSize = "size"
	attrMime = "mime"
	attrHash = "sha256"
	attrType = "type"
)

// Config holds server settings.
type Config struct {
	MaxRequestBody int64
	Webhooks       *WebhookConfig
}

// Handler serves the stack HTTP API.
type Handler struct {
	docs     *replica.Store
	files    blobstore.BlobStore
	cfg      Config
	logger   *slog.Logger
	webhooks *WebhookNotifier
}

// NewHandler creates the HTTP handler with all routes and middleware.
func NewHandler(docs *replica.Store, files blobstore.BlobStore, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 10 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		docs:     docs,
		files:    files,
		cfg:      cfg,
		logger:   logger,
		webhooks: NewWebhookNotifier(cfg.Webhooks, logger),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoveryMiddleware(logger))

	r.Get("/healthz", h.handleHealthz)

	r.Route("/data/{doctype}", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Post("/_find", h.handleFind)
		r.Post("/_all_docs", h.handleAllDocs)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/relationships/referenced_by", h.handleAddReferencedBy)
	})

	r.Get("/files/download/{id}", h.handleDownload)
	r.Post("/files/{dirID}", h.handleUpload)
	r.Get("/apps/", h.handleListApps)
	r.Post("/admin/gc", h.handleGC)

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	var req remote.FindRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Skip < 0 || req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "skip and limit must not be negative")
		return
	}

	def := req.Definition(chi.URLParam(r, "doctype"))
	resp, err := h.docs.Query(r.Context(), def)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAllDocs(w http.ResponseWriter, r *http.Request) {
	var req remote.AllDocsRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(req.Keys) == 0 {
		writeJSON(w, http.StatusOK, models.NewListResponse(nil))
		return
	}

	resp, err := h.docs.Query(r.Context(), query.GetByIDs(chi.URLParam(r, "doctype"), req.Keys...))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "doctype"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSingleResponse(doc))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	created, err := h.docs.Create(r.Context(), doc)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.webhooks.NotifyChange(EventCreated, created)
	writeJSON(w, http.StatusCreated, models.NewSingleResponse(created))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	doc.ID = chi.URLParam(r, "id")

	updated, err := h.docs.Update(r.Context(), doc)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.webhooks.NotifyChange(EventUpdated, updated)
	writeJSON(w, http.StatusOK, models.NewSingleResponse(updated))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	doc := &models.Document{
		Type: chi.URLParam(r, "doctype"),
		ID:   chi.URLParam(r, "id"),
		Rev:  r.URL.Query().Get("rev"),
	}

	deleted, err := h.docs.Delete(r.Context(), doc)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.webhooks.NotifyChange(EventDeleted, deleted)
	writeJSON(w, http.StatusOK, models.NewSingleResponse(deleted))
}

func (h *Handler) handleAddReferencedBy(w http.ResponseWriter, r *http.Request) {
	var req remote.ReferencesRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	target := &models.Document{Type: chi.URLParam(r, "doctype"), ID: chi.URLParam(r, "id")}
	current, err := h.docs.Get(r.Context(), target.Type, target.ID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	for _, ref := range req.Data {
		owner := &models.Document{Type: ref.Type, ID: ref.ID}
		updated, err := h.docs.AddReferencedBy(r.Context(), owner, []*models.Document{target})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		current = updated[0]
	}
	h.webhooks.NotifyChange(EventUpdated, current)
	writeJSON(w, http.StatusOK, models.NewSingleResponse(current))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("Name")
	if name == "" || path.Base(name) != name {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid file name")
		return
	}

	hash, size, err := h.files.Put(r.Context(), r.Body)
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return
		}
		h.logger.Error("failed to store file content", "error", err, "request_id", requestID(r))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store file")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	} else {
		contentType = "application/octet-stream"
	}

	doc := &models.Document{
		Type: remote.FilesDoctype,
		Attributes: map[string]interface{}{
			attrName: name,
			attrDir:  chi.URLParam(r, "dirID"),
			attrSize: size,
			attrMime: contentType,
			attrHash: hash,
			attrType: "file",
		},
	}
	created, err := h.docs.Create(r.Context(), doc)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.webhooks.NotifyChange(EventCreated, created)
	writeJSON(w, http.StatusCreated, models.NewSingleResponse(created))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), remote.FilesDoctype, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	hash, _ := doc.Attributes[attrHash].(string)

	size, err := h.files.Size(r.Context(), hash)
	var rc io.ReadCloser
	if err == nil {
		rc, err = h.files.Get(r.Context(), hash)
	}
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "file content not found")
			return
		}
		h.logger.Error("failed to read file content", "error", err, "request_id", requestID(r))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read file")
		return
	}
	defer rc.Close()

	if mt, ok := doc.Attributes[attrMime].(string); ok && mt != "" {
		w.Header().Set("Content-Type", mt)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if name, ok := doc.Attributes[attrName].(string); ok {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("file download interrupted", "error", err, "request_id", requestID(r))
	}
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) {
	resp, err := h.docs.Query(r.Context(), query.All(remote.AppsDoctype))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &models.Response{
		Data: resp.Data,
		Meta: &models.Meta{Count: len(resp.Data)},
	})
}

func (h *Handler) handleGC(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	result, err := GarbageCollect(r.Context(), h.docs, h.files, dryRun, h.logger)
	if err != nil {
		h.logger.Error("gc failed", "error", err, "request_id", requestID(r))
		writeError(w, http.StatusInternalServerError, "internal_error", "garbage collection failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readDocument decodes a document body and binds it to the doctype of the route.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	var doc models.Document
	if err := readJSON(r, h.cfg.MaxRequestBody, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return nil, false
	}
	doctype := chi.URLParam(r, "doctype")
	if doc.Type != "" && doc.Type != doctype {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("document type %q does not match %q", doc.Type, doctype))
		return nil, false
	}
	doc.Type = doctype
	return &doc, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, replica.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, replica.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, replica.ErrExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Error("store failure", "error", err, "request_id", requestID(r))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, remote.ErrorResponse{Error: code, Message: message})
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	body := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
