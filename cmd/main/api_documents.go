package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Liquidize/pkg/document"
	"github.com/CTAG07/Liquidize/pkg/templating"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies read by the API.
const maxBodyBytes = 8 << 20

// DocumentAPI holds the dependencies for the document API handlers.
type DocumentAPI struct {
	store  *document.Store
	tm     *templating.TemplateManager
	stats  *StatsAPI
	cm     *ConfigManager
	logger *slog.Logger
}

// NewDocumentAPI creates a new instance of the DocumentAPI.
func NewDocumentAPI(store *document.Store, tm *templating.TemplateManager, stats *StatsAPI, cm *ConfigManager, logger *slog.Logger) *DocumentAPI {
	return &DocumentAPI{
		store:  store,
		tm:     tm,
		stats:  stats,
		cm:     cm,
		logger: logger,
	}
}

// CreateDocumentRequest is the expected JSON body for creating a document.
type CreateDocumentRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// RegisterRoutes sets up the routing for all /api/documents endpoints.
func (d *DocumentAPI) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireScope(scopeDocumentsRead))
		r.Get("/api/documents", d.handleList)
		r.Get("/api/documents/{name}", d.handleGet)
		r.Post("/api/documents/{name}/render", d.handleRender)
	})
	r.Group(func(r chi.Router) {
		r.Use(requireScope(scopeDocumentsWrite))
		r.Post("/api/documents", d.handleCreate)
		r.Put("/api/documents/{name}", d.handlePut)
		r.Delete("/api/documents/{name}", d.handleDelete)
		r.Post("/api/documents/import", d.handleImport)
		r.Post("/api/documents/{name}/export", d.handleExport)
	})
}

func (d *DocumentAPI) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := d.store.List(r.Context())
	if err != nil {
		d.logger.Error("Failed to list documents", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	respondWithJSON(w, http.StatusOK, docs)
}

func (d *DocumentAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := d.store.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, doc)
}

func (d *DocumentAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if _, err := d.store.Get(r.Context(), req.Name); err == nil {
		respondWithError(w, http.StatusConflict, fmt.Sprintf("Document '%s' already exists", req.Name))
		return
	}
	if err := d.save(r, req.Name, req.Content); err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	doc, err := d.store.Get(r.Context(), req.Name)
	if err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, doc)
}

// handlePut replaces the full content of a document with the request body.
func (d *DocumentAPI) handlePut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if err = d.save(r, chi.URLParam(r, "name"), string(body)); err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// save validates the frontmatter and template of content before storing it.
func (d *DocumentAPI) save(r *http.Request, name, content string) error {
	_, body, err := document.ParseFrontmatter(content)
	if err != nil {
		return err
	}
	if err = d.tm.Check(body); err != nil {
		return err
	}
	if err = d.store.Put(r.Context(), name, content); err != nil {
		return err
	}
	d.logger.Info("Document saved via API", "name", name)
	return nil
}

func (d *DocumentAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := d.store.Delete(r.Context(), name); err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	if err := d.stats.Forget(r.Context(), name); err != nil {
		d.logger.Warn("Failed to drop document stats", "name", name, "error", err)
	}
	d.logger.Info("Document deleted via API", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

func (d *DocumentAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	dir := d.cm.Get().Server.ImportDir
	n, err := d.store.ImportDir(r.Context(), dir)
	if err != nil {
		d.logger.Error("Failed to import documents", "dir", dir, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Import failed after %d documents: %v", n, err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (d *DocumentAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := d.store.Export(r.Context(), chi.URLParam(r, "name"), d.cm.Get().Server.ExportDir)
	if err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"path": path})
}

// handleRender renders a document once with its frontmatter values, merged
// with the optional JSON object in the body. The "format" query parameter
// selects "html" (default) or "text" for the raw Liquid output.
func (d *DocumentAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	overrides, ok := decodeOverrides(w, r)
	if !ok {
		return
	}
	meta, body, err := d.store.Metadata(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		d.respondWithDocumentError(w, err)
		return
	}
	for k, v := range overrides {
		meta[k] = v
	}

	var out, contentType string
	switch r.URL.Query().Get("format") {
	case "", "html":
		out, err = d.tm.RenderHTML(body, meta)
		contentType = "text/html; charset=utf-8"
	case "text":
		out, err = d.tm.RenderString(body, meta)
		contentType = "text/plain; charset=utf-8"
	default:
		respondWithError(w, http.StatusBadRequest, "Query parameter 'format' must be 'html' or 'text'")
		return
	}
	if err != nil {
		d.respondWithDocumentError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = io.WriteString(w, out)
}

// decodeOverrides reads an optional JSON object of binding overrides.
func decodeOverrides(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	overrides := map[string]any{}
	if r.Body == nil || r.ContentLength == 0 {
		return overrides, true
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&overrides)
	if err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body: expected an object of overrides")
		return nil, false
	}
	return overrides, true
}

// respondWithDocumentError maps store and template errors to HTTP responses.
func (d *DocumentAPI) respondWithDocumentError(w http.ResponseWriter, err error) {
	respondWithDocumentError(w, d.logger, err)
}

func respondWithDocumentError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondWithError(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, document.ErrInvalidName), errors.Is(err, document.ErrMalformedFrontmatter):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, templating.ErrSourceTooLarge), errors.Is(err, templating.ErrOutputTooLarge):
		respondWithError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, templating.ErrTemplate):
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Template execution failed: %v", err))
	default:
		logger.Error("Document request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
