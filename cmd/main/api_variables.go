package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"

	"github.com/CTAG07/Liquidize/pkg/document"
	"github.com/CTAG07/Liquidize/pkg/editor"
	"github.com/CTAG07/Liquidize/pkg/inference"
	"github.com/CTAG07/Liquidize/pkg/templating"
	"github.com/go-chi/chi/v5"
)

// VariableAPI holds the dependencies for the variable editor handlers.
type VariableAPI struct {
	store  *document.Store
	logger *slog.Logger
}

// VariablesResponse is the inferred variable table of a document.
type VariablesResponse struct {
	Document  string                         `json:"document"`
	Variables []inference.VariableDescriptor `json:"variables"`
	Fields    []editor.Field                 `json:"fields"`
}

// NewVariableAPI creates a new instance of the VariableAPI.
func NewVariableAPI(store *document.Store, logger *slog.Logger) *VariableAPI {
	return &VariableAPI{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for the variable editor endpoints.
func (v *VariableAPI) RegisterRoutes(r chi.Router) {
	r.With(requireScope(scopeDocumentsRead)).Get("/api/documents/{name}/variables", v.handleList)
	r.With(requireScope(scopeDocumentsRead)).Get("/api/documents/{name}/form", v.handleForm)
	r.With(requireScope(scopeDocumentsWrite)).Put("/api/documents/{name}/variables/{key}", v.handleSet)
}

// describe infers the variables of a document: every free variable of the
// template, followed by the frontmatter keys the template does not use.
func (v *VariableAPI) describe(ctx context.Context, name string) (*VariablesResponse, error) {
	meta, body, err := v.store.Metadata(ctx, name)
	if err != nil {
		return nil, err
	}
	return describeDocument(name, meta, body), nil
}

func describeDocument(name string, meta map[string]any, body string) *VariablesResponse {
	names := templating.Variables(body)
	var extra []string
	for k := range meta {
		if !slices.Contains(names, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	inferred := inference.InferWithValues(names, body, meta)
	descriptors := make([]inference.VariableDescriptor, 0, len(names))
	for _, n := range names {
		descriptors = append(descriptors, inferred[n])
	}
	return &VariablesResponse{
		Document:  name,
		Variables: descriptors,
		Fields:    editor.Fields(descriptors),
	}
}

func (v *VariableAPI) handleList(w http.ResponseWriter, r *http.Request) {
	resp, err := v.describe(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondWithDocumentError(w, v.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (v *VariableAPI) handleForm(w http.ResponseWriter, r *http.Request) {
	resp, err := v.describe(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondWithDocumentError(w, v.logger, err)
		return
	}
	var buf bytes.Buffer
	if err = editor.RenderForm(&buf, resp.Fields); err != nil {
		v.logger.Error("Failed to render variable form", "document", resp.Document, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to render form")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleSet coerces the raw control input in the body for the variable's
// widget, writes it to the document's frontmatter and returns the refreshed
// variable table.
func (v *VariableAPI) handleSet(w http.ResponseWriter, r *http.Request) {
	name, key := chi.URLParam(r, "name"), chi.URLParam(r, "key")

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	current, err := v.describe(r.Context(), name)
	if err != nil {
		respondWithDocumentError(w, v.logger, err)
		return
	}
	idx := slices.IndexFunc(current.Fields, func(f editor.Field) bool { return f.Key == key })
	if idx < 0 {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Variable '%s' not found in document", key))
		return
	}

	value, err := editor.Coerce(current.Fields[idx], string(raw))
	if err != nil {
		if errors.Is(err, editor.ErrInvalidValue) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithDocumentError(w, v.logger, err)
		return
	}

	doc, err := v.store.SetValue(r.Context(), name, key, value)
	if err != nil {
		respondWithDocumentError(w, v.logger, err)
		return
	}
	meta, body, err := document.ParseFrontmatter(doc.Content)
	if err != nil {
		respondWithDocumentError(w, v.logger, err)
		return
	}

	v.logger.Info("Variable updated via API", "document", name, "key", key)
	respondWithJSON(w, http.StatusOK, describeDocument(name, meta, body))
}
