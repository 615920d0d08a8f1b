package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Liquidize/pkg/preview"
	"github.com/go-chi/chi/v5"
)

// PreviewAPI holds the dependencies for the live preview handlers.
type PreviewAPI struct {
	pm     *preview.Manager
	stats  *StatsAPI
	logger *slog.Logger
}

// OpenPreviewRequest is the expected JSON body for opening a preview.
type OpenPreviewRequest struct {
	Document string `json:"document"`
}

// PreviewInfo describes an open preview session.
type PreviewInfo struct {
	ID       string    `json:"id"`
	Document string    `json:"document"`
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"last_used"`
	Renders  int       `json:"renders"`
	HTML     string    `json:"html,omitempty"`
}

// NewPreviewAPI creates a new instance of the PreviewAPI.
func NewPreviewAPI(pm *preview.Manager, stats *StatsAPI, logger *slog.Logger) *PreviewAPI {
	return &PreviewAPI{
		pm:     pm,
		stats:  stats,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/previews endpoints.
func (p *PreviewAPI) RegisterRoutes(r chi.Router) {
	r.Route("/api/previews", func(r chi.Router) {
		r.Use(requireScope(scopePreviewRender))
		r.Post("/", p.handleOpen)
		r.Get("/{id}", p.handleGet)
		r.Delete("/{id}", p.handleClose)
		r.Post("/{id}/render", p.handleRender)
		r.Post("/{id}/overlay", p.handleOverlay)
		r.Get("/{id}/markdown", p.handleMarkdown)
	})
}

func sessionInfo(s *preview.Session) PreviewInfo {
	return PreviewInfo{
		ID:       s.ID,
		Document: s.Document,
		Created:  s.Created,
		LastUsed: s.LastUsed(),
		Renders:  s.Renders(),
	}
}

// session looks up the session named in the URL, responding with 404 when
// it does not exist.
func (p *PreviewAPI) session(w http.ResponseWriter, r *http.Request) (*preview.Session, bool) {
	s, err := p.pm.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Preview session not found")
		return nil, false
	}
	return s, true
}

func (p *PreviewAPI) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenPreviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Document == "" {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body: 'document' is required")
		return
	}
	s, err := p.pm.Open(r.Context(), req.Document)
	if err != nil {
		if errors.Is(err, preview.ErrTooManySessions) {
			respondWithError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		respondWithDocumentError(w, p.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, sessionInfo(s))
}

func (p *PreviewAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	info := sessionInfo(s)
	var err error
	if info.HTML, err = s.HTML(); err != nil {
		p.logger.Error("Failed to serialise preview", "session", s.ID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to serialise preview")
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

func (p *PreviewAPI) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := p.pm.Close(chi.URLParam(r, "id")); err != nil {
		respondWithError(w, http.StatusNotFound, "Preview session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRender re-renders the session's document with the optional JSON
// object of overrides in the body and returns the applied mutations.
func (p *PreviewAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	overrides, ok := decodeOverrides(w, r)
	if !ok {
		return
	}

	res, err := s.Render(r.Context(), overrides)
	if err != nil {
		respondWithDocumentError(w, p.logger, err)
		return
	}
	if _, err = p.stats.RecordRender(r.Context(), s.Document, len(res.Mutations)); err != nil {
		p.logger.Warn("Failed to record render stats", "document", s.Document, "error", err)
	}
	respondWithJSON(w, http.StatusOK, res)
}

// handleOverlay appends host-owned markup from the body to the live root.
func (p *PreviewAPI) handleOverlay(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	markup, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if err = s.Overlay(string(markup)); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *PreviewAPI) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	md, err := s.Markdown()
	if err != nil {
		p.logger.Error("Failed to export preview markdown", "session", s.ID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to export markdown")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, md)
}
