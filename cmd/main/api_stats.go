package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_document (
    document      TEXT    PRIMARY KEY,
    renders       INTEGER NOT NULL DEFAULT 1,
    mutations     INTEGER NOT NULL DEFAULT 0,
    first_seen    INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL
);
`

// DocumentStats is the render history of a single document.
type DocumentStats struct {
	Document  string    `json:"document"`
	Renders   int64     `json:"renders"`
	Mutations int64     `json:"mutations"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// GlobalStatsSummary provides a high-level overview of all collected stats.
type GlobalStatsSummary struct {
	TotalRenders   int64 `json:"total_renders"`
	TotalMutations int64 `json:"total_mutations"`
	Documents      int64 `json:"documents"`
	OpenPreviews   int   `json:"open_previews"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	db       *sql.DB
	cm       *ConfigManager
	sessions func() int
	logger   *slog.Logger
	now      func() time.Time
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

// NewStatsAPI creates a StatsAPI. sessions reports the number of open previews.
func NewStatsAPI(db *sql.DB, cm *ConfigManager, sessions func() int, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:       db,
		cm:       cm,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *StatsAPI) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireScope(scopeStatsRead))
		r.Get("/api/stats/summary", s.handleSummary)
		r.Get("/api/stats/top_documents", s.handleTopDocuments)
	})
}

// RecordRender adds one render of document, with the number of mutations it
// applied, and returns the updated stats in a single transaction.
func (s *StatsAPI) RecordRender(ctx context.Context, document string, mutations int) (*DocumentStats, error) {
	if !s.cm.Get().Stats.Enabled {
		return nil, nil
	}
	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO stats_document (document, mutations, first_seen, last_seen) VALUES (?, ?, ?, ?)
        ON CONFLICT(document) DO UPDATE SET renders = renders + 1, mutations = mutations + excluded.mutations, last_seen = excluded.last_seen
    `, document, mutations, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert stats_document: %w", err)
	}

	stats := &DocumentStats{Document: document}
	var first, last int64
	err = tx.QueryRowContext(ctx, "SELECT renders, mutations, first_seen, last_seen FROM stats_document WHERE document = ?", document).
		Scan(&stats.Renders, &stats.Mutations, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve updated stats_document: %w", err)
	}
	stats.FirstSeen = time.UnixMilli(first).UTC()
	stats.LastSeen = time.UnixMilli(last).UTC()

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return stats, nil
}

// Forget drops the stats of a deleted document.
func (s *StatsAPI) Forget(ctx context.Context, document string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM stats_document WHERE document = ?", document)
	return err
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	var summary GlobalStatsSummary
	err := s.db.QueryRowContext(r.Context(),
		"SELECT COALESCE(SUM(renders), 0), COALESCE(SUM(mutations), 0), COUNT(*) FROM stats_document").
		Scan(&summary.TotalRenders, &summary.TotalMutations, &summary.Documents)
	if err != nil {
		s.logger.Error("Failed to query stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	if s.sessions != nil {
		summary.OpenPreviews = s.sessions()
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopDocuments(w http.ResponseWriter, r *http.Request) {
	limit := s.cm.Get().Stats.TopLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
			return
		}
		if limit <= 0 || n < limit {
			limit = n
		}
	}
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(r.Context(),
		"SELECT document, renders, mutations, first_seen, last_seen FROM stats_document ORDER BY renders DESC, document LIMIT ?", limit)
	if err != nil {
		s.logger.Error("Failed to query top documents", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := []DocumentStats{}
	for rows.Next() {
		var ds DocumentStats
		var first, last int64
		if err = rows.Scan(&ds.Document, &ds.Renders, &ds.Mutations, &first, &last); err != nil {
			s.logger.Error("Failed to scan top documents", "error", err)
			continue
		}
		ds.FirstSeen = time.UnixMilli(first).UTC()
		ds.LastSeen = time.UnixMilli(last).UTC()
		results = append(results, ds)
	}
	respondWithJSON(w, http.StatusOK, results)
}
