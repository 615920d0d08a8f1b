//go:build cgo_sqlite

package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens the database with the cgo driver, enabling WAL and a busy
// timeout unless the data source already sets them.
func initDB(dataSource string) (*sql.DB, error) {
	if !strings.Contains(dataSource, "_journal_mode=") && !strings.Contains(dataSource, "_busy_timeout=") {
		sep := "?"
		if strings.Contains(dataSource, "?") {
			sep = "&"
		}
		dataSource += sep + "_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dataSource)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", dataSource, err)
	}
	return db, nil
}
