//go:build !cgo_sqlite

package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// initDB opens the database with the pure-Go driver, enabling WAL and a busy
// timeout unless the data source already sets pragmas.
func initDB(dataSource string) (*sql.DB, error) {
	if !strings.Contains(dataSource, "_pragma=") {
		sep := "?"
		if strings.Contains(dataSource, "?") {
			sep = "&"
		}
		dataSource += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", dataSource, err)
	}
	return db, nil
}
