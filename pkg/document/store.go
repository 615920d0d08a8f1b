package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// Extension is the file extension used by ImportDir and Export.
const Extension = ".md"

// ErrInvalidName is returned for document names that cannot be stored or
// exported safely.
var ErrInvalidName = errors.New("invalid document name")

// Document is a stored template document: YAML frontmatter followed by a
// Liquid/Markdown body.
type Document struct {
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetupSchema initializes the documents table in the provided database.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    name TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schemaDocuments); err != nil {
		return fmt.Errorf("could not create documents schema: %w", err)
	}
	return nil
}

// ValidateName reports whether name can be used as a document name. Names map
// to files on export, so separators and dot segments are rejected.
func ValidateName(name string) error {
	switch {
	case name == "", len(name) > 255:
		return fmt.Errorf("%w: length must be 1-255", ErrInvalidName)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case name == "." || name == ".." || strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	}
	return nil
}

// Store keeps documents in SQLite. It holds prepared statements for the hot
// paths and is safe for concurrent use.
type Store struct {
	db         *sql.DB
	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtPut    *sql.Stmt
	stmtDelete *sql.Stmt
	logger     *slog.Logger
	now        func() time.Time
}

// NewStore prepares the store's statements. SetupSchema must have been run.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGet, err := db.Prepare(`SELECT content, created_at, updated_at FROM documents WHERE name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtList, err := db.Prepare(`SELECT name, length(CAST(content AS BLOB)), created_at, updated_at FROM documents ORDER BY name;`)
	if err != nil {
		return nil, err
	}

	stmtPut, err := db.Prepare(`INSERT INTO documents (name, content, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at;`)
	if err != nil {
		return nil, err
	}

	stmtDelete, err := db.Prepare(`DELETE FROM documents WHERE name = ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		stmtGet:    stmtGet,
		stmtList:   stmtList,
		stmtPut:    stmtPut,
		stmtDelete: stmtDelete,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}, nil
}

// Close releases the prepared statements. The database itself is owned by the caller.
func (s *Store) Close() {
	_ = s.stmtGet.Close()
	_ = s.stmtList.Close()
	_ = s.stmtPut.Close()
	_ = s.stmtDelete.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Put creates or replaces a document.
func (s *Store) Put(ctx context.Context, name, content string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	now := s.now().UnixMilli()
	if _, err := s.stmtPut.ExecContext(ctx, name, content, now, now); err != nil {
		return fmt.Errorf("failed to store document %q: %w", name, err)
	}
	s.logger.Debug("Stored document", "name", name, "size", len(content))
	return nil
}

// Get returns a document with its content. A missing document yields an
// error wrapping sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, name string) (Document, error) {
	doc := Document{Name: name}
	var created, updated int64
	err := s.stmtGet.QueryRowContext(ctx, name).Scan(&doc.Content, &created, &updated)
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %q: %w", name, err)
	}
	doc.Size = len(doc.Content)
	doc.CreatedAt = time.UnixMilli(created).UTC()
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return doc, nil
}

// List returns every document without its content, ordered by name.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var created, updated int64
		if err = rows.Scan(&doc.Name, &doc.Size, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc.CreatedAt = time.UnixMilli(created).UTC()
		doc.UpdatedAt = time.UnixMilli(updated).UTC()
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document. Deleting a missing document yields an error
// wrapping sql.ErrNoRows.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.stmtDelete.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to delete document %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to delete document %q: %w", name, sql.ErrNoRows)
	}
	s.logger.Debug("Deleted document", "name", name)
	return nil
}

// Metadata returns the parsed frontmatter and the body of a document.
func (s *Store) Metadata(ctx context.Context, name string) (map[string]any, string, error) {
	doc, err := s.Get(ctx, name)
	if err != nil {
		return nil, "", err
	}
	meta, body, err := ParseFrontmatter(doc.Content)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse frontmatter of %q: %w", name, err)
	}
	return meta, body, nil
}

// SetValue writes a single frontmatter key of a document. The read, edit and
// write happen in one transaction so concurrent edits of different keys are
// not lost.
func (s *Store) SetValue(ctx context.Context, name, key string, value any) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var content string
	var created int64
	err = tx.StmtContext(ctx, s.stmtGet).QueryRowContext(ctx, name).Scan(&content, &created, new(int64))
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %q: %w", name, err)
	}

	updated, err := SetFrontmatterValue(content, key, value)
	if err != nil {
		return Document{}, fmt.Errorf("failed to set %q on %q: %w", key, name, err)
	}

	now := s.now()
	if _, err = tx.StmtContext(ctx, s.stmtPut).ExecContext(ctx, name, updated, created, now.UnixMilli()); err != nil {
		return Document{}, fmt.Errorf("failed to store document %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.Debug("Updated frontmatter value", "name", name, "key", key)
	return Document{
		Name:      name,
		Content:   updated,
		Size:      len(updated),
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// ImportDir stores every *.md file of dir as a document named after the file
// without its extension. It returns the number of documents imported.
func (s *Store) ImportDir(ctx context.Context, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	count := 0
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), Extension)
		if ValidateName(name) != nil {
			s.logger.Warn("Skipping file with unusable name", "path", path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return count, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err = s.Put(ctx, name, string(data)); err != nil {
			return count, err
		}
		count++
	}
	s.logger.Info("Imported documents", "dir", dir, "count", count)
	return count, nil
}

// Export writes a document to dir as name.md, replacing any existing file
// atomically. It returns the written path.
func (s *Store) Export(ctx context.Context, name, dir string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	doc, err := s.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, name+Extension)
	if err = atomic.WriteFile(path, strings.NewReader(doc.Content)); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.logger.Info("Exported document", "name", name, "path", path)
	return path, nil
}
