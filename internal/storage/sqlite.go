package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shiryo/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notebooks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		color_index INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notebooks_created_at ON notebooks(created_at);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		raw_payload TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sources_notebook_position ON sources(notebook_id, position);
	CREATE INDEX IF NOT EXISTS idx_sources_origin ON sources(notebook_id, origin);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		images TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_notebook_seq ON messages(notebook_id, seq);

	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_notebook ON artifacts(notebook_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// CreateNotebook inserts a notebook. Zero timestamps are set to now.
func (s *SQLiteStorage) CreateNotebook(ctx context.Context, nb *models.Notebook) error {
	if nb.CreatedAt.IsZero() {
		nb.CreatedAt = time.Now().UTC()
	}
	if nb.UpdatedAt.IsZero() {
		nb.UpdatedAt = nb.CreatedAt
	}
	nb.CreatedAt, nb.UpdatedAt = nb.CreatedAt.UTC(), nb.UpdatedAt.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notebooks (id, title, color_index, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		nb.ID, nb.Title, nb.ColorIndex, nb.CreatedAt, nb.UpdatedAt,
	)
	return err
}

const notebookColumns = `n.id, n.title, n.color_index, n.created_at, n.updated_at,
	(SELECT COUNT(*) FROM sources s WHERE s.notebook_id = n.id)`

func scanNotebook(row interface{ Scan(...any) error }) (*models.Notebook, error) {
	var nb models.Notebook
	if err := row.Scan(&nb.ID, &nb.Title, &nb.ColorIndex, &nb.CreatedAt, &nb.UpdatedAt, &nb.SourceCount); err != nil {
		return nil, err
	}
	return &nb, nil
}

// GetNotebook returns a notebook by ID with its derived source count.
func (s *SQLiteStorage) GetNotebook(ctx context.Context, id string) (*models.Notebook, error) {
	nb, err := scanNotebook(s.db.QueryRowContext(ctx,
		`SELECT `+notebookColumns+` FROM notebooks n WHERE n.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("notebook", id)
	}
	return nb, err
}

// ListNotebooks returns notebooks newest first, optionally filtered by title.
func (s *SQLiteStorage) ListNotebooks(ctx context.Context, filter string) ([]*models.Notebook, error) {
	query := `SELECT ` + notebookColumns + ` FROM notebooks n`
	var args []any
	if filter = strings.TrimSpace(filter); filter != "" {
		query += ` WHERE instr(lower(n.title), ?) > 0`
		args = append(args, strings.ToLower(filter))
	}
	query += ` ORDER BY n.created_at DESC, n.rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notebook
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, rows.Err()
}

// RenameNotebook changes a notebook's title.
func (s *SQLiteStorage) RenameNotebook(ctx context.Context, id, title string) error {
	return s.updateNotebook(ctx, id, `UPDATE notebooks SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now().UTC(), id)
}

// TouchNotebook sets a notebook's updated time.
func (s *SQLiteStorage) TouchNotebook(ctx context.Context, id string, at time.Time) error {
	return s.updateNotebook(ctx, id, `UPDATE notebooks SET updated_at = ? WHERE id = ?`, at.UTC(), id)
}

func (s *SQLiteStorage) updateNotebook(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("notebook", id)
	}
	return nil
}

// DeleteNotebook removes a notebook and everything it owns in one transaction.
func (s *SQLiteStorage) DeleteNotebook(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"sources", "messages", "artifacts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE notebook_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("notebook", id)
	}
	return tx.Commit()
}

// AddSource appends src after the notebook's existing sources.
func (s *SQLiteStorage) AddSource(ctx context.Context, notebookID string, src *models.Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM notebooks WHERE id = ?`, notebookID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return notFound("notebook", notebookID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sources (id, notebook_id, position, title, kind, content, raw_payload, media_type, checksum, origin, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM sources WHERE notebook_id = ?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, notebookID, notebookID, src.Title, string(src.Kind()), src.Content, src.RawPayload,
		src.MediaType, src.Checksum, src.Origin, src.CreatedAt(),
	)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notebooks SET updated_at = ? WHERE id = ?`, time.Now().UTC(), notebookID); err != nil {
		return err
	}
	return tx.Commit()
}

const sourceColumns = `id, title, kind, content, raw_payload, media_type, checksum, origin, created_at`

func scanSource(row interface{ Scan(...any) error }) (*models.Source, error) {
	var (
		id, title, kind, content, raw, mediaType, checksum, origin string
		createdAt                                                  time.Time
	)
	if err := row.Scan(&id, &title, &kind, &content, &raw, &mediaType, &checksum, &origin, &createdAt); err != nil {
		return nil, err
	}
	k, err := models.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", id, err)
	}
	src := models.NewSource(id, title, k, createdAt)
	src.Content = content
	src.RawPayload = raw
	src.MediaType = mediaType
	src.Checksum = checksum
	src.Origin = origin
	return src, nil
}

// GetSource returns one source of a notebook.
func (s *SQLiteStorage) GetSource(ctx context.Context, notebookID, id string) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE notebook_id = ? AND id = ?`, notebookID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("source", id)
	}
	return src, err
}

// ListSources returns a notebook's sources in the order they were added.
func (s *SQLiteStorage) ListSources(ctx context.Context, notebookID string) ([]*models.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE notebook_id = ? ORDER BY position`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteSource removes one source. Other sources keep their positions.
func (s *SQLiteStorage) DeleteSource(ctx context.Context, notebookID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE notebook_id = ? AND id = ?`, notebookID, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("source", id)
	}
	return nil
}

// FindSourceByOrigin returns the source imported from origin, if any.
func (s *SQLiteStorage) FindSourceByOrigin(ctx context.Context, notebookID, origin string) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE notebook_id = ? AND origin = ? AND origin != ''
		 ORDER BY position DESC LIMIT 1`, notebookID, origin))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("source with origin", origin)
	}
	return src, err
}

// CountSources returns the number of sources in a notebook.
func (s *SQLiteStorage) CountSources(ctx context.Context, notebookID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE notebook_id = ?`, notebookID).Scan(&count)
	return count, err
}

// AppendMessage adds a message at the end of the notebook's conversation.
func (s *SQLiteStorage) AppendMessage(ctx context.Context, notebookID string, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	images := ""
	if len(msg.Images) > 0 {
		b, err := json.Marshal(msg.Images)
		if err != nil {
			return fmt.Errorf("failed to marshal images: %w", err)
		}
		images = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, notebook_id, seq, role, content, images, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE notebook_id = ?), ?, ?, ?, ?)`,
		msg.ID, notebookID, notebookID, string(msg.Role), msg.Content, images, msg.CreatedAt,
	)
	return err
}

// ListMessages returns the conversation in order.
func (s *SQLiteStorage) ListMessages(ctx context.Context, notebookID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, images, created_at FROM messages WHERE notebook_id = ? ORDER BY seq`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			msg    models.Message
			role   string
			images string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &images, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		if images != "" {
			if err := json.Unmarshal([]byte(images), &msg.Images); err != nil {
				return nil, fmt.Errorf("failed to unmarshal images: %w", err)
			}
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// ClearMessages deletes a notebook's conversation.
func (s *SQLiteStorage) ClearMessages(ctx context.Context, notebookID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE notebook_id = ?`, notebookID)
	return err
}

// SaveArtifact stores generated studio output.
func (s *SQLiteStorage) SaveArtifact(ctx context.Context, notebookID string, a *models.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, notebook_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, notebookID, a.Kind, a.Content, a.CreatedAt,
	)
	return err
}

// ListArtifacts returns a notebook's artifacts newest first.
func (s *SQLiteStorage) ListArtifacts(ctx context.Context, notebookID string) ([]*models.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, created_at FROM artifacts WHERE notebook_id = ?
		 ORDER BY created_at DESC, rowid DESC`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		var a models.Artifact
		if err := rows.Scan(&a.ID, &a.Kind, &a.Content, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Stats returns row counts of every table.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM notebooks),
		(SELECT COUNT(*) FROM sources),
		(SELECT COUNT(*) FROM messages),
		(SELECT COUNT(*) FROM artifacts)`,
	).Scan(&st.Notebooks, &st.Sources, &st.Messages, &st.Artifacts)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
