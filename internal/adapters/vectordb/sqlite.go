package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/domain/snapshot"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRepository implements ports.SnapshotRepository with SQLite.
// One database holds exactly one snapshot; Save replaces it in a single
// transaction so a reader never sees a half-written knowledge base.
type SQLiteRepository struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

var _ ports.SnapshotRepository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens or creates the snapshot database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath == "" {
		dbPath = "./data/faqroute.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		dbPath: dbPath,
	}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return repo, nil
}

// initSchema creates the necessary tables.
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS entries (
		id              TEXT PRIMARY KEY,
		position        INTEGER NOT NULL,
		question        TEXT NOT NULL,
		variations      TEXT NOT NULL,
		answer_template TEXT NOT NULL,
		category        TEXT
	);
	CREATE TABLE IF NOT EXISTS vectors (
		entry_id  TEXT PRIMARY KEY REFERENCES entries(id),
		position  INTEGER NOT NULL,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_position ON entries(position);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Save replaces the stored snapshot.
func (r *SQLiteRepository) Save(ctx context.Context, snap *entities.Snapshot) error {
	if err := snapshot.Validate(snap); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM vectors", "DELETE FROM entries", "DELETE FROM snapshot_meta"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing previous snapshot: %w", err)
		}
	}

	meta := map[string]string{
		"encoder":   snap.EncoderID,
		"dimension": strconv.Itoa(snap.Dimension),
		"built_at":  snap.BuiltAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO snapshot_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("inserting meta %s: %w", k, err)
		}
	}

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, position, question, variations, answer_template, category)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing entry statement: %w", err)
	}
	defer entryStmt.Close()

	for i, e := range snap.Entries {
		variationsJSON, err := json.Marshal(e.Variations)
		if err != nil {
			return fmt.Errorf("encoding variations: %w", err)
		}
		if _, err := entryStmt.ExecContext(ctx, e.ID, i, e.Question, variationsJSON, e.AnswerTemplate, e.Category); err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.ID, err)
		}
	}

	vectorStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (entry_id, position, embedding) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing vector statement: %w", err)
	}
	defer vectorStmt.Close()

	for i, rec := range snap.Records {
		if _, err := vectorStmt.ExecContext(ctx, rec.EntryID, i, snapshot.EncodeVector(rec.Vector)); err != nil {
			return fmt.Errorf("inserting vector %s: %w", rec.EntryID, err)
		}
	}

	return tx.Commit()
}

// Load reads the stored snapshot back.
func (r *SQLiteRepository) Load(ctx context.Context) (*entities.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, err := r.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, entities.ErrSnapshotNotFound
	}

	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad dimension %q", entities.ErrIncompatibleSnapshot, meta["dimension"])
	}
	snap := &entities.Snapshot{EncoderID: meta["encoder"], Dimension: dim}
	if ts, err := time.Parse(time.RFC3339Nano, meta["built_at"]); err == nil {
		snap.BuiltAt = ts
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question, variations, answer_template, category
		FROM entries ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e entities.KnowledgeEntry
		var variationsJSON []byte
		var category sql.NullString
		if err := rows.Scan(&e.ID, &e.Question, &variationsJSON, &e.AnswerTemplate, &category); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if err := json.Unmarshal(variationsJSON, &e.Variations); err != nil {
			return nil, fmt.Errorf("decoding variations for %s: %w", e.ID, err)
		}
		e.Category = category.String
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := r.db.QueryContext(ctx, "SELECT entry_id, embedding FROM vectors ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var rec entities.EmbeddingRecord
		var blob []byte
		if err := vrows.Scan(&rec.EntryID, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		if rec.Vector, err = snapshot.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("%w: %v", entities.ErrIncompatibleSnapshot, err)
		}
		snap.Records = append(snap.Records, rec)
	}
	if err := vrows.Err(); err != nil {
		return nil, err
	}

	if err := snapshot.Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *SQLiteRepository) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM snapshot_meta")
	if err != nil {
		return nil, fmt.Errorf("querying meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// EntryCount returns the number of stored entries.
func (r *SQLiteRepository) EntryCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// FileRepository stores the snapshot as a single blob file.
type FileRepository struct {
	path string
}

var _ ports.SnapshotRepository = (*FileRepository)(nil)

// NewFileRepository creates a repository backed by path.
func NewFileRepository(path string) *FileRepository {
	if path == "" {
		path = "./data/faq_index.json"
	}
	return &FileRepository{path: path}
}

// Save writes the blob to a temp file and renames it into place.
func (r *FileRepository) Save(ctx context.Context, snap *entities.Snapshot) error {
	blob, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// Load reads and decodes the blob file.
func (r *FileRepository) Load(ctx context.Context) (*entities.Snapshot, error) {
	blob, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, entities.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return snapshot.Unmarshal(blob)
}

// Close is a no-op.
func (r *FileRepository) Close() error { return nil }
