// Package replica provides SQLite-based document storage. It backs the
// local replica of the client and the storage of doclink-server.
package replica

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kilupskalvis/doclink/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write does not carry the current
	// revision of the document.
	ErrConflict = errors.New("document update conflict")
)

// Store is a SQLite document store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	indexes map[string]string
}

// Open opens or creates the store at path and initializes its schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, indexes: make(map[string]string)}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		doctype TEXT NOT NULL,
		id TEXT NOT NULL,
		rev TEXT NOT NULL,
		data JSON NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (doctype, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(doctype, seq);

	-- One row per doctype pulled from the remote stack
	CREATE TABLE IF NOT EXISTS sync_state (
		doctype TEXT PRIMARY KEY,
		synced_at INTEGER NOT NULL,
		doc_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Get returns a document. It fails with ErrNotFound when it does not exist.
func (s *Store) Get(ctx context.Context, doctype, id string) (*models.Document, error) {
	return s.get(ctx, s.db, doctype, id)
}

func (s *Store) get(ctx context.Context, q queryer, doctype, id string) (*models.Document, error) {
	var data []byte
	err := q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE doctype = ? AND id = ?`, doctype, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, models.DocumentKey(doctype, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeDocument(data)
}

// put writes doc as is, keeping its insertion sequence when it already
// exists.
func (s *Store) put(ctx context.Context, q queryer, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	seq, err := s.nextSeq(ctx, q)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (doctype, id, rev, data, seq) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (doctype, id) DO UPDATE SET rev = excluded.rev, data = excluded.data`,
		doc.Type, doc.ID, doc.Rev, string(data), seq)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, q queryer) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES ('seq', 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1
		RETURNING value`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return seq, nil
}

// Put writes documents as received from another store, revisions included.
func (s *Store) Put(ctx context.Context, docs ...*models.Document) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, doc := range docs {
			if err := s.put(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of documents of a doctype.
func (s *Store) Count(ctx context.Context, doctype string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE doctype = ?`, doctype).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Doctypes returns the doctypes holding at least one document.
func (s *Store) Doctypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT doctype FROM documents ORDER BY doctype`)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctypes: %w", err)
	}
	defer rows.Close()

	var doctypes []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		doctypes = append(doctypes, d)
	}
	return doctypes, rows.Err()
}

// Sync replaces every document of doctype with docs and marks the doctype
// as synced.
func (s *Store) Sync(ctx context.Context, doctype string, docs []*models.Document) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doctype = ?`, doctype); err != nil {
			return fmt.Errorf("failed to clear %s: %w", doctype, err)
		}
		for _, doc := range docs {
			if doc.Type != doctype {
				return fmt.Errorf("document %s is not a %s", doc.Key(), doctype)
			}
			if err := s.put(ctx, tx, doc); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (doctype, synced_at, doc_count) VALUES (?, ?, ?)
			ON CONFLICT (doctype) DO UPDATE SET synced_at = excluded.synced_at, doc_count = excluded.doc_count`,
			doctype, time.Now().UnixNano(), len(docs))
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("doctype synced", zap.String("doctype", doctype), zap.Int("documents", len(docs)))
	return nil
}

// SyncState describes the last pull of a doctype.
type SyncState struct {
	Doctype  string
	SyncedAt time.Time
	Count    int
}

// SyncState returns the last pull of doctype, or nil if it was never
// synced.
func (s *Store) SyncState(ctx context.Context, doctype string) (*SyncState, error) {
	state := &SyncState{Doctype: doctype}
	var syncedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT synced_at, doc_count FROM sync_state WHERE doctype = ?`, doctype).Scan(&syncedAt, &state.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	state.SyncedAt = time.Unix(0, syncedAt)
	return state, nil
}

// IsSynced reports whether doctype was pulled at least once.
func (s *Store) IsSynced(ctx context.Context, doctype string) (bool, error) {
	state, err := s.SyncState(ctx, doctype)
	if err != nil {
		return false, err
	}
	return state != nil, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func decodeDocument(data []byte) (*models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}
