package docstore

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

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrStoreUnavailable is returned when a transaction could not be committed
// after the store exhausted its internal retries. Callers may retry later.
var ErrStoreUnavailable = errors.New("document store unavailable")

// RetryPolicy управляет повторами транзакций при блокировке базы.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (r RetryPolicy) delay(attempt int) time.Duration {
	if r.InitialDelay <= 0 {
		r.InitialDelay = 20 * time.Millisecond
	}
	d := r.InitialDelay << (attempt - 1)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}

// Store is a small document store on top of SQLite: JSON documents addressed
// by (collection, id), with read-modify-write transactions.
type Store struct {
	db     *sql.DB
	retry  RetryPolicy
	logger *zerolog.Logger
}

func Open(path string, logger *zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}

	// Transactions serialize on a single writer connection.
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE IF NOT EXISTS documents (
        collection TEXT NOT NULL,
        doc_id     TEXT NOT NULL,
        data       TEXT NOT NULL,
        version    INTEGER NOT NULL DEFAULT 1,
        updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (collection, doc_id)
    )`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	logger.Info().Str("path", path).Msg("document store initialized")

	return &Store{
		db:     db,
		retry:  RetryPolicy{MaxAttempts: 5, InitialDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
		logger: logger,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get unmarshals the document into out and reports whether it exists.
// Absence is not an error.
func (s *Store) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND doc_id = ?`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// Upsert writes a full document, last writer wins. With merge set, top-level
// fields of data are overlaid onto the stored document instead.
func (s *Store) Upsert(ctx context.Context, collection, id string, data any, merge bool) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		if merge {
			return tx.merge(collection, id, data)
		}
		return tx.Set(collection, id, data)
	})
}

// Document is a raw query result.
type Document struct {
	ID   string
	Data []byte
}

// Query returns documents whose top-level field equals value. Value is
// compared as its JSON representation, which is enough for string and
// numeric fields.
func (s *Store) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, data FROM documents
         WHERE collection = ? AND json_extract(data, '$.' || ?) = ?
         ORDER BY doc_id`,
		collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var raw string
		if err := rows.Scan(&d.ID, &raw); err != nil {
			return nil, err
		}
		d.Data = []byte(raw)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// QueryPrefix returns documents whose top-level string field starts with
// prefix. Used for month filters over date fields.
func (s *Store) QueryPrefix(ctx context.Context, collection, field, prefix string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, data FROM documents
         WHERE collection = ? AND json_extract(data, '$.' || ?) LIKE ? || '%'
         ORDER BY doc_id`,
		collection, field, prefix)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s prefix: %w", collection, field, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var raw string
		if err := rows.Scan(&d.ID, &raw); err != nil {
			return nil, err
		}
		d.Data = []byte(raw)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// RunTransaction executes fn inside a read-then-write transaction. Busy or
// locked errors from the engine are retried with backoff; exhaustion
// surfaces as ErrStoreUnavailable, as does a context deadline or cancel
// hit mid-transaction. Errors returned by fn abort the transaction and
// are passed through untouched.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// A deadline that fires mid-transaction is the same condition as
			// a saturated store: callers should back off and retry.
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !retryable(err) {
			return err
		}

		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("document store transaction retry")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		case <-time.After(s.retry.delay(attempt)):
		}
	}

	return fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	tx := &Tx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	return sqlTx.Commit()
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// Tx exposes document reads and writes scoped to one transaction.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *Tx) Get(collection, id string, out any) (bool, error) {
	var raw string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT data FROM documents WHERE collection = ? AND doc_id = ?`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tx get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("tx decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (t *Tx) Set(collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, doc_id, data, version, updated_at)
         VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
         ON CONFLICT (collection, doc_id)
         DO UPDATE SET data = excluded.data, version = version + 1, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("tx set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *Tx) merge(collection, id string, data any) error {
	existing := make(map[string]any)
	if _, err := t.Get(collection, id, &existing); err != nil {
		return err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode merge %s/%s: %w", collection, id, err)
	}
	patch := make(map[string]any)
	if err := json.Unmarshal(raw, &patch); err != nil {
		return fmt.Errorf("merge %s/%s requires an object payload: %w", collection, id, err)
	}

	for k, v := range patch {
		existing[k] = v
	}
	return t.Set(collection, id, existing)
}
