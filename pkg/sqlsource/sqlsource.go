// Package sqlsource provides a SQLite-backed dataset for paging.WindowSource.
//
// Items are stored as JSON payloads next to a two-column ordering key: a text
// primary column compared bytewise and an integer tiebreak. Rank queries use
// keyset predicates, so the anchor key does not need to exist in the table.
//
// # Basic Usage
//
//	ds, err := sqlsource.Open[Key, Item](ctx, "file:items.db", sqlsource.Config[Key, Item]{
//		KeyOf:         Item.Key,
//		Columns:       func(k Key) (string, int64) { return k.Name, int64(k.ID) },
//		TieDescending: true,
//	})
//	src := paging.NewWindowSource[Key, Item](ds)
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/keypage/pkg/paging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrClosed is returned after Close.
var ErrClosed = errors.New("sqlsource: dataset closed")

const schema = `
CREATE TABLE IF NOT EXISTS records (
	primary_key TEXT NOT NULL,
	tie_key     INTEGER NOT NULL,
	payload     BLOB NOT NULL,
	PRIMARY KEY (primary_key, tie_key)
);`

// Config configures a Dataset.
type Config[K, V any] struct {
	// KeyOf derives the ordering key of an item (required).
	KeyOf func(V) K

	// Columns splits a key into the primary text column and the integer
	// tiebreak (required).
	Columns func(K) (string, int64)

	// TieDescending orders the tiebreak column descending.
	TieDescending bool

	// Logger defaults to the global logger with component "sqlsource".
	Logger *zerolog.Logger
}

// Dataset is a paging.Dataset stored in a SQLite table.
type Dataset[K, V any] struct {
	db     *sql.DB
	cfg    Config[K, V]
	logger zerolog.Logger
	closed atomic.Bool

	orderBy   string
	lessThan  string
	lessEqual string
}

// BusyTimeout bounds how long a connection waits on a locked file database.
const BusyTimeout = 5 * time.Second

// Open opens (or creates) the database at dsn and prepares the table.
// Use ":memory:" for a private in-memory database. File databases run in WAL
// mode with BusyTimeout, so writes proceed while loads hold a snapshot.
func Open[K, V any](ctx context.Context, dsn string, cfg Config[K, V]) (*Dataset[K, V], error) {
	memory := dsn == ":memory:"
	if !memory {
		dsn = withPragmas(dsn)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	ds, err := New(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ds, nil
}

// withPragmas appends the per-connection pragmas to a file dsn. The driver
// applies _pragma parameters on every new connection in the pool.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		dsn, sep, BusyTimeout.Milliseconds())
}

// New wraps an open database handle and prepares the table.
func New[K, V any](ctx context.Context, db *sql.DB, cfg Config[K, V]) (*Dataset[K, V], error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.KeyOf == nil || cfg.Columns == nil {
		return nil, fmt.Errorf("KeyOf and Columns are required")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init table: %w", err)
	}

	logger := log.With().Str("component", "sqlsource").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	ds := &Dataset[K, V]{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.TieDescending {
		ds.orderBy = "primary_key ASC, tie_key DESC"
		ds.lessThan = "primary_key < ? OR (primary_key = ? AND tie_key > ?)"
		ds.lessEqual = "primary_key < ? OR (primary_key = ? AND tie_key >= ?)"
	} else {
		ds.orderBy = "primary_key ASC, tie_key ASC"
		ds.lessThan = "primary_key < ? OR (primary_key = ? AND tie_key < ?)"
		ds.lessEqual = "primary_key < ? OR (primary_key = ? AND tie_key <= ?)"
	}
	return ds, nil
}

// KeyOf implements paging.Dataset.
func (d *Dataset[K, V]) KeyOf(item V) K {
	return d.cfg.KeyOf(item)
}

// Compare orders keys the way the table does.
func (d *Dataset[K, V]) Compare(a, b K) int {
	ap, at := d.cfg.Columns(a)
	bp, bt := d.cfg.Columns(b)
	switch {
	case ap < bp:
		return -1
	case ap > bp:
		return 1
	}
	c := 0
	switch {
	case at < bt:
		c = -1
	case at > bt:
		c = 1
	}
	if d.cfg.TieDescending {
		return -c
	}
	return c
}

// View implements paging.Dataset. Each view runs inside one deferred
// transaction, so every query of a load sees the same table state.
func (d *Dataset[K, V]) View(ctx context.Context, fn func(paging.Snapshot[K, V]) error) error {
	if d.closed.Load() {
		return ErrClosed
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	return fn(&snapshot[K, V]{ctx: ctx, tx: tx, d: d})
}

// Upsert inserts or replaces items in one transaction.
func (d *Dataset[K, V]) Upsert(ctx context.Context, items ...V) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO records (primary_key, tie_key, payload) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal item: %w", err)
		}
		primary, tie := d.cfg.Columns(d.cfg.KeyOf(item))
		if _, err := stmt.ExecContext(ctx, primary, tie, payload); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	d.logger.Debug().Int("count", len(items)).Msg("Upserted records")
	return nil
}

// Delete removes the items with the given keys and returns how many existed.
func (d *Dataset[K, V]) Delete(ctx context.Context, keys ...K) (int, error) {
	removed := 0
	for _, key := range keys {
		primary, tie := d.cfg.Columns(key)
		res, err := d.db.ExecContext(ctx,
			"DELETE FROM records WHERE primary_key = ? AND tie_key = ?", primary, tie)
		if err != nil {
			return removed, fmt.Errorf("delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("rows affected: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

// Truncate removes every record.
func (d *Dataset[K, V]) Truncate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (d *Dataset[K, V]) Close() error {
	d.closed.Store(true)
	return d.db.Close()
}

type snapshot[K, V any] struct {
	ctx context.Context
	tx  *sql.Tx
	d   *Dataset[K, V]
}

func (s *snapshot[K, V]) Len() (int, error) {
	var n int
	if err := s.tx.QueryRowContext(s.ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *snapshot[K, V]) count(predicate string, key K) (int, error) {
	primary, tie := s.d.cfg.Columns(key)
	var n int
	err := s.tx.QueryRowContext(s.ctx,
		"SELECT COUNT(*) FROM records WHERE "+predicate, primary, primary, tie).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by key: %w", err)
	}
	return n, nil
}

func (s *snapshot[K, V]) FirstIndexAfter(key K) (int, error) {
	return s.count(s.d.lessEqual, key)
}

func (s *snapshot[K, V]) FirstIndexBefore(key K) (int, error) {
	n, err := s.count(s.d.lessThan, key)
	return n - 1, err
}

func (s *snapshot[K, V]) Slice(start, end int) ([]V, error) {
	if end <= start {
		return []V{}, nil
	}
	rows, err := s.tx.QueryContext(s.ctx,
		"SELECT payload FROM records ORDER BY "+s.d.orderBy+" LIMIT ? OFFSET ?", end-start, start)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	out := make([]V, 0, end-start)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var item V
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window: %w", err)
	}
	return out, nil
}

// Ensure Dataset implements paging.Dataset.
var _ paging.Dataset[string, string] = (*Dataset[string, string])(nil)
