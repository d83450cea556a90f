// Package sqlite stores record collections in a local SQLite database. Each
// record is kept as a JSON document next to a few indexed columns.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vansales/internal/core"
	"vansales/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	order := "seq DESC"
	if kind.SortsByName() {
		order = "sort_name COLLATE NOCASE ASC, seq ASC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE kind = ? ORDER BY `+order, kind.String())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	out := []core.Record{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		rec, err := decode(payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	return getRecord(ctx, s.db, kind, id)
}

func (s *Store) Create(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	out := store.PrepareCreate(rec)
	if err := insert(ctx, s.db, kind, out, s.stamp()); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Record saved to SQLite", "kind", kind, "record_id", out.ID())
	return out, nil
}

func (s *Store) Update(ctx context.Context, kind core.Kind, id string, patch core.Record) (core.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	cur, err := getRecord(ctx, tx, kind, id)
	if err != nil {
		return nil, err
	}
	merged := cur.Merge(patch)
	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET payload = ?, day = ?, sort_name = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		string(payload), dayOf(kind, merged), merged.Text(core.FieldName), s.stamp(), kind.String(), id,
	); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return merged, nil
}

func (s *Store) Delete(ctx context.Context, kind core.Kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, kind.String(), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Replace swaps the whole collection inside one transaction.
func (s *Store) Replace(ctx context.Context, kind core.Kind, recs []core.Record) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ?`, kind.String()); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	now := s.stamp()
	for _, r := range store.InsertionOrder(kind, recs) {
		if err := insert(ctx, tx, kind, store.PrepareCreate(r), now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	slog.InfoContext(ctx, "Collection replaced in SQLite", "kind", kind, "rows", len(recs))
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q querier, kind core.Kind, id string) (core.Record, error) {
	var payload string
	err := q.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE kind = ? AND id = ?`, kind.String(), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return decode(payload)
}

func insert(ctx context.Context, q querier, kind core.Kind, rec core.Record, now string) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO records (kind, id, day, sort_name, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		kind.String(), rec.ID(), dayOf(kind, rec), rec.Text(core.FieldName), string(payload), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("create %s %s: %w", kind, rec.ID(), store.ErrDuplicateID)
		}
		return fmt.Errorf("create %s: %w", kind, err)
	}
	return nil
}

func dayOf(kind core.Kind, rec core.Record) string {
	d, err := core.ParseDate(rec.Text(kind.DateField()))
	if err != nil {
		return ""
	}
	return d.String()
}

func decode(payload string) (core.Record, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var rec core.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
