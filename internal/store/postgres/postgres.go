// Package postgres stores record collections in PostgreSQL as JSONB documents.
package postgres

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"vansales/internal/core"
	"vansales/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and applies pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded goose migrations through the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	order := "seq DESC"
	if kind.SortsByName() {
		order = "lower(sort_name) ASC, seq ASC"
	}
	rows, err := s.pool.Query(ctx, `SELECT payload FROM records WHERE kind = $1 ORDER BY `+order, kind.String())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}

	out := make([]core.Record, 0, len(payloads))
	for _, p := range payloads {
		rec, err := decode(p)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	return getRecord(ctx, s.pool, kind, id, false)
}

func (s *Store) Create(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	out := store.PrepareCreate(rec)
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	_, err = s.pool.Exec(ctx, insertSQL, kind.String(), out.ID(), dayOf(kind, out), out.Text(core.FieldName), payload)
	if err != nil {
		return nil, wrapInsert(kind, out.ID(), err)
	}
	slog.DebugContext(ctx, "Record saved to PostgreSQL", "kind", kind, "record_id", out.ID())
	return out, nil
}

func (s *Store) Update(ctx context.Context, kind core.Kind, id string, patch core.Record) (core.Record, error) {
	var merged core.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := getRecord(ctx, tx, kind, id, true)
		if err != nil {
			return err
		}
		merged = cur.Merge(patch)
		payload, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE records SET payload = $1, day = $2, sort_name = $3, updated_at = now() WHERE kind = $4 AND id = $5`,
			payload, dayOf(kind, merged), merged.Text(core.FieldName), kind.String(), id)
		if err != nil {
			return fmt.Errorf("update %s %s: %w", kind, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) Delete(ctx context.Context, kind core.Kind, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE kind = $1 AND id = $2`, kind.String(), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Replace swaps the collection in one transaction, sending the inserts as a
// single batch.
func (s *Store) Replace(ctx context.Context, kind core.Kind, recs []core.Record) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM records WHERE kind = $1`, kind.String()); err != nil {
			return fmt.Errorf("clear %s: %w", kind, err)
		}
		batch := &pgx.Batch{}
		for _, r := range store.InsertionOrder(kind, recs) {
			r = store.PrepareCreate(r)
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode %s: %w", kind, err)
			}
			batch.Queue(insertSQL, kind.String(), r.ID(), dayOf(kind, r), r.Text(core.FieldName), payload)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return wrapInsert(kind, "", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Collection replaced in PostgreSQL", "kind", kind, "rows", len(recs))
	return nil
}

const insertSQL = `INSERT INTO records (kind, id, day, sort_name, payload) VALUES ($1, $2, $3, $4, $5)`

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRecord(ctx context.Context, q queryer, kind core.Kind, id string, lock bool) (core.Record, error) {
	query := `SELECT payload FROM records WHERE kind = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var payload []byte
	err := q.QueryRow(ctx, query, kind.String(), id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return decode(payload)
}

func wrapInsert(kind core.Kind, id string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("create %s %s: %w", kind, id, store.ErrDuplicateID)
	}
	return fmt.Errorf("create %s: %w", kind, err)
}

func dayOf(kind core.Kind, rec core.Record) string {
	d, err := core.ParseDate(rec.Text(kind.DateField()))
	if err != nil {
		return ""
	}
	return d.String()
}

func decode(payload []byte) (core.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var rec core.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
