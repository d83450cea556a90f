// Package supabase stores record collections in Supabase tables through the
// PostgREST API. Record fields are camelCase; table columns are snake_case.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"vansales/internal/core"
	"vansales/internal/store"
)

const (
	columnCreatedAt = "created_at"
	columnUpdatedAt = "updated_at"
	// createdAtLayout keeps a fixed width so PostgREST ordering and string
	// ordering agree.
	createdAtLayout = "2006-01-02T15:04:05.000000Z07:00"
	uniqueViolation = "23505"
)

// Config holds the project URL and API key.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type Store struct {
	http *resty.Client
	now  func() time.Time
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")+"/rest/v1").
		SetHeader("apikey", cfg.APIKey).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Store{http: client, now: time.Now}
}

// Ping checks that the REST endpoint answers with the configured key.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, core.KindProducts.Table(), map[string]string{"select": "id", "limit": "1"}, nil)
	return err
}

func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	order := columnCreatedAt + ".desc,id.desc"
	if kind.SortsByName() {
		order = "name.asc"
	}
	rows, err := s.do(ctx, http.MethodGet, kind.Table(), map[string]string{"select": "*", "order": order}, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return fromRows(kind, rows), nil
}

func (s *Store) Get(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	rows, err := s.do(ctx, http.MethodGet, kind.Table(), map[string]string{"select": "*", "id": "eq." + id}, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return single(kind, rows)
}

func (s *Store) Create(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	out := store.PrepareCreate(rec)
	rows, err := s.do(ctx, http.MethodPost, kind.Table(), nil, []map[string]any{toRow(kind, out)})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	created, err := single(kind, rows)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	slog.DebugContext(ctx, "Record saved to Supabase", "kind", kind, "record_id", created.ID())
	return created, nil
}

func (s *Store) Update(ctx context.Context, kind core.Kind, id string, patch core.Record) (core.Record, error) {
	body := toRow(kind, patch)
	delete(body, "id")
	rows, err := s.do(ctx, http.MethodPatch, kind.Table(), map[string]string{"id": "eq." + id}, body)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	return single(kind, rows)
}

func (s *Store) Delete(ctx context.Context, kind core.Kind, id string) error {
	rows, err := s.do(ctx, http.MethodDelete, kind.Table(), map[string]string{"id": "eq." + id}, nil)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Replace deletes every row of the table and inserts recs in one request.
// PostgREST offers no transaction across the two calls: a failed insert
// leaves the table empty and returns the error.
func (s *Store) Replace(ctx context.Context, kind core.Kind, recs []core.Record) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	if _, err := s.do(ctx, http.MethodDelete, kind.Table(), map[string]string{"id": "not.is.null"}, nil); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	if len(recs) == 0 {
		return nil
	}

	ordered := store.InsertionOrder(kind, recs)
	base := s.now().UTC()
	body := make([]map[string]any, len(ordered))
	for i, r := range ordered {
		row := toRow(kind, store.PrepareCreate(r))
		// created_at drives List order; stamp it for kinds that don't carry it.
		if _, ok := row[columnCreatedAt]; !ok {
			row[columnCreatedAt] = base.Add(time.Duration(i) * time.Microsecond).Format(createdAtLayout)
		}
		body[i] = row
	}
	if _, err := s.do(ctx, http.MethodPost, kind.Table(), nil, body); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	slog.InfoContext(ctx, "Collection replaced in Supabase", "kind", kind, "rows", len(recs))
	return nil
}

// do sends one PostgREST request and decodes the returned rows.
func (s *Store) do(ctx context.Context, method, table string, query map[string]string, body any) ([]map[string]any, error) {
	apiErr := new(apiError)
	req := s.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetError(apiErr).
		SetHeader("Prefer", "return=representation")
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, "/"+table)
	if err != nil {
		return nil, fmt.Errorf("supabase %s %s: %w", method, table, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		if apiErr.Code == uniqueViolation {
			return nil, store.ErrDuplicateID
		}
		return nil, fmt.Errorf("supabase api error: status=%d code=%s message=%s", resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	raw := resp.Body()
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode supabase response: %w", err)
	}
	return rows, nil
}

func single(kind core.Kind, rows []map[string]any) (core.Record, error) {
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return fromRow(kind, rows[0]), nil
}

// toRow maps record fields to column names. createdAt becomes the
// created_at column for kinds that carry it as data.
func toRow(kind core.Kind, rec core.Record) map[string]any {
	row := make(map[string]any, len(rec))
	for k, v := range rec {
		if v == nil {
			continue
		}
		if k == core.FieldCreatedAt && kind.DateField() != core.FieldCreatedAt {
			continue
		}
		row[snake(k)] = v
	}
	return row
}

func fromRow(kind core.Kind, row map[string]any) core.Record {
	rec := make(core.Record, len(row))
	for k, v := range row {
		if v == nil || k == columnUpdatedAt {
			continue
		}
		if k == columnCreatedAt && kind.DateField() != core.FieldCreatedAt {
			continue
		}
		rec[camel(k)] = v
	}
	return rec
}

func fromRows(kind core.Kind, rows []map[string]any) []core.Record {
	out := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(kind, r))
	}
	return out
}

// snake converts customerPhone to customer_phone.
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camel converts customer_phone to customerPhone.
func camel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
