// Package sheets stores record collections in a Google Spreadsheet, one tab
// per kind with a header row naming the fields.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"vansales/internal/core"
	"vansales/internal/spreadsheet"
	"vansales/internal/store"
)

// RAW keeps date strings as text instead of letting Sheets turn them into
// date serials.
const valueInputOption = "RAW"

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ store.Store = (*Client)(nil)

// New creates a client authenticated with a service account.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(opts) == 0 {
		creds, err := loadCredentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetIDs: map[string]int64{}}, nil
}

// loadCredentials reads inline JSON, then the file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading service account credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Ping reads the spreadsheet metadata.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

func (c *Client) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	t, err := c.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	return store.Ordered(kind, t.recs), nil
}

func (c *Client) Get(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	t, err := c.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	if i := t.find(id); i >= 0 {
		return t.recs[i], nil
	}
	return nil, store.ErrNotFound
}

func (c *Client) Create(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	out := store.PrepareCreate(rec)
	t, err := c.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	if t.find(out.ID()) >= 0 {
		return nil, fmt.Errorf("create %s %s: %w", kind, out.ID(), store.ErrDuplicateID)
	}
	header, err := c.ensureHeader(ctx, kind, t.header, out)
	if err != nil {
		return nil, err
	}

	vr := &gsheet.ValueRange{Values: [][]any{toRow(header, out)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, kind.SheetName(), vr).
		ValueInputOption(valueInputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("append to %s: %w", kind.SheetName(), err)
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, kind core.Kind, id string, patch core.Record) (core.Record, error) {
	t, err := c.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	i := t.find(id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	merged := t.recs[i].Merge(patch)
	header, err := c.ensureHeader(ctx, kind, t.header, merged)
	if err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!A%d", kind.SheetName(), t.rows[i])
	vr := &gsheet.ValueRange{Values: [][]any{toRow(header, merged)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputOption).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("update %s: %w", rng, err)
	}
	return merged, nil
}

func (c *Client) Delete(ctx context.Context, kind core.Kind, id string) error {
	t, err := c.read(ctx, kind)
	if err != nil {
		return err
	}
	i := t.find(id)
	if i < 0 {
		return store.ErrNotFound
	}
	sheetID, err := c.sheetID(ctx, kind.SheetName())
	if err != nil {
		return err
	}
	// DimensionRange indexes are zero based and end-exclusive.
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(t.rows[i] - 1),
			EndIndex:   int64(t.rows[i]),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row from %s: %w", kind.SheetName(), err)
	}
	return nil
}

// Replace clears the tab and writes the header and every record in one call.
func (c *Client) Replace(ctx context.Context, kind core.Kind, recs []core.Record) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	sheet := kind.SheetName()
	if _, err := c.sheetID(ctx, sheet); err != nil {
		return err
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, sheet, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}

	ordered := store.InsertionOrder(kind, recs)
	header := headerFor(kind, ordered)
	values := make([][]any, 0, len(ordered)+1)
	values = append(values, toAny(header))
	for _, r := range ordered {
		values = append(values, toRow(header, store.PrepareCreate(r)))
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption(valueInputOption).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Sheet replaced", "kind", kind, "rows", len(recs))
	return nil
}

// read returns the header row and the records of a tab in sheet order. A
// missing tab is created and reads as no records.
func (c *Client) read(ctx context.Context, kind core.Kind) (tab, error) {
	sheet := kind.SheetName()
	if _, err := c.sheetID(ctx, sheet); err != nil {
		return tab{}, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return tab{}, fmt.Errorf("read %s: %w", sheet, err)
	}
	return parseValues(kind, resp.Values), nil
}

// ensureHeader widens the header row when rec carries fields it lacks.
func (c *Client) ensureHeader(ctx context.Context, kind core.Kind, header []string, rec core.Record) ([]string, error) {
	want := mergeHeader(kind, header, rec)
	if len(want) == len(header) {
		return header, nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{toAny(want)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, kind.SheetName()+"!A1", vr).
		ValueInputOption(valueInputOption).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("write header of %s: %w", kind.SheetName(), err)
	}
	return want, nil
}

// sheetID returns the numeric id of a tab, creating the tab when missing.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sheetIDs[title]; ok {
		return id, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	if id, ok := c.sheetIDs[title]; ok {
		return id, nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", title)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId
	c.sheetIDs[title] = id
	slog.InfoContext(ctx, "Sheet created", "title", title, "sheet_id", id)
	return id, nil
}

// tab is the decoded content of one sheet. rows[i] is the 1-based sheet
// row holding recs[i].
type tab struct {
	header []string
	recs   []core.Record
	rows   []int
}

func (t tab) find(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range t.recs {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// parseValues splits a tab into its header and records. Rows without any
// value are skipped.
func parseValues(kind core.Kind, values [][]any) tab {
	t := tab{recs: []core.Record{}}
	if len(values) == 0 {
		return t
	}
	t.header = make([]string, len(values[0]))
	for i, h := range values[0] {
		t.header[i] = strings.TrimSpace(core.Text(h))
	}
	for n, row := range values[1:] {
		rec := make(core.Record)
		for i, cell := range row {
			if i >= len(t.header) || t.header[i] == "" {
				continue
			}
			if v, ok := fromCell(kind, t.header[i], cell); ok {
				rec[t.header[i]] = v
			}
		}
		if len(rec) > 0 {
			t.recs = append(t.recs, rec)
			t.rows = append(t.rows, n+2)
		}
	}
	return t
}

// fromCell converts an unformatted cell to a record value.
func fromCell(kind core.Kind, field string, cell any) (any, bool) {
	switch x := cell.(type) {
	case nil:
		return nil, false
	case float64:
		return core.Num(decimal.NewFromFloat(x)), true
	case bool:
		return x, true
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, false
		}
		return core.Coerce(kind, field, x), true
	default:
		return core.Coerce(kind, field, core.Text(x)), true
	}
}

func toRow(header []string, rec core.Record) []any {
	row := make([]any, len(header))
	for i, h := range header {
		v, ok := rec[h]
		if !ok || v == nil {
			row[i] = ""
			continue
		}
		switch x := v.(type) {
		case decimal.Decimal:
			row[i] = core.Num(x)
		default:
			row[i] = x
		}
	}
	return row
}

func headerFor(kind core.Kind, recs []core.Record) []string {
	cols := spreadsheet.Columns(kind, recs)
	if len(cols) == 0 {
		return kind.Columns()
	}
	return cols
}

// mergeHeader keeps the existing header and appends rec's unknown fields.
// An empty header starts from the kind's canonical columns.
func mergeHeader(kind core.Kind, header []string, rec core.Record) []string {
	out := append([]string(nil), header...)
	if len(out) == 0 {
		out = kind.Columns()
	}
	have := make(map[string]bool, len(out))
	for _, h := range out {
		have[h] = true
	}
	for _, col := range spreadsheet.Columns(kind, []core.Record{rec}) {
		if !have[col] {
			out = append(out, col)
			have[col] = true
		}
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
