package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"

	"vansales/internal/core"
	"vansales/internal/store/storetest"
)

// fakeSheets implements the handful of Sheets v4 endpoints the client calls.
type fakeSheets struct {
	mu     sync.Mutex
	tabs   map[string][][]any
	ids    map[string]int64
	nextID int64
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	id, rest, _ := strings.Cut(path, "/")

	switch {
	case strings.HasSuffix(id, ":batchUpdate"):
		f.batchUpdate(w, r)
	case rest == "":
		var sheets []map[string]any
		for title, sid := range f.ids {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title, "sheetId": sid}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": id, "sheets": sheets})
	default:
		rng := strings.TrimPrefix(rest, "values/")
		f.values(w, r, rng)
	}
}

func (f *fakeSheets) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []struct {
			AddSheet *struct {
				Properties struct {
					Title string `json:"title"`
				} `json:"properties"`
			} `json:"addSheet"`
			DeleteDimension *struct {
				Range struct {
					SheetID    int64 `json:"sheetId"`
					StartIndex int   `json:"startIndex"`
					EndIndex   int   `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var replies []map[string]any
	for _, q := range req.Requests {
		switch {
		case q.AddSheet != nil:
			f.nextID++
			f.ids[q.AddSheet.Properties.Title] = f.nextID
			replies = append(replies, map[string]any{"addSheet": map[string]any{
				"properties": map[string]any{"title": q.AddSheet.Properties.Title, "sheetId": f.nextID},
			}})
		case q.DeleteDimension != nil:
			rg := q.DeleteDimension.Range
			for title, sid := range f.ids {
				if sid != rg.SheetID {
					continue
				}
				rows := f.tabs[title]
				f.tabs[title] = append(rows[:rg.StartIndex:rg.StartIndex], rows[rg.EndIndex:]...)
			}
			replies = append(replies, map[string]any{})
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"replies": replies})
}

func (f *fakeSheets) values(w http.ResponseWriter, r *http.Request, rng string) {
	var op string
	if i := strings.LastIndex(rng, ":"); i >= 0 {
		rng, op = rng[:i], rng[i+1:]
	}
	title, cell, _ := strings.Cut(rng, "!")
	startRow := 1
	if cell != "" {
		startRow, _ = strconv.Atoi(strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	}

	var body struct {
		Values [][]any `json:"values"`
	}
	if r.Method != http.MethodGet && op != "clear" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": title, "majorDimension": "ROWS", "values": f.tabs[title]})
		return
	case op == "clear":
		f.tabs[title] = nil
	case op == "append":
		f.tabs[title] = append(f.tabs[title], body.Values...)
	default:
		rows := f.tabs[title]
		for i, row := range body.Values {
			at := startRow - 1 + i
			for len(rows) <= at {
				rows = append(rows, []any{})
			}
			rows[at] = row
		}
		f.tabs[title] = rows
	}
	_ = json.NewEncoder(w).Encode(map[string]any{})
}

func newTestClient(t *testing.T) (*fakeSheets, *Client) {
	t.Helper()
	f := &fakeSheets{tabs: map[string][][]any{}, ids: map[string]int64{"Sheet1": 0}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, c
}

func TestSheetsStoreContract(t *testing.T) {
	_, c := newTestClient(t)
	storetest.Run(t, c)
}

func TestCreateWritesCanonicalHeader(t *testing.T) {
	f, c := newTestClient(t)
	ctx := context.Background()
	if _, err := c.Create(ctx, core.KindExpenses, core.Record{"date": "2024-01-01", "amount": json.Number("12.5"), "mileage": "40"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	header := f.tabs["Expenses"][0]
	if header[0] != "id" || header[1] != "date" || header[len(header)-1] != "mileage" {
		t.Fatalf("unexpected header %v", header)
	}
	if _, ok := f.ids["Expenses"]; !ok {
		t.Fatalf("Expenses tab should have been created")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "GOOGLE_SPREADSHEET_ID") {
		t.Fatalf("expected missing id error, got %v", err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := New(context.Background(), Config{SpreadsheetID: "x"}); err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestParseValues(t *testing.T) {
	values := [][]any{
		{"id", "date", "quantity", "", "active"},
		{"a", "2024-01-01", 3.0, "ignored", true},
		{},
		{"", "", "", "", ""},
		{"b", "2024-01-02", "7"},
	}
	got := parseValues(core.KindSales, values)
	if len(got.recs) != 2 || got.rows[0] != 2 || got.rows[1] != 5 {
		t.Fatalf("unexpected rows %v / %v", got.recs, got.rows)
	}
	if got.recs[0]["quantity"] != json.Number("3") {
		t.Fatalf("quantity = %#v", got.recs[0]["quantity"])
	}
	if got.recs[1]["quantity"] != json.Number("7") {
		t.Fatalf("numeric text should coerce: %#v", got.recs[1]["quantity"])
	}
	if _, ok := got.recs[0][""]; ok {
		t.Fatalf("blank header column leaked: %v", got.recs[0])
	}
}

func TestMergeHeader(t *testing.T) {
	got := mergeHeader(core.KindStock, []string{"id", "date"}, core.Record{"id": "1", "zone": "B", "product": "Water"})
	want := []string{"id", "date", "product", "zone"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("mergeHeader = %v, want %v", got, want)
	}
}
