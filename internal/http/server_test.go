package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vansales/internal/archive"
	"vansales/internal/auth"
	"vansales/internal/cache"
	"vansales/internal/core"
	"vansales/internal/metrics"
	"vansales/internal/report"
	"vansales/internal/services"
	"vansales/internal/spreadsheet"
	"vansales/internal/store/memory"
)

type testEnv struct {
	srv     *Server
	portal  *services.Portal
	archive *archive.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	accounts := []auth.Account{
		{Username: "admin", Role: core.RoleAdmin, PasswordHash: string(hash)},
		{Username: "ahmed", Role: core.RoleSalesperson, PasswordHash: string(hash)},
	}
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	portal := services.NewPortal(services.Options{
		Store:      memory.New(),
		Dashboards: cache.NewLRUCache[report.Dashboard](8, time.Minute),
		Now:        func() time.Time { return now },
	})
	if err := portal.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	arch := archive.NewMemory()
	srv := NewServer(":0", Deps{
		Portal:    portal,
		Auth:      auth.NewService(accounts),
		Tokens:    auth.NewTokens("0123456789abcdef0123", time.Hour, cache.NewLRUCache[bool](16, time.Hour)),
		Archive:   arch,
		Metrics:   metrics.New(),
		RateLimit: 1000,
	})
	return &testEnv{srv: srv, portal: portal, archive: arch}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, user string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/login", "", loginRequest{Username: user, Password: "secret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s status=%d body=%s", user, rr.Code, rr.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) Problem {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != problemContentType {
		t.Fatalf("content type = %q, want problem json (body %s)", ct, rr.Body.String())
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	return p
}

func TestHealthReadyAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := e.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if rr := e.do(t, http.MethodGet, "/healthz", "", nil); rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
}

func TestReadyFailsWhenDependencyDown(t *testing.T) {
	e := newTestEnv(t)
	e.srv.ready = func(context.Context) error { return context.DeadlineExceeded }
	if rr := e.do(t, http.MethodGet, "/readyz", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestLoginAndSession(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/login", "", loginRequest{Username: "admin", Password: "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status=%d", rr.Code)
	}

	if rr := e.do(t, http.MethodGet, "/api/sales", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status=%d", rr.Code)
	}

	token := e.login(t, "ahmed")
	rr = e.do(t, http.MethodGet, "/api/me", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"salesperson"`) {
		t.Fatalf("me status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := e.do(t, http.MethodPost, "/api/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rr.Code)
	}
	if rr := e.do(t, http.MethodGet, "/api/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status=%d", rr.Code)
	}
}

func TestSessionCookieAccepted(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/login", "", loginRequest{Username: "admin", Password: "secret"})
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie missing or not HttpOnly: %v", rr.Result().Cookies())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth status=%d", rec.Code)
	}
}

func TestCreateSaleUpdatesCustomerAndDashboard(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "ahmed")

	rr := e.do(t, http.MethodPost, "/api/customers", token, map[string]any{"name": "Acme Corp"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create customer status=%d body=%s", rr.Code, rr.Body.String())
	}

	sale := map[string]any{
		"date": "2024-03-10", "product": "Water 1.5L", "quantity": "1",
		"price": "75.5", "customer": "Acme Corp", "route": "North",
	}
	rr = e.do(t, http.MethodPost, "/api/sales", token, sale)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sale status=%d body=%s", rr.Code, rr.Body.String())
	}
	var rec core.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if rec.Text(core.FieldSalesperson) != "ahmed" {
		t.Fatalf("salesperson = %q", rec.Text(core.FieldSalesperson))
	}

	rr = e.do(t, http.MethodGet, "/api/customers?q=acme", token, nil)
	var list listResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 || !list.Records[0].Number(core.FieldTotalPurchases).Equal(core.Number("75.5")) {
		t.Fatalf("customer list = %+v", list)
	}

	rr = e.do(t, http.MethodGet, "/api/dashboard?date=2024-03-10", token, nil)
	var dash report.Dashboard
	if err := json.Unmarshal(rr.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if !dash.TodaySales.Equal(core.Number("75.5")) || len(dash.Weekly) != 7 {
		t.Fatalf("dashboard = %+v", dash)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "ahmed")

	rr := e.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
		"date": "2024-02-30", "category": "fuel", "description": "Diesel", "amount": "10",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if p := decodeProblem(t, rr); p.Errors["date"] == "" {
		t.Fatalf("problem lacks date error: %+v", p)
	}

	rr = e.do(t, http.MethodPost, "/api/expenses", token, map[string]any{"colour": "red"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status=%d", rr.Code)
	}
}

func TestListRejectsBadParams(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "ahmed")
	cases := []struct {
		path string
		want int
	}{
		{"/api/invoices", http.StatusNotFound},
		{"/api/sales?window=year", http.StatusBadRequest},
		{"/api/dashboard?date=10/03/2024", http.StatusBadRequest},
		{"/api/reports/daily?limit=-1", http.StatusBadRequest},
		{"/api/sales?window=week", http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			if rr := e.do(t, http.MethodGet, c.path, token, nil); rr.Code != c.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, c.want, rr.Body.String())
			}
		})
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	e := newTestEnv(t)
	sales := e.login(t, "ahmed")
	admin := e.login(t, "admin")

	rr := e.do(t, http.MethodPost, "/api/customers", sales, map[string]any{"name": "Beta"})
	var c core.Record
	_ = json.Unmarshal(rr.Body.Bytes(), &c)

	if rr := e.do(t, http.MethodDelete, "/api/customers/"+c.ID(), sales, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("salesperson delete status=%d", rr.Code)
	}
	if rr := e.do(t, http.MethodDelete, "/api/customers/"+c.ID(), admin, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("admin delete status=%d", rr.Code)
	}
	if rr := e.do(t, http.MethodDelete, "/api/customers/"+c.ID(), admin, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rr.Code)
	}
}

func TestPatchCustomer(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "ahmed")
	rr := e.do(t, http.MethodPost, "/api/customers", token, map[string]any{"name": "Gamma"})
	var c core.Record
	_ = json.Unmarshal(rr.Body.Bytes(), &c)

	rr = e.do(t, http.MethodPatch, "/api/customers/"+c.ID(), token, map[string]any{"phone": "555-0100"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "555-0100") {
		t.Fatalf("patch status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodPatch, "/api/customers/"+c.ID(), token, map[string]any{"totalPurchases": 1})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("protected field status=%d", rr.Code)
	}
	if rr := e.do(t, http.MethodPatch, "/api/sales/"+c.ID(), token, map[string]any{"van": "V1"}); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("patch sales status=%d", rr.Code)
	}
}

func upload(t *testing.T, e *testEnv, path, token string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.xlsx")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestExportImportFlow(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin")
	for _, n := range []string{"Acme", "Beta"} {
		e.do(t, http.MethodPost, "/api/customers", admin, map[string]any{"name": n})
	}

	rr := e.do(t, http.MethodGet, "/api/customers/export", admin, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != spreadsheet.ContentType {
		t.Fatalf("export status=%d type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "van_customers.xlsx") {
		t.Fatalf("disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	workbook := rr.Body.Bytes()

	if rr := upload(t, e, "/api/customers/import", e.login(t, "ahmed"), workbook); rr.Code != http.StatusForbidden {
		t.Fatalf("salesperson import status=%d", rr.Code)
	}

	rr = upload(t, e, "/api/customers/import", admin, workbook)
	if rr.Code != http.StatusOK {
		t.Fatalf("stage status=%d body=%s", rr.Code, rr.Body.String())
	}
	var preview services.ImportPreview
	if err := json.Unmarshal(rr.Body.Bytes(), &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if preview.Rows != 2 || preview.Replaces != 2 {
		t.Fatalf("preview = %+v", preview)
	}

	rr = e.do(t, http.MethodPost, "/api/imports/"+preview.Token+"/commit", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("commit status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodPost, "/api/imports/"+preview.Token+"/commit", admin, nil)
	if rr.Code != http.StatusGone {
		t.Fatalf("second commit status=%d", rr.Code)
	}

	if rr := upload(t, e, "/api/customers/import", admin, []byte("not a workbook")); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("garbage import status=%d", rr.Code)
	}
}

func TestCancelImport(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin")
	if rr := e.do(t, http.MethodPost, "/api/products", admin, map[string]any{"name": "Water 500ml"}); rr.Code != http.StatusCreated {
		t.Fatalf("create product status=%d body=%s", rr.Code, rr.Body.String())
	}
	data, _, err := e.portal.Export(core.KindProducts)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rr := upload(t, e, "/api/products/import", admin, data)
	var preview services.ImportPreview
	_ = json.Unmarshal(rr.Body.Bytes(), &preview)

	if rr := e.do(t, http.MethodDelete, "/api/imports/"+preview.Token, admin, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("cancel status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/api/imports/"+preview.Token+"/commit", admin, nil); rr.Code != http.StatusGone {
		t.Fatalf("commit after cancel status=%d", rr.Code)
	}
}

func TestRecordsRequireLoadedSnapshot(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "admin")
	e.srv.portal = services.NewPortal(services.Options{Store: memory.New()})

	for _, path := range []string{"/api/sales", "/api/sales/export"} {
		rr := e.do(t, http.MethodGet, path, token, nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status=%d want %d", path, rr.Code, http.StatusServiceUnavailable)
		}
		if ct := rr.Header().Get("Content-Type"); ct != problemContentType {
			t.Errorf("%s content type=%q", path, ct)
		}
	}
}

func TestListActiveProducts(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "admin")
	for _, body := range []map[string]any{
		{"name": "Water 500ml"},
		{"name": "Old Juice", "active": false},
	} {
		if rr := e.do(t, http.MethodPost, "/api/products", token, body); rr.Code != http.StatusCreated {
			t.Fatalf("create product status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	for path, want := range map[string]int{
		"/api/products":             2,
		"/api/products?active=true": 1,
	} {
		rr := e.do(t, http.MethodGet, path, token, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		var got listResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s decode: %v", path, err)
		}
		if got.Count != want {
			t.Errorf("%s count=%d want %d", path, got.Count, want)
		}
	}
}

func TestReports(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "ahmed")
	for _, d := range []string{"2024-03-08", "2024-03-09"} {
		if err := e.archive.Save(context.Background(), report.DailySummary{Date: d}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	rr := e.do(t, http.MethodGet, "/api/reports/daily?limit=1", token, nil)
	var daily struct {
		Summaries []report.DailySummary `json:"summaries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &daily); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(daily.Summaries) != 1 || daily.Summaries[0].Date != "2024-03-09" {
		t.Fatalf("daily = %+v", daily)
	}

	rr = e.do(t, http.MethodGet, "/api/reports/purchases", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"customers":[]`) {
		t.Fatalf("purchases status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUnknownRouteIsProblem(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/nope", "", nil)
	if p := decodeProblem(t, rr); p.Status != http.StatusNotFound {
		t.Fatalf("problem = %+v", p)
	}
}
