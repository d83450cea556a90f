package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"vansales/internal/auth"
	"vansales/internal/core"
	"vansales/internal/services"
	"vansales/internal/store"
)

func TestExtractClientIP(t *testing.T) {
	cases := []struct {
		name, remote, xff, xri, want string
	}{
		{"direct", "203.0.113.7:4000", "", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:4000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy xff", "10.0.0.2:4000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:4000", "", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy garbage", "127.0.0.1:4000", "not-an-ip", "", "127.0.0.1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = c.remote
			if c.xff != "" {
				r.Header.Set("X-Forwarded-For", c.xff)
			}
			if c.xri != "" {
				r.Header.Set("X-Real-IP", c.xri)
			}
			if got := extractClientIP(r); got != c.want {
				t.Fatalf("got %q want %q", got, c.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	if detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/api/sales?q=acme", nil)) {
		t.Fatalf("plain request flagged")
	}
	if !detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/.env", nil)) {
		t.Fatalf(".env probe not flagged")
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "sqlmap/1.7")
	if !detectSuspiciousRequest(r) {
		t.Fatalf("scanner agent not flagged")
	}
}

func TestProblemFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{Fields: map[string]string{"date": "bad"}}, http.StatusUnprocessableEntity},
		{fmt.Errorf("delete x: %w", store.ErrNotFound), http.StatusNotFound},
		{store.ErrDuplicateID, http.StatusConflict},
		{services.ErrImportExpired, http.StatusGone},
		{services.ErrImportTooLarge, http.StatusRequestEntityTooLarge},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{errForbidden, http.StatusForbidden},
		{services.ErrNotLoaded, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		p := problemFor(c.err)
		if p.Status != c.want {
			t.Errorf("%v: status %d want %d", c.err, p.Status, c.want)
		}
	}
	if p := problemFor(errors.New("disk on fire")); p.Detail != "" {
		t.Errorf("internal error leaked detail %q", p.Detail)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer abc")
	if got := bearerToken(r); got != "abc" {
		t.Fatalf("got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "xyz"})
	if got := bearerToken(r); got != "xyz" {
		t.Fatalf("cookie token %q", got)
	}
}
