package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vansales/internal/core"
	"vansales/internal/filter"
)

const maxJSONBody = 1 << 20

var (
	errBadRequest = errors.New("malformed request")
	errForbidden  = errors.New("administrator role required")
)

// decodeJSON reads one JSON object into dst. Unknown fields are rejected so
// typos in form field names surface instead of being silently dropped.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

// decodePatch reads a partial record. Numbers stay json.Number.
func decodePatch(w http.ResponseWriter, r *http.Request) (core.Record, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.UseNumber()
	var patch core.Record
	if err := dec.Decode(&patch); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return patch, nil
}

func kindParam(r *http.Request) (core.Kind, error) {
	return core.ParseKind(chi.URLParam(r, "kind"))
}

// filterParams reads window and q from the query string.
func filterParams(r *http.Request, today core.Date) (filter.Params, error) {
	q := r.URL.Query()
	window, err := filter.ParseWindow(q.Get("window"))
	if err != nil {
		return filter.Params{}, err
	}
	return filter.Params{
		Window: window,
		Query:  sanitizeInput(q.Get("q")),
		Today:  today,
	}, nil
}

// dateParam parses ?date=YYYY-MM-DD, defaulting to fallback when absent.
func dateParam(r *http.Request, fallback core.Date) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get("date"))
	if v == "" {
		return fallback, nil
	}
	return core.ParseDate(v)
}

func limitParam(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
	}
	return n, nil
}

// bearerToken returns the session token from the Authorization header or
// the session cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// sanitizeInput removes control characters except tab and newlines, and trims
// whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
