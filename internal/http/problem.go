package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"vansales/internal/auth"
	"vansales/internal/core"
	"vansales/internal/filter"
	applog "vansales/internal/log"
	"vansales/internal/services"
	"vansales/internal/spreadsheet"
	"vansales/internal/store"
)

const problemContentType = "application/problem+json"

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// problemFor maps an error onto a status and a detail safe to show the
// client. Unknown errors become a bare 500.
func problemFor(err error) Problem {
	status := http.StatusInternalServerError
	detail := ""
	var fields map[string]string

	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		status, detail, fields = http.StatusUnprocessableEntity, "some fields are invalid", verr.Fields
	case errors.Is(err, core.ErrUnknownKind), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, filter.ErrUnknownWindow),
		errors.Is(err, core.ErrInvalidInput), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, services.ErrImportExpired):
		status = http.StatusGone
	case errors.Is(err, services.ErrImportTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrImportDuplicate), errors.Is(err, spreadsheet.ErrUnreadable),
		errors.Is(err, spreadsheet.ErrNoHeader):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotLoaded):
		status = http.StatusServiceUnavailable
	}
	if detail == "" && status != http.StatusInternalServerError {
		detail = err.Error()
	}
	return Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Errors: fields,
	}
}

// writeProblem renders err. Server errors are logged with the request
// context; client errors are not.
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	p.Instance = r.URL.Path
	if p.Status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONProblem renders a problem that has no underlying error.
func writeJSONProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}
