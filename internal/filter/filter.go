// Package filter selects records by time window and free-text query.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"vansales/internal/core"
)

// Window names a date range relative to a reference day.
type Window string

const (
	WindowAll   Window = "all"
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

var ErrUnknownWindow = errors.New("unknown time window")

// ParseWindow maps a query parameter to a Window. Empty means all.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowAll, nil
	case WindowAll, WindowToday, WindowWeek, WindowMonth:
		return w, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
}

// Bounds returns the inclusive first day of the window ending at today.
// ok is false for WindowAll, which has no bounds.
func (w Window) Bounds(today core.Date) (from core.Date, ok bool) {
	switch w {
	case WindowToday:
		return today, true
	case WindowWeek:
		return today.AddDays(-6), true
	case WindowMonth:
		return today.AddMonths(-1), true
	default:
		return core.Date{}, false
	}
}

// Contains reports whether a record date string falls inside the window.
// Unparseable dates are only inside WindowAll.
func (w Window) Contains(date string, today core.Date) bool {
	from, bounded := w.Bounds(today)
	if !bounded {
		return true
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return false
	}
	return !d.Before(from) && !d.After(today)
}

// Params is one filter request.
type Params struct {
	Window Window
	Query  string
	Today  core.Date
}

// Apply returns the records of kind that pass both the window and the query,
// in their original order. recs is never modified; the result shares record
// values with it.
func Apply(kind core.Kind, recs []core.Record, p Params) []core.Record {
	needle := fold(strings.TrimSpace(p.Query))
	dateField := kind.DateField()
	fields := kind.SearchFields()

	if (p.Window == "" || p.Window == WindowAll) && needle == "" {
		return recs
	}

	out := make([]core.Record, 0, len(recs))
	for _, r := range recs {
		if !p.Window.Contains(r.Text(dateField), p.Today) {
			continue
		}
		if needle != "" && !matches(r, fields, needle) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matches(r core.Record, fields []string, needle string) bool {
	for _, f := range fields {
		if strings.Contains(fold(r.Text(f)), needle) {
			return true
		}
	}
	return false
}

// fold is Unicode case folding; a Caser is not safe for concurrent use so one
// is built per call.
func fold(s string) string {
	if s == "" {
		return s
	}
	return cases.Fold().String(s)
}
