// Package store defines the persistence ports for record collections.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"vansales/internal/core"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("duplicate record id")
)

// Ports for record persistence. Every method takes the kind it operates on.
type (
	Lister interface {
		// List returns the collection newest first; products are ordered by name.
		List(ctx context.Context, kind core.Kind) ([]core.Record, error)
	}

	Getter interface {
		Get(ctx context.Context, kind core.Kind, id string) (core.Record, error)
	}

	Creator interface {
		// Create assigns an id when the record has none and returns the stored record.
		Create(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error)
	}

	Updater interface {
		// Update merges patch into the stored record and returns the result.
		Update(ctx context.Context, kind core.Kind, id string, patch core.Record) (core.Record, error)
	}

	Deleter interface {
		Delete(ctx context.Context, kind core.Kind, id string) error
	}

	Replacer interface {
		// Replace discards the collection and stores recs so that a later List
		// returns them in the given order.
		Replace(ctx context.Context, kind core.Kind, recs []core.Record) error
	}

	Store interface {
		Lister
		Getter
		Creator
		Updater
		Deleter
		Replacer
	}
)

// Ordered turns a collection held in insertion order into List order: newest
// first, or by name for kinds that sort by name. in is not modified.
func Ordered(kind core.Kind, in []core.Record) []core.Record {
	out := make([]core.Record, len(in))
	if kind.SortsByName() {
		copy(out, in)
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Text(core.FieldName)) < strings.ToLower(out[j].Text(core.FieldName))
		})
		return out
	}
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}

// InsertionOrder is the inverse of Ordered for newest-first kinds: it turns a
// List-ordered slice back into the order records must be inserted in.
func InsertionOrder(kind core.Kind, listed []core.Record) []core.Record {
	if kind.SortsByName() {
		return append([]core.Record(nil), listed...)
	}
	out := make([]core.Record, len(listed))
	for i, r := range listed {
		out[len(listed)-1-i] = r
	}
	return out
}

// PrepareCreate returns a copy of rec with an id, assigning a new one when
// missing.
func PrepareCreate(rec core.Record) core.Record {
	out := rec.Clone()
	if out.ID() == "" {
		out[core.FieldID] = core.NewID()
	}
	return out
}
