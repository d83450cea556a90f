// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vansales/internal/core"
	"vansales/internal/store"
)

// Run exercises s against the store.Store contract. s must start empty for
// sales, expenses and customers.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAssignsIDAndListsNewestFirst", func(t *testing.T) {
		var ids []string
		for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
			rec, err := s.Create(ctx, core.KindSales, core.Record{"date": d, "total": json.Number("10.5"), "product": "Water"})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if rec.ID() == "" {
				t.Fatalf("expected an id on %v", rec)
			}
			ids = append(ids, rec.ID())
		}
		got, err := s.List(ctx, core.KindSales)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 3 || got[0].ID() != ids[2] || got[2].ID() != ids[0] {
			t.Fatalf("unexpected order: %v", got)
		}
		if !got[0].Number(core.FieldTotal).Equal(core.Number("10.5")) {
			t.Fatalf("total did not survive: %#v", got[0][core.FieldTotal])
		}
	})

	t.Run("GetUpdateDelete", func(t *testing.T) {
		c, err := s.Create(ctx, core.KindCustomers, core.Record{"name": "Acme", "totalPurchases": json.Number("0")})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Get(ctx, core.KindCustomers, c.ID())
		if err != nil || got.Text(core.FieldName) != "Acme" {
			t.Fatalf("Get = %v, %v", got, err)
		}

		upd, err := s.Update(ctx, core.KindCustomers, c.ID(), core.Record{
			"id":             "hijack",
			"totalPurchases": json.Number("75.5"),
			"lastPurchase":   "2024-01-01",
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if upd.ID() != c.ID() || upd.Text(core.FieldName) != "Acme" || !upd.Number(core.FieldTotalPurchases).Equal(core.Number("75.5")) {
			t.Fatalf("Update merged wrongly: %v", upd)
		}

		if err := s.Delete(ctx, core.KindCustomers, c.ID()); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, core.KindCustomers, c.ID()); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get after delete = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, core.KindCustomers, c.ID()); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("second Delete = %v, want ErrNotFound", err)
		}
		if _, err := s.Update(ctx, core.KindCustomers, "missing", core.Record{"name": "x"}); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Update missing = %v, want ErrNotFound", err)
		}
	})

	t.Run("ReplaceKeepsGivenOrder", func(t *testing.T) {
		if _, err := s.Create(ctx, core.KindExpenses, core.Record{"date": "2024-01-01", "amount": json.Number("1")}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		recs := []core.Record{
			{"id": "e3", "date": "2024-01-03", "amount": json.Number("3")},
			{"id": "e1", "date": "2024-01-01", "amount": json.Number("1")},
			{"id": "e2", "date": "2024-01-02", "amount": json.Number("2"), "extra": "kept"},
		}
		if err := s.Replace(ctx, core.KindExpenses, recs); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		got, err := s.List(ctx, core.KindExpenses)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 records after replace, got %d", len(got))
		}
		for i, want := range []string{"e3", "e1", "e2"} {
			if got[i].ID() != want {
				t.Fatalf("position %d = %s, want %s", i, got[i].ID(), want)
			}
		}
		if got[2].Text("extra") != "kept" {
			t.Fatalf("extra field lost: %v", got[2])
		}

		if err := s.Replace(ctx, core.KindExpenses, nil); err != nil {
			t.Fatalf("Replace empty: %v", err)
		}
		if got, _ := s.List(ctx, core.KindExpenses); len(got) != 0 {
			t.Fatalf("expected empty collection, got %v", got)
		}
	})
}
