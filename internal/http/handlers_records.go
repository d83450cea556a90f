package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vansales/internal/core"
)

type listResponse struct {
	Kind    core.Kind     `json:"kind"`
	Count   int           `json:"count"`
	Records []core.Record `json:"records"`
}

// handleList serves GET /api/{kind}?window=&q=. For products, active=true
// restricts the list to products offered on the sales form.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := s.portal.Ready(); err != nil {
		writeProblem(w, r, err)
		return
	}

	var recs []core.Record
	if kind == core.KindProducts && r.URL.Query().Get("active") == "true" {
		recs = s.portal.ActiveProducts()
	} else {
		params, err := filterParams(r, s.portal.Today())
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		recs = s.portal.View(kind, params)
	}
	if recs == nil {
		recs = []core.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Kind: kind, Count: len(recs), Records: recs})
}

// handleCreate decodes the form for kind and stores it.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	ctx := r.Context()
	user := userFrom(ctx)

	var rec core.Record
	switch kind {
	case core.KindSales:
		var in core.SaleInput
		if err = decodeJSON(w, r, &in); err == nil {
			rec, err = s.portal.AddSale(ctx, user, in)
		}
	case core.KindExpenses:
		var in core.ExpenseInput
		if err = decodeJSON(w, r, &in); err == nil {
			rec, err = s.portal.AddExpense(ctx, user, in)
		}
	case core.KindCustomers:
		var in core.CustomerInput
		if err = decodeJSON(w, r, &in); err == nil {
			rec, err = s.portal.AddCustomer(ctx, user, in)
		}
	case core.KindStock:
		var in core.StockInput
		if err = decodeJSON(w, r, &in); err == nil {
			rec, err = s.portal.AddStockMovement(ctx, user, in)
		}
	case core.KindProducts:
		var in core.ProductInput
		if err = decodeJSON(w, r, &in); err == nil {
			rec, err = s.portal.AddProduct(ctx, user, in)
		}
	}
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdate applies a partial update. Only customers are editable.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if kind != core.KindCustomers {
		writeJSONProblem(w, r, http.StatusMethodNotAllowed, "only customers can be edited")
		return
	}
	patch, err := decodePatch(w, r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	rec, err := s.portal.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := s.portal.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
