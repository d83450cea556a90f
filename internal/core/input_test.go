package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func TestSaleInputRecordFreezesTotal(t *testing.T) {
	in := SaleInput{
		Date:     "2024-01-01",
		Product:  "Water 500ml",
		Quantity: "3",
		Price:    "2.50",
		Customer: "Acme",
		Route:    "North",
	}
	rec, err := in.Record(fixedNow)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec[FieldTotal] != json.Number("7.5") {
		t.Fatalf("total = %#v, want 7.5", rec[FieldTotal])
	}
	if rec.Text("paymentMethod") != PaymentCash {
		t.Fatalf("payment method should default to cash, got %q", rec.Text("paymentMethod"))
	}
	if rec.Text(FieldTimestamp) != "2024-01-01T09:30:00Z" {
		t.Fatalf("timestamp = %q", rec.Text(FieldTimestamp))
	}
	if _, ok := rec[FieldID]; ok {
		t.Fatalf("ids are assigned by the store, not the form")
	}
}

func TestSaleInputValidation(t *testing.T) {
	cases := []struct {
		name  string
		in    SaleInput
		field string
	}{
		{"missing date", SaleInput{Product: "p", Quantity: "1", Price: "1"}, "date"},
		{"bad date", SaleInput{Date: "01/01/2024", Product: "p", Quantity: "1", Price: "1"}, "date"},
		{"zero quantity", SaleInput{Date: "2024-01-01", Product: "p", Quantity: "0", Price: "1"}, "quantity"},
		{"negative price", SaleInput{Date: "2024-01-01", Product: "p", Quantity: "1", Price: "-1"}, "price"},
		{"bad payment", SaleInput{Date: "2024-01-01", Product: "p", Quantity: "1", Price: "1", PaymentMethod: "cheque"}, "paymentMethod"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected %s to be reported, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestExpenseInputRecord(t *testing.T) {
	in := ExpenseInput{Date: "2024-01-01", Category: "fuel", Description: "Diesel", Amount: "120,5"}
	rec, err := in.Record(fixedNow)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec[FieldAmount] != json.Number("120.5") {
		t.Fatalf("amount = %#v", rec[FieldAmount])
	}

	bad := ExpenseInput{Date: "2024-01-01", Category: "rent", Description: "x", Amount: "1"}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected category error, got %v", err)
	}
}

func TestCustomerInputRecordStartsAtZero(t *testing.T) {
	rec, err := CustomerInput{Name: "Acme", Email: "ops@acme.qa"}.Record(fixedNow)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !rec.Number(FieldTotalPurchases).IsZero() || rec.Text(FieldLastPurchase) != "" {
		t.Fatalf("new customer should have no purchases: %v", rec)
	}
	if _, err := (CustomerInput{Name: "Acme", Email: "not-an-email"}).Record(fixedNow); err == nil {
		t.Fatalf("expected email validation error")
	}
}

func TestStockAndProductInputs(t *testing.T) {
	if _, err := (StockInput{Date: "2024-01-01", Product: "p", Type: "lost", Quantity: "1"}).Record(fixedNow); err == nil {
		t.Fatalf("expected movement type error")
	}
	rec, err := StockInput{Date: "2024-01-01", Product: "p", Type: "load", Quantity: "12"}.Record(fixedNow)
	if err != nil || rec.Text("type") != "load" {
		t.Fatalf("stock record = %v, err %v", rec, err)
	}

	p, err := ProductInput{Name: "Water", UnitPrice: "1.5"}.Record(fixedNow)
	if err != nil {
		t.Fatalf("product Record: %v", err)
	}
	if p[FieldActive] != true {
		t.Fatalf("products default to active")
	}
}

func TestAmountUnmarshal(t *testing.T) {
	var in SaleInput
	body := `{"date":"2024-01-01","product":"p","quantity":3,"price":"2.5"}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.Quantity != "3" || in.Price != "2.5" {
		t.Fatalf("amounts = %q %q", in.Quantity, in.Price)
	}
	if err := json.Unmarshal([]byte(`{"quantity":true}`), &in); err == nil {
		t.Fatalf("expected error for boolean amount")
	}
}
