package core

import (
	"fmt"
	"strings"
)

// Kind names a record collection.
type Kind string

const (
	KindSales     Kind = "sales"
	KindExpenses  Kind = "expenses"
	KindCustomers Kind = "customers"
	KindStock     Kind = "stock"
	KindProducts  Kind = "products"
)

type kindSpec struct {
	table    string
	filename string
	columns  []string
	search   []string
	numeric  []string
	booleans []string
}

var kindSpecs = map[Kind]kindSpec{
	KindSales: {
		table:    "sales_entries",
		filename: "van_sales.xlsx",
		columns: []string{
			"id", "date", "product", "quantity", "price", "total",
			"customer", "customerId", "customerPhone", "customerAddress",
			"van", "route", "stockLoaded", "paymentMethod", "salesperson",
			"remarks", "timestamp",
		},
		search:  []string{"product", "customer", "route", "salesperson"},
		numeric: []string{"quantity", "price", "total", "stockLoaded"},
	},
	KindExpenses: {
		table:    "expenses",
		filename: "van_expenses.xlsx",
		columns: []string{
			"id", "date", "category", "description", "amount", "van",
			"receipt", "remarks", "salesperson", "timestamp",
		},
		search:  []string{"description", "category", "van"},
		numeric: []string{"amount"},
	},
	KindCustomers: {
		table:    "customers",
		filename: "van_customers.xlsx",
		columns: []string{
			"id", "name", "phone", "email", "address", "city", "creditLimit",
			"notes", "totalPurchases", "lastPurchase", "createdAt",
		},
		search:  []string{"name", "phone", "email", "city"},
		numeric: []string{"creditLimit", "totalPurchases"},
	},
	KindStock: {
		table:    "stock_movements",
		filename: "van_stock_movements.xlsx",
		columns: []string{
			"id", "date", "product", "type", "quantity", "van", "location",
			"reason", "remarks", "salesperson", "timestamp",
		},
		search:  []string{"product", "van", "location", "type"},
		numeric: []string{"quantity"},
	},
	KindProducts: {
		table:    "products",
		filename: "van_products.xlsx",
		columns:  []string{"id", "name", "category", "sku", "unitPrice", "active", "createdAt"},
		search:   []string{"name", "category", "sku"},
		numeric:  []string{"unitPrice"},
		booleans: []string{"active"},
	},
}

// Kinds lists every collection in a stable order.
func Kinds() []Kind {
	return []Kind{KindSales, KindExpenses, KindCustomers, KindStock, KindProducts}
}

// ParseKind maps a path segment to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) IsValid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Table is the storage table name for the kind.
func (k Kind) Table() string { return kindSpecs[k].table }

// ExportFilename is the download name used for spreadsheet exports.
func (k Kind) ExportFilename() string { return kindSpecs[k].filename }

// SheetName is the capitalised kind, used as the worksheet title.
func (k Kind) SheetName() string {
	s := string(k)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Columns returns the canonical column order for the kind.
func (k Kind) Columns() []string {
	return append([]string(nil), kindSpecs[k].columns...)
}

// SearchFields returns the fields the free-text filter looks at.
func (k Kind) SearchFields() []string {
	return append([]string(nil), kindSpecs[k].search...)
}

// IsNumeric reports whether field holds a number for this kind.
func (k Kind) IsNumeric(field string) bool {
	return isOneOf(field, kindSpecs[k].numeric)
}

// IsBoolean reports whether field holds a boolean for this kind.
func (k Kind) IsBoolean(field string) bool {
	return isOneOf(field, kindSpecs[k].booleans)
}

// DateField is the field the time-window filter and daily totals use.
func (k Kind) DateField() string {
	switch k {
	case KindCustomers, KindProducts:
		return FieldCreatedAt
	default:
		return FieldDate
	}
}

// SortsByName reports whether lists of this kind are ordered by name rather
// than newest first.
func (k Kind) SortsByName() bool {
	return k == KindProducts
}
