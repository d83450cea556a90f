package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field names shared by more than one record kind.
const (
	FieldID             = "id"
	FieldDate           = "date"
	FieldTimestamp      = "timestamp"
	FieldCreatedAt      = "createdAt"
	FieldProduct        = "product"
	FieldQuantity       = "quantity"
	FieldPrice          = "price"
	FieldTotal          = "total"
	FieldAmount         = "amount"
	FieldCustomer       = "customer"
	FieldCustomerID     = "customerId"
	FieldRoute          = "route"
	FieldVan            = "van"
	FieldSalesperson    = "salesperson"
	FieldName           = "name"
	FieldTotalPurchases = "totalPurchases"
	FieldLastPurchase   = "lastPurchase"
	FieldActive         = "active"
)

// Record is one entry of a collection: a flat mapping of field name to a
// scalar value. Numbers are held as json.Number so they survive JSON round
// trips through every store without float drift.
type Record map[string]any

// NewID returns a fresh record id. UUIDv7 ids are unique and sort by
// creation time.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ID returns the record id, or "" when unset.
func (r Record) ID() string {
	return r.Text(FieldID)
}

// Text returns the field rendered as a string; missing fields are "".
func (r Record) Text(field string) string {
	return Text(r[field])
}

// Number returns the field as a decimal; missing or non-numeric values are zero.
func (r Record) Number(field string) decimal.Decimal {
	return Number(r[field])
}

// Clone returns a shallow copy; record values are scalars so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with patch applied. The id is never overwritten.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		if k == FieldID {
			continue
		}
		out[k] = v
	}
	return out
}

// Num converts a decimal to the canonical record representation.
func Num(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// Text renders a scalar record value as a string.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case decimal.Decimal:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(DayLayout)
	case Date:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Number coerces a scalar record value to a decimal. Anything that is not a
// finite number, or a string holding one, is zero.
func Number(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case json.Number:
		return parseOrZero(x.String())
	case string:
		return parseOrZero(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat32(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case int32:
		return decimal.NewFromInt32(x)
	default:
		return decimal.Zero
	}
}

func parseOrZero(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Coerce converts a text cell read from a spreadsheet into the value the
// kind expects for field: known numeric fields become numbers when they
// parse, boolean fields become bools, everything else stays text.
func Coerce(kind Kind, field, text string) any {
	if kind.IsNumeric(field) {
		if d, err := decimal.NewFromString(strings.TrimSpace(text)); err == nil {
			return Num(d)
		}
		return text
	}
	if kind.IsBoolean(field) {
		if b, err := strconv.ParseBool(strings.TrimSpace(text)); err == nil {
			return b
		}
	}
	return text
}
