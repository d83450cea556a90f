package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Amount is a numeric form field. Clients may send it as a JSON number or as
// the raw text typed into the form.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: amount must be a number or string", ErrInvalidAmount)
	}
	*a = Amount(n.String())
	return nil
}

func (a Amount) String() string { return string(a) }

// SaleInput is the sales form.
type SaleInput struct {
	Date            string `json:"date" validate:"required,day"`
	Product         string `json:"product" validate:"required,max=120"`
	Quantity        Amount `json:"quantity" validate:"required,positive"`
	Price           Amount `json:"price" validate:"required,positive"`
	Customer        string `json:"customer" validate:"max=120"`
	CustomerID      string `json:"customerId" validate:"max=64"`
	CustomerPhone   string `json:"customerPhone" validate:"max=40"`
	CustomerAddress string `json:"customerAddress" validate:"max=200"`
	Van             string `json:"van" validate:"max=40"`
	Route           string `json:"route" validate:"max=80"`
	StockLoaded     Amount `json:"stockLoaded" validate:"omitempty,nonnegative"`
	PaymentMethod   string `json:"paymentMethod" validate:"omitempty,oneof=cash credit card transfer"`
	Salesperson     string `json:"salesperson" validate:"max=80"`
	Remarks         string `json:"remarks" validate:"max=500"`
}

// ExpenseInput is the expense form.
type ExpenseInput struct {
	Date        string `json:"date" validate:"required,day"`
	Category    string `json:"category" validate:"required,oneof=fuel maintenance tolls meals supplies repairs other"`
	Description string `json:"description" validate:"required,max=200"`
	Amount      Amount `json:"amount" validate:"required,positive"`
	Van         string `json:"van" validate:"max=40"`
	Receipt     string `json:"receipt" validate:"max=120"`
	Remarks     string `json:"remarks" validate:"max=500"`
	Salesperson string `json:"salesperson" validate:"max=80"`
}

// CustomerInput is the customer form.
type CustomerInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Phone       string `json:"phone" validate:"max=40"`
	Email       string `json:"email" validate:"omitempty,email,max=120"`
	Address     string `json:"address" validate:"max=200"`
	City        string `json:"city" validate:"max=80"`
	CreditLimit Amount `json:"creditLimit" validate:"omitempty,nonnegative"`
	Notes       string `json:"notes" validate:"max=500"`
}

// StockInput is the stock movement form.
type StockInput struct {
	Date        string `json:"date" validate:"required,day"`
	Product     string `json:"product" validate:"required,max=120"`
	Type        string `json:"type" validate:"required,oneof=load unload transfer return damage"`
	Quantity    Amount `json:"quantity" validate:"required,positive"`
	Van         string `json:"van" validate:"max=40"`
	Location    string `json:"location" validate:"max=120"`
	Reason      string `json:"reason" validate:"max=200"`
	Remarks     string `json:"remarks" validate:"max=500"`
	Salesperson string `json:"salesperson" validate:"max=80"`
}

// ProductInput is the product catalogue form.
type ProductInput struct {
	Name      string `json:"name" validate:"required,max=120"`
	Category  string `json:"category" validate:"max=80"`
	SKU       string `json:"sku" validate:"max=60"`
	UnitPrice Amount `json:"unitPrice" validate:"omitempty,nonnegative"`
	Active    *bool  `json:"active"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("day", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DayLayout, strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	_ = v.RegisterValidation("positive", func(fl validator.FieldLevel) bool {
		d, err := ParseAmount(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	_ = v.RegisterValidation("nonnegative", func(fl validator.FieldLevel) bool {
		_, err := ParseAmount(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidationError lists the offending form fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e.Fields[n])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describeTag(fe)
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "day":
		return "must be a date (YYYY-MM-DD)"
	case "positive":
		return "must be a number greater than zero"
	case "nonnegative":
		return "must be a number"
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be an email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func (in SaleInput) Validate() error     { return validateStruct(in) }
func (in ExpenseInput) Validate() error  { return validateStruct(in) }
func (in CustomerInput) Validate() error { return validateStruct(in) }
func (in StockInput) Validate() error    { return validateStruct(in) }
func (in ProductInput) Validate() error  { return validateStruct(in) }

func optionalAmount(a Amount) decimal.Decimal {
	if strings.TrimSpace(string(a)) == "" {
		return decimal.Zero
	}
	d, err := ParseAmount(string(a))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func stamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// Record builds the sales entry. The total is computed once here and never
// re-derived from quantity and price afterwards.
func (in SaleInput) Record(now time.Time) (Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	qty, _ := ParseAmount(string(in.Quantity))
	price, _ := ParseMoney(string(in.Price))
	method := in.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	rec := Record{
		FieldDate:         strings.TrimSpace(in.Date),
		FieldProduct:      strings.TrimSpace(in.Product),
		FieldQuantity:     Num(qty),
		FieldPrice:        Num(price),
		FieldTotal:        Num(qty.Mul(price)),
		FieldCustomer:     strings.TrimSpace(in.Customer),
		"customerPhone":   strings.TrimSpace(in.CustomerPhone),
		"customerAddress": strings.TrimSpace(in.CustomerAddress),
		FieldVan:          strings.TrimSpace(in.Van),
		FieldRoute:        strings.TrimSpace(in.Route),
		"paymentMethod":   method,
		FieldSalesperson:  strings.TrimSpace(in.Salesperson),
		"remarks":         strings.TrimSpace(in.Remarks),
		FieldTimestamp:    stamp(now),
	}
	if in.CustomerID != "" {
		rec[FieldCustomerID] = strings.TrimSpace(in.CustomerID)
	}
	if strings.TrimSpace(string(in.StockLoaded)) != "" {
		rec["stockLoaded"] = Num(optionalAmount(in.StockLoaded))
	}
	return rec, nil
}

func (in ExpenseInput) Record(now time.Time) (Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	amount, _ := ParseMoney(string(in.Amount))
	return Record{
		FieldDate:        strings.TrimSpace(in.Date),
		"category":       in.Category,
		"description":    strings.TrimSpace(in.Description),
		FieldAmount:      Num(amount),
		FieldVan:         strings.TrimSpace(in.Van),
		"receipt":        strings.TrimSpace(in.Receipt),
		"remarks":        strings.TrimSpace(in.Remarks),
		FieldSalesperson: strings.TrimSpace(in.Salesperson),
		FieldTimestamp:   stamp(now),
	}, nil
}

// Record builds a new customer with an empty purchase history.
func (in CustomerInput) Record(now time.Time) (Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return Record{
		FieldName:           strings.TrimSpace(in.Name),
		"phone":             strings.TrimSpace(in.Phone),
		"email":             strings.TrimSpace(in.Email),
		"address":           strings.TrimSpace(in.Address),
		"city":              strings.TrimSpace(in.City),
		"creditLimit":       Num(optionalAmount(in.CreditLimit).Round(2)),
		"notes":             strings.TrimSpace(in.Notes),
		FieldTotalPurchases: Num(decimal.Zero),
		FieldLastPurchase:   "",
		FieldCreatedAt:      stamp(now),
	}, nil
}

func (in StockInput) Record(now time.Time) (Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	qty, _ := ParseAmount(string(in.Quantity))
	return Record{
		FieldDate:        strings.TrimSpace(in.Date),
		FieldProduct:     strings.TrimSpace(in.Product),
		"type":           in.Type,
		FieldQuantity:    Num(qty),
		FieldVan:         strings.TrimSpace(in.Van),
		"location":       strings.TrimSpace(in.Location),
		"reason":         strings.TrimSpace(in.Reason),
		"remarks":        strings.TrimSpace(in.Remarks),
		FieldSalesperson: strings.TrimSpace(in.Salesperson),
		FieldTimestamp:   stamp(now),
	}, nil
}

// Record builds a catalogue product; products are active unless stated.
func (in ProductInput) Record(now time.Time) (Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return Record{
		FieldName:      strings.TrimSpace(in.Name),
		"category":     strings.TrimSpace(in.Category),
		"sku":          strings.TrimSpace(in.SKU),
		"unitPrice":    Num(optionalAmount(in.UnitPrice).Round(2)),
		FieldActive:    active,
		FieldCreatedAt: stamp(now),
	}, nil
}
