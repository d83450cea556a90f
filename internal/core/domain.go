package core

import (
	"errors"
	"strings"
	"time"
)

// DayLayout is the calendar-day format used by every record date field.
const DayLayout = "2006-01-02"

const (
	RoleAdmin       Role = "admin"
	RoleSalesperson Role = "salesperson"
)

const (
	PaymentCash     = "cash"
	PaymentCredit   = "credit"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

type (
	Role string

	Date struct {
		time.Time
	}

	// User is the authenticated principal. The role gates UI features only;
	// the engine never looks at it.
	User struct {
		Username string `json:"username"`
		Role     Role   `json:"role"`
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownKind     = errors.New("unknown record kind")
	ErrInvalidCategory = errors.New("invalid expense category")
	ErrInvalidMovement = errors.New("invalid stock movement type")
)

// ExpenseCategories is the closed set of expense categories.
var ExpenseCategories = []string{"fuel", "maintenance", "tolls", "meals", "supplies", "repairs", "other"}

// MovementTypes is the closed set of stock movement types.
var MovementTypes = []string{"load", "unload", "transfer", "return", "damage"}

// PaymentMethods is the closed set of sale payment methods.
var PaymentMethods = []string{PaymentCash, PaymentCredit, PaymentCard, PaymentTransfer}

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSalesperson
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a calendar day. Timestamps are accepted and truncated to
// their date part, so "2024-01-02T10:00:00Z" is 2024-01-02.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DayLayout) {
		s = s[:len(DayLayout)]
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DayLayout)
}

// AddDays returns the date n calendar days later (earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths returns the same day n calendar months later, normalised the way
// time.AddDate does.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.Time.AddDate(0, n, 0)}
}

// ShortWeekday returns the English three letter weekday ("Mon").
func (d Date) ShortWeekday() string {
	return d.Weekday().String()[:3]
}

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is a later calendar day than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func isOneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// IsExpenseCategory reports whether c is a known expense category.
func IsExpenseCategory(c string) bool { return isOneOf(c, ExpenseCategories) }

// IsMovementType reports whether t is a known stock movement type.
func IsMovementType(t string) bool { return isOneOf(t, MovementTypes) }
