package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"

	// MaxDescriptionLength is the maximum number of characters accepted in a description.
	MaxDescriptionLength = 200
)

type (
	// Date is a calendar day without time or zone, serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	// Month identifies a calendar month, serialized as YYYY-MM.
	Month struct {
		Year  int
		Month time.Month
	}

	Expense struct {
		ID          string   `json:"id" yaml:"id"`
		Date        Date     `json:"date" yaml:"date"`
		Amount      float64  `json:"amount" yaml:"amount"`
		Category    Category `json:"category" yaml:"category"`
		Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	}

	// ExpenseInput carries the mutable fields of an expense, everything but the id.
	ExpenseInput struct {
		Date        Date     `json:"date"`
		Amount      float64  `json:"amount"`
		Category    Category `json:"category"`
		Description string   `json:"description,omitempty"`
	}

	// Budgets maps a month period to its spending ceiling.
	Budgets map[Month]float64
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidBudget      = errors.New("invalid budget amount")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	errDateNotJSONString  = errors.New("date must be a JSON string")
	errMonthNotJSONString = errors.New("month must be a JSON string")
)

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. Out of range days such as 2024-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// String returns the YYYY-MM-DD form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Period returns the month the date falls in.
func (d Date) Period() Month {
	return Month{Year: d.Year(), Month: d.Time.Month()}
}

// Compare orders dates chronologically: -1 if d is before o, +1 if after, 0 if the same day.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the RFC 3339 encoding promoted from time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errDateNotJSONString
	}
	return d.UnmarshalText([]byte(s))
}

func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MonthOf returns the month period containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a YYYY-MM period.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// First returns the first day of the month.
func (m Month) First() Date {
	return NewDate(m.Year, m.Month, 1)
}

// AddMonths shifts the period by n months, normalizing across year boundaries.
func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Contains reports whether d falls within the month.
func (m Month) Contains(d Date) bool {
	return d.Year() == m.Year && d.Time.Month() == m.Month
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errMonthNotJSONString
	}
	return m.UnmarshalText([]byte(s))
}

// Input strips the identity from an expense.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		Date:        e.Date,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
	}
}

// WithID builds the stored expense for the given identity.
func (in ExpenseInput) WithID(id string) Expense {
	return Expense{
		ID:          id,
		Date:        in.Date,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
	}
}

// Validate checks the input at the system boundary. The ledger itself assumes valid input.
func (in ExpenseInput) Validate() error {
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !in.Category.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, string(in.Category))
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateBudgetAmount accepts finite, non-negative amounts.
func ValidateBudgetAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return ErrInvalidBudget
	}
	return nil
}

// Clone returns an independent copy of the budgets.
func (b Budgets) Clone() Budgets {
	out := make(Budgets, len(b))
	for m, v := range b {
		out[m] = v
	}
	return out
}
