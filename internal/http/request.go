package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"jizhang/internal/core"
)

const maxBodyBytes = 1 << 16

var (
	errMalformedBody    = errors.New("malformed JSON body")
	errBodyTooLarge     = errors.New("request body too large")
	errInvalidParameter = errors.New("invalid parameter")
)

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after object", errMalformedBody)
	}
	return nil
}

// amountValue accepts an amount as a JSON number or string, e.g. 12.5 or "12,50".
type amountValue string

func (a *amountValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or a string")
	}
	*a = amountValue(n.String())
	return nil
}

// expenseRequest is the body of POST /api/expenses and PUT /api/expenses/{id}.
type expenseRequest struct {
	Date        string      `json:"date"`
	Amount      amountValue `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
}

// input converts the request into validated ledger input. Categories may be given by
// their Chinese label or English name.
func (req expenseRequest) input() (core.ExpenseInput, error) {
	date, err := core.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return core.ExpenseInput{}, err
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.ExpenseInput{}, err
	}
	category, ok := core.ParseCategory(req.Category)
	if !ok {
		return core.ExpenseInput{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, req.Category)
	}

	in := core.ExpenseInput{
		Date:        date,
		Amount:      amount,
		Category:    category,
		Description: sanitizeInput(req.Description),
	}
	return in, in.Validate()
}

type budgetRequest struct {
	Amount amountValue `json:"amount"`
}

type suggestRequest struct {
	Description string `json:"description"`
}

// monthParam parses the optional ?month=YYYY-MM query parameter, defaulting to the current month.
func (s *Server) monthParam(r *http.Request) (core.Month, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.MonthOf(s.now()), nil
	}
	return core.ParseMonth(v)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errInvalidParameter, name)
	}
	return n, nil
}

// sanitizeInput removes control characters except tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
