package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"jizhang/internal/core"
)

// Repository loads and saves the expenses and budgets records through a KV backend.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// Load reads both records. It never fails: a missing, unreadable or malformed record is
// replaced by its empty default and the problem is logged. The two records load independently.
func (r *Repository) Load(ctx context.Context) ([]core.Expense, core.Budgets) {
	expenses := []core.Expense{}
	if raw, ok := r.read(ctx, KeyExpenses); ok {
		expenses = decodeExpenses(ctx, raw)
	}

	budgets := core.Budgets{}
	if raw, ok := r.read(ctx, KeyBudgets); ok {
		budgets = decodeBudgets(ctx, raw)
	}

	slog.InfoContext(ctx, "Ledger state loaded",
		"expenses", len(expenses),
		"budgets", len(budgets))
	return expenses, budgets
}

func (r *Repository) read(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to read stored record, using empty default",
			"key", key, "error", err)
		return nil, false
	}
	return raw, true
}

// Save writes both records. Each record is attempted even if the other fails.
func (r *Repository) Save(ctx context.Context, expenses []core.Expense, budgets core.Budgets) error {
	if expenses == nil {
		expenses = []core.Expense{}
	}
	if budgets == nil {
		budgets = core.Budgets{}
	}

	var errs []error
	if err := r.write(ctx, KeyExpenses, expenses); err != nil {
		errs = append(errs, err)
	}
	if err := r.write(ctx, KeyBudgets, budgets); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Repository) write(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.kv.Set(ctx, key, b); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.kv.Close()
}

func decodeExpenses(ctx context.Context, raw []byte) []core.Expense {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.WarnContext(ctx, "Stored expenses record is not an array, using empty list",
			"key", KeyExpenses, "error", err)
		return []core.Expense{}
	}

	expenses := make([]core.Expense, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		var e core.Expense
		if err := json.Unmarshal(item, &e); err != nil {
			slog.WarnContext(ctx, "Dropping malformed stored expense", "index", i, "error", err)
			continue
		}
		if e.ID == "" {
			slog.WarnContext(ctx, "Dropping stored expense without id", "index", i)
			continue
		}
		// A missing date would be saved as "" and fail the next load.
		if e.Date.IsZero() {
			slog.WarnContext(ctx, "Dropping stored expense without date", "index", i, "id", e.ID)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			slog.WarnContext(ctx, "Dropping stored expense with duplicate id", "index", i, "id", e.ID)
			continue
		}
		seen[e.ID] = struct{}{}
		expenses = append(expenses, e)
	}

	SortByDateDesc(expenses)
	return expenses
}

func decodeBudgets(ctx context.Context, raw []byte) core.Budgets {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		slog.WarnContext(ctx, "Stored budgets record is not an object, using empty map",
			"key", KeyBudgets, "error", err)
		return core.Budgets{}
	}

	budgets := make(core.Budgets, len(entries))
	for key, value := range entries {
		month, err := core.ParseMonth(key)
		if err != nil {
			slog.WarnContext(ctx, "Dropping stored budget with invalid month", "month", key)
			continue
		}
		var amount float64
		if err := json.Unmarshal(value, &amount); err != nil || core.ValidateBudgetAmount(amount) != nil {
			slog.WarnContext(ctx, "Dropping stored budget with invalid amount",
				"month", key, "value", string(value))
			continue
		}
		budgets[month] = amount
	}
	return budgets
}

// SortByDateDesc orders expenses newest first, keeping the relative order of same-day entries.
func SortByDateDesc(expenses []core.Expense) {
	slices.SortStableFunc(expenses, func(a, b core.Expense) int {
		return b.Date.Compare(a.Date)
	})
}
