package ledger

import (
	"context"
	"time"

	"jizhang/internal/core"
)

// ChangeKind names the mutation that produced a ChangeEvent.
type ChangeKind string

const (
	ExpenseAdded   ChangeKind = "expense_added"
	ExpenseEdited  ChangeKind = "expense_edited"
	ExpenseDeleted ChangeKind = "expense_deleted"
	BudgetSet      ChangeKind = "budget_set"
)

// ChangeEvent describes one committed mutation. Seq increases by one per
// mutation of a store, in commit order.
type ChangeEvent struct {
	Seq       uint64        `json:"seq"`
	Kind      ChangeKind    `json:"kind"`
	ExpenseID string        `json:"expense_id,omitempty"`
	Expense   *core.Expense `json:"expense,omitempty"`
	Month     string        `json:"month,omitempty"`
	Budget    *float64      `json:"budget,omitempty"`
	At        time.Time     `json:"at"`
}

// Observer is notified after each committed mutation, outside the state lock
// but before the next mutation starts. Implementations may read the store but
// must not mutate it, and must not block for long; slow consumers should queue.
type Observer interface {
	Notify(ctx context.Context, ev ChangeEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev ChangeEvent)

func (f ObserverFunc) Notify(ctx context.Context, ev ChangeEvent) { f(ctx, ev) }
