// Package storage mirrors the ledger state to a local key-value store.
//
// The state is kept as two independent records, one for expenses and one for
// budgets, each holding a JSON document. Backends only move bytes around; the
// Repository owns encoding and the lenient decoding of stored records.
package storage

import (
	"context"
	"errors"
)

// Record keys.
const (
	KeyExpenses = "expenses"
	KeyBudgets  = "budgets"
)

// ErrNotFound is returned by KV.Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// KV is a local key-value backend.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
