// Package ledger owns the expense list and the monthly budgets. Store is the
// only path through which that state changes: it keeps expenses sorted newest
// first, assigns identities, mirrors every committed change to the persistence
// layer and tells subscribers about it.
package ledger

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"jizhang/internal/core"
	"jizhang/internal/report"
	"jizhang/internal/storage"
)

// Persister loads and saves the ledger state. storage.Repository implements it.
type Persister interface {
	Load(ctx context.Context) ([]core.Expense, core.Budgets)
	Save(ctx context.Context, expenses []core.Expense, budgets core.Budgets) error
}

// Snapshot is a consistent copy of the ledger state.
type Snapshot struct {
	Expenses []core.Expense `json:"expenses"`
	Budgets  core.Budgets   `json:"budgets"`
}

type Store struct {
	// commitMu serializes mutations together with their notifications so
	// observers see events in commit order. It is taken before mu.
	commitMu sync.Mutex
	seq      uint64

	mu       sync.RWMutex
	expenses []core.Expense
	budgets  core.Budgets
	loaded   bool

	repo  Persister
	newID func() string
	now   func() time.Time

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

type Option func(*Store)

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithClock replaces the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty, not yet loaded store. A nil repo keeps the state in memory only.
func New(repo Persister, opts ...Option) *Store {
	s := &Store{
		expenses:  []core.Expense{},
		budgets:   core.Budgets{},
		repo:      repo,
		newID:     newUUIDv7,
		now:       time.Now,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load replaces the in-memory state with the persisted one and enables saving.
// Nothing is written back before Load completes, so stored data is never
// clobbered by the empty startup state.
func (s *Store) Load(ctx context.Context) {
	var expenses []core.Expense
	budgets := core.Budgets{}
	if s.repo != nil {
		expenses, budgets = s.repo.Load(ctx)
	}

	s.mu.Lock()
	s.expenses = slices.Clone(expenses)
	if s.expenses == nil {
		s.expenses = []core.Expense{}
	}
	storage.SortByDateDesc(s.expenses)
	s.budgets = budgets.Clone()
	s.loaded = true
	s.mu.Unlock()
}

// Loaded reports whether Load has completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// AddExpense stores a new expense under a fresh id and returns it.
// The input is expected to be validated by the caller.
func (s *Store) AddExpense(ctx context.Context, in core.ExpenseInput) core.Expense {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	e := in.WithID(s.uniqueIDLocked())
	s.expenses = append(s.expenses, e)
	storage.SortByDateDesc(s.expenses)
	s.persistLocked(ctx)
	s.mu.Unlock()

	slog.DebugContext(ctx, "Expense added", "id", e.ID, "date", e.Date.String(), "category", string(e.Category))
	s.notify(ctx, ChangeEvent{Kind: ExpenseAdded, ExpenseID: e.ID, Expense: &e, Month: e.Date.Period().String()})
	return e
}

func (s *Store) uniqueIDLocked() string {
	for {
		id := s.newID()
		if id != "" && s.indexLocked(id) < 0 {
			return id
		}
	}
}

// EditExpense replaces the mutable fields of the expense with the given id.
// An unknown id leaves the state untouched and returns false.
func (s *Store) EditExpense(ctx context.Context, id string, in core.ExpenseInput) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	e := in.WithID(id)
	s.expenses[i] = e
	storage.SortByDateDesc(s.expenses)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ctx, ChangeEvent{Kind: ExpenseEdited, ExpenseID: id, Expense: &e, Month: e.Date.Period().String()})
	return true
}

// DeleteExpense removes the expense with the given id. An unknown id is a no-op returning false.
func (s *Store) DeleteExpense(ctx context.Context, id string) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.expenses[i]
	s.expenses = slices.Delete(s.expenses, i, i+1)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ctx, ChangeEvent{Kind: ExpenseDeleted, ExpenseID: id, Month: removed.Date.Period().String()})
	return true
}

// SetBudget sets or overwrites the budget of month. Validation is the caller's job.
func (s *Store) SetBudget(ctx context.Context, month core.Month, amount float64) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	s.budgets[month] = amount
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ctx, ChangeEvent{Kind: BudgetSet, Month: month.String(), Budget: &amount})
}

// Budget returns the budget of month; false means no budget is configured.
func (s *Store) Budget(month core.Month) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.budgets[month]
	return amount, ok
}

// Budgets returns a copy of every configured budget.
func (s *Store) Budgets() core.Budgets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budgets.Clone()
}

// Expenses returns a copy of all expenses, newest first.
func (s *Store) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses)
}

// Expense looks up a single expense.
func (s *Store) Expense(id string) (core.Expense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.expenses[i], true
	}
	return core.Expense{}, false
}

// Snapshot returns a consistent copy of expenses and budgets.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Expenses: slices.Clone(s.expenses), Budgets: s.budgets.Clone()}
}

// MonthlyExpenses returns the expenses of one calendar month.
func (s *Store) MonthlyExpenses(year int, month time.Month) []core.Expense {
	return report.MonthlyExpenses(s.Expenses(), year, month)
}

// CategoryTotals aggregates subset, or every expense when subset is nil.
func (s *Store) CategoryTotals(subset []core.Expense) []report.CategoryTotal {
	if subset == nil {
		subset = s.Expenses()
	}
	return report.CategoryTotals(subset)
}

// BudgetProgress compares month's spending with its budget.
func (s *Store) BudgetProgress(month core.Month) report.BudgetStatus {
	snap := s.Snapshot()
	return report.BudgetProgress(snap.Expenses, snap.Budgets, month)
}

// Overview builds the overview of month from the current state.
func (s *Store) Overview(month core.Month) report.OverviewView {
	snap := s.Snapshot()
	return report.Overview(snap.Expenses, snap.Budgets, month)
}

// Subscribe registers an observer and returns the function that removes it.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// notify runs with commitMu held.
func (s *Store) notify(ctx context.Context, ev ChangeEvent) {
	s.seq++
	ev.Seq = s.seq
	ev.At = s.now()

	s.obsMu.Lock()
	keys := make([]int, 0, len(s.observers))
	for k := range s.observers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	observers := make([]Observer, 0, len(keys))
	for _, k := range keys {
		observers = append(observers, s.observers[k])
	}
	s.obsMu.Unlock()

	for _, o := range observers {
		o.Notify(ctx, ev)
	}
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.expenses, func(e core.Expense) bool { return e.ID == id })
}

// persistLocked mirrors the state to the repository once loaded. Failures are logged only:
// the in-memory state stays authoritative.
func (s *Store) persistLocked(ctx context.Context) {
	if !s.loaded || s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, s.expenses, s.budgets); err != nil {
		slog.ErrorContext(ctx, "Failed to persist ledger state",
			"error", err,
			"expenses", len(s.expenses),
			"budgets", len(s.budgets))
	}
}
