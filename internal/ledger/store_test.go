package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jizhang/internal/core"
	"jizhang/internal/storage"
)

type recordingRepo struct {
	mu       sync.Mutex
	expenses []core.Expense
	budgets  core.Budgets
	saves    int
	saveErr  error
}

func (r *recordingRepo) Load(context.Context) ([]core.Expense, core.Budgets) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Expense(nil), r.expenses...), r.budgets.Clone()
}

func (r *recordingRepo) Save(_ context.Context, expenses []core.Expense, budgets core.Budgets) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.expenses = append([]core.Expense(nil), expenses...)
	r.budgets = budgets.Clone()
	return nil
}

func (r *recordingRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func input(date string, amount float64, c core.Category) core.ExpenseInput {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.ExpenseInput{Date: d, Amount: amount, Category: c}
}

func month(s string) core.Month {
	m, err := core.ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

func loadedStore(t *testing.T, opts ...Option) (*Store, *recordingRepo) {
	t.Helper()
	repo := &recordingRepo{}
	s := New(repo, opts...)
	s.Load(context.Background())
	return s, repo
}

func assertSortedDesc(t *testing.T, exps []core.Expense) {
	t.Helper()
	for i := 1; i < len(exps); i++ {
		require.LessOrEqual(t, exps[i].Date.Compare(exps[i-1].Date), 0,
			"expense %d (%s) is newer than expense %d (%s)", i, exps[i].Date, i-1, exps[i-1].Date)
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)

	first := s.AddExpense(ctx, input("2024-03-05", 42.50, core.CategoryFood))
	exps := s.Expenses()
	require.Len(t, exps, 1)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, first, exps[0])
	assert.Equal(t, "2024-03-05", exps[0].Date.String())
	assert.Equal(t, 42.50, exps[0].Amount)
	assert.Equal(t, core.CategoryFood, exps[0].Category)

	second := s.AddExpense(ctx, input("2024-03-10", 10, core.CategoryTransport))
	exps = s.Expenses()
	require.Len(t, exps, 2)
	assert.Equal(t, second.ID, exps[0].ID, "newest expense is at the head")

	s.SetBudget(ctx, month("2024-03"), 100)
	b, ok := s.Budget(month("2024-03"))
	require.True(t, ok)
	assert.Equal(t, 100.0, b)

	s.DeleteExpense(ctx, second.ID)
	st := s.BudgetProgress(month("2024-03"))
	assert.True(t, st.HasBudget)
	assert.Equal(t, 42.5, st.Progress)
}

func TestSortInvariantUnderRandomMutations(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	rng := rand.New(rand.NewPCG(7, 11))

	randomInput := func() core.ExpenseInput {
		d := core.NewDate(2020+rng.IntN(5), time.Month(rng.IntN(12)+1), rng.IntN(28)+1)
		return core.ExpenseInput{Date: d, Amount: float64(rng.IntN(10000)+1) / 100, Category: core.Categories[rng.IntN(8)]}
	}

	for i := 0; i < 500; i++ {
		exps := s.Expenses()
		if len(exps) > 0 && rng.IntN(3) == 0 {
			target := exps[rng.IntN(len(exps))].ID
			require.True(t, s.EditExpense(ctx, target, randomInput()))
		} else {
			s.AddExpense(ctx, randomInput())
		}
		assertSortedDesc(t, s.Expenses())
	}
}

func TestIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	seen := make(map[string]struct{})
	for i := 0; i < 2000; i++ {
		e := s.AddExpense(ctx, input("2024-01-01", 1, core.CategoryOther))
		_, dup := seen[e.ID]
		require.False(t, dup, "duplicate id %s", e.ID)
		seen[e.ID] = struct{}{}
	}
}

func TestIDGeneratorCollisionsAreSkipped(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a", "a", "", "b"}
	s, _ := loadedStore(t, WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	assert.Equal(t, "a", s.AddExpense(ctx, input("2024-01-01", 1, core.CategoryOther)).ID)
	assert.Equal(t, "b", s.AddExpense(ctx, input("2024-01-01", 1, core.CategoryOther)).ID)
}

func TestUnknownIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	s, repo := loadedStore(t)
	s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	before := s.Expenses()
	saves := repo.saveCount()

	assert.False(t, s.EditExpense(ctx, "missing", input("2024-01-01", 99, core.CategoryBills)))
	assert.False(t, s.DeleteExpense(ctx, "missing"))

	assert.Equal(t, before, s.Expenses())
	assert.Equal(t, saves, repo.saveCount(), "no-ops do not persist")
}

func TestEditPreservesIDAndResorts(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	a := s.AddExpense(ctx, input("2024-03-01", 1, core.CategoryFood))
	b := s.AddExpense(ctx, input("2024-03-02", 2, core.CategoryFood))
	require.Equal(t, b.ID, s.Expenses()[0].ID)

	edited := input("2024-04-01", 5, core.CategoryShopping)
	edited.Description = "鞋"
	require.True(t, s.EditExpense(ctx, a.ID, edited))

	exps := s.Expenses()
	assert.Equal(t, a.ID, exps[0].ID)
	assert.Equal(t, edited, exps[0].Input())
	assert.Len(t, exps, 2)
}

func TestSameDayKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	x := s.AddExpense(ctx, input("2024-03-01", 1, core.CategoryFood))
	y := s.AddExpense(ctx, input("2024-03-01", 2, core.CategoryFood))
	exps := s.Expenses()
	assert.Equal(t, []string{x.ID, y.ID}, []string{exps[0].ID, exps[1].ID})
}

func TestBudgetAbsentVersusZero(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)

	_, ok := s.Budget(month("2024-03"))
	assert.False(t, ok)

	s.SetBudget(ctx, month("2024-03"), 0)
	b, ok := s.Budget(month("2024-03"))
	assert.True(t, ok)
	assert.Zero(t, b)
	assert.Zero(t, s.BudgetProgress(month("2024-03")).Progress)

	s.SetBudget(ctx, month("2024-03"), 250)
	b, _ = s.Budget(month("2024-03"))
	assert.Equal(t, 250.0, b, "setting overwrites")
	assert.Len(t, s.Budgets(), 1)
}

func TestNoSaveBeforeLoad(t *testing.T) {
	ctx := context.Background()
	repo := &recordingRepo{
		expenses: []core.Expense{{ID: "old", Date: core.NewDate(2023, 1, 1), Amount: 3, Category: core.CategoryBills}},
	}
	s := New(repo)

	s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	s.SetBudget(ctx, month("2024-03"), 10)
	assert.Zero(t, repo.saveCount(), "state must not be written before the initial load")
	assert.False(t, s.Loaded())

	s.Load(ctx)
	assert.True(t, s.Loaded())
	exps := s.Expenses()
	require.Len(t, exps, 1)
	assert.Equal(t, "old", exps[0].ID)

	s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	assert.Equal(t, 1, repo.saveCount())
	assert.Len(t, repo.expenses, 2)
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	s, repo := loadedStore(t)
	repo.saveErr = errors.New("quota exceeded")

	e := s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	got, ok := s.Expense(e.ID)
	assert.True(t, ok)
	assert.Equal(t, e, got)
}

func TestPersistsThroughRepository(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()

	s := New(storage.NewRepository(kv))
	s.Load(ctx)
	e := s.AddExpense(ctx, input("2024-03-05", 42.5, core.CategoryFood))
	s.SetBudget(ctx, month("2024-03"), 100)

	reloaded := New(storage.NewRepository(kv))
	reloaded.Load(ctx)
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
	got, ok := reloaded.Expense(e.ID)
	assert.True(t, ok)
	assert.Equal(t, e, got)
}

func TestCorruptedExpensesRecordStillLoadsBudgets(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, storage.KeyExpenses, []byte(`"garbage"`)))
	require.NoError(t, kv.Set(ctx, storage.KeyBudgets, []byte(`{"2024-03":100}`)))

	s := New(storage.NewRepository(kv))
	s.Load(ctx)
	assert.Empty(t, s.Expenses())
	b, ok := s.Budget(month("2024-03"))
	assert.True(t, ok)
	assert.Equal(t, 100.0, b)
}

func TestObservers(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	s, _ := loadedStore(t, WithClock(func() time.Time { return at }))

	var events []ChangeEvent
	unsubscribe := s.Subscribe(ObserverFunc(func(_ context.Context, ev ChangeEvent) {
		events = append(events, ev)
	}))

	e := s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	s.EditExpense(ctx, e.ID, input("2024-03-06", 2, core.CategoryFood))
	s.EditExpense(ctx, "missing", input("2024-03-06", 2, core.CategoryFood))
	s.SetBudget(ctx, month("2024-03"), 100)
	s.DeleteExpense(ctx, e.ID)

	require.Len(t, events, 4, "no-ops are not announced")
	assert.Equal(t, ExpenseAdded, events[0].Kind)
	assert.Equal(t, e.ID, events[0].ExpenseID)
	assert.Equal(t, "2024-03", events[0].Month)
	assert.Equal(t, at, events[0].At)
	assert.Equal(t, ExpenseEdited, events[1].Kind)
	assert.Equal(t, BudgetSet, events[2].Kind)
	require.NotNil(t, events[2].Budget)
	assert.Equal(t, 100.0, *events[2].Budget)
	assert.Equal(t, ExpenseDeleted, events[3].Kind)

	unsubscribe()
	unsubscribe()
	s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	assert.Len(t, events, 4)
}

func TestObserverMayReadStore(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	var seen int
	s.Subscribe(ObserverFunc(func(context.Context, ChangeEvent) {
		seen = len(s.Expenses())
	}))
	s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
	assert.Equal(t, 1, seen)
}

func TestObserversSeeCommitOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)

	type seen struct {
		seq   uint64
		count int
	}
	var (
		mu     sync.Mutex
		events []seen
	)
	s.Subscribe(ObserverFunc(func(_ context.Context, ev ChangeEvent) {
		n := len(s.Expenses())
		mu.Lock()
		events = append(events, seen{seq: ev.Seq, count: n})
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.AddExpense(ctx, input("2024-03-05", 1, core.CategoryFood))
			}
		}()
	}
	wg.Wait()

	require.Len(t, events, 200)
	for i, ev := range events {
		// The i-th event must be the i-th commit and no later commit may have landed yet.
		assert.Equal(t, uint64(i+1), ev.seq)
		assert.Equal(t, i+1, ev.count)
	}
}

func TestDerivedViews(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	s.AddExpense(ctx, input("2024-03-05", 42.5, core.CategoryFood))
	s.AddExpense(ctx, input("2024-03-20", 7.5, core.CategoryFood))
	s.AddExpense(ctx, input("2024-04-01", 9, core.CategoryBills))

	march := s.MonthlyExpenses(2024, time.March)
	assert.Len(t, march, 2)

	totals := s.CategoryTotals(march)
	require.Len(t, totals, 1)
	assert.Equal(t, 50.0, totals[0].Total)

	all := s.CategoryTotals(nil)
	assert.Len(t, all, 2)

	ov := s.Overview(month("2024-03"))
	assert.Equal(t, 50.0, ov.Total)
	assert.False(t, ov.Budget.HasBudget)
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s, _ := loadedStore(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AddExpense(ctx, input(fmt.Sprintf("2024-%02d-%02d", g+1, i%28+1), 1, core.CategoryFood))
				_ = s.Overview(month("2024-03"))
			}
		}(g)
	}
	wg.Wait()
	exps := s.Expenses()
	assert.Len(t, exps, 400)
	assertSortedDesc(t, exps)
}
