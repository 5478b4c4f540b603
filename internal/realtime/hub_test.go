package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jizhang/internal/core"
	"jizhang/internal/ledger"
)

type staticSource ledger.Snapshot

func (s staticSource) Snapshot() ledger.Snapshot { return ledger.Snapshot(s) }

func startHub(t *testing.T, source SnapshotSource) (*Hub, string, context.CancelFunc) {
	t.Helper()
	hub := NewHub(source, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHubSendsSnapshotThenChanges(t *testing.T) {
	snap := staticSource{
		Expenses: []core.Expense{{ID: "e1", Date: core.NewDate(2024, time.March, 1), Amount: 20, Category: core.CategoryFood}},
		Budgets:  core.Budgets{{Year: 2024, Month: time.March}: 500},
	}
	hub, url, _ := startHub(t, snap)
	conn := dial(t, url)

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, TypeSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	require.Len(t, first.Snapshot.Expenses, 1)
	assert.Equal(t, "e1", first.Snapshot.Expenses[0].ID)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(context.Background(), ledger.ChangeEvent{Kind: ledger.ExpenseDeleted, ExpenseID: "e1"})

	var second Message
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, TypeChange, second.Type)
	require.NotNil(t, second.Event)
	assert.Equal(t, ledger.ExpenseDeleted, second.Event.Kind)
	assert.Equal(t, "e1", second.Event.ExpenseID)
}

// racingSource commits a mutation right after handing out the first snapshot,
// before the new client could have been registered.
type racingSource struct {
	store *ledger.Store
	once  sync.Once
}

func (s *racingSource) Snapshot() ledger.Snapshot {
	snap := s.store.Snapshot()
	s.once.Do(func() {
		s.store.AddExpense(context.Background(), core.ExpenseInput{
			Date: core.NewDate(2024, time.March, 2), Amount: 8, Category: core.CategoryTransport,
		})
	})
	return snap
}

func TestHubDeliversChangeCommittedDuringConnect(t *testing.T) {
	store := ledger.New(nil)
	store.Load(context.Background())
	hub, url, _ := startHub(t, &racingSource{store: store})
	store.Subscribe(hub)

	conn := dial(t, url)

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, TypeSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Empty(t, first.Snapshot.Expenses)

	var second Message
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, TypeChange, second.Type)
	require.NotNil(t, second.Event)
	assert.Equal(t, ledger.ExpenseAdded, second.Event.Kind)
	assert.Equal(t, uint64(1), second.Event.Seq)
	require.NotNil(t, second.Event.Expense)
	assert.Equal(t, 8.0, second.Event.Expense.Amount)
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, url, _ := startHub(t, nil)
	a := dial(t, url)
	b := dial(t, url)

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	hub.Notify(context.Background(), ledger.ChangeEvent{Kind: ledger.BudgetSet, Month: "2024-03"})

	for _, conn := range []*websocket.Conn{a, b} {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, TypeChange, msg.Type)
		assert.Equal(t, "2024-03", msg.Event.Month)
	}
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, url, _ := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, url, cancel := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// Notify after shutdown must not block.
	hub.Notify(context.Background(), ledger.ChangeEvent{Kind: ledger.ExpenseAdded})
}
