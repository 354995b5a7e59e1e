package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeagent"
)

func userTurn(text string, ingredients ...string) recipeagent.Turn {
	return recipeagent.Turn{Role: recipeagent.RoleUser, Text: text, Ingredients: ingredients}
}

func TestMemoryStore_GetCreatesEmptySession(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMemoryStore(3, WithClock(func() time.Time { return now }))

	s, err := m.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID)
	assert.Empty(t, s.Turns)
	assert.Equal(t, recipeagent.Preferences{}, s.Preferences)
	assert.Equal(t, now, s.CreatedAt)
}

func TestMemoryStore_AppendTurnEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(3)

	require.NoError(t, m.AppendTurn(ctx, "s", recipeagent.Turn{Role: recipeagent.RoleUser, Text: "one",
		PreferencesDelta: recipeagent.PreferenceDelta{Diet: "vegan"}}))
	txn, err := m.Begin(ctx, "s")
	require.NoError(t, err)
	require.NoError(t, txn.Commit(Delta{Preferences: recipeagent.PreferenceDelta{Diet: "vegan", AddIntolerances: []string{"gluten"}}}))

	for i := 2; i <= 5; i++ {
		require.NoError(t, m.AppendTurn(ctx, "s", userTurn(fmt.Sprintf("turn %d", i))))

		s, err := m.Get(ctx, "s")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(s.Turns), 3)
	}

	s, err := m.Get(ctx, "s")
	require.NoError(t, err)
	require.Len(t, s.Turns, 3)
	assert.Equal(t, "turn 3", s.Turns[0].Text)
	assert.Equal(t, "turn 5", s.Turns[2].Text)
	assert.False(t, s.Turns[0].Timestamp.IsZero())

	prefs, err := m.Preferences(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, recipeagent.Preferences{Diet: "vegan", Intolerances: []string{"gluten"}}, prefs, "eviction must not touch preferences")
}

func TestMemoryStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(3)

	require.NoError(t, m.AppendTurn(ctx, "a", userTurn("hi", "tomato")))
	require.NoError(t, m.CacheDetection(ctx, "a", "fp", recipeagent.DetectionResult{Ingredients: []string{"egg"}}))

	b, err := m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, b.Turns)
	assert.Empty(t, b.ProcessedImages)

	a, err := m.Get(ctx, "a")
	require.NoError(t, err)
	a.Turns[0].Ingredients[0] = "changed"
	a.ProcessedImages["fp"].Ingredients[0] = "changed"

	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"tomato"}, again.Turns[0].Ingredients)
	r, ok := again.Detection("fp")
	require.True(t, ok)
	assert.Equal(t, []string{"egg"}, r.Ingredients)
}

func TestMemoryStore_AbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(3)

	txn, err := m.Begin(ctx, "s")
	require.NoError(t, err)
	txn.Abort()
	txn.Abort()
	assert.ErrorIs(t, txn.Commit(Delta{Turns: []recipeagent.Turn{userTurn("late")}}), ErrTxnClosed)

	s, err := m.Get(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, s.Turns)
	assert.Equal(t, 0, m.queued("s"))
}

func TestMemoryStore_CommitTwice(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(3)

	txn, err := m.Begin(ctx, "s")
	require.NoError(t, err)
	require.NoError(t, txn.Commit(Delta{Turns: []recipeagent.Turn{userTurn("one")}}))
	assert.ErrorIs(t, txn.Commit(Delta{Turns: []recipeagent.Turn{userTurn("two")}}), ErrTxnClosed)
	txn.Abort()

	s, err := m.Get(ctx, "s")
	require.NoError(t, err)
	require.Len(t, s.Turns, 1)
}

func TestMemoryStore_SnapshotIsStable(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(3)
	require.NoError(t, m.AppendTurn(ctx, "s", userTurn("one", "basil")))

	txn, err := m.Begin(ctx, "s")
	require.NoError(t, err)
	snap := txn.Session()
	snap.Turns[0].Ingredients = nil

	assert.Equal(t, []string{"basil"}, txn.Session().LastIngredients())
	txn.Abort()
}

func TestMemoryStore_BeginSerializesInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(10)

	first, err := m.Begin(ctx, "s")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := m.Begin(ctx, "s")
			if !assert.NoError(t, err) {
				return
			}
			// Every writer sees all of the writes queued before it.
			assert.Len(t, txn.Session().Turns, i)
			assert.NoError(t, txn.Commit(Delta{Turns: []recipeagent.Turn{userTurn(fmt.Sprintf("w%d", i))}}))
		}()
		require.Eventually(t, func() bool { return m.queued("s") == i+1 }, time.Second, time.Millisecond)
	}

	// Another session is not held up by the queue on "s".
	other, err := m.Begin(ctx, "other")
	require.NoError(t, err)
	other.Abort()

	require.NoError(t, first.Commit(Delta{Turns: []recipeagent.Turn{userTurn("w0")}}))
	wg.Wait()

	s, err := m.Get(ctx, "s")
	require.NoError(t, err)
	var texts []string
	for _, turn := range s.Turns {
		texts = append(texts, turn.Text)
	}
	assert.Equal(t, []string{"w0", "w1", "w2", "w3"}, texts)
}

func TestMemoryStore_BeginHonoursContext(t *testing.T) {
	m := NewMemoryStore(3)

	holder, err := m.Begin(context.Background(), "s")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Begin(ctx, "s")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		txn, err := m.Begin(context.Background(), "s")
		if err == nil {
			err = txn.Commit(Delta{Turns: []recipeagent.Turn{userTurn("after")}})
		}
		done <- err
	}()

	holder.Abort()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queue stalled behind a cancelled waiter")
	}

	s, err := m.Get(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, "after", s.Turns[0].Text)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemoryStore(3)
	_, err := m.Get(ctx, "s")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Begin(ctx, "s")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStore(3, WithClock(func() time.Time { return now }))

	require.NoError(t, m.AppendTurn(ctx, "old", userTurn("hi")))
	busy, err := m.Begin(ctx, "busy")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	require.NoError(t, m.AppendTurn(ctx, "fresh", userTurn("hi")))

	assert.Equal(t, 1, m.Sweep(30*time.Minute))
	busy.Abort()

	s, err := m.Get(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, s.Turns, "swept session starts over")

	fresh, err := m.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Len(t, fresh.Turns, 1)
}

func TestSession_LastIngredients(t *testing.T) {
	s := Session{Turns: []recipeagent.Turn{
		userTurn("one", "tomatoes", "basil"),
		{Role: recipeagent.RoleAssistant, Text: "ok", Ingredients: []string{"tomatoes", "basil"}},
		userTurn("what about gluten-free?"),
	}}
	assert.Equal(t, []string{"tomatoes", "basil"}, s.LastIngredients())
	assert.Nil(t, Session{}.LastIngredients())
}
