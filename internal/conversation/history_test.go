package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistoryStore(t *testing.T) (*historyStore, *InMemoryMessageRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewInMemoryMessageRepository()
	return newHistoryStore(rdb, repo, nil), repo, mr
}

func TestHistoryAppendAndLoad(t *testing.T) {
	store, repo, _ := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv1", RoleUser, "oi"))
	require.NoError(t, store.Append(ctx, "conv1", RoleAssistant, "Ola! Como posso ajudar?"))

	history, err := store.History(ctx, "conv1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "oi", history[0].Content)
	assert.Equal(t, 2, repo.Len("conv1"))
}

func TestHistoryCacheWindowBounded(t *testing.T) {
	store, repo, _ := newTestHistoryStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		require.NoError(t, store.Append(ctx, "conv1", RoleUser, fmt.Sprintf("msg %d", i)))
	}

	history, err := store.History(ctx, "conv1")
	require.NoError(t, err)
	assert.Len(t, history, cacheWindow)
	assert.Equal(t, "msg 29", history[len(history)-1].Content)
	assert.Equal(t, 30, repo.Len("conv1"), "durable layer keeps more than the cache")
}

func TestHistoryDurablePruning(t *testing.T) {
	store, repo, _ := newTestHistoryStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, store.Append(ctx, "conv1", RoleUser, fmt.Sprintf("msg %d", i)))
	}
	assert.Equal(t, durableWindow, repo.Len("conv1"))
}

func TestHistoryReadThroughOnCacheMiss(t *testing.T) {
	store, _, mr := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv1", RoleUser, "primeira"))
	require.NoError(t, store.Append(ctx, "conv1", RoleAssistant, "segunda"))

	// Simulate a restart losing the cache.
	mr.FlushAll()

	history, err := store.History(ctx, "conv1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "primeira", history[0].Content)

	// The read warmed the cache again.
	assert.True(t, mr.Exists("conversation:conv1"))
}

func TestSelectedPropertyRoundTrip(t *testing.T) {
	store, _, _ := newTestHistoryStore(t)
	ctx := context.Background()

	got, err := store.SelectedProperty(ctx, "conv1")
	require.NoError(t, err)
	assert.Nil(t, got)

	sel := &SelectedProperty{Title: "Apto Messejana 2q", Info: "R$ 180.000"}
	require.NoError(t, store.SaveSelectedProperty(ctx, "conv1", sel))

	got, err = store.SelectedProperty(ctx, "conv1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Apto Messejana 2q", got.Title)

	require.NoError(t, store.SaveSelectedProperty(ctx, "conv1", nil))
	got, err = store.SelectedProperty(ctx, "conv1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLandingContextRoundTrip(t *testing.T) {
	store, _, _ := newTestHistoryStore(t)
	ctx := context.Background()

	got, err := store.LandingContext(ctx, "conv1")
	require.NoError(t, err)
	assert.Nil(t, got)

	lc := &LandingContext{Name: "Maria", Neighborhood: "Messejana", Bedrooms: "2", Source: "landing_page"}
	require.NoError(t, store.SaveLandingContext(ctx, "conv1", lc))

	got, err = store.LandingContext(ctx, "conv1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Maria", got.Name)
}
