package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leaderboard-live/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewProfileStore(client)
	ctx := context.Background()

	player, created, err := store.GetOrCreate(ctx, domain.Player{ID: "1", Name: "Ada", Country: "TR"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Ada", player.Name)

	// Profiles are write-once: a later connection with another name keeps
	// the stored one.
	player, created, err = store.GetOrCreate(ctx, domain.Player{ID: "1", Name: "Renamed", Country: "DE"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.Player{ID: "1", Name: "Ada", Country: "TR"}, player)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewProfileStore(client)
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.GetOrCreate(ctx, domain.Player{ID: "same", Name: "Ada", Country: "TR"})
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestBatchGet(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewProfileStore(client)
	ctx := context.Background()

	_, _, err := store.GetOrCreate(ctx, domain.Player{ID: "1", Name: "Ada", Country: "TR"})
	require.NoError(t, err)
	_, _, err = store.GetOrCreate(ctx, domain.Player{ID: "2", Name: "Bob", Country: "DE"})
	require.NoError(t, err)

	players, err := store.BatchGet(ctx, []string{"2", "ghost", "1"})
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, "Bob", players[0].Name)
	assert.Nil(t, players[1])
	assert.Equal(t, "TR", players[2].Country)

	require.NoError(t, mr.Set("player:bad:profile", "{not json"))
	_, err = store.BatchGet(ctx, []string{"bad"})
	assert.Error(t, err)
}

func TestGetMissing(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewProfileStore(client)

	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}
