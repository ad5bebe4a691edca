package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasesync/internal/domain"
	"phasesync/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	settings := DefaultHubSettings()
	settings.CleanupInterval = 0
	hub := NewHub(st, settings, discardLogger())
	t.Cleanup(hub.Close)
	return hub, st
}

func TestHub_CreateRoom(t *testing.T) {
	hub, st := newTestHub(t)

	room, err := hub.CreateRoom(context.Background())
	require.NoError(t, err)

	code := room.GetRoomCode()
	assert.Len(t, code, DefaultRoomCodeLength)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(RoomCodeChars, c), "unexpected char %q", c)
	}

	assert.Equal(t, 1, hub.GetRoomCount())
	assert.True(t, hub.RoomExists(context.Background(), code))

	_, err = st.Load(context.Background(), code)
	assert.NoError(t, err)
}

func TestHub_GetRoomNotFound(t *testing.T) {
	hub, _ := newTestHub(t)

	_, err := hub.GetRoom(context.Background(), "NOPE42")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = hub.GetRoom(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.False(t, hub.RoomExists(context.Background(), "NOPE42"))
}

func TestHub_RestoresPersistedRoom(t *testing.T) {
	st := store.NewMemoryStore()
	snapshot := domain.NewSnapshot()
	snapshot.State[domain.PhaseKey] = "play"
	snapshot.Version = 7
	require.NoError(t, st.Save(context.Background(), "SAVED1", snapshot))

	settings := DefaultHubSettings()
	settings.CleanupInterval = 0
	hub := NewHub(st, settings, discardLogger())
	defer hub.Close()

	room, err := hub.GetRoom(context.Background(), "SAVED1")
	require.NoError(t, err)
	assert.Equal(t, domain.Phase("play"), room.GetPhase())
	assert.Equal(t, uint64(7), room.Snapshot().Version)

	again, err := hub.GetRoom(context.Background(), "SAVED1")
	require.NoError(t, err)
	assert.Same(t, room, again)
}

func TestHub_CleanupEvictsIdleRooms(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	idle, err := hub.CreateRoom(ctx)
	require.NoError(t, err)
	busy, err := hub.CreateRoom(ctx)
	require.NoError(t, err)
	_, err = busy.Join("p1", newChanSubscriber())
	require.NoError(t, err)

	evicted := hub.cleanupStaleRooms(time.Now().Add(DefaultStaleRoomTimeout + time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, hub.GetRoomCount())
	assert.Equal(t, 1, hub.GetTotalParticipantCount())

	stored, err := hub.GetStoredRoomCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	// evicted state is still in the store
	restored, err := hub.GetRoom(ctx, idle.GetRoomCode())
	require.NoError(t, err)
	assert.NotSame(t, idle, restored)
}

func TestHub_DeleteRoom(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	room, err := hub.CreateRoom(ctx)
	require.NoError(t, err)

	require.NoError(t, hub.DeleteRoom(ctx, room.GetRoomCode()))
	assert.Equal(t, 0, hub.GetRoomCount())

	_, err = hub.GetRoom(ctx, room.GetRoomCode())
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.ErrorIs(t, hub.DeleteRoom(ctx, room.GetRoomCode()), domain.ErrRoomNotFound)
}

func TestHub_CloseKeepsState(t *testing.T) {
	st := store.NewMemoryStore()
	settings := DefaultHubSettings()
	settings.CleanupInterval = 0
	hub := NewHub(st, settings, discardLogger())

	room, err := hub.CreateRoom(context.Background())
	require.NoError(t, err)
	_, err = room.Apply(context.Background(), "p1", domain.Delta{Adds: map[string]string{domain.PhaseKey: "lobby"}})
	require.NoError(t, err)

	hub.Close()
	hub.Close()
	assert.Equal(t, 0, hub.GetRoomCount())

	saved, err := st.Load(context.Background(), room.GetRoomCode())
	require.NoError(t, err)
	assert.Equal(t, domain.Phase("lobby"), saved.Phase())
}
