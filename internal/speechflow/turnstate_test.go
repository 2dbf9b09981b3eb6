package speechflow

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnStore_SaveAndLoad(t *testing.T) {
	store := NewTurnStore(filepath.Join(t.TempDir(), "turns"))

	saved := TurnState{IsUserTurn: true, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, store.Save("app-1", saved))

	loaded, err := store.Load("app-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.IsUserTurn)
	assert.Equal(t, saved.UpdatedAt, loaded.UpdatedAt)
}

func TestTurnStore_LoadMissing(t *testing.T) {
	store := NewTurnStore(t.TempDir())

	state, err := store.Load("nobody")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestTurnStore_StatesAreIndependent(t *testing.T) {
	store := NewTurnStore(t.TempDir())

	require.NoError(t, store.Save("app-1", TurnState{IsUserTurn: true}))
	require.NoError(t, store.Save("app-2", TurnState{IsUserTurn: false}))

	a, err := store.Load("app-1")
	require.NoError(t, err)
	b, err := store.Load("app-2")
	require.NoError(t, err)
	assert.True(t, a.IsUserTurn)
	assert.False(t, b.IsUserTurn)
}

func TestTurnStore_Clear(t *testing.T) {
	store := NewTurnStore(t.TempDir())

	require.NoError(t, store.Save("app-1", TurnState{IsUserTurn: true}))
	require.NoError(t, store.Clear("app-1"))

	state, err := store.Load("app-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Clearing a missing state is not an error.
	require.NoError(t, store.Clear("app-1"))
}
