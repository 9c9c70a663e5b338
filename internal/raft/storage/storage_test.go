package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raft-election/internal/raft"
)

func createTempDB(t *testing.T) (*BboltStore, string) {
	dbPath := filepath.Join(t.TempDir(), "stable.db")

	db, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, db)

	return db, dbPath
}

// testStableStore runs the StableStore contract against any implementation
func testStableStore(t *testing.T, store StableStore) {
	t.Run("fresh store has term 0 and no vote", func(t *testing.T) {
		term, err := store.GetCurrentTerm()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), term)

		votedFor, err := store.GetVotedFor()
		require.NoError(t, err)
		assert.Nil(t, votedFor)
	})

	t.Run("sets and gets term", func(t *testing.T) {
		require.NoError(t, store.SetCurrentTerm(7))

		term, err := store.GetCurrentTerm()
		require.NoError(t, err)
		assert.Equal(t, uint64(7), term)
	})

	t.Run("sets and clears votedFor", func(t *testing.T) {
		candidate := raft.NodeID(3)
		require.NoError(t, store.SetVotedFor(&candidate))

		votedFor, err := store.GetVotedFor()
		require.NoError(t, err)
		require.NotNil(t, votedFor)
		assert.Equal(t, candidate, *votedFor)

		require.NoError(t, store.SetVotedFor(nil))
		votedFor, err = store.GetVotedFor()
		require.NoError(t, err)
		assert.Nil(t, votedFor)
	})

	t.Run("returned vote is a copy", func(t *testing.T) {
		candidate := raft.NodeID(4)
		require.NoError(t, store.SetVotedFor(&candidate))
		candidate = 9

		votedFor, err := store.GetVotedFor()
		require.NoError(t, err)
		assert.Equal(t, raft.NodeID(4), *votedFor)
	})

	t.Run("fails after close", func(t *testing.T) {
		require.NoError(t, store.Close())

		_, err := store.GetCurrentTerm()
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, store.SetCurrentTerm(1), ErrClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	testStableStore(t, NewMemoryStore())
}

func TestBboltStore(t *testing.T) {
	db, _ := createTempDB(t)
	testStableStore(t, db)
}

func TestNewBboltStore(t *testing.T) {
	t.Run("creates the database file", func(t *testing.T) {
		db, dbPath := createTempDB(t)
		defer db.Close()

		_, err := os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("fails with invalid path", func(t *testing.T) {
		db, err := NewBboltStore("/invalid/path/that/does/not/exist/stable.db")
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestBboltStore_SurvivesReopen(t *testing.T) {
	db, dbPath := createTempDB(t)

	candidate := raft.NodeID(2)
	require.NoError(t, db.SetCurrentTerm(12))
	require.NoError(t, db.SetVotedFor(&candidate))
	require.NoError(t, db.Close())

	reopened, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	term, err := reopened.GetCurrentTerm()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), term)

	votedFor, err := reopened.GetVotedFor()
	require.NoError(t, err)
	require.NotNil(t, votedFor)
	assert.Equal(t, candidate, *votedFor)
}

func TestBytesToUint64_RejectsWrongLength(t *testing.T) {
	_, err := bytesToUint64([]byte{1, 2, 3})
	assert.Error(t, err)

	v, err := bytesToUint64(uint64ToBytes(1 << 40))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), v)
}
