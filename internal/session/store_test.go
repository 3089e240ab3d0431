package session_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobkontakt/crawler/internal/session"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := session.New(session.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := session.New(session.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "testfile")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = session.New(session.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})
}

func TestLoadSaveRoundTrip(t *testing.T) {
	store, err := session.New(session.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, found, err := store.Load("worker-1")
	require.NoError(t, err)
	assert.False(t, found)

	blob := []byte(`{"cookies":[{"name":"sid","value":"abc"}]}`)
	require.NoError(t, store.Save("worker-1", blob))

	got, found, err := store.Load("worker-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, blob, got)
}

func TestSaveReplacesPreviousState(t *testing.T) {
	store, err := session.New(session.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, store.Save("worker-1", []byte("old")))
	require.NoError(t, store.Save("worker-1", []byte("new")))

	got, found, err := store.Load("worker-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("new"), got)
}

func TestHandledMarkerSurvivesRestart(t *testing.T) {
	baseDir := t.TempDir()

	store, err := session.New(session.Config{BaseDir: baseDir})
	require.NoError(t, err)

	assert.False(t, store.Handled("worker-1"))
	require.NoError(t, store.MarkHandled("worker-1"))
	assert.True(t, store.Handled("worker-1"))

	// Fresh store over the same directory sees the marker on disk.
	restarted, err := session.New(session.Config{BaseDir: baseDir})
	require.NoError(t, err)
	assert.True(t, restarted.Handled("worker-1"))
	assert.False(t, restarted.Handled("worker-2"))
}

func TestWorkersAreIsolated(t *testing.T) {
	store, err := session.New(session.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, store.Save("worker-1", []byte("one")))

	_, found, err := store.Load("worker-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRejectsPathTraversal(t *testing.T) {
	store, err := session.New(session.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	assert.Error(t, store.Save("../escape", []byte("x")))
	_, _, err = store.Load("..")
	assert.Error(t, err)
	assert.Error(t, store.MarkHandled("../escape"))
}
