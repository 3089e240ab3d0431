package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFailsOnMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "/nonexistent/config.yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "load config")
}

func TestNewFailsWithoutDSN(t *testing.T) {
	t.Parallel()

	// All other settings have defaults; the database DSN does not.
	_, err := New(context.Background(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "db.dsn")
}

func TestNewFailsOnBadDSN(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  dsn: \"://not-a-dsn\"\n"), 0o600))

	_, err := New(context.Background(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "database pool")
}
