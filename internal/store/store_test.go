package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStore creates a Store backed by a temp directory.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	return store, func() {
		require.NoError(t, store.Close())
	}
}
