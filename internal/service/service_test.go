package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/message-relay/internal/repo"
)

func newStore(t *testing.T) *repo.SQLiteStore {
	t.Helper()

	s, err := repo.NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}
