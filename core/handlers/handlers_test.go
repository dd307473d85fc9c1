package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/dispatch"
	"github.com/cfgdb/cfgdb/core/handlers"
	"github.com/cfgdb/cfgdb/core/storage"
)

// testPipeline wires a dispatch table over a fresh in-memory store.
func testPipeline(t *testing.T) (*dispatch.Table, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	table := dispatch.NewTable()
	handlers.RegisterAll(table, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return table, store
}

// newCommand builds an annotated command the way the wire parser would.
func newCommand(t *testing.T, name string, version int, payload any, received time.Time) command.Command {
	t.Helper()
	cmd, err := command.Build(name, version, payload)
	require.NoError(t, err)
	cmd.Annotations = command.Annotations{ID: "test-" + t.Name(), Received: received}
	return cmd
}

// inspect runs a read-only transaction against the store.
func inspect(t *testing.T, store *storage.MemoryStorage, fn func(tx storage.Tx)) {
	t.Helper()
	err := store.RunTransaction(context.Background(), storage.LevelDefault, func(tx storage.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}
