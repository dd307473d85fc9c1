package handlers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/storage"
)

func catalogDoc(certname string, producerTS time.Time) map[string]any {
	return map[string]any{
		"certname":           certname,
		"environment":        "production",
		"producer_timestamp": producerTS.Format(time.RFC3339Nano),
		"resources":          []any{map[string]any{"type": "File", "title": "/etc/motd"}},
	}
}

func TestReplaceCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	received := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := received.Add(-2 * time.Hour)
	t2 := received.Add(-1 * time.Hour)

	t.Run("stores catalog and activates node", func(t *testing.T) {
		table, store := testPipeline(t)

		cmd := newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t1), received)
		require.NoError(t, table.Dispatch(ctx, cmd))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.True(t, node.Active())

			catalog, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
			assert.Equal(t, t1, catalog.ProducerTimestamp.UTC())
			assert.Equal(t, "production", catalog.Environment)
		})
	})

	t.Run("in-order replacement wins", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t1), received)))
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t2), received)))

		inspect(t, store, func(tx storage.Tx) {
			catalog, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
			assert.Equal(t, t2, catalog.ProducerTimestamp.UTC())
		})
	})

	t.Run("out-of-order delivery does not regress state", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t2), received)))
		// The older catalog arrives second and must be skipped.
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t1), received)))

		inspect(t, store, func(tx storage.Tx) {
			catalog, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
			assert.Equal(t, t2, catalog.ProducerTimestamp.UTC())
		})
	})

	t.Run("equal timestamp is not strictly newer", func(t *testing.T) {
		table, store := testPipeline(t)

		first := catalogDoc("node1", t1)
		first["environment"] = "first"
		second := catalogDoc("node1", t1)
		second["environment"] = "second"

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, first, received)))
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, second, received)))

		inspect(t, store, func(tx storage.Tx) {
			catalog, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
			assert.Equal(t, "first", catalog.Environment)
		})
	})

	t.Run("missing producer timestamp defaults to received", func(t *testing.T) {
		table, store := testPipeline(t)

		doc := catalogDoc("node1", t1)
		delete(doc, "producer_timestamp")
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, doc, received)))

		inspect(t, store, func(tx storage.Tx) {
			catalog, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
			assert.Equal(t, received, catalog.ProducerTimestamp.UTC())
		})
	})

	t.Run("missing certname is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		doc := catalogDoc("node1", t1)
		delete(doc, "certname")
		err := table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, doc, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
		assert.ErrorIs(t, err, command.ErrInvalidPayload)
	})

	t.Run("reactivates previously deactivated node", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 3,
			map[string]any{"certname": "node1", "producer_timestamp": t1.Format(time.RFC3339Nano)}, received)))

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t2), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.True(t, node.Active())
		})
	})
}

func TestReplaceCatalogLegacyVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	received := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	producerTS := received.Add(-time.Hour)

	t.Run("v4 chain reaches terminal effect", func(t *testing.T) {
		table, store := testPipeline(t)

		// v5 shape keyed by "name", embedded as a JSON-encoded string.
		doc := map[string]any{
			"name":               "node1",
			"producer_timestamp": producerTS.Format(time.RFC3339Nano),
		}
		embedded, err := json.Marshal(doc)
		require.NoError(t, err)

		cmd := newCommand(t, command.ReplaceCatalog, 4, string(embedded), received)
		require.NoError(t, table.Dispatch(ctx, cmd))

		inspect(t, store, func(tx storage.Tx) {
			catalog, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
			assert.Equal(t, producerTS, catalog.ProducerTimestamp.UTC())
		})
	})

	t.Run("v5 renames name to certname", func(t *testing.T) {
		table, store := testPipeline(t)

		doc := map[string]any{
			"name":               "node1",
			"producer_timestamp": producerTS.Format(time.RFC3339Nano),
		}
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 5, doc, received)))

		inspect(t, store, func(tx storage.Tx) {
			_, err := tx.GetCatalog(ctx, "node1")
			require.NoError(t, err)
		})
	})

	t.Run("v4 with non-string payload is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		err := table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 4, map[string]any{"certname": "node1"}, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})

	t.Run("v4 with garbage embedded document is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		err := table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 4, "not a json document", received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})
}
