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

func deactivateDoc(certname string, producerTS time.Time) map[string]any {
	return map[string]any{
		"certname":           certname,
		"producer_timestamp": producerTS.Format(time.RFC3339Nano),
	}
}

func TestDeactivateNode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	received := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := received.Add(-3 * time.Hour)
	t2 := received.Add(-2 * time.Hour)
	t3 := received.Add(-time.Hour)

	t.Run("deactivates an active node", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t1), received)))
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 3, deactivateDoc("node1", t2), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.False(t, node.Active())
			require.NotNil(t, node.Deactivated)
			assert.Equal(t, t2, node.Deactivated.UTC())
		})
	})

	t.Run("stale deactivation is skipped when a newer catalog exists", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceCatalog, 6, catalogDoc("node1", t3), received)))
		// The deactivation was produced before the catalog; the node stays up.
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 3, deactivateDoc("node1", t2), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.True(t, node.Active())
		})
	})

	t.Run("stale deactivation is skipped when newer facts exist", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.ReplaceFacts, 4,
			factsDoc("node1", t3, map[string]any{"os": "linux"}), received)))
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 3, deactivateDoc("node1", t2), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.True(t, node.Active())
		})
	})

	t.Run("deactivating an unseen node records it", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 3, deactivateDoc("ghost", t1), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "ghost")
			require.NoError(t, err)
			assert.False(t, node.Active())
		})
	})

	t.Run("missing certname is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		err := table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 3, map[string]any{}, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
		assert.ErrorIs(t, err, command.ErrInvalidPayload)
	})
}

func TestDeactivateNodeLegacyVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	received := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("v2 bare certname", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 2, "node1", received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.False(t, node.Active())
		})
	})

	t.Run("v1 doubly-encoded certname", func(t *testing.T) {
		table, store := testPipeline(t)

		// v1 carries a JSON-encoded string whose content is the v2 document,
		// itself a quoted certname.
		embedded, err := json.Marshal("node1")
		require.NoError(t, err)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 1, string(embedded), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.False(t, node.Active())
		})
	})

	t.Run("v1 with non-string payload is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		err := table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 1, map[string]any{"certname": "node1"}, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})

	t.Run("v2 with non-string payload is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		err := table.Dispatch(ctx, newCommand(t, command.DeactivateNode, 2, 42, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})
}
