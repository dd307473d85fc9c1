package handlers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/storage"
)

func reportDoc(certname string, producerTS time.Time) map[string]any {
	start := producerTS.Add(-10 * time.Minute)
	end := producerTS.Add(-5 * time.Minute)
	return map[string]any{
		"certname":           certname,
		"environment":        "production",
		"puppet_version":     "7.12.0",
		"report_format":      8,
		"producer_timestamp": producerTS.Format(time.RFC3339Nano),
		"start_time":         start.Format(time.RFC3339Nano),
		"end_time":           end.Format(time.RFC3339Nano),
		"status":             "changed",
		"metrics":            map[string]any{"resources": map[string]any{"total": float64(42)}},
	}
}

func TestStoreReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	received := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := received.Add(-2 * time.Hour)
	t2 := received.Add(-time.Hour)

	t.Run("stores report and activates node", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 7, reportDoc("node1", t1), received)))

		inspect(t, store, func(tx storage.Tx) {
			node, err := tx.GetNode(ctx, "node1")
			require.NoError(t, err)
			assert.True(t, node.Active())

			reports, err := tx.GetReports(ctx, "node1")
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, "changed", reports[0].Status)
			assert.Equal(t, t1, reports[0].ProducerTimestamp.UTC())
			assert.NotEmpty(t, reports[0].Hash)
		})
	})

	t.Run("reports are append-only", func(t *testing.T) {
		table, store := testPipeline(t)

		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 7, reportDoc("node1", t2), received)))
		// An older report still lands; there is no staleness guard on reports.
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 7, reportDoc("node1", t1), received)))

		inspect(t, store, func(tx storage.Tx) {
			reports, err := tx.GetReports(ctx, "node1")
			require.NoError(t, err)
			assert.Len(t, reports, 2)
		})
	})

	t.Run("missing status is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		doc := reportDoc("node1", t1)
		delete(doc, "status")
		err := table.Dispatch(ctx, newCommand(t, command.StoreReport, 7, doc, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
		assert.ErrorIs(t, err, command.ErrInvalidPayload)
	})

	t.Run("missing certname is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		doc := reportDoc("node1", t1)
		delete(doc, "certname")
		err := table.Dispatch(ctx, newCommand(t, command.StoreReport, 7, doc, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})

	t.Run("non-positive report format is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		doc := reportDoc("node1", t1)
		doc["report_format"] = 0
		err := table.Dispatch(ctx, newCommand(t, command.StoreReport, 7, doc, received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})
}

func TestStoreReportLegacyVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	received := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	start := received.Add(-10 * time.Minute)
	end := received.Add(-5 * time.Minute)

	t.Run("v5 dashed keys with backfilled status", func(t *testing.T) {
		table, store := testPipeline(t)

		doc := map[string]any{
			"certname":       "node1",
			"environment":    "production",
			"puppet-version": "4.10.0",
			"report-format":  5,
			"start-time":     start.Format(time.RFC3339Nano),
			"end-time":       end.Format(time.RFC3339Nano),
		}
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 5, doc, received)))

		inspect(t, store, func(tx storage.Tx) {
			reports, err := tx.GetReports(ctx, "node1")
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, "unchanged", reports[0].Status, "v5 reports carry no status")
			assert.Equal(t, "4.10.0", reports[0].PuppetVersion)
			assert.Equal(t, received, reports[0].ProducerTimestamp.UTC(), "producer timestamp backfilled from received")
		})
	})

	t.Run("v5 missing end time backfills from received", func(t *testing.T) {
		table, store := testPipeline(t)

		doc := map[string]any{
			"certname":       "node1",
			"puppet-version": "4.10.0",
			"report-format":  5,
			"start-time":     start.Format(time.RFC3339Nano),
		}
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 5, doc, received)))

		inspect(t, store, func(tx storage.Tx) {
			reports, err := tx.GetReports(ctx, "node1")
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, received, reports[0].EndTime.UTC())
		})
	})

	t.Run("v6 backfills only the producer timestamp", func(t *testing.T) {
		table, store := testPipeline(t)

		doc := map[string]any{
			"certname":       "node1",
			"puppet_version": "6.1.0",
			"report_format":  7,
			"start_time":     start.Format(time.RFC3339Nano),
			"end_time":       end.Format(time.RFC3339Nano),
			"status":         "failed",
		}
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 6, doc, received)))

		inspect(t, store, func(tx storage.Tx) {
			reports, err := tx.GetReports(ctx, "node1")
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, "failed", reports[0].Status)
			assert.Equal(t, received, reports[0].ProducerTimestamp.UTC())
		})
	})

	t.Run("v6 with explicit producer timestamp keeps it", func(t *testing.T) {
		table, store := testPipeline(t)

		producerTS := received.Add(-time.Hour)
		doc := map[string]any{
			"certname":           "node1",
			"puppet_version":     "6.1.0",
			"report_format":      7,
			"producer_timestamp": producerTS.Format(time.RFC3339Nano),
			"start_time":         start.Format(time.RFC3339Nano),
			"end_time":           end.Format(time.RFC3339Nano),
			"status":             "changed",
		}
		require.NoError(t, table.Dispatch(ctx, newCommand(t, command.StoreReport, 6, doc, received)))

		inspect(t, store, func(tx storage.Tx) {
			reports, err := tx.GetReports(ctx, "node1")
			require.NoError(t, err)
			require.Len(t, reports, 1)
			assert.Equal(t, producerTS, reports[0].ProducerTimestamp.UTC())
		})
	})

	t.Run("v5 malformed payload is fatal", func(t *testing.T) {
		table, _ := testPipeline(t)

		err := table.Dispatch(ctx, newCommand(t, command.StoreReport, 5, "not an object", received))
		require.Error(t, err)
		assert.True(t, command.IsFatal(err))
	})
}
