package deadletter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/deadletter"
)

func TestRecordKind(t *testing.T) {
	t.Parallel()

	t.Run("parsed command files under its name", func(t *testing.T) {
		t.Parallel()
		rec := deadletter.Record{
			Command: &command.Command{Name: command.ReplaceFacts, Version: 4},
			Error:   "invalid payload",
		}
		assert.Equal(t, command.ReplaceFacts, rec.Kind())
	})

	t.Run("unparsable body files under the unparsable kind", func(t *testing.T) {
		t.Parallel()
		rec := deadletter.Record{Body: []byte("garbage"), Error: "malformed"}
		assert.Equal(t, deadletter.UnparsableKind, rec.Kind())
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("groups records by kind", func(t *testing.T) {
		t.Parallel()
		store := deadletter.NewMemoryStore()

		require.NoError(t, store.Discard(ctx, deadletter.Record{
			Command:   &command.Command{Name: command.ReplaceFacts, Version: 4},
			Error:     "invalid payload",
			Discarded: time.Now().UTC(),
		}))
		require.NoError(t, store.Discard(ctx, deadletter.Record{
			Body:      []byte("garbage"),
			Error:     "malformed",
			Discarded: time.Now().UTC(),
		}))

		assert.Equal(t, 2, store.Len())
		assert.Len(t, store.Records(command.ReplaceFacts), 1)
		assert.Len(t, store.Records(deadletter.UnparsableKind), 1)
		assert.Empty(t, store.Records(command.ReplaceCatalog))
	})

	t.Run("records are copied out", func(t *testing.T) {
		t.Parallel()
		store := deadletter.NewMemoryStore()

		require.NoError(t, store.Discard(ctx, deadletter.Record{
			Body:  []byte("garbage"),
			Error: "malformed",
		}))

		records := store.Records(deadletter.UnparsableKind)
		require.Len(t, records, 1)
		records[0].Error = "mutated"

		assert.Equal(t, "malformed", store.Records(deadletter.UnparsableKind)[0].Error)
	})
}
