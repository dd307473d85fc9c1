package command_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgdb/cfgdb/core/command"
)

func TestKnownCommand(t *testing.T) {
	t.Parallel()

	assert.True(t, command.KnownCommand(command.ReplaceCatalog))
	assert.True(t, command.KnownCommand(command.ReplaceFacts))
	assert.True(t, command.KnownCommand(command.DeactivateNode))
	assert.True(t, command.KnownCommand(command.StoreReport))
	assert.False(t, command.KnownCommand("replace everything"))
	assert.False(t, command.KnownCommand(""))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("valid command", func(t *testing.T) {
		cmd, err := command.Build(command.ReplaceFacts, 4, map[string]any{"certname": "node1.example.com"})
		require.NoError(t, err)
		assert.Equal(t, command.ReplaceFacts, cmd.Name)
		assert.Equal(t, 4, cmd.Version)
		assert.JSONEq(t, `{"certname":"node1.example.com"}`, string(cmd.Payload))
		assert.Empty(t, cmd.Annotations.ID, "Build must not annotate")
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := command.Build("", 1, "payload")
		require.ErrorIs(t, err, command.ErrMalformedCommand)
	})

	t.Run("non-positive version", func(t *testing.T) {
		_, err := command.Build(command.ReplaceFacts, 0, "payload")
		require.ErrorIs(t, err, command.ErrMalformedCommand)

		_, err = command.Build(command.ReplaceFacts, -3, "payload")
		require.ErrorIs(t, err, command.ErrMalformedCommand)
	})

	t.Run("unserializable payload", func(t *testing.T) {
		_, err := command.Build(command.ReplaceFacts, 4, make(chan int))
		require.ErrorIs(t, err, command.ErrMalformedCommand)
	})
}

func TestAnnotate(t *testing.T) {
	t.Parallel()

	cmd, err := command.Build(command.DeactivateNode, 3, map[string]any{"certname": "node1"})
	require.NoError(t, err)

	before := time.Now().UTC()
	annotated := command.Annotate(cmd)

	assert.NotEmpty(t, annotated.Annotations.ID)
	assert.False(t, annotated.Annotations.Received.Before(before))

	// A second Annotate produces distinct identity: the caller decides when a
	// command is brand new.
	again := command.Annotate(cmd)
	assert.NotEqual(t, annotated.Annotations.ID, again.Annotations.ID)
}

func TestWireBody(t *testing.T) {
	t.Parallel()

	cmd, err := command.Build(command.StoreReport, 7, map[string]any{"certname": "node1"})
	require.NoError(t, err)
	cmd = command.Annotate(cmd)

	body, err := cmd.WireBody()
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Contains(t, doc, "command")
	assert.Contains(t, doc, "version")
	assert.Contains(t, doc, "payload")
	assert.NotContains(t, doc, "id", "annotations must not leak into the wire body")
	assert.NotContains(t, doc, "received")
}

func TestWithPayload(t *testing.T) {
	t.Parallel()

	cmd, err := command.Build(command.ReplaceFacts, 2, "raw")
	require.NoError(t, err)
	cmd = command.Annotate(cmd)

	next := cmd.WithPayload(3, json.RawMessage(`{"certname":"node1"}`))
	assert.Equal(t, 3, next.Version)
	assert.Equal(t, cmd.Annotations.ID, next.Annotations.ID, "upgrades preserve identity")
	assert.Equal(t, cmd.Annotations.Received, next.Annotations.Received)

	// Original untouched.
	assert.Equal(t, 2, cmd.Version)
	assert.JSONEq(t, `"raw"`, string(cmd.Payload))
}

func TestFatalClassification(t *testing.T) {
	t.Parallel()

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, command.Fatal(nil))
	})

	t.Run("tagging and detection", func(t *testing.T) {
		err := command.Fatal(command.ErrInvalidPayload)
		assert.True(t, command.IsFatal(err))
		assert.ErrorIs(t, err, command.ErrInvalidPayload)
	})

	t.Run("double tagging is idempotent", func(t *testing.T) {
		once := command.Fatal(command.ErrInvalidPayload)
		twice := command.Fatal(once)
		assert.Same(t, once, twice)
	})

	t.Run("plain errors are transient", func(t *testing.T) {
		assert.False(t, command.IsFatal(assert.AnError))
	})
}
