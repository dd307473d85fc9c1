package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/dispatch"
	"github.com/cfgdb/cfgdb/core/storage"
)

// Fact wire versions. v2 and v3 are deprecated shapes funneled forward to the
// terminal v4 handler.
const (
	FactsVersionOldest   = 2
	FactsVersionTerminal = 4
)

type factsPayload struct {
	Certname          string         `json:"certname"`
	Environment       string         `json:"environment"`
	Values            map[string]any `json:"values"`
	ProducerTimestamp *time.Time     `json:"producer_timestamp"`
}

// RegisterFacts registers every supported fact wire version.
func RegisterFacts(t *dispatch.Table, store storage.Storage, log *slog.Logger) {
	t.RegisterDeprecated(command.ReplaceFacts, 2, upgradeFactsV2)
	t.RegisterDeprecated(command.ReplaceFacts, 3, upgradeFactsV3)
	t.Register(command.ReplaceFacts, 4, replaceFactsV4(store, log))
}

// upgradeFactsV2 handles the oldest supported shape, where the payload is a
// JSON-encoded string containing the fact document.
func upgradeFactsV2(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
	var encoded string
	if err := json.Unmarshal(cmd.Payload, &encoded); err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: facts v2 payload must be a JSON-encoded string: %v", command.ErrInvalidPayload, err))
	}
	if !json.Valid([]byte(encoded)) {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: facts v2 embedded document is not valid JSON", command.ErrInvalidPayload))
	}
	return dispatch.Upgraded(cmd.WithPayload(3, json.RawMessage(encoded))), nil
}

// upgradeFactsV3 renames the v3 document's "name" key to "certname".
func upgradeFactsV3(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
	doc, err := renameKey(cmd.Payload, "name", "certname")
	if err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: facts v3: %v", command.ErrInvalidPayload, err))
	}
	return dispatch.Upgraded(cmd.WithPayload(4, doc)), nil
}

// replaceFactsV4 is the terminal fact handler. It normalizes the payload,
// stamps the fact set's timestamp from the command's received annotation,
// then activates the node and replaces the facts unconditionally.
//
// Unlike catalogs, facts carry no staleness guard: whichever replacement is
// applied last wins, regardless of producer timestamp order. The asymmetry is
// preserved legacy behavior and is asserted explicitly in the tests.
func replaceFactsV4(store storage.Storage, log *slog.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
		var payload factsPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: facts: %v", command.ErrInvalidPayload, err))
		}
		if payload.Certname == "" {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: facts missing certname", command.ErrInvalidPayload))
		}
		if payload.Values == nil {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: facts missing values map", command.ErrInvalidPayload))
		}

		producerTS := cmd.Annotations.Received
		if payload.ProducerTimestamp != nil {
			producerTS = *payload.ProducerTimestamp
		}

		err := store.RunTransaction(ctx, storage.LevelRepeatableRead, func(tx storage.Tx) error {
			if err := tx.ActivateNode(ctx, payload.Certname, producerTS); err != nil {
				return err
			}
			return tx.ReplaceFacts(ctx, storage.FactSet{
				Certname:          payload.Certname,
				Environment:       payload.Environment,
				ProducerTimestamp: producerTS,
				Timestamp:         cmd.Annotations.Received,
				Values:            payload.Values,
			})
		})
		if err != nil {
			return dispatch.Outcome{}, err
		}

		return dispatch.Applied(), nil
	}
}
