package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/dispatch"
	"github.com/cfgdb/cfgdb/core/logger"
	"github.com/cfgdb/cfgdb/core/storage"
)

// Deactivation wire versions. v1 and v2 are deprecated shapes funneled
// forward to the terminal v3 handler.
const (
	DeactivateVersionOldest   = 1
	DeactivateVersionTerminal = 3
)

type deactivatePayload struct {
	Certname          string     `json:"certname"`
	ProducerTimestamp *time.Time `json:"producer_timestamp"`
}

// RegisterDeactivate registers every supported deactivation wire version.
func RegisterDeactivate(t *dispatch.Table, store storage.Storage, log *slog.Logger) {
	t.RegisterDeprecated(command.DeactivateNode, 1, upgradeDeactivateV1)
	t.RegisterDeprecated(command.DeactivateNode, 2, upgradeDeactivateV2)
	t.Register(command.DeactivateNode, 3, deactivateNodeV3(store, log))
}

// upgradeDeactivateV1 handles the oldest shape: the payload is a JSON-encoded
// string whose content is itself the v2 document (a bare quoted certname).
func upgradeDeactivateV1(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
	var encoded string
	if err := json.Unmarshal(cmd.Payload, &encoded); err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: deactivate v1 payload must be a JSON-encoded string: %v", command.ErrInvalidPayload, err))
	}
	if !json.Valid([]byte(encoded)) {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: deactivate v1 embedded document is not valid JSON", command.ErrInvalidPayload))
	}
	return dispatch.Upgraded(cmd.WithPayload(2, json.RawMessage(encoded))), nil
}

// upgradeDeactivateV2 wraps the bare certname string into the structured v3
// payload.
func upgradeDeactivateV2(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
	var certname string
	if err := json.Unmarshal(cmd.Payload, &certname); err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: deactivate v2 payload must be a certname string: %v", command.ErrInvalidPayload, err))
	}

	doc, err := json.Marshal(map[string]string{"certname": certname})
	if err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: deactivate v2: %v", command.ErrInvalidPayload, err))
	}
	return dispatch.Upgraded(cmd.WithPayload(3, doc)), nil
}

// deactivateNodeV3 is the terminal deactivation handler. A deactivation is
// itself subject to out-of-order delivery: if any catalog, fact set, or
// report for the certname is newer than the deactivation's producer
// timestamp, the command is stale and skipped.
//
// Runs at default isolation, weaker than the catalog handler's
// repeatable-read despite also comparing before writing.
func deactivateNodeV3(store storage.Storage, log *slog.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
		var payload deactivatePayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: deactivate: %v", command.ErrInvalidPayload, err))
		}
		if payload.Certname == "" {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: deactivate missing certname", command.ErrInvalidPayload))
		}

		producerTS := time.Now().UTC()
		if payload.ProducerTimestamp != nil {
			producerTS = *payload.ProducerTimestamp
		}

		err := store.RunTransaction(ctx, storage.LevelDefault, func(tx storage.Tx) error {
			exists, err := tx.NodeExists(ctx, payload.Certname)
			if err != nil {
				return err
			}
			if !exists {
				// Deactivating an unseen node still records it.
				if err := tx.ActivateNode(ctx, payload.Certname, producerTS); err != nil {
					return err
				}
			}

			for _, kind := range []storage.RecordKind{storage.KindCatalog, storage.KindFacts, storage.KindReport} {
				newer, err := tx.HasNewerRecord(ctx, kind, payload.Certname, producerTS)
				if err != nil {
					return err
				}
				if newer {
					log.InfoContext(ctx, "skipping stale deactivation",
						logger.Certname(payload.Certname),
						logger.CommandID(cmd.Annotations.ID),
						slog.String("newer_record", string(kind)))
					return nil
				}
			}

			return tx.DeactivateNode(ctx, payload.Certname, producerTS)
		})
		if err != nil {
			return dispatch.Outcome{}, err
		}

		return dispatch.Applied(), nil
	}
}
