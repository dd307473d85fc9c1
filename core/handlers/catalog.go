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

// Catalog wire versions. v4 and v5 are deprecated shapes funneled forward to
// the terminal v6 handler.
const (
	CatalogVersionOldest   = 4
	CatalogVersionTerminal = 6
)

type catalogPayload struct {
	Certname          string          `json:"certname"`
	Environment       string          `json:"environment"`
	ProducerTimestamp *time.Time      `json:"producer_timestamp"`
	Resources         json.RawMessage `json:"resources"`
	Edges             json.RawMessage `json:"edges"`
}

// RegisterCatalog registers every supported catalog wire version.
func RegisterCatalog(t *dispatch.Table, store storage.Storage, log *slog.Logger) {
	t.RegisterDeprecated(command.ReplaceCatalog, 4, upgradeCatalogV4)
	t.RegisterDeprecated(command.ReplaceCatalog, 5, upgradeCatalogV5)
	t.Register(command.ReplaceCatalog, 6, replaceCatalogV6(store, log))
}

// upgradeCatalogV4 handles the oldest supported shape, where the payload is a
// JSON-encoded string containing the catalog document.
func upgradeCatalogV4(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
	var encoded string
	if err := json.Unmarshal(cmd.Payload, &encoded); err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: catalog v4 payload must be a JSON-encoded string: %v", command.ErrInvalidPayload, err))
	}
	if !json.Valid([]byte(encoded)) {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: catalog v4 embedded document is not valid JSON", command.ErrInvalidPayload))
	}
	return dispatch.Upgraded(cmd.WithPayload(5, json.RawMessage(encoded))), nil
}

// upgradeCatalogV5 renames the v5 document's "name" key to "certname".
func upgradeCatalogV5(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
	doc, err := renameKey(cmd.Payload, "name", "certname")
	if err != nil {
		return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: catalog v5: %v", command.ErrInvalidPayload, err))
	}
	return dispatch.Upgraded(cmd.WithPayload(6, doc)), nil
}

// replaceCatalogV6 is the terminal catalog handler. Catalogs represent
// current desired state, and delivery order over the queue is not guaranteed,
// so last-writer-wins is enforced here by producer timestamp rather than by
// delivery order: a catalog that is not strictly newer than the stored one is
// skipped. The compare-then-write requires repeatable-read isolation.
func replaceCatalogV6(store storage.Storage, log *slog.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
		var payload catalogPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: catalog: %v", command.ErrInvalidPayload, err))
		}
		if payload.Certname == "" {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: catalog missing certname", command.ErrInvalidPayload))
		}

		producerTS := cmd.Annotations.Received
		if payload.ProducerTimestamp != nil {
			producerTS = *payload.ProducerTimestamp
		}

		err := store.RunTransaction(ctx, storage.LevelRepeatableRead, func(tx storage.Tx) error {
			if err := tx.ActivateNode(ctx, payload.Certname, producerTS); err != nil {
				return err
			}

			stale, err := tx.CurrentCatalogNewerThan(ctx, payload.Certname, producerTS)
			if err != nil {
				return err
			}
			if stale {
				log.InfoContext(ctx, "skipping stale catalog",
					logger.Certname(payload.Certname),
					logger.CommandID(cmd.Annotations.ID),
					slog.Time("producer_timestamp", producerTS))
				return nil
			}

			return tx.ReplaceCatalog(ctx, storage.Catalog{
				Certname:          payload.Certname,
				Environment:       payload.Environment,
				ProducerTimestamp: producerTS,
				Resources:         payload.Resources,
				Edges:             payload.Edges,
			})
		})
		if err != nil {
			return dispatch.Outcome{}, err
		}

		return dispatch.Applied(), nil
	}
}
