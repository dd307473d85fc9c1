package handlers

import (
	"log/slog"

	"github.com/cfgdb/cfgdb/core/dispatch"
	"github.com/cfgdb/cfgdb/core/storage"
)

// RegisterAll populates the dispatch table with every supported version of
// every command kind. Called once at startup by the composition root.
func RegisterAll(t *dispatch.Table, store storage.Storage, log *slog.Logger) {
	RegisterCatalog(t, store, log)
	RegisterFacts(t, store, log)
	RegisterDeactivate(t, store, log)
	RegisterReport(t, store, log)
}
