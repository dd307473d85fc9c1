// Package storage defines the transactional store the command handlers write
// through, together with an in-memory implementation for tests and local
// development.
//
// The core consumes the store as an abstract collaborator: handlers open a
// transaction at an explicit isolation level, perform node-lifecycle and
// entity-write operations through the Tx interface, and rely on commit or
// rollback happening on every exit path. The schema behind the interface is
// the store's business; the Postgres implementation lives in
// integration/database/pg.
//
// Isolation levels matter here because delivery order over the queue is not
// guaranteed. A handler that compares stored state against incoming state
// before writing (the catalog staleness guard) requires LevelRepeatableRead
// or stronger, otherwise a concurrent transaction's write can become visible
// between the compare and the write and a newer catalog can be lost.
//
// Usage:
//
//	store := storage.NewMemoryStorage()
//	err := store.RunTransaction(ctx, storage.LevelRepeatableRead, func(tx storage.Tx) error {
//	    if err := tx.ActivateNode(ctx, "node1.example.com", producerTS); err != nil {
//	        return err
//	    }
//	    return tx.ReplaceCatalog(ctx, catalog)
//	})
package storage
