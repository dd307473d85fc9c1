// Package pg provides PostgreSQL connection management and the relational
// implementation of the command pipeline's transactional store.
//
// The package wraps the pgx driver with retry logic on connect, a health
// check for readiness probes, and embedded schema migrations applied with
// goose. Storage implements the store interface the command handlers write
// through, mapping the handlers' isolation requirements onto pgx transaction
// options: handlers that compare stored producer timestamps before writing
// run at repeatable read, so a concurrent writer cannot slip between the
// compare and the write.
//
// # Usage
//
//	cfg := pg.Config{ConnectionString: os.Getenv("PG_CONN_URL")}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool); err != nil {
//		log.Fatal(err)
//	}
//
//	store := pg.NewStorage(pool)
//	table := dispatch.NewTable()
//	handlers.RegisterAll(table, store, logger)
//
// # Transaction propagation
//
// WithTx attaches a pgx.Tx to a context; storage operations run through such
// a context join the ambient transaction instead of opening their own. This
// lets a caller make a command's effects atomic with other writes:
//
//	tx, err := pool.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback(ctx) // Safe even after commit
//
//	ctx = pg.WithTx(ctx, tx)
//	if err := table.Dispatch(ctx, cmd); err != nil {
//		return err
//	}
//	return tx.Commit(ctx)
//
// # Errors
//
// Sentinel errors cover connection and migration failures; classification
// helpers (IsNotFoundError, IsDuplicateKeyError, IsSerializationError,
// IsTxClosedError) detect common PostgreSQL failure patterns. Serialization
// failures from repeatable-read transactions are transient: return them
// untagged and the transport redelivers the command.
package pg
