// Package cfgdb is the command-processing core of a configuration management
// database: versioned commands describing node state (catalogs, facts,
// deactivations, run reports) arrive over a message queue, are normalized and
// validated, routed through per-version handler chains, and applied to a
// transactional store with producer-timestamp consistency guards.
//
// The module is organized as small composable packages:
//
//   - core/command: the command value, wire parsing, and the fatal/transient
//     error taxonomy
//   - core/dispatch: the (name, version) handler table, the version-upgrade
//     loop, and the dispatcher service that ties transport, table, and
//     dead-letter store together
//   - core/handlers: the catalog, facts, deactivate, and report handler
//     families
//   - core/storage: the transactional store interface and an in-memory
//     implementation
//   - core/mq: the queue transport interface and an in-process channel broker
//   - core/deadletter: durable filing of fatally failed commands
//   - integration/database/pg: the PostgreSQL store
//   - integration/database/redis: Redis client management and the Redis
//     dead-letter store
//
// A minimal deployment wires the pieces like this:
//
//	pool, err := pg.Connect(ctx, pgCfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := pg.Migrate(ctx, pool); err != nil {
//		log.Fatal(err)
//	}
//
//	store := pg.NewStorage(pool)
//	table := dispatch.NewTable(dispatch.WithTableLogger(logger))
//	handlers.RegisterAll(table, store, logger)
//
//	broker := mq.NewChannelBroker(mq.WithWorkers(4))
//	defer broker.Stop()
//
//	svc, err := dispatch.NewService(broker, table, redis.NewDeadLetterStore(client),
//		dispatch.WithServiceLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package cfgdb
