// Package redis provides Redis client initialization, health checking, and
// the durable dead-letter store for fatally failed commands.
//
// Connect validates the connection URL, retries transient failures with a
// backoff bounded by the connect timeout, and verifies connectivity with a
// ping before returning the client. Healthcheck wraps the same ping for
// readiness probes.
//
// DeadLetterStore implements the pipeline's dead-letter office: fatally
// failed commands are encoded as JSON and pushed onto a per-kind list
// (deadletter:<command name>, or deadletter:unparsable for bodies that never
// yielded a command), newest first. Records are kept for operator inspection
// and are never retried automatically.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	dlq := redis.NewDeadLetterStore(client)
//	svc, err := dispatch.NewService(broker, table, dlq)
//
// Supported URL schemes are redis:// and rediss:// (TLS).
package redis
