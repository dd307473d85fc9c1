// Package deadletter defines the dead-letter office: durable storage for
// commands that failed fatally and must never be retried.
//
// The dispatcher service routes a command here when its failure is classified
// fatal (malformed wire document, unsupported version, payload validation
// failure). Records keep the original annotated command, including the
// per-attempt failure history accumulated by the transport, so operators can
// inspect and manually resubmit after fixing the cause.
//
// MemoryStore backs tests; production deployments use the Redis-backed store
// in integration/database/redis.
package deadletter
