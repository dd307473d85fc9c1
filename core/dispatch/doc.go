// Package dispatch routes versioned commands to their handlers and composes
// the command pipeline: wire parsing, version dispatch, failure
// classification, dead-lettering, and the received/executed counters.
//
// # Version dispatch
//
// Handlers register on a Table keyed by (command name, version). Terminal
// handlers apply storage effects and return Applied; transitional handlers
// rewrite the payload into a newer wire shape and return Upgraded, and the
// table loops until a terminal handler applies. Chains must strictly increase
// the version and are capped, so a mis-registered cycle surfaces as a fatal
// fault instead of unbounded recursion.
//
//	table := dispatch.NewTable(dispatch.WithTableLogger(log))
//	table.RegisterDeprecated(command.ReplaceFacts, 2, upgradeFactsV2)
//	table.Register(command.ReplaceFacts, 4, storeFactsV4)
//
// # Failure classification
//
// The Service is the single place fatal and transient failures diverge.
// Fatal failures (malformed documents, unsupported versions, payload
// validation) are filed with the dead-letter office and acknowledged, so the
// transport never redelivers unrecoverable input. Transient failures (storage
// connectivity, transaction conflicts) are returned to the transport, which
// owns redelivery and backoff. Handlers never retry on their own.
package dispatch
