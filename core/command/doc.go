// Package command defines the unit of work processed by the cfgdb core: a
// named, versioned, opaque payload plus identity annotations, together with
// the wire parser, the outbound builder, and the failure taxonomy shared by
// every layer of the pipeline.
//
// # Wire format
//
// Commands travel as UTF-8 JSON documents:
//
//	{"command": "replace facts", "version": 4, "payload": {...}}
//
// Identity metadata (the process-unique id and the server-observed received
// timestamp) never rides in the body. It travels as transport headers so a
// redelivered message keeps the annotations from its first arrival:
//
//	cmd, err := command.ParseWire(body, command.WireHeader{
//	    ID:       headers["id"],
//	    Received: receivedAt,
//	}, attempts)
//
// # Producer path
//
// Producers construct commands with Build and stamp identity with Annotate:
//
//	cmd, err := command.Build(command.ReplaceFacts, 4, payload)
//	if err != nil { ... }
//	cmd = command.Annotate(cmd)
//
// # Failure taxonomy
//
// Failures divide into fatal (malformed wire documents, unsupported versions,
// payload validation failures) and transient (everything else, typically
// storage trouble). Fatal failures are tagged with FatalError via Fatal and
// detected with IsFatal; they are dead-lettered and never retried. Untagged
// errors propagate to the queue transport, which owns redelivery.
package command
