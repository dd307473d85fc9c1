// Package handlers implements the four command families of the cfgdb core:
// catalog replacement, fact replacement, node deactivation, and report
// submission, each across every wire version still accepted on the queue.
//
// Historical wire shapes are funneled forward through transitional handlers
// that rewrite the payload and promote the version, so the terminal handler
// of each family sees exactly one shape. Terminal handlers enforce their own
// consistency policy against out-of-order delivery:
//
//   - catalogs are last-writer-wins by producer timestamp: a delivery that is
//     not strictly newer than the stored catalog is skipped;
//   - facts are replaced unconditionally (preserved legacy asymmetry with
//     catalogs);
//   - deactivations are skipped when any newer-timestamped record exists for
//     the certname;
//   - reports are append-only and never skipped.
//
// Payload parse and validation failures are fatal; storage failures are
// transient and retried by the transport.
package handlers
