package mq

import (
	"context"
	"time"

	"github.com/cfgdb/cfgdb/core/command"
)

// Transport header keys. Identity metadata rides in headers, not in the wire
// body, so redelivery preserves the original id and received timestamp.
const (
	HeaderID       = "id"
	HeaderReceived = "received"
)

// ReceivedFormat is the timestamp encoding used for the received header.
const ReceivedFormat = time.RFC3339Nano

// Headers carry transport-level metadata alongside a message body.
type Headers map[string]string

// Clone returns a copy safe to mutate.
func (h Headers) Clone() Headers {
	if h == nil {
		return Headers{}
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// ReceivedTime parses the received header. The zero time and false are
// returned when the header is absent or unparseable, in which case the wire
// parser stamps a fresh timestamp.
func (h Headers) ReceivedTime() (time.Time, bool) {
	raw, ok := h[HeaderReceived]
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(ReceivedFormat, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Delivery is one message handed to a listener callback. Attempts accumulate
// across redeliveries of the same message.
type Delivery struct {
	Body     []byte
	Headers  Headers
	Attempts []command.Attempt
}

// ProcessFunc handles one delivery. A nil return acknowledges the message; a
// non-nil return hands it back to the transport, which owns redelivery and
// backoff policy.
type ProcessFunc func(ctx context.Context, d Delivery) error

// DiscardFunc receives deliveries the transport gives up on: redelivery
// exhaustion, or messages whose command name fails the listener predicate.
type DiscardFunc func(ctx context.Context, d Delivery, reason error)

// Transport is the queue collaborator consumed by the dispatcher service.
// Implementations own connection management, acknowledgment, and redelivery;
// the core only sends bodies with headers and registers one listener.
type Transport interface {
	// Send publishes body with headers to the named endpoint.
	Send(ctx context.Context, endpoint string, body []byte, headers Headers) error

	// RegisterListener subscribes callback to the named endpoint. Only
	// messages whose wire command name satisfies predicate are delivered;
	// the rest are discarded.
	RegisterListener(endpoint string, predicate func(name string) bool, callback ProcessFunc) error
}
