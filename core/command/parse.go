package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WireHeader carries the transport-level identity metadata accompanying a
// wire document. Zero values mean the transport supplied nothing and the
// parser stamps fresh values, so first-time messages get annotated here while
// redeliveries keep their originals.
type WireHeader struct {
	ID       string
	Received time.Time
}

// wireDocument is the strict shape of the wire body. Pointer fields
// distinguish absent from zero so missing required fields are caught.
type wireDocument struct {
	Command *string         `json:"command"`
	Version *int            `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// ParseWire decodes a raw wire document into a Command, filling identity
// annotations from the transport header when present and stamping fresh ones
// otherwise. Attempts recorded by the redelivery machinery are carried over
// onto the command's annotations.
//
// The body must be a UTF-8 JSON document of the form
//
//	{"command": <string>, "version": <integer>, "payload": <any>}
//
// A body that is not well-formed, or that is missing a required field or
// carries one with the wrong type, fails with a fatal ErrMalformedCommand.
func ParseWire(body []byte, hdr WireHeader, attempts []Attempt) (Command, error) {
	var doc wireDocument

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&doc); err != nil {
		return Command{}, Fatal(fmt.Errorf("%w: %v", ErrMalformedCommand, err))
	}

	if doc.Command == nil {
		return Command{}, Fatal(fmt.Errorf("%w: missing required field %q", ErrMalformedCommand, "command"))
	}
	if doc.Version == nil {
		return Command{}, Fatal(fmt.Errorf("%w: missing required field %q", ErrMalformedCommand, "version"))
	}
	if *doc.Version <= 0 {
		return Command{}, Fatal(fmt.Errorf("%w: version must be a positive integer, got %d", ErrMalformedCommand, *doc.Version))
	}
	if len(doc.Payload) == 0 {
		return Command{}, Fatal(fmt.Errorf("%w: missing required field %q", ErrMalformedCommand, "payload"))
	}

	ann := Annotations{
		ID:       hdr.ID,
		Received: hdr.Received,
		Attempts: attempts,
	}
	if ann.ID == "" {
		ann.ID = uuid.New().String()
	}
	if ann.Received.IsZero() {
		ann.Received = time.Now().UTC()
	}

	return Command{
		Name:        *doc.Command,
		Version:     *doc.Version,
		Payload:     doc.Payload,
		Annotations: ann,
	}, nil
}

// PeekName extracts just the command name from a wire body without a full
// parse. Transports use it to evaluate listener predicates cheaply; an
// unreadable body yields an empty name, which no predicate matches.
func PeekName(body []byte) string {
	var doc struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return doc.Command
}
