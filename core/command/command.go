package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Known command names. Every command entering the system must carry one of
// these; anything else is rejected before dispatch.
const (
	ReplaceCatalog = "replace catalog"
	ReplaceFacts   = "replace facts"
	DeactivateNode = "deactivate node"
	StoreReport    = "store report"
)

var knownNames = map[string]struct{}{
	ReplaceCatalog: {},
	ReplaceFacts:   {},
	DeactivateNode: {},
	StoreReport:    {},
}

// KnownCommand reports whether name belongs to the fixed set of supported
// command kinds. Used as the listener predicate on the queue transport.
func KnownCommand(name string) bool {
	_, ok := knownNames[name]
	return ok
}

// Attempt records one failed processing attempt of a command. Attempts are
// appended by the redelivery machinery, not by handlers; the core only
// preserves and forwards them.
type Attempt struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Trace     string    `json:"trace,omitempty"`
}

// Annotations carry command identity metadata. ID and Received are assigned
// exactly once, at first parse or at build time, and survive redelivery
// unchanged.
type Annotations struct {
	ID       string    `json:"id"`
	Received time.Time `json:"received"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Command is the unit of work: a named, versioned, opaque payload plus
// identity annotations. Payload is immutable once constructed; handlers that
// need a different shape produce a new Command.
type Command struct {
	Name        string          `json:"command"`
	Version     int             `json:"version"`
	Payload     json.RawMessage `json:"payload"`
	Annotations Annotations     `json:"-"`
}

// WithPayload returns a copy of the command at the given version carrying the
// rewritten payload. Annotations are preserved so identity survives version
// upgrades.
func (c Command) WithPayload(version int, payload json.RawMessage) Command {
	next := c
	next.Version = version
	next.Payload = payload
	return next
}

// WireBody serializes the command into the wire document
// {"command": ..., "version": ..., "payload": ...}. Annotations travel as
// transport headers, never in the body.
func (c Command) WireBody() ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command %q v%d: %w", c.Name, c.Version, err)
	}
	return body, nil
}

// Build constructs an outbound Command. It fails on an empty name, a
// non-positive version, or a payload that cannot be serialized to the wire
// format. The result is not yet annotated; call Annotate before sending.
func Build(name string, version int, payload any) (Command, error) {
	if name == "" {
		return Command{}, fmt.Errorf("%w: command name must be a non-empty string", ErrMalformedCommand)
	}
	if version <= 0 {
		return Command{}, fmt.Errorf("%w: command version must be a positive integer, got %d", ErrMalformedCommand, version)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("%w: payload of type %T is not serializable: %v", ErrMalformedCommand, payload, err)
	}

	return Command{
		Name:    name,
		Version: version,
		Payload: raw,
	}, nil
}

// Annotate stamps a fresh ID and received timestamp on a brand-new outbound
// command. This is the producer path; the wire parser only fills gaps, so
// redelivered messages keep their original annotations.
func Annotate(cmd Command) Command {
	cmd.Annotations.ID = uuid.New().String()
	cmd.Annotations.Received = time.Now().UTC()
	return cmd
}
