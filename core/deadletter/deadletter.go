package deadletter

import (
	"context"
	"time"

	"github.com/cfgdb/cfgdb/core/command"
)

// UnparsableKind groups records whose wire body never yielded a command name.
const UnparsableKind = "unparsable"

// Record is one discarded command: the original command (when the body
// parsed), the raw wire body, the failure that made it fatal, and the
// per-attempt history accumulated by the transport. Attempts are recorded
// explicitly so they survive serialization into durable stores.
type Record struct {
	Command   *command.Command  `json:"command,omitempty"`
	Body      []byte            `json:"body,omitempty"`
	Error     string            `json:"error"`
	Attempts  []command.Attempt `json:"attempts,omitempty"`
	Discarded time.Time         `json:"discarded"`
}

// Kind returns the command name the record is filed under.
func (r Record) Kind() string {
	if r.Command != nil && r.Command.Name != "" {
		return r.Command.Name
	}
	return UnparsableKind
}

// Store is the dead-letter office: durable storage of fatally failed
// commands for operator inspection. Records are grouped per command kind and
// are never retried automatically.
type Store interface {
	Discard(ctx context.Context, rec Record) error
}
