package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/logger"
)

// maxUpgradeHops bounds transitional handler chains. The handler table is
// required to be strictly version-increasing, so any chain longer than this
// is a registration bug; the cap turns it into a detectable fatal fault
// instead of an unbounded loop.
const maxUpgradeHops = 8

// Key identifies one registered handler: a command kind at one wire version.
type Key struct {
	Name    string
	Version int
}

func (k Key) String() string {
	return fmt.Sprintf("%s v%d", k.Name, k.Version)
}

// HandlerFunc processes one command at one wire version. Terminal handlers
// apply effects and return Applied; transitional handlers rewrite the payload
// and return Upgraded. Fatal failures must be tagged with command.Fatal;
// untagged errors are treated as transient and retried by the transport.
type HandlerFunc func(ctx context.Context, cmd command.Command) (Outcome, error)

// Table maps (command name, version) pairs to handlers and drives the
// version-upgrade loop. Registration happens at initialization; Dispatch is
// safe for concurrent use from multiple consumer workers.
type Table struct {
	mu         sync.RWMutex
	handlers   map[Key]HandlerFunc
	deprecated map[Key]struct{}
	logger     *slog.Logger
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithTableLogger sets the table's logger. Discarded output by default.
func WithTableLogger(log *slog.Logger) TableOption {
	return func(t *Table) {
		if log != nil {
			t.logger = log
		}
	}
}

// NewTable creates an empty dispatch table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		handlers:   make(map[Key]HandlerFunc),
		deprecated: make(map[Key]struct{}),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds a handler for a (name, version) pair. Panics on a duplicate
// registration: the table is assembled once at startup and a duplicate is a
// programming error.
func (t *Table) Register(name string, version int, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key{Name: name, Version: version}
	if _, exists := t.handlers[key]; exists {
		panic(fmt.Sprintf("dispatch: duplicate handler for %s", key))
	}
	t.handlers[key] = fn
}

// RegisterDeprecated adds a handler for a version that is still supported but
// produces a warning-level log entry on every dispatch.
func (t *Table) RegisterDeprecated(name string, version int, fn HandlerFunc) {
	t.Register(name, version, fn)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.deprecated[Key{Name: name, Version: version}] = struct{}{}
}

// Supports reports whether any version of the named command is registered.
func (t *Table) Supports(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for key := range t.handlers {
		if key.Name == name {
			return true
		}
	}
	return false
}

// Dispatch routes the command to its handler and loops on Upgraded outcomes
// until a terminal handler applies the effect.
//
// Failure modes:
//   - unknown command name: ErrUnsupportedCommand, untagged — the command is
//     rejected before any handler runs;
//   - known name with an unregistered version: fatal
//     ErrUnsupportedCommandVersion;
//   - a transitional handler that renames the command, fails to increase the
//     version, or chains past the hop cap: fatal;
//   - handler errors propagate as returned, fatal or transient.
func (t *Table) Dispatch(ctx context.Context, cmd command.Command) error {
	if !t.Supports(cmd.Name) {
		return fmt.Errorf("%w: %q", command.ErrUnsupportedCommand, cmd.Name)
	}

	for hop := 0; ; hop++ {
		if hop > maxUpgradeHops {
			return command.Fatal(fmt.Errorf("upgrade chain for %q exceeded %d hops", cmd.Name, maxUpgradeHops))
		}

		key := Key{Name: cmd.Name, Version: cmd.Version}

		t.mu.RLock()
		fn, ok := t.handlers[key]
		_, isDeprecated := t.deprecated[key]
		t.mu.RUnlock()

		if !ok {
			return command.Fatal(fmt.Errorf("%w: %s", command.ErrUnsupportedCommandVersion, key))
		}

		if isDeprecated {
			t.logger.WarnContext(ctx, "deprecated command version",
				logger.CommandName(cmd.Name),
				logger.Version(cmd.Version),
				logger.CommandID(cmd.Annotations.ID))
		}

		outcome, err := fn(ctx, cmd)
		if err != nil {
			return err
		}

		next, upgraded := outcome.Upgrade()
		if !upgraded {
			return nil
		}

		if next.Name != cmd.Name {
			return command.Fatal(fmt.Errorf("handler for %s changed command name to %q", key, next.Name))
		}
		if next.Version <= cmd.Version {
			return command.Fatal(fmt.Errorf("handler for %s did not increase version (got v%d)", key, next.Version))
		}

		t.logger.DebugContext(ctx, "command upgraded",
			logger.CommandName(cmd.Name),
			slog.Int("from_version", cmd.Version),
			slog.Int("to_version", next.Version),
			logger.CommandID(cmd.Annotations.ID))

		cmd = next
	}
}
