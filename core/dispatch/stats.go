package dispatch

import "sync/atomic"

// Stats is a point-in-time snapshot of the command counters. Both counters
// are monotonically non-decreasing for the lifetime of the service instance
// and reset only on process restart.
type Stats struct {
	ReceivedCommands int64 `json:"received_commands"`
	ExecutedCommands int64 `json:"executed_commands"`
}

// Counter holds the process-wide command counters. It is owned by the
// Service instance and injected where needed rather than reached through
// package globals; increments are atomic and safe from any number of
// enqueueing and consuming goroutines.
type Counter struct {
	received atomic.Int64
	executed atomic.Int64
}

// NewCounter creates a zeroed counter.
func NewCounter() *Counter {
	return &Counter{}
}

// IncReceived records one successful enqueue.
func (c *Counter) IncReceived() {
	c.received.Add(1)
}

// IncExecuted records one command that completed dispatch without error.
func (c *Counter) IncExecuted() {
	c.executed.Add(1)
}

// Snapshot returns the current counter values.
func (c *Counter) Snapshot() Stats {
	return Stats{
		ReceivedCommands: c.received.Load(),
		ExecutedCommands: c.executed.Load(),
	}
}
