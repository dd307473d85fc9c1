package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/deadletter"
	"github.com/cfgdb/cfgdb/core/logger"
	"github.com/cfgdb/cfgdb/core/mq"
)

// DefaultEndpoint is the queue endpoint commands are produced to and consumed
// from when none is configured.
const DefaultEndpoint = "cfgdb.commands"

var (
	// ErrTransportNil is returned when constructing a service without a
	// transport.
	ErrTransportNil = errors.New("transport cannot be nil")

	// ErrTableNil is returned when constructing a service without a dispatch
	// table.
	ErrTableNil = errors.New("dispatch table cannot be nil")

	// ErrDeadLetterNil is returned when constructing a service without a
	// dead-letter store.
	ErrDeadLetterNil = errors.New("dead-letter store cannot be nil")
)

// Service is the composition root of the command pipeline. It registers the
// consumer callback with the queue transport, owns the stats counters, and
// exposes the producer-facing enqueue operations.
//
// Example:
//
//	table := dispatch.NewTable()
//	handlers.RegisterAll(table, store, log)
//
//	svc, err := dispatch.NewService(broker, table, dlq,
//	    dispatch.WithServiceLogger(log),
//	)
//	if err != nil { ... }
//	if err := svc.Start(ctx); err != nil { ... }
//
//	id, err := svc.EnqueueCommand(ctx, dispatch.DefaultEndpoint,
//	    command.ReplaceFacts, 4, payload)
type Service struct {
	transport mq.Transport
	table     *Table
	dlq       deadletter.Store
	counter   *Counter
	endpoint  string
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger. Discarded output by default.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithEndpoint sets the queue endpoint the service consumes from.
func WithEndpoint(endpoint string) ServiceOption {
	return func(s *Service) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithCounter injects a shared counter, for callers that surface the stats
// elsewhere (health endpoints, metrics exporters).
func WithCounter(counter *Counter) ServiceOption {
	return func(s *Service) {
		if counter != nil {
			s.counter = counter
		}
	}
}

// NewService creates a dispatcher service over the given collaborators.
func NewService(transport mq.Transport, table *Table, dlq deadletter.Store, opts ...ServiceOption) (*Service, error) {
	if transport == nil {
		return nil, ErrTransportNil
	}
	if table == nil {
		return nil, ErrTableNil
	}
	if dlq == nil {
		return nil, ErrDeadLetterNil
	}

	s := &Service{
		transport: transport,
		table:     table,
		dlq:       dlq,
		counter:   NewCounter(),
		endpoint:  DefaultEndpoint,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start registers the processing callback with the transport. The listener
// predicate admits only known command names; everything else is discarded by
// the transport before this service sees it.
func (s *Service) Start(ctx context.Context) error {
	if err := s.transport.RegisterListener(s.endpoint, command.KnownCommand, s.process); err != nil {
		return fmt.Errorf("failed to register command listener: %w", err)
	}

	s.logger.InfoContext(ctx, "command dispatcher started",
		logger.Component("dispatch"),
		slog.String("endpoint", s.endpoint))

	return nil
}

// EnqueueCommand builds, annotates, and sends a command, incrementing the
// received counter. Returns the command's process-unique id.
func (s *Service) EnqueueCommand(ctx context.Context, endpoint, name string, version int, payload any) (string, error) {
	cmd, err := command.Build(name, version, payload)
	if err != nil {
		return "", err
	}
	cmd = command.Annotate(cmd)

	body, err := cmd.WireBody()
	if err != nil {
		return "", err
	}

	headers := mq.Headers{
		mq.HeaderID:       cmd.Annotations.ID,
		mq.HeaderReceived: cmd.Annotations.Received.Format(mq.ReceivedFormat),
	}

	if err := s.transport.Send(ctx, endpoint, body, headers); err != nil {
		return "", fmt.Errorf("failed to enqueue command %q v%d: %w", name, version, err)
	}

	s.counter.IncReceived()

	s.logger.DebugContext(ctx, "command enqueued",
		logger.CommandName(name),
		logger.Version(version),
		logger.CommandID(cmd.Annotations.ID))

	return cmd.Annotations.ID, nil
}

// EnqueueRaw sends an already-serialized wire document without inspecting it,
// stamping fresh id and received headers. Malformed bodies are accepted here
// and classified at consumption time, where they fail fatally into the
// dead-letter office.
func (s *Service) EnqueueRaw(ctx context.Context, endpoint string, raw []byte) (string, error) {
	id := uuid.New().String()
	headers := mq.Headers{
		mq.HeaderID:       id,
		mq.HeaderReceived: time.Now().UTC().Format(mq.ReceivedFormat),
	}

	if err := s.transport.Send(ctx, endpoint, raw, headers); err != nil {
		return "", fmt.Errorf("failed to enqueue raw command: %w", err)
	}

	s.counter.IncReceived()
	return id, nil
}

// Stats returns the current received/executed counters.
func (s *Service) Stats() Stats {
	return s.counter.Snapshot()
}

// process is the consumer callback: parse, dispatch, classify failures.
//
// Returning nil acknowledges the message. Fatal failures are acknowledged
// after dead-lettering so the transport never redelivers them; transient
// failures are returned to the transport, which owns redelivery.
func (s *Service) process(ctx context.Context, d mq.Delivery) error {
	start := time.Now()

	hdr := command.WireHeader{ID: d.Headers[mq.HeaderID]}
	if ts, ok := d.Headers.ReceivedTime(); ok {
		hdr.Received = ts
	}

	cmd, err := command.ParseWire(d.Body, hdr, d.Attempts)
	if err != nil {
		// Malformed bodies are always fatal; there is no command to retry.
		s.logger.ErrorContext(ctx, "malformed command discarded",
			logger.Component("dispatch"),
			logger.CommandID(hdr.ID),
			logger.Error(err))
		return s.deadLetter(ctx, deadletter.Record{
			Body:      d.Body,
			Error:     err.Error(),
			Attempts:  d.Attempts,
			Discarded: time.Now().UTC(),
		})
	}

	err = s.table.Dispatch(ctx, cmd)
	switch {
	case err == nil:
		s.counter.IncExecuted()
		s.logger.InfoContext(ctx, "command executed",
			logger.CommandName(cmd.Name),
			logger.Version(cmd.Version),
			logger.CommandID(cmd.Annotations.ID),
			logger.Elapsed(start))
		return nil

	case errors.Is(err, command.ErrUnsupportedCommand):
		// Unknown names are rejected before any handler runs. The listener
		// predicate normally filters these; seeing one here means the
		// predicate and the table disagree, which retrying cannot fix.
		s.logger.WarnContext(ctx, "unsupported command rejected",
			logger.CommandName(cmd.Name),
			logger.CommandID(cmd.Annotations.ID))
		return nil

	case command.IsFatal(err):
		s.logger.ErrorContext(ctx, "command failed fatally",
			logger.CommandName(cmd.Name),
			logger.Version(cmd.Version),
			logger.CommandID(cmd.Annotations.ID),
			logger.Error(err))
		return s.deadLetter(ctx, deadletter.Record{
			Command:   &cmd,
			Body:      d.Body,
			Error:     err.Error(),
			Attempts:  cmd.Annotations.Attempts,
			Discarded: time.Now().UTC(),
		})

	default:
		// Transient: hand back to the transport for redelivery. No executed
		// increment; the command did not complete.
		s.logger.WarnContext(ctx, "command failed, will be retried by transport",
			logger.CommandName(cmd.Name),
			logger.Version(cmd.Version),
			logger.CommandID(cmd.Annotations.ID),
			logger.Error(err))
		return err
	}
}

// deadLetter files a record with the dead-letter office. A store failure is
// returned to the transport so the message is redelivered rather than lost.
func (s *Service) deadLetter(ctx context.Context, rec deadletter.Record) error {
	if err := s.dlq.Discard(ctx, rec); err != nil {
		return fmt.Errorf("failed to dead-letter command: %w", err)
	}
	return nil
}
