package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/logger"
)

var (
	// ErrBrokerClosed is returned when sending to a stopped broker.
	ErrBrokerClosed = errors.New("broker is closed")

	// ErrBufferFull is returned when an endpoint's buffer cannot accept
	// another message.
	ErrBufferFull = errors.New("endpoint buffer full")

	// ErrListenerExists is returned when registering a second listener on an
	// endpoint.
	ErrListenerExists = errors.New("listener already registered for endpoint")

	// ErrRedeliveryExhausted tags deliveries discarded after the redelivery
	// budget is spent.
	ErrRedeliveryExhausted = errors.New("redelivery attempts exhausted")

	// ErrPredicateRejected tags deliveries whose command name the listener
	// predicate refused.
	ErrPredicateRejected = errors.New("message rejected by listener predicate")
)

// ChannelBroker is an in-process Transport backed by buffered channels, one
// per endpoint, with worker goroutines per listener. It implements the
// redelivery policy the core deliberately does not own: a callback error
// appends an attempt record and redelivers until the budget is exhausted,
// then hands the delivery to the discard hook.
//
// Suitable for tests, local development, and single-process deployments. The
// buffer is not durable; messages are lost on shutdown.
type ChannelBroker struct {
	bufferSize      int
	workers         int
	maxRedeliveries int
	shutdownTimeout time.Duration
	discard         DiscardFunc
	logger          *slog.Logger

	mu        sync.Mutex
	endpoints map[string]chan Delivery
	listeners map[string]struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ChannelBrokerOption configures a ChannelBroker.
type ChannelBrokerOption func(*ChannelBroker)

// WithBufferSize sets the per-endpoint buffer capacity. Default 100.
func WithBufferSize(n int) ChannelBrokerOption {
	return func(b *ChannelBroker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithWorkers sets the number of consumer goroutines per listener. Default 1.
// More workers increase dispatch concurrency; handlers must tolerate
// concurrent invocation.
func WithWorkers(n int) ChannelBrokerOption {
	return func(b *ChannelBroker) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithMaxRedeliveries sets how many times a failed delivery is retried before
// it is discarded. Default 3.
func WithMaxRedeliveries(n int) ChannelBrokerOption {
	return func(b *ChannelBroker) {
		if n >= 0 {
			b.maxRedeliveries = n
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight deliveries.
// Default 30s.
func WithShutdownTimeout(d time.Duration) ChannelBrokerOption {
	return func(b *ChannelBroker) {
		if d > 0 {
			b.shutdownTimeout = d
		}
	}
}

// WithDiscardHook sets the hook receiving exhausted and rejected deliveries.
// Without a hook they are logged and dropped.
func WithDiscardHook(fn DiscardFunc) ChannelBrokerOption {
	return func(b *ChannelBroker) {
		b.discard = fn
	}
}

// WithBrokerLogger sets the broker's logger. Discarded output by default.
func WithBrokerLogger(log *slog.Logger) ChannelBrokerOption {
	return func(b *ChannelBroker) {
		if log != nil {
			b.logger = log
		}
	}
}

// NewChannelBroker creates a broker ready for Send and RegisterListener.
// Call Stop for graceful shutdown.
func NewChannelBroker(opts ...ChannelBrokerOption) *ChannelBroker {
	ctx, cancel := context.WithCancel(context.Background())

	b := &ChannelBroker{
		bufferSize:      100,
		workers:         1,
		maxRedeliveries: 3,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		endpoints:       make(map[string]chan Delivery),
		listeners:       make(map[string]struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Send implements Transport. Non-blocking: a full buffer fails fast with
// ErrBufferFull rather than stalling the producer.
func (b *ChannelBroker) Send(ctx context.Context, endpoint string, body []byte, headers Headers) error {
	ch, err := b.endpointChan(endpoint)
	if err != nil {
		return err
	}

	d := Delivery{Body: body, Headers: headers.Clone()}

	select {
	case ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %s", ErrBufferFull, endpoint)
	}
}

// RegisterListener implements Transport. One listener per endpoint; workers
// start immediately.
func (b *ChannelBroker) RegisterListener(endpoint string, predicate func(name string) bool, callback ProcessFunc) error {
	ch, err := b.endpointChan(endpoint)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if _, exists := b.listeners[endpoint]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrListenerExists, endpoint)
	}
	b.listeners[endpoint] = struct{}{}
	b.mu.Unlock()

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.consume(endpoint, ch, predicate, callback)
	}

	return nil
}

// Stop shuts the broker down, waiting up to the shutdown timeout for workers
// to finish their current deliveries. Buffered messages are dropped.
func (b *ChannelBroker) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("channel broker stopped gracefully")
	case <-time.After(b.shutdownTimeout):
		b.logger.Warn("channel broker shutdown timeout exceeded")
	}
}

func (b *ChannelBroker) endpointChan(endpoint string) (chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	ch, ok := b.endpoints[endpoint]
	if !ok {
		ch = make(chan Delivery, b.bufferSize)
		b.endpoints[endpoint] = ch
	}
	return ch, nil
}

func (b *ChannelBroker) consume(endpoint string, ch chan Delivery, predicate func(name string) bool, callback ProcessFunc) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case d := <-ch:
			b.deliver(endpoint, ch, d, predicate, callback)
		}
	}
}

// deliver runs the callback for one message, with panic recovery, and applies
// the redelivery policy on failure.
func (b *ChannelBroker) deliver(endpoint string, ch chan Delivery, d Delivery, predicate func(name string) bool, callback ProcessFunc) {
	if predicate != nil {
		if name := command.PeekName(d.Body); !predicate(name) {
			b.logger.Warn("message rejected by predicate",
				logger.Component("mq"),
				logger.CommandName(name),
				slog.String("endpoint", endpoint))
			b.drop(d, fmt.Errorf("%w: %q", ErrPredicateRejected, name))
			return
		}
	}

	err := b.invoke(callback, d)
	if err == nil {
		return
	}

	d.Attempts = append(d.Attempts, command.Attempt{
		Timestamp: time.Now().UTC(),
		Error:     err.Error(),
		Trace:     stackTrace(),
	})

	if len(d.Attempts) > b.maxRedeliveries {
		b.logger.Warn("redelivery exhausted",
			logger.Component("mq"),
			slog.String("endpoint", endpoint),
			logger.Count("attempts", len(d.Attempts)),
			logger.Error(err))
		b.drop(d, fmt.Errorf("%w after %d attempts: %v", ErrRedeliveryExhausted, len(d.Attempts), err))
		return
	}

	b.logger.Debug("redelivering message",
		logger.Component("mq"),
		slog.String("endpoint", endpoint),
		logger.Count("attempt", len(d.Attempts)),
		logger.Error(err))

	select {
	case ch <- d:
	case <-b.ctx.Done():
	default:
		b.drop(d, fmt.Errorf("%w during redelivery: %v", ErrBufferFull, err))
	}
}

func (b *ChannelBroker) invoke(callback ProcessFunc, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return callback(b.ctx, d)
}

func (b *ChannelBroker) drop(d Delivery, reason error) {
	if b.discard != nil {
		b.discard(b.ctx, d, reason)
		return
	}
	b.logger.Error("delivery dropped", logger.Component("mq"), logger.Error(reason))
}

func stackTrace() string {
	buf := make([]byte, 8<<10)
	return string(buf[:runtime.Stack(buf, false)])
}
