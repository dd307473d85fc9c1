// Package mq defines the queue transport consumed by the command dispatcher
// and provides an in-process implementation backed by buffered channels.
//
// The Transport interface is deliberately narrow: publish a body with
// headers, register one listener per endpoint. Everything else that differs
// between brokers, including acknowledgment, redelivery, and backoff, lives
// behind the implementation. Command identity rides in the id and received
// headers so it survives redelivery; per-attempt failure history accumulates
// on the Delivery.
//
// ChannelBroker is the bundled implementation, suitable for tests, local
// development, and single-process deployments:
//
//	broker := mq.NewChannelBroker(
//	    mq.WithWorkers(4),
//	    mq.WithMaxRedeliveries(3),
//	    mq.WithDiscardHook(func(ctx context.Context, d mq.Delivery, reason error) {
//	        // file exhausted deliveries with the dead-letter office
//	    }),
//	)
//	defer broker.Stop()
//
// A callback returning nil acknowledges the message. A non-nil return
// schedules a redelivery with an appended attempt record until the budget is
// exhausted, at which point the delivery goes to the discard hook.
package mq
