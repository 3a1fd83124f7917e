package audit

import (
	"context"
	"time"
)

// Publisher is the sink interface the state machine emits into.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// Store persists audit events for administrative review.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRegistration(ctx context.Context, registrationID string) ([]Event, error)
}

// StorePublisher writes events to a Store, synchronously by default or
// through a buffered channel and background worker when async is enabled.
type StorePublisher struct {
	store Store
	inbox chan Event
	done  chan struct{}
}

// Option configures the StorePublisher.
type Option func(*StorePublisher)

// WithAsyncBuffer enables asynchronous delivery with the given buffer size.
// Close drains the buffer before returning.
func WithAsyncBuffer(size int) Option {
	return func(p *StorePublisher) {
		p.inbox = make(chan Event, size)
	}
}

// NewStorePublisher creates a store-backed publisher.
func NewStorePublisher(store Store, opts ...Option) *StorePublisher {
	p := &StorePublisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

func (p *StorePublisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		// Best effort: the emitter already logged the business context and
		// the caller has moved on.
		_ = p.store.Append(context.Background(), event)
	}
}

// Emit records an event, stamping the timestamp when unset.
func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox != nil {
		p.inbox <- event
		return nil
	}
	return p.store.Append(ctx, event)
}

// Close drains any buffered events and stops the worker.
func (p *StorePublisher) Close() error {
	if p.inbox != nil {
		close(p.inbox)
		<-p.done
	}
	return nil
}
