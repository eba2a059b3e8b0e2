// Package publisher emits audit events to a store.
//
// Compliance and security events are always written synchronously and an
// error is returned to the caller, which MUST fail its operation. Operations
// events go through an optional async buffer and are dropped with a log line
// when the buffer is full.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "oddcert/pkg/domain"
	audit "oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/audit/publishers/ops"
	"oddcert/pkg/platform/audit/worker"
)

// Publisher routes audit events by category.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	sampler *ops.Sampler
	breaker *ops.CircuitBreaker
	metrics *ops.Metrics

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous persistence of operations events.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

// WithSampler samples operations events before they are persisted.
func WithSampler(s *ops.Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

// WithCircuitBreaker stops synchronous operations writes while the store is
// failing.
func WithCircuitBreaker(cb *ops.CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// WithOpsMetrics sets the operations event metrics.
func WithOpsMetrics(m *ops.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the timestamp source for events emitted without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher over store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit records an event. The category is always derived from the action.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return errors.New("audit event requires Action")
	}
	event.Category = audit.AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	if event.Category.FailClosed() {
		if event.ApplicationID.IsNil() {
			return fmt.Errorf("%s audit event requires ApplicationID", event.Category)
		}
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit persistence failed",
				"action", event.Action,
				"application_id", event.ApplicationID.String(),
				"error", err,
			)
			return fmt.Errorf("audit persistence failed: %w", err)
		}
		return nil
	}

	p.emitOps(ctx, event)
	return nil
}

// emitOps is fire-and-forget: operations events never fail the caller.
func (p *Publisher) emitOps(ctx context.Context, event audit.Event) {
	if p.sampler != nil && !p.sampler.ShouldSample(event.Action) {
		if p.metrics != nil {
			p.metrics.IncSampled()
		}
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.inbox != nil && !p.closed {
		select {
		case p.inbox <- event:
			if p.metrics != nil {
				p.metrics.IncTracked()
			}
		default:
			p.logger.WarnContext(ctx, "audit buffer full, event dropped", "action", event.Action)
		}
		return
	}

	if p.breaker != nil && !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncCircuitBreakerDropped()
		}
		return
	}
	err := p.store.Append(ctx, event)
	if p.breaker != nil {
		if err != nil {
			p.breaker.RecordFailure()
		} else {
			p.breaker.RecordSuccess()
		}
		if p.metrics != nil {
			p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
		}
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		p.logger.WarnContext(ctx, "audit event dropped", "action", event.Action, "error", err)
		return
	}
	if p.metrics != nil {
		p.metrics.IncTracked()
	}
}

// List returns the events recorded for an application.
func (p *Publisher) List(ctx context.Context, appID id.ApplicationID) ([]audit.Event, error) {
	return p.store.ListByApplication(ctx, appID)
}

// Close drains buffered events and stops the worker.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.inbox != nil {
			close(p.inbox)
		}
		p.mu.Unlock()
		if p.done != nil {
			<-p.done
		}
	})
}
