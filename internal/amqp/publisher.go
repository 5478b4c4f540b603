package amqp

import (
	"context"
	"log/slog"
	"sync"

	"jizhang/internal/ledger"
)

// ChangePublisher sends one change event to the broker. Client implements it.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev ledger.ChangeEvent) error
}

// Publisher is a ledger.Observer that forwards change events to the broker from a
// background goroutine, so a slow or unavailable broker never delays a mutation.
// Events that do not fit in the buffer are dropped with a warning.
type Publisher struct {
	target ChangePublisher
	events chan ledger.ChangeEvent

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	stopped sync.Once
}

func NewPublisher(target ChangePublisher, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Publisher{
		target: target,
		events: make(chan ledger.ChangeEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (p *Publisher) Notify(ctx context.Context, ev ledger.ChangeEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		slog.WarnContext(ctx, "Change publisher buffer full, dropping event", "kind", ev.Kind)
	}
}

// Run publishes queued events until Close is called and the queue is drained.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for ev := range p.events {
		if err := p.target.PublishChange(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "Failed to publish change", "error", err, "kind", ev.Kind)
		}
	}
}

// Close stops accepting events and waits for Run to drain the queue, or for ctx.
func (p *Publisher) Close(ctx context.Context) error {
	p.stopped.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.events)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
