package notify

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher is anything that can deliver a notification synchronously.
type Dispatcher interface {
	Notify(ctx context.Context, event, title, message string) error
}

type queued struct {
	event, title, message string
}

// Async queues notifications so slow chat APIs never hold up the caller.
// Run drains the queue; when the queue is full new notifications are
// dropped and logged.
type Async struct {
	next    Dispatcher
	queue   chan queued
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsync creates an Async in front of next with the given queue size and
// per-delivery timeout.
func NewAsync(next Dispatcher, size int, timeout time.Duration, logger *slog.Logger) *Async {
	if size < 1 {
		size = 100
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{
		next:    next,
		queue:   make(chan queued, size),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "notify_queue")),
	}
}

// Notify enqueues the notification. It never blocks.
func (a *Async) Notify(ctx context.Context, event, title, message string) error {
	select {
	case a.queue <- queued{event: event, title: title, message: message}:
	default:
		a.logger.WarnContext(ctx, "notification queue full, dropping", slog.String("event", event))
	}
	return nil
}

// Run delivers queued notifications until ctx is cancelled, then flushes
// what is already queued.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.flush(context.WithoutCancel(ctx))
			return nil
		case q := <-a.queue:
			a.deliver(ctx, q)
		}
	}
}

func (a *Async) flush(ctx context.Context) {
	for {
		select {
		case q := <-a.queue:
			a.deliver(ctx, q)
		default:
			return
		}
	}
}

func (a *Async) deliver(ctx context.Context, q queued) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, q.event, q.title, q.message); err != nil {
		a.logger.WarnContext(ctx, "notification failed",
			slog.String("event", q.event),
			slog.String("error", err.Error()),
		)
	}
}
