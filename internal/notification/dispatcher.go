package notification

import (
	"context"
	"log/slog"
	"time"

	"coitrack/internal/platform/metrics"
	"coitrack/pkg/requestcontext"
)

// Sink delivers a notification to one backend (Kafka, log, memory).
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Deduper suppresses redelivery of the same committed transition. Nil-safe:
// a nil Deduper delivers everything.
type Deduper interface {
	// FirstDelivery reports whether this key has not been seen before.
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

// Dispatcher computes recipients and hands notifications to the sink.
// Best-effort by contract: Dispatch never returns an error.
type Dispatcher struct {
	sink    Sink
	dedupe  Deduper
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sink Sink, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sink: sink, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type DispatcherOption func(*Dispatcher)

// WithDeduper enables cross-process delivery dedupe.
func WithDeduper(dedupe Deduper) DispatcherOption {
	return func(d *Dispatcher) { d.dedupe = dedupe }
}

// WithMetrics counts delivered and dropped notifications.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatch fans the event out to everyone but the acting party. It runs after
// the owning transition has committed, so failures are logged and counted,
// never propagated. The context is detached from request cancellation: a
// client disconnect must not lose the notification.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if n.Recipients == nil {
		n.Recipients = RecipientsFor(n.Event, n.ActorParty)
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	if n.RequestID == "" {
		n.RequestID = requestcontext.RequestID(ctx)
	}
	ctx = context.WithoutCancel(ctx)

	if d.dedupe != nil && n.DedupeKey != "" {
		first, err := d.dedupe.FirstDelivery(ctx, n.DedupeKey)
		if err != nil {
			// Dedupe is an optimization; on error we deliver anyway.
			d.logger.WarnContext(ctx, "notification dedupe check failed",
				"event", string(n.Event), "error", err)
		} else if !first {
			return
		}
	}

	if err := d.sink.Deliver(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "notification delivery failed",
			"event", string(n.Event),
			"coi_id", n.COIID.String(),
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.IncrementNotificationsDropped()
		}
		return
	}
	if d.metrics != nil {
		d.metrics.IncrementNotificationsSent()
	}
}
