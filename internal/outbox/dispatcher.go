package outbox

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

// Publisher is the broker side of the dispatcher. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// SubjectPrefix namespaces every published event.
const SubjectPrefix = "notifications."

// Dispatcher drains pending outbox events to the broker. Delivery failures
// are retried up to maxAttempts and then parked as failed; they never
// propagate anywhere near the financial path.
type Dispatcher struct {
	store       store.Store
	pub         Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// NewDispatcher returns a dispatcher polling at the given interval.
func NewDispatcher(s store.Store, pub Publisher, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		store:       s,
		pub:         pub,
		interval:    interval,
		batchSize:   50,
		maxAttempts: 5,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch of pending events and returns how many were sent.
func (d *Dispatcher) Drain(ctx context.Context) int {
	events, err := d.store.Outbox().Pending(ctx, d.batchSize)
	if err != nil {
		logrus.WithField("error", err.Error()).Error("Outbox poll failed")
		return 0
	}
	sent := 0
	for i := range events {
		event := &events[i]
		if err := d.pub.Publish(SubjectPrefix+event.Kind, []byte(event.Payload)); err != nil {
			event.Attempts++
			event.LastError = err.Error()
			if event.Attempts >= d.maxAttempts {
				event.Status = domain.OutboxFailed
			}
			logrus.WithFields(logrus.Fields{
				"event_id": event.ID,
				"kind":     event.Kind,
				"attempts": event.Attempts,
				"error":    err.Error(),
			}).Warn("Outbox delivery failed")
		} else {
			now := time.Now().UTC()
			event.Status = domain.OutboxSent
			event.SentAt = &now
			event.Attempts++
			sent++
		}
		if err := d.store.Outbox().Update(ctx, event); err != nil {
			logrus.WithFields(logrus.Fields{
				"event_id": event.ID,
				"error":    err.Error(),
			}).Error("Outbox update failed")
		}
	}
	return sent
}
