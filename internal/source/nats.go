// Package source feeds events into the engine from external transports.
package source

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/autorule/internal/engine"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// NATS consumes events from a queue subscription so multiple engine
// instances share the stream without duplicating dispatches.
type NATS struct {
	sub *nats.Subscription
}

// SubscribeNATS starts consuming JSON-encoded events from subject as part
// of the named queue group.
func SubscribeNATS(nc *nats.Conn, subject, queue string, eng *engine.Engine) (*NATS, error) {
	sub, err := nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var ev rule.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping malformed event message", "subject", msg.Subject, "err", err)
			return
		}
		if !ev.Trigger.Known() {
			slog.Warn("dropping event with unknown trigger", "subject", msg.Subject, "trigger", ev.Trigger)
			return
		}
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		now := time.Now()
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = now
		}
		ev.ReceivedAt = now

		if !eng.ProcessAsync(&ev) {
			slog.Warn("event queue full, dropping event", "event_id", ev.ID, "trigger", ev.Trigger)
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Info("subscribed to event stream", "subject", subject, "queue", queue)
	return &NATS{sub: sub}, nil
}

// Stop drains the subscription so in-flight messages finish.
func (n *NATS) Stop() {
	if err := n.sub.Drain(); err != nil {
		slog.Warn("error draining event subscription", "err", err)
	}
}
