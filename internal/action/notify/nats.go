package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes notifications to a per-recipient subject, e.g.
// "notifications.user_42". Downstream delivery (mail, push, websocket) is
// whoever subscribes there.
type NATSNotifier struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewNATSNotifier(nc *nats.Conn, subjectPrefix string) *NATSNotifier {
	if subjectPrefix == "" {
		subjectPrefix = "notifications"
	}
	return &NATSNotifier{nc: nc, subjectPrefix: subjectPrefix}
}

func (n *NATSNotifier) Notify(_ context.Context, msg *Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := n.subjectPrefix + "." + msg.Recipient
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
