// Package notify implements the "send_notification" action. Delivery goes
// through the Notifier boundary; idempotency is enforced here with a
// dedupe key derived from (rule, event, recipient) so a retried dispatch
// never double-delivers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
)

// Notification is one message for one recipient.
type Notification struct {
	DedupeKey string    `json:"dedupe_key"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	RuleID    string    `json:"rule_id"`
	EventID   string    `json:"event_id"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier is the delivery boundary.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// LogNotifier writes notifications to the process log. Used in development
// and as the fallback when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n *Notification) error {
	slog.Info("notification",
		"recipient", n.Recipient,
		"message", n.Message,
		"rule_id", n.RuleID,
		"event_id", n.EventID,
	)
	return nil
}

// Executor handles "send_notification" actions. Params:
//
//	recipients: list of user IDs (required)
//	message:    text to deliver (required)
type Executor struct {
	notifier Notifier
	seen     *dedupeCache
}

func NewExecutor(n Notifier) *Executor {
	return &Executor{notifier: n, seen: newDedupeCache(dedupeTTL)}
}

func (e *Executor) Type() string { return "send_notification" }

func (e *Executor) Validate(params map[string]interface{}) error {
	if _, err := recipients(params); err != nil {
		return err
	}
	msg, _ := params["message"].(string)
	if msg == "" {
		return fmt.Errorf("send_notification: 'message' is required")
	}
	return nil
}

func (e *Executor) Execute(ctx context.Context, inv action.Invocation) (*action.Result, error) {
	rcpts, err := recipients(inv.Params)
	if err != nil {
		return &action.Result{Type: e.Type(), Success: false, Message: err.Error()}, err
	}
	msg, _ := inv.Params["message"].(string)

	delivered, skipped := 0, 0
	for _, rcpt := range rcpts {
		key := fmt.Sprintf("%s|%s|%s", inv.RuleID, inv.Event.ID, rcpt)
		if !e.seen.remember(key) {
			skipped++
			continue
		}
		n := &Notification{
			DedupeKey: key,
			Recipient: rcpt,
			Message:   msg,
			RuleID:    inv.RuleID,
			EventID:   inv.Event.ID,
			SentAt:    time.Now(),
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			// Forget the key so a retry can deliver.
			e.seen.forget(key)
			return &action.Result{Type: e.Type(), Success: false, Message: err.Error()}, err
		}
		delivered++
	}

	return &action.Result{
		Type:    e.Type(),
		Success: true,
		Message: fmt.Sprintf("delivered %d notification(s), %d duplicate(s) suppressed", delivered, skipped),
	}, nil
}

func recipients(params map[string]interface{}) ([]string, error) {
	raw, ok := params["recipients"]
	if !ok {
		return nil, fmt.Errorf("send_notification: 'recipients' is required")
	}
	var out []string
	switch v := raw.(type) {
	case []string:
		out = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("send_notification: recipients must be non-empty strings")
			}
			out = append(out, s)
		}
	case string:
		if v != "" {
			out = []string{v}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("send_notification: at least one recipient is required")
	}
	return out, nil
}
