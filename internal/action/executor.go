package action

import (
	"context"

	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// Result holds the outcome of executing a single action.
type Result struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Invocation carries everything an executor may need for one run. RuleID,
// Index and the event identify the attempt, which executors use to keep
// re-runs idempotent.
type Invocation struct {
	RuleID string
	Index  int // position in the rule's action list
	Event  *rule.Event
	Params map[string]interface{}
}

// Executor is the interface all action implementations must satisfy.
// Execute must be idempotent for a given (RuleID, Event) pair: dispatch may
// be retried and re-applying an action must leave the same end state.
type Executor interface {
	// Type returns the string key this executor is registered under.
	Type() string
	// Execute runs the action and returns a result.
	Execute(ctx context.Context, inv Invocation) (*Result, error)
	// Validate checks params when a rule is saved.
	Validate(params map[string]interface{}) error
}
