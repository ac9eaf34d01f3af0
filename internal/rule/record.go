package rule

import "time"

// Outcome is the terminal result of one dispatch attempt for one rule.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeFailed          Outcome = "failed"
	OutcomeNotMatched      Outcome = "not_matched"
	OutcomeSkippedCooldown Outcome = "skipped_cooldown"
	OutcomeSkippedInactive Outcome = "skipped_inactive"
	OutcomeSkippedDailyCap Outcome = "skipped_daily_cap"
	OutcomeSkippedWindow   Outcome = "skipped_window"
)

// Executed reports whether the outcome counts as an execution: it moved the
// rule's counters and consumes the daily execution budget. Skips and
// non-matches do not.
func (o Outcome) Executed() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// ExecutionRecord is an append-only audit entry for one dispatch attempt of
// one rule. Records are never mutated and are removed only by the retention
// sweeper, regardless of what later happens to the rule.
type ExecutionRecord struct {
	ID         string                 `json:"id"`
	RuleID     string                 `json:"rule_id"`
	EventID    string                 `json:"event_id"`
	Trigger    Trigger                `json:"trigger"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	ProjectID  string                 `json:"project_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"` // event snapshot
	Outcome    Outcome                `json:"outcome"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
	CreatedAt  time.Time              `json:"created_at"`
}
