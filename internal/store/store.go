// Package store persists rules and their execution records. Three
// implementations share the Store interface: in-memory (tests, dev),
// SQLite (default single-binary deployment) and Postgres.
package store

import (
	"context"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// ListFilter narrows List results. Zero fields mean "any".
type ListFilter struct {
	Active    *bool
	Type      rule.Type
	Scope     rule.Scope
	ProjectID string
}

// Store is the persistence boundary for the engine and the API.
//
// Listing methods always order by (priority desc, created_at desc); the
// dispatcher's candidate order depends on it. MarkExecuted must apply
// counter updates atomically per rule; concurrent dispatchers never
// read-modify-write the counters.
type Store interface {
	// Create stores a new rule. The (created_by, name) pair must be unique;
	// violations return a ValidationError.
	Create(ctx context.Context, r *rule.Rule) error
	Get(ctx context.Context, id string) (*rule.Rule, error)
	Update(ctx context.Context, r *rule.Rule) error
	// Toggle flips the active flag and returns the updated rule.
	Toggle(ctx context.Context, id string) (*rule.Rule, error)
	// Delete removes the rule. Execution records are retained for audit.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*rule.Rule, error)
	// FindActiveByTrigger returns active rules whose trigger matches and
	// whose scope is global or bound to projectID.
	FindActiveByTrigger(ctx context.Context, tr rule.Trigger, projectID string) ([]*rule.Rule, error)

	// MarkExecuted increments execution and success/failure counters and
	// sets last_executed_at / last_error for a SUCCEEDED or FAILED attempt.
	MarkExecuted(ctx context.Context, id string, at time.Time, outcome rule.Outcome, lastError string) error

	AppendRecord(ctx context.Context, rec *rule.ExecutionRecord) error
	// CountExecutionsSince counts SUCCEEDED/FAILED records for the rule at
	// or after since. Used for the daily execution cap.
	CountExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error)
	// ListRecords returns the rule's most recent records, newest first.
	ListRecords(ctx context.Context, ruleID string, limit int) ([]*rule.ExecutionRecord, error)
	// PruneRecords deletes records created before cutoff and returns how
	// many were removed.
	PruneRecords(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
