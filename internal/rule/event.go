package rule

import "time"

// Trigger names a domain occurrence a rule may react to.
type Trigger string

const (
	TriggerTaskCreated          Trigger = "task_created"
	TriggerTaskUpdated          Trigger = "task_updated"
	TriggerTaskStatusChanged    Trigger = "task_status_changed"
	TriggerTaskAssigned         Trigger = "task_assigned"
	TriggerDeadlineApproaching  Trigger = "deadline_approaching"
	TriggerProjectCreated       Trigger = "project_created"
	TriggerProjectStatusChanged Trigger = "project_status_changed"
	TriggerBudgetThreshold      Trigger = "budget_threshold"
	TriggerMemberAdded          Trigger = "member_added"
	TriggerCommentAdded         Trigger = "comment_added"
)

var triggers = map[Trigger]struct{}{
	TriggerTaskCreated:          {},
	TriggerTaskUpdated:          {},
	TriggerTaskStatusChanged:    {},
	TriggerTaskAssigned:         {},
	TriggerDeadlineApproaching:  {},
	TriggerProjectCreated:       {},
	TriggerProjectStatusChanged: {},
	TriggerBudgetThreshold:      {},
	TriggerMemberAdded:          {},
	TriggerCommentAdded:         {},
}

// Known reports whether t is a recognized trigger.
func (t Trigger) Known() bool {
	_, ok := triggers[t]
	return ok
}

// Event is the canonical input model for all incoming domain events.
type Event struct {
	ID         string                 `json:"id"`
	Trigger    Trigger                `json:"trigger"`
	EntityType string                 `json:"entity_type"` // "task", "project", …
	EntityID   string                 `json:"entity_id"`
	ProjectID  string                 `json:"project_id,omitempty"`
	ActorID    string                 `json:"actor_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	ReceivedAt time.Time              `json:"-"`
	Payload    map[string]interface{} `json:"payload,omitempty"` // arbitrary event data
	Meta       map[string]string      `json:"meta,omitempty"`    // tenant, region, etc.
}
