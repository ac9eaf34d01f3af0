package task

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
)

// AssignAction handles "assign_task": it sets the event's task assignee.
// Re-assigning to the current assignee is a no-op success, which is what
// keeps retried dispatches idempotent.
type AssignAction struct {
	dir Directory
}

func NewAssign(dir Directory) *AssignAction { return &AssignAction{dir: dir} }

func (a *AssignAction) Type() string { return "assign_task" }

func (a *AssignAction) Validate(params map[string]interface{}) error {
	id, _ := params["assignee_id"].(string)
	if id == "" {
		return fmt.Errorf("assign_task: 'assignee_id' is required")
	}
	return nil
}

func (a *AssignAction) Execute(ctx context.Context, inv action.Invocation) (*action.Result, error) {
	assignee, _ := inv.Params["assignee_id"].(string)
	taskID := inv.Event.EntityID
	if taskID == "" {
		err := fmt.Errorf("assign_task: event carries no entity id")
		return &action.Result{Type: a.Type(), Success: false, Message: err.Error()}, err
	}

	current, err := a.dir.Assignee(ctx, taskID)
	if err != nil {
		return &action.Result{Type: a.Type(), Success: false, Message: err.Error()}, err
	}
	if current == assignee {
		return &action.Result{
			Type:    a.Type(),
			Success: true,
			Message: fmt.Sprintf("task %s already assigned to %s", taskID, assignee),
		}, nil
	}

	if err := a.dir.Assign(ctx, taskID, assignee); err != nil {
		return &action.Result{Type: a.Type(), Success: false, Message: err.Error()}, err
	}
	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("assigned task %s to %s", taskID, assignee),
	}, nil
}
