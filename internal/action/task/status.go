package task

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
)

// StatusAction handles "update_status". Setting a status the task already
// has is a no-op success.
type StatusAction struct {
	dir Directory
}

func NewStatus(dir Directory) *StatusAction { return &StatusAction{dir: dir} }

func (a *StatusAction) Type() string { return "update_status" }

func (a *StatusAction) Validate(params map[string]interface{}) error {
	s, _ := params["status"].(string)
	if s == "" {
		return fmt.Errorf("update_status: 'status' is required")
	}
	return nil
}

func (a *StatusAction) Execute(ctx context.Context, inv action.Invocation) (*action.Result, error) {
	target, _ := inv.Params["status"].(string)
	taskID := inv.Event.EntityID
	if taskID == "" {
		err := fmt.Errorf("update_status: event carries no entity id")
		return &action.Result{Type: a.Type(), Success: false, Message: err.Error()}, err
	}

	current, err := a.dir.Status(ctx, taskID)
	if err != nil {
		return &action.Result{Type: a.Type(), Success: false, Message: err.Error()}, err
	}
	if current == target {
		return &action.Result{
			Type:    a.Type(),
			Success: true,
			Message: fmt.Sprintf("task %s already in status %q", taskID, target),
		}, nil
	}

	if err := a.dir.SetStatus(ctx, taskID, target); err != nil {
		return &action.Result{Type: a.Type(), Success: false, Message: err.Error()}, err
	}
	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("task %s moved to status %q", taskID, target),
	}, nil
}
