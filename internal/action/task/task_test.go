package task

import (
	"context"
	"testing"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

func invocation(taskID string, params map[string]interface{}) action.Invocation {
	return action.Invocation{
		RuleID: "r1",
		Event:  &rule.Event{ID: "ev1", EntityType: "task", EntityID: taskID},
		Params: params,
	}
}

func TestAssignAction(t *testing.T) {
	ctx := context.Background()
	dir := NewInMemoryDirectory()
	a := NewAssign(dir)

	res, err := a.Execute(ctx, invocation("t1", map[string]interface{}{"assignee_id": "alice"}))
	if err != nil || !res.Success {
		t.Fatalf("first assign: res=%+v err=%v", res, err)
	}
	got, _ := dir.Assignee(ctx, "t1")
	if got != "alice" {
		t.Fatalf("assignee = %q, want alice", got)
	}

	// Re-assigning to the same user must succeed without another write.
	res, err = a.Execute(ctx, invocation("t1", map[string]interface{}{"assignee_id": "alice"}))
	if err != nil || !res.Success {
		t.Fatalf("idempotent assign: res=%+v err=%v", res, err)
	}

	// Missing entity is a hard failure.
	res, err = a.Execute(ctx, invocation("", map[string]interface{}{"assignee_id": "alice"}))
	if err == nil || res.Success {
		t.Fatalf("expected failure for empty task id, got res=%+v err=%v", res, err)
	}
}

func TestAssignValidate(t *testing.T) {
	a := NewAssign(NewInMemoryDirectory())
	if err := a.Validate(map[string]interface{}{"assignee_id": "u1"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := a.Validate(map[string]interface{}{}); err == nil {
		t.Error("missing assignee_id accepted")
	}
	if err := a.Validate(map[string]interface{}{"assignee_id": 42}); err == nil {
		t.Error("non-string assignee_id accepted")
	}
}

func TestStatusAction(t *testing.T) {
	ctx := context.Background()
	dir := NewInMemoryDirectory()
	a := NewStatus(dir)

	res, err := a.Execute(ctx, invocation("t1", map[string]interface{}{"status": "in_review"}))
	if err != nil || !res.Success {
		t.Fatalf("first update: res=%+v err=%v", res, err)
	}
	got, _ := dir.Status(ctx, "t1")
	if got != "in_review" {
		t.Fatalf("status = %q, want in_review", got)
	}

	res, err = a.Execute(ctx, invocation("t1", map[string]interface{}{"status": "in_review"}))
	if err != nil || !res.Success {
		t.Fatalf("idempotent update: res=%+v err=%v", res, err)
	}
}

func TestStatusValidate(t *testing.T) {
	a := NewStatus(NewInMemoryDirectory())
	if err := a.Validate(map[string]interface{}{"status": "done"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := a.Validate(map[string]interface{}{}); err == nil {
		t.Error("missing status accepted")
	}
}
