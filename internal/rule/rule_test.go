package rule

import (
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/condition"
)

func validRule() *Rule {
	return &Rule{
		ID:      "r1",
		Name:    "assign urgent",
		Type:    TypeTaskAutoAssignment,
		Trigger: TriggerTaskCreated,
		Scope:   ScopeGlobal,
		Actions: []ActionSpec{{Type: "assign_task", Params: map[string]interface{}{"assignee_id": "u1"}}},
		Active:  true,
	}
}

func TestRuleValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(r *Rule)
		wantErr bool
	}{
		{"valid global", func(r *Rule) {}, false},
		{"valid project scoped", func(r *Rule) { r.Scope = ScopeProject; r.ProjectID = "p1" }, false},
		{"missing name", func(r *Rule) { r.Name = "" }, true},
		{"unknown type", func(r *Rule) { r.Type = "time_travel" }, true},
		{"unknown trigger", func(r *Rule) { r.Trigger = "task_teleported" }, true},
		{"unknown scope", func(r *Rule) { r.Scope = "team" }, true},
		{"global with project id", func(r *Rule) { r.ProjectID = "p1" }, true},
		{"project scope without project id", func(r *Rule) { r.Scope = ScopeProject }, true},
		{"no actions", func(r *Rule) { r.Actions = nil }, true},
		{"action without type", func(r *Rule) { r.Actions = []ActionSpec{{}} }, true},
		{"negative cooldown", func(r *Rule) { r.CooldownMinutes = -1 }, true},
		{"negative daily cap", func(r *Rule) { r.MaxExecutionsPerDay = -1 }, true},
		{"bad window day", func(r *Rule) { r.Window = Window{Days: []string{"monday"}} }, true},
		{"bad window time", func(r *Rule) { r.Window = Window{Start: "9am", End: "17:00"} }, true},
		{"window start without end", func(r *Rule) { r.Window = Window{Start: "09:00"} }, true},
		{"good window", func(r *Rule) { r.Window = Window{Start: "09:00", End: "17:00", Days: []string{"mon", "fri"}} }, false},
		{
			"malformed condition",
			func(r *Rule) { r.Condition = &condition.Spec{Kind: "cmp", Op: "=="} },
			true,
		},
		{
			"valid condition",
			func(r *Rule) {
				r.Condition = &condition.Spec{Kind: "cmp", Field: "payload.priority", Op: "==", Value: "urgent"}
			},
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRule()
			tc.mutate(r)
			err := r.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tc.wantErr && err != nil && !IsValidation(err) {
				t.Errorf("error is not a ValidationError: %v", err)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	// 2026-08-26 is a Wednesday.
	wedMorning := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)
	wedNight := time.Date(2026, 8, 26, 23, 15, 0, 0, time.UTC)
	satMorning := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		w    Window
		t    time.Time
		want bool
	}{
		{"zero window matches anything", Window{}, wedNight, true},
		{"inside business hours", Window{Start: "09:00", End: "17:00"}, wedMorning, true},
		{"after business hours", Window{Start: "09:00", End: "17:00"}, wedNight, false},
		{"end is exclusive", Window{Start: "09:00", End: "10:30"}, wedMorning, false},
		{"overnight inside", Window{Start: "22:00", End: "06:00"}, wedNight, true},
		{"overnight outside", Window{Start: "22:00", End: "06:00"}, wedMorning, false},
		{"weekday match", Window{Days: []string{"wed"}}, wedMorning, true},
		{"weekday mismatch", Window{Days: []string{"mon", "tue"}}, wedMorning, false},
		{"day and hours both required", Window{Start: "09:00", End: "17:00", Days: []string{"sat"}}, satMorning, true},
		{"right hours wrong day", Window{Start: "09:00", End: "17:00", Days: []string{"sun"}}, satMorning, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.w.Contains(tc.t); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.t, got, tc.want)
			}
		})
	}
}

func TestInCooldown(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	old := now.Add(-2 * time.Hour)

	cases := []struct {
		name string
		r    Rule
		want bool
	}{
		{"no cooldown configured", Rule{CooldownMinutes: 0, LastExecutedAt: &recent}, false},
		{"never executed", Rule{CooldownMinutes: 30}, false},
		{"inside cooldown", Rule{CooldownMinutes: 30, LastExecutedAt: &recent}, true},
		{"cooldown elapsed", Rule{CooldownMinutes: 30, LastExecutedAt: &old}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.r.InCooldown(now); got != tc.want {
				t.Errorf("InCooldown = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAppliesTo(t *testing.T) {
	ev := &Event{ProjectID: "p1"}
	global := &Rule{Scope: ScopeGlobal}
	same := &Rule{Scope: ScopeProject, ProjectID: "p1"}
	other := &Rule{Scope: ScopeProject, ProjectID: "p2"}

	if !global.AppliesTo(ev) {
		t.Error("global rule should apply to any event")
	}
	if !same.AppliesTo(ev) {
		t.Error("project rule should apply to its own project")
	}
	if other.AppliesTo(ev) {
		t.Error("project rule must not apply to another project")
	}
}

func TestOutcomeExecuted(t *testing.T) {
	executed := map[Outcome]bool{
		OutcomeSucceeded:       true,
		OutcomeFailed:          true,
		OutcomeNotMatched:      false,
		OutcomeSkippedCooldown: false,
		OutcomeSkippedInactive: false,
		OutcomeSkippedDailyCap: false,
		OutcomeSkippedWindow:   false,
	}
	for o, want := range executed {
		if got := o.Executed(); got != want {
			t.Errorf("%s.Executed() = %v, want %v", o, got, want)
		}
	}
}

func TestTriggerKnown(t *testing.T) {
	if !TriggerTaskCreated.Known() {
		t.Error("task_created should be known")
	}
	if Trigger("task_exploded").Known() {
		t.Error("unknown trigger reported as known")
	}
}
