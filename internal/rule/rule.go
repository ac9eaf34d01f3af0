package rule

import (
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/condition"
)

// Type classifies what a rule automates. The set is closed; unknown types
// are rejected at validation time.
type Type string

const (
	TypeTaskAutoAssignment  Type = "task_auto_assignment"
	TypeDeadlineNotification Type = "deadline_notification"
	TypeStatusChangeTrigger Type = "status_change_trigger"
	TypeBudgetAlert         Type = "budget_alert"
	TypeResourceAllocation  Type = "resource_allocation"
	TypeProgressUpdate      Type = "progress_update"
	TypeRiskAssessment      Type = "risk_assessment"
	TypeWorkloadBalancing   Type = "workload_balancing"
	TypeQualityCheck        Type = "quality_check"
	TypeCommunicationTrigger Type = "communication_trigger"
)

var types = map[Type]struct{}{
	TypeTaskAutoAssignment: {}, TypeDeadlineNotification: {},
	TypeStatusChangeTrigger: {}, TypeBudgetAlert: {},
	TypeResourceAllocation: {}, TypeProgressUpdate: {},
	TypeRiskAssessment: {}, TypeWorkloadBalancing: {},
	TypeQualityCheck: {}, TypeCommunicationTrigger: {},
}

// Scope determines whether a rule applies to every project or to one.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// ActionSpec names an action type and carries its parameters. Parameter
// shapes are owned by the registered executor for the type.
type ActionSpec struct {
	Type   string                 `json:"type" yaml:"type"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// Window restricts execution to a time-of-day range and set of weekdays.
// The zero value places no restriction. Start/End use "HH:MM"; a Start
// later than End spans midnight. Days are lowercase three-letter names.
type Window struct {
	Start string   `json:"start,omitempty" yaml:"start,omitempty"`
	End   string   `json:"end,omitempty" yaml:"end,omitempty"`
	Days  []string `json:"days,omitempty" yaml:"days,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// IsZero reports whether the window places no restriction.
func (w Window) IsZero() bool {
	return w.Start == "" && w.End == "" && len(w.Days) == 0
}

func (w Window) validate() error {
	for _, d := range w.Days {
		if _, ok := weekdays[d]; !ok {
			return Invalidf("window: unknown day %q", d)
		}
	}
	for _, v := range []string{w.Start, w.End} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return Invalidf("window: bad time %q (want HH:MM)", v)
		}
	}
	if (w.Start == "") != (w.End == "") {
		return Invalidf("window: start and end must be set together")
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if len(w.Days) > 0 {
		ok := false
		for _, d := range w.Days {
			if wd, known := weekdays[d]; known && wd == t.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if w.Start == "" || w.End == "" {
		return true
	}
	start, _ := time.Parse("15:04", w.Start)
	end, _ := time.Parse("15:04", w.End)
	cur := t.Hour()*60 + t.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()
	if s <= e {
		return cur >= s && cur < e
	}
	// Overnight window, e.g. 22:00–06:00.
	return cur >= s || cur < e
}

// Rule is a stored trigger/condition/action definition evaluated against
// domain events.
type Rule struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
	Type      Type   `json:"type"`

	Trigger   Trigger         `json:"trigger"`
	Condition *condition.Spec `json:"condition,omitempty"` // nil matches every event
	Actions   []ActionSpec    `json:"actions"`

	Scope     Scope  `json:"scope"`
	ProjectID string `json:"project_id,omitempty"`

	Priority            int    `json:"priority"` // higher dispatches first
	Active              bool   `json:"active"`
	CooldownMinutes     int    `json:"cooldown_minutes,omitempty"`
	MaxExecutionsPerDay int    `json:"max_executions_per_day,omitempty"` // 0 = unlimited
	Window              Window `json:"window,omitempty"`

	ExecutionCount int        `json:"execution_count"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural invariants. Action parameter validation is the
// registry's job and happens separately at save time.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return Invalidf("name is required")
	}
	if _, ok := types[r.Type]; !ok {
		return Invalidf("unknown rule type %q", r.Type)
	}
	if !r.Trigger.Known() {
		return Invalidf("unknown trigger %q", r.Trigger)
	}
	switch r.Scope {
	case ScopeGlobal:
		if r.ProjectID != "" {
			return Invalidf("global rules must not set project_id")
		}
	case ScopeProject:
		if r.ProjectID == "" {
			return Invalidf("project-scoped rules require project_id")
		}
	default:
		return Invalidf("unknown scope %q", r.Scope)
	}
	if len(r.Actions) == 0 {
		return Invalidf("at least one action is required")
	}
	for i, a := range r.Actions {
		if a.Type == "" {
			return Invalidf("actions[%d]: type is required", i)
		}
	}
	if r.CooldownMinutes < 0 {
		return Invalidf("cooldown_minutes must not be negative")
	}
	if r.MaxExecutionsPerDay < 0 {
		return Invalidf("max_executions_per_day must not be negative")
	}
	if err := r.Window.validate(); err != nil {
		return err
	}
	if r.Condition != nil {
		if _, err := r.Condition.Compile(); err != nil {
			return Invalidf("condition: %v", err)
		}
	}
	return nil
}

// InCooldown reports whether the rule's cooldown has not yet elapsed at now.
func (r *Rule) InCooldown(now time.Time) bool {
	if r.CooldownMinutes <= 0 || r.LastExecutedAt == nil {
		return false
	}
	return now.Sub(*r.LastExecutedAt) < time.Duration(r.CooldownMinutes)*time.Minute
}

// AppliesTo reports whether the rule's scope covers the event's project.
func (r *Rule) AppliesTo(ev *Event) bool {
	if r.Scope == ScopeGlobal {
		return true
	}
	return r.ProjectID != "" && r.ProjectID == ev.ProjectID
}

func (r *Rule) String() string {
	return fmt.Sprintf("rule %s (%s, prio %d)", r.ID, r.Name, r.Priority)
}
