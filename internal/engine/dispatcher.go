package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
	"github.com/gyaneshwarpardhi/autorule/internal/condition"
	"github.com/gyaneshwarpardhi/autorule/internal/metrics"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// Attempt is the outcome of dispatching one rule for one event.
type Attempt struct {
	RuleID     string           `json:"rule_id"`
	RuleName   string           `json:"rule_name"`
	Outcome    rule.Outcome     `json:"outcome"`
	Error      string           `json:"error,omitempty"`
	Actions    []*action.Result `json:"actions,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// dispatchRule runs the full attempt lifecycle for one candidate rule:
// selection-stage skips, condition evaluation, then the action list. Every
// attempt is recorded; SUCCEEDED/FAILED also move the rule's counters.
// Errors never escape: a rule's failure must not affect its siblings.
func (e *Engine) dispatchRule(ctx context.Context, r *rule.Rule, ev *rule.Event) *Attempt {
	start := time.Now()
	a := &Attempt{RuleID: r.ID, RuleName: r.Name}

	finish := func(outcome rule.Outcome, errMsg string) *Attempt {
		a.Outcome = outcome
		a.Error = errMsg
		a.DurationMs = time.Since(start).Milliseconds()
		if outcome.Executed() {
			if err := e.store.MarkExecuted(ctx, r.ID, e.now(), outcome, errMsg); err != nil {
				slog.Warn("failed to update rule counters", "rule_id", r.ID, "err", err)
			}
		}
		e.appendRecord(ctx, r, ev, a)
		metrics.RuleAttempts.WithLabelValues(string(outcome)).Inc()
		return a
	}

	// Selection-stage filters.
	now := e.now()
	if r.InCooldown(now) {
		return finish(rule.OutcomeSkippedCooldown, "")
	}
	if !r.Window.IsZero() && !r.Window.Contains(now) {
		return finish(rule.OutcomeSkippedWindow, "")
	}
	if r.MaxExecutionsPerDay > 0 {
		n, err := e.store.CountExecutionsSince(ctx, r.ID, startOfDay(now))
		if err != nil {
			slog.Warn("daily cap count failed, proceeding", "rule_id", r.ID, "err", err)
		} else if n >= r.MaxExecutionsPerDay {
			return finish(rule.OutcomeSkippedDailyCap, "")
		}
	}

	// Evaluation. A condition that fails to compile or evaluate is a
	// configuration error and fails closed.
	matched, err := e.evaluate(r, ev)
	if err != nil {
		cfgErr := &rule.ConfigurationError{RuleID: r.ID, Err: err}
		slog.Error("condition configuration error", "rule_id", r.ID, "rule", r.Name, "err", err)
		metrics.ConfigurationErrors.Inc()
		return finish(rule.OutcomeNotMatched, cfgErr.Error())
	}
	if !matched {
		return finish(rule.OutcomeNotMatched, "")
	}

	// Execution. Rules targeting the same entity serialize here; the lock
	// covers only this attempt's action list.
	unlock := e.locks.lock(entityKey(ev))
	results, actErr := e.runActions(ctx, r, ev)
	unlock()

	a.Actions = results
	if actErr != nil {
		return finish(rule.OutcomeFailed, actErr.Error())
	}
	return finish(rule.OutcomeSucceeded, "")
}

func (e *Engine) evaluate(r *rule.Rule, ev *rule.Event) (bool, error) {
	expr, err := e.programs.compiled(r)
	if err != nil {
		return false, err
	}
	if expr == nil {
		return true, nil
	}
	return condition.Evaluate(expr, &evalContext{ev: ev})
}

// runActions executes the rule's action list in order, stopping at the
// first failure. A partial run is a failure of the whole attempt; there is
// no rollback, executors are idempotent instead.
func (e *Engine) runActions(ctx context.Context, r *rule.Rule, ev *rule.Event) ([]*action.Result, error) {
	var out []*action.Result
	for i, spec := range r.Actions {
		exec, err := e.registry.Get(spec.Type)
		if err != nil {
			metrics.ActionsExecuted.WithLabelValues(spec.Type, "error").Inc()
			out = append(out, &action.Result{Type: spec.Type, Success: false, Message: err.Error()})
			return out, &rule.ActionError{ActionType: spec.Type, Index: i, Err: err}
		}

		res, err := exec.Execute(ctx, action.Invocation{
			RuleID: r.ID,
			Index:  i,
			Event:  ev,
			Params: spec.Params,
		})
		if res == nil {
			res = &action.Result{Type: spec.Type, Success: err == nil}
			if err != nil {
				res.Message = err.Error()
			}
		}
		out = append(out, res)

		if err == nil && !res.Success {
			err = errors.New(res.Message)
		}
		if err != nil {
			metrics.ActionsExecuted.WithLabelValues(spec.Type, "error").Inc()
			return out, &rule.ActionError{ActionType: spec.Type, Index: i, Err: err}
		}
		metrics.ActionsExecuted.WithLabelValues(spec.Type, "success").Inc()
	}
	return out, nil
}

func (e *Engine) appendRecord(ctx context.Context, r *rule.Rule, ev *rule.Event, a *Attempt) {
	rec := &rule.ExecutionRecord{
		RuleID:     r.ID,
		EventID:    ev.ID,
		Trigger:    ev.Trigger,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		ProjectID:  ev.ProjectID,
		Payload:    ev.Payload,
		Outcome:    a.Outcome,
		Error:      a.Error,
		DurationMs: a.DurationMs,
		CreatedAt:  e.now(),
	}
	if err := e.store.AppendRecord(ctx, rec); err != nil {
		slog.Warn("failed to append execution record", "rule_id", r.ID, "err", err)
	}
}

// DryRunResult reports whether a rule would run for an event, without
// executing actions, recording anything, or moving counters.
type DryRunResult struct {
	RuleID     string `json:"rule_id"`
	RuleName   string `json:"rule_name"`
	WouldMatch bool   `json:"would_match"`
	Reason     string `json:"reason,omitempty"` // why not, when WouldMatch is false
}

// DryRun evaluates selection filters and the condition for one rule
// against an event. Used by the rule-authoring test endpoint.
func (e *Engine) DryRun(ctx context.Context, ruleID string, ev *rule.Event) (*DryRunResult, error) {
	r, err := e.store.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	res := &DryRunResult{RuleID: r.ID, RuleName: r.Name}
	now := e.now()

	switch {
	case !r.Active:
		res.Reason = "rule is inactive"
	case r.Trigger != ev.Trigger:
		res.Reason = "trigger does not match"
	case !r.AppliesTo(ev):
		res.Reason = "event is outside the rule's scope"
	case r.InCooldown(now):
		res.Reason = "rule is in cooldown"
	case !r.Window.IsZero() && !r.Window.Contains(now):
		res.Reason = "outside execution window"
	default:
		if r.MaxExecutionsPerDay > 0 {
			n, err := e.store.CountExecutionsSince(ctx, r.ID, startOfDay(now))
			if err == nil && n >= r.MaxExecutionsPerDay {
				res.Reason = "daily execution cap reached"
				return res, nil
			}
		}
		matched, err := e.evaluate(r, ev)
		if err != nil {
			res.Reason = (&rule.ConfigurationError{RuleID: r.ID, Err: err}).Error()
			return res, nil
		}
		if !matched {
			res.Reason = "condition did not match"
			return res, nil
		}
		res.WouldMatch = true
	}
	return res, nil
}

func entityKey(ev *rule.Event) string {
	if ev.EntityID == "" {
		return ""
	}
	return ev.EntityType + "|" + ev.EntityID
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
