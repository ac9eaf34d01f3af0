package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/autorule/internal/condition"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "rules.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func newTestRule(name string, priority int) *rule.Rule {
	return &rule.Rule{
		Name:      name,
		CreatedBy: "tester",
		Type:      rule.TypeTaskAutoAssignment,
		Trigger:   rule.TriggerTaskCreated,
		Scope:     rule.ScopeGlobal,
		Priority:  priority,
		Active:    true,
		Actions:   []rule.ActionSpec{{Type: "assign_task", Params: map[string]interface{}{"assignee_id": "u1"}}},
	}
}

func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		st := open(t)
		r := newTestRule("r1", 10)
		r.Condition = &condition.Spec{Kind: "cmp", Field: "payload.priority", Op: "==", Value: "urgent"}
		r.CooldownMinutes = 15
		r.Window = rule.Window{Start: "09:00", End: "17:00", Days: []string{"mon"}}
		require.NoError(t, st.Create(ctx, r))
		require.NotEmpty(t, r.ID)

		got, err := st.Get(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, r.Name, got.Name)
		require.Equal(t, r.Trigger, got.Trigger)
		require.Equal(t, r.Actions, got.Actions)
		require.NotNil(t, got.Condition)
		require.Equal(t, "payload.priority", got.Condition.Field)
		require.Equal(t, rule.Window{Start: "09:00", End: "17:00", Days: []string{"mon"}}, got.Window)
		require.Equal(t, 15, got.CooldownMinutes)
		require.True(t, got.Active)
		require.Zero(t, got.ExecutionCount)
		require.False(t, got.CreatedAt.IsZero())
	})

	t.Run("get unknown", func(t *testing.T) {
		st := open(t)
		_, err := st.Get(ctx, "nope")
		require.ErrorIs(t, err, rule.ErrNotFound)
	})

	t.Run("duplicate name per creator", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Create(ctx, newTestRule("dup", 1)))
		err := st.Create(ctx, newTestRule("dup", 2))
		require.Error(t, err)
		require.True(t, rule.IsValidation(err))

		other := newTestRule("dup", 3)
		other.CreatedBy = "someone-else"
		require.NoError(t, st.Create(ctx, other))
	})

	t.Run("update preserves counters", func(t *testing.T) {
		st := open(t)
		r := newTestRule("upd", 10)
		require.NoError(t, st.Create(ctx, r))
		require.NoError(t, st.MarkExecuted(ctx, r.ID, time.Now(), rule.OutcomeSucceeded, ""))

		r2 := newTestRule("upd", 99)
		r2.ID = r.ID
		require.NoError(t, st.Update(ctx, r2))

		got, err := st.Get(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, 99, got.Priority)
		require.Equal(t, 1, got.ExecutionCount)
		require.Equal(t, 1, got.SuccessCount)
		require.NotNil(t, got.LastExecutedAt)
	})

	t.Run("update unknown", func(t *testing.T) {
		st := open(t)
		r := newTestRule("ghost", 1)
		r.ID = "missing"
		require.ErrorIs(t, st.Update(ctx, r), rule.ErrNotFound)
	})

	t.Run("toggle", func(t *testing.T) {
		st := open(t)
		r := newTestRule("tog", 1)
		require.NoError(t, st.Create(ctx, r))

		got, err := st.Toggle(ctx, r.ID)
		require.NoError(t, err)
		require.False(t, got.Active)

		got, err = st.Toggle(ctx, r.ID)
		require.NoError(t, err)
		require.True(t, got.Active)

		_, err = st.Toggle(ctx, "missing")
		require.ErrorIs(t, err, rule.ErrNotFound)
	})

	t.Run("delete retains records", func(t *testing.T) {
		st := open(t)
		r := newTestRule("del", 1)
		require.NoError(t, st.Create(ctx, r))
		require.NoError(t, st.AppendRecord(ctx, &rule.ExecutionRecord{
			RuleID: r.ID, EventID: "ev1", Trigger: rule.TriggerTaskCreated,
			Outcome: rule.OutcomeSucceeded, CreatedAt: time.Now(),
		}))

		require.NoError(t, st.Delete(ctx, r.ID))
		_, err := st.Get(ctx, r.ID)
		require.ErrorIs(t, err, rule.ErrNotFound)

		recs, err := st.ListRecords(ctx, r.ID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)

		require.ErrorIs(t, st.Delete(ctx, r.ID), rule.ErrNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		st := open(t)
		a := newTestRule("a", 10)
		b := newTestRule("b", 20)
		b.Active = false
		c := newTestRule("c", 30)
		c.Type = rule.TypeBudgetAlert
		c.Trigger = rule.TriggerBudgetThreshold
		c.Scope = rule.ScopeProject
		c.ProjectID = "p1"
		for _, r := range []*rule.Rule{a, b, c} {
			require.NoError(t, st.Create(ctx, r))
		}

		all, err := st.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)

		active := true
		got, err := st.List(ctx, ListFilter{Active: &active})
		require.NoError(t, err)
		require.Len(t, got, 2)

		got, err = st.List(ctx, ListFilter{Type: rule.TypeBudgetAlert})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "c", got[0].Name)

		got, err = st.List(ctx, ListFilter{Scope: rule.ScopeProject, ProjectID: "p1"})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("priority ordering", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Create(ctx, newTestRule("low", 10)))
		require.NoError(t, st.Create(ctx, newTestRule("high", 90)))
		require.NoError(t, st.Create(ctx, newTestRule("mid", 50)))

		got, err := st.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, []string{"high", "mid", "low"}, []string{got[0].Name, got[1].Name, got[2].Name})
	})

	t.Run("find active by trigger", func(t *testing.T) {
		st := open(t)
		match := newTestRule("match", 50)
		inactive := newTestRule("inactive", 60)
		inactive.Active = false
		wrongTrigger := newTestRule("wrong-trigger", 70)
		wrongTrigger.Trigger = rule.TriggerCommentAdded
		scoped := newTestRule("scoped", 80)
		scoped.Scope = rule.ScopeProject
		scoped.ProjectID = "p1"
		otherProject := newTestRule("other-project", 90)
		otherProject.Scope = rule.ScopeProject
		otherProject.ProjectID = "p2"
		for _, r := range []*rule.Rule{match, inactive, wrongTrigger, scoped, otherProject} {
			require.NoError(t, st.Create(ctx, r))
		}

		got, err := st.FindActiveByTrigger(ctx, rule.TriggerTaskCreated, "p1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "scoped", got[0].Name) // higher priority first
		require.Equal(t, "match", got[1].Name)
	})

	t.Run("mark executed", func(t *testing.T) {
		st := open(t)
		r := newTestRule("mark", 1)
		require.NoError(t, st.Create(ctx, r))

		at := time.Now().UTC()
		require.NoError(t, st.MarkExecuted(ctx, r.ID, at, rule.OutcomeSucceeded, ""))
		require.NoError(t, st.MarkExecuted(ctx, r.ID, at.Add(time.Minute), rule.OutcomeFailed, "boom"))

		got, err := st.Get(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, 2, got.ExecutionCount)
		require.Equal(t, 1, got.SuccessCount)
		require.Equal(t, 1, got.FailureCount)
		require.Equal(t, "boom", got.LastError)
		require.NotNil(t, got.LastExecutedAt)
		require.WithinDuration(t, at.Add(time.Minute), *got.LastExecutedAt, time.Second)

		require.ErrorIs(t, st.MarkExecuted(ctx, "missing", at, rule.OutcomeSucceeded, ""), rule.ErrNotFound)
	})

	t.Run("records count and list", func(t *testing.T) {
		st := open(t)
		r := newTestRule("rec", 1)
		require.NoError(t, st.Create(ctx, r))

		base := time.Now().UTC().Add(-time.Hour)
		outcomes := []rule.Outcome{
			rule.OutcomeSucceeded, rule.OutcomeFailed,
			rule.OutcomeNotMatched, rule.OutcomeSkippedCooldown,
		}
		for i, o := range outcomes {
			require.NoError(t, st.AppendRecord(ctx, &rule.ExecutionRecord{
				RuleID:    r.ID,
				EventID:   "ev",
				Trigger:   rule.TriggerTaskCreated,
				Outcome:   o,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}

		// Only succeeded/failed count toward the daily cap.
		n, err := st.CountExecutionsSince(ctx, r.ID, base.Add(-time.Minute))
		require.NoError(t, err)
		require.Equal(t, 2, n)

		n, err = st.CountExecutionsSince(ctx, r.ID, base.Add(30*time.Second))
		require.NoError(t, err)
		require.Equal(t, 1, n) // succeeded record is before the cutoff

		recs, err := st.ListRecords(ctx, r.ID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 4)
		require.Equal(t, rule.OutcomeSkippedCooldown, recs[0].Outcome) // newest first

		recs, err = st.ListRecords(ctx, r.ID, 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
	})

	t.Run("prune records", func(t *testing.T) {
		st := open(t)
		r := newTestRule("prune", 1)
		require.NoError(t, st.Create(ctx, r))

		now := time.Now().UTC()
		for _, age := range []time.Duration{-48 * time.Hour, -36 * time.Hour, -time.Hour} {
			require.NoError(t, st.AppendRecord(ctx, &rule.ExecutionRecord{
				RuleID: r.ID, EventID: "ev", Trigger: rule.TriggerTaskCreated,
				Outcome: rule.OutcomeSucceeded, CreatedAt: now.Add(age),
			}))
		}

		pruned, err := st.PruneRecords(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 2, pruned)

		recs, err := st.ListRecords(ctx, r.ID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
	})
}
