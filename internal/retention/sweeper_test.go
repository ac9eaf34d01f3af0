package retention

import (
	"context"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/rule"
	"github.com/gyaneshwarpardhi/autorule/internal/store"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	now := time.Now()
	for _, age := range []time.Duration{-72 * time.Hour, -48 * time.Hour, -time.Hour} {
		if err := st.AppendRecord(ctx, &rule.ExecutionRecord{
			RuleID:    "r1",
			EventID:   "ev",
			Trigger:   rule.TriggerTaskCreated,
			Outcome:   rule.OutcomeSucceeded,
			CreatedAt: now.Add(age),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	s := NewSweeper(st, 24*time.Hour, time.Hour)
	s.sweep(ctx)

	recs, err := st.ListRecords(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("kept %d records, want 1", len(recs))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := store.NewMemory()
	s := NewSweeper(st, time.Hour, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
