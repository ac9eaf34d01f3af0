package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
	"github.com/gyaneshwarpardhi/autorule/internal/config"
	"github.com/gyaneshwarpardhi/autorule/internal/metrics"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
	"github.com/gyaneshwarpardhi/autorule/internal/store"
)

// ErrQueueFull is returned by ProcessSync when the event queue is at
// capacity. The HTTP layer maps it to 429 so callers can back off.
var ErrQueueFull = errors.New("event queue full")

// DispatchResult is the outcome of dispatching a single event against all
// candidate rules.
type DispatchResult struct {
	EventID    string     `json:"event_id"`
	DurationMs int64      `json:"duration_ms"`
	Attempts   []*Attempt `json:"attempts"`
	Error      string     `json:"error,omitempty"`
}

// Engine matches incoming events against stored rules and executes their
// actions. It may be driven concurrently from several event sources; all
// shared state lives in the store (atomic counter updates) or behind the
// engine's own locks.
type Engine struct {
	store     store.Store
	registry  *action.Registry
	eventPool *workerPool[*eventWork, *DispatchResult]
	conf      *config.EngineConf
	locks     *entityLocks
	programs  *programCache
	now       func() time.Time
}

type eventWork struct {
	ev      *rule.Event
	resultC chan *DispatchResult
}

// New creates an Engine using conf and starts the event worker pool.
func New(ctx context.Context, st store.Store, reg *action.Registry, conf config.EngineConf) *Engine {
	e := &Engine{
		store:    st,
		registry: reg,
		conf:     &conf,
		locks:    &entityLocks{},
		programs: newProgramCache(),
		now:      time.Now,
	}

	e.eventPool = newWorkerPool[*eventWork, *DispatchResult](
		ctx,
		conf.EventWorkers,
		conf.QueueDepth,
		func(ctx context.Context, w *eventWork) (*DispatchResult, error) {
			res := e.processEvent(ctx, w.ev)
			if w.resultC != nil {
				w.resultC <- res
			}
			return res, nil
		},
	)

	return e
}

// ProcessSync dispatches an event synchronously and returns the result.
// Returns an error if the queue is full or the configured timeout elapses.
func (e *Engine) ProcessSync(ctx context.Context, ev *rule.Event) (*DispatchResult, error) {
	resultC := make(chan *DispatchResult, 1)
	w := &eventWork{ev: ev, resultC: resultC}

	timeout := time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
	if !e.eventPool.Submit(w) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.conf.QueueDepth)
	}
	metrics.EventsEnqueued.Inc()
	metrics.QueueUtilization.Set(e.QueueUtilization())

	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("event dispatch timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues an event for background dispatch. Returns false if
// the queue is full.
func (e *Engine) ProcessAsync(ev *rule.Event) bool {
	w := &eventWork{ev: ev}
	if !e.eventPool.Submit(w) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsEnqueued.Inc()
	metrics.QueueUtilization.Set(e.QueueUtilization())
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.eventPool.QueueCap() == 0 {
		return 0
	}
	return float64(e.eventPool.QueueLen()) / float64(e.eventPool.QueueCap())
}

// ForgetRule drops any compiled condition for the rule. Call after a rule
// is deleted; updates invalidate themselves via UpdatedAt.
func (e *Engine) ForgetRule(ruleID string) {
	e.programs.forget(ruleID)
}

// processEvent selects candidate rules for the event and dispatches them.
// The active flag is honored at selection time only: a rule disabled while
// its attempt is in flight finishes normally and simply stops being
// selected for later events.
func (e *Engine) processEvent(ctx context.Context, ev *rule.Event) *DispatchResult {
	start := time.Now()
	result := &DispatchResult{EventID: ev.ID}

	candidates, err := e.store.FindActiveByTrigger(ctx, ev.Trigger, ev.ProjectID)
	if err != nil {
		slog.Error("candidate selection failed", "event_id", ev.ID, "trigger", ev.Trigger, "err", err)
		result.Error = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	// Candidates start in priority order but run concurrently up to the
	// rule worker bound; priority governs selection, not serialization.
	attempts := make([]*Attempt, len(candidates))
	sem := make(chan struct{}, e.conf.RuleWorkers)
	var wg sync.WaitGroup
	for i, r := range candidates {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, r *rule.Rule) {
			defer wg.Done()
			defer func() { <-sem }()
			attempts[i] = e.dispatchRule(ctx, r, ev)
		}(i, r)
	}
	wg.Wait()

	result.Attempts = attempts
	result.DurationMs = time.Since(start).Milliseconds()
	metrics.EventsProcessed.Inc()
	metrics.DispatchDuration.Observe(float64(result.DurationMs))
	return result
}

// Shutdown drains the event pool gracefully.
func (e *Engine) Shutdown() {
	e.eventPool.Drain()
}
