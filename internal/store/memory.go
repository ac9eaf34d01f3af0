package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// Memory is an in-process Store. Rules are deep-copied on the way in and
// out so callers can never race the store's own state.
type Memory struct {
	mu      sync.RWMutex
	rules   map[string]*rule.Rule
	names   map[string]string // created_by + "\x00" + name → rule id
	records []*rule.ExecutionRecord
}

func NewMemory() *Memory {
	return &Memory{
		rules: make(map[string]*rule.Rule),
		names: make(map[string]string),
	}
}

func nameKey(createdBy, name string) string { return createdBy + "\x00" + name }

func cloneRule(r *rule.Rule) *rule.Rule {
	cp := *r
	if r.LastExecutedAt != nil {
		t := *r.LastExecutedAt
		cp.LastExecutedAt = &t
	}
	cp.Actions = append([]rule.ActionSpec(nil), r.Actions...)
	if r.Condition != nil {
		c := *r.Condition
		cp.Condition = &c
	}
	cp.Window.Days = append([]string(nil), r.Window.Days...)
	return &cp
}

func (m *Memory) Create(_ context.Context, r *rule.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	key := nameKey(r.CreatedBy, r.Name)
	if _, exists := m.names[key]; exists {
		return rule.Invalidf("rule name %q already exists for creator %q", r.Name, r.CreatedBy)
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.rules[r.ID] = cloneRule(r)
	m.names[key] = r.ID
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*rule.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, rule.ErrNotFound
	}
	return cloneRule(r), nil
}

func (m *Memory) Update(_ context.Context, r *rule.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[r.ID]
	if !ok {
		return rule.ErrNotFound
	}
	if existing.Name != r.Name || existing.CreatedBy != r.CreatedBy {
		newKey := nameKey(r.CreatedBy, r.Name)
		if other, exists := m.names[newKey]; exists && other != r.ID {
			return rule.Invalidf("rule name %q already exists for creator %q", r.Name, r.CreatedBy)
		}
		delete(m.names, nameKey(existing.CreatedBy, existing.Name))
		m.names[newKey] = r.ID
	}
	// Counters and creation metadata are store-owned.
	r.CreatedAt = existing.CreatedAt
	r.ExecutionCount = existing.ExecutionCount
	r.SuccessCount = existing.SuccessCount
	r.FailureCount = existing.FailureCount
	r.LastExecutedAt = existing.LastExecutedAt
	r.LastError = existing.LastError
	r.UpdatedAt = time.Now()
	m.rules[r.ID] = cloneRule(r)
	return nil
}

func (m *Memory) Toggle(_ context.Context, id string) (*rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, rule.ErrNotFound
	}
	r.Active = !r.Active
	r.UpdatedAt = time.Now()
	return cloneRule(r), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.ErrNotFound
	}
	delete(m.names, nameKey(r.CreatedBy, r.Name))
	delete(m.rules, id)
	return nil
}

func (m *Memory) List(_ context.Context, f ListFilter) ([]*rule.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*rule.Rule
	for _, r := range m.rules {
		if f.Active != nil && r.Active != *f.Active {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.Scope != "" && r.Scope != f.Scope {
			continue
		}
		if f.ProjectID != "" && r.ProjectID != f.ProjectID {
			continue
		}
		out = append(out, cloneRule(r))
	}
	sortRules(out)
	return out, nil
}

func (m *Memory) FindActiveByTrigger(_ context.Context, tr rule.Trigger, projectID string) ([]*rule.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*rule.Rule
	for _, r := range m.rules {
		if !r.Active || r.Trigger != tr {
			continue
		}
		if r.Scope == rule.ScopeProject && r.ProjectID != projectID {
			continue
		}
		out = append(out, cloneRule(r))
	}
	sortRules(out)
	return out, nil
}

// sortRules orders by priority desc, then created_at desc. The dispatcher
// relies on this order.
func sortRules(rs []*rule.Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority > rs[j].Priority
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}

func (m *Memory) MarkExecuted(_ context.Context, id string, at time.Time, outcome rule.Outcome, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.ErrNotFound
	}
	r.ExecutionCount++
	switch outcome {
	case rule.OutcomeSucceeded:
		r.SuccessCount++
	case rule.OutcomeFailed:
		r.FailureCount++
	}
	t := at
	r.LastExecutedAt = &t
	r.LastError = lastError
	return nil
}

func (m *Memory) AppendRecord(_ context.Context, rec *rule.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *Memory) CountExecutionsSince(_ context.Context, ruleID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if rec.RuleID == ruleID && rec.Outcome.Executed() && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListRecords(_ context.Context, ruleID string, limit int) ([]*rule.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*rule.ExecutionRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].RuleID != ruleID {
			continue
		}
		cp := *m.records[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PruneRecords(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var pruned int64
	for _, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return pruned, nil
}

func (m *Memory) Close() error { return nil }
