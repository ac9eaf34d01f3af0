package engine

import (
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/condition"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// programCache holds compiled condition trees keyed by rule ID, invalidated
// by the rule's UpdatedAt. Compilation matters for "cel" conditions; native
// predicate trees are cheap but cached alongside for uniformity.
type programCache struct {
	mu       sync.RWMutex
	programs map[string]cachedProgram
}

type cachedProgram struct {
	updatedAt time.Time
	expr      condition.Expr
}

func newProgramCache() *programCache {
	return &programCache{programs: make(map[string]cachedProgram)}
}

// compiled returns the rule's evaluable condition, compiling on first use
// or after an update. A nil return with nil error means the rule has no
// condition and matches every event.
func (c *programCache) compiled(r *rule.Rule) (condition.Expr, error) {
	if r.Condition == nil {
		return nil, nil
	}
	c.mu.RLock()
	p, ok := c.programs[r.ID]
	c.mu.RUnlock()
	if ok && p.updatedAt.Equal(r.UpdatedAt) {
		return p.expr, nil
	}

	expr, err := r.Condition.Compile()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.programs[r.ID] = cachedProgram{updatedAt: r.UpdatedAt, expr: expr}
	c.mu.Unlock()
	return expr, nil
}

// forget drops a rule's cached program (after delete).
func (c *programCache) forget(ruleID string) {
	c.mu.Lock()
	delete(c.programs, ruleID)
	c.mu.Unlock()
}
