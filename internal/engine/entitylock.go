package engine

import (
	"hash/fnv"
	"sync"
)

// entityLocks serializes action execution for rules that target the same
// entity, so two matched rules cannot interleave side effects on one task.
// Locks are striped: unrelated entities may share a stripe, which trades a
// rare false serialization for a bounded lock table.
type entityLocks struct {
	stripes [256]sync.Mutex
}

// lock acquires the stripe for key and returns its unlock func. An empty
// key (event without an entity) is never serialized.
func (l *entityLocks) lock(key string) func() {
	if key == "" {
		return func() {}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%256]
	m.Lock()
	return m.Unlock
}
