// Package task implements the task-mutating actions. The engine only calls
// executors by type name; the actual task system sits behind Directory.
package task

import (
	"context"
	"fmt"
	"sync"
)

// Directory is the boundary to the task service. Implementations must
// tolerate repeated identical writes.
type Directory interface {
	Assignee(ctx context.Context, taskID string) (string, error)
	Assign(ctx context.Context, taskID, userID string) error
	Status(ctx context.Context, taskID string) (string, error)
	SetStatus(ctx context.Context, taskID, status string) error
}

// InMemoryDirectory is a Directory for tests and single-process setups.
type InMemoryDirectory struct {
	mu        sync.RWMutex
	assignees map[string]string
	statuses  map[string]string
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		assignees: make(map[string]string),
		statuses:  make(map[string]string),
	}
}

func (d *InMemoryDirectory) Assignee(_ context.Context, taskID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.assignees[taskID], nil
}

func (d *InMemoryDirectory) Assign(_ context.Context, taskID, userID string) error {
	if taskID == "" {
		return fmt.Errorf("assign: empty task id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assignees[taskID] = userID
	return nil
}

func (d *InMemoryDirectory) Status(_ context.Context, taskID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.statuses[taskID], nil
}

func (d *InMemoryDirectory) SetStatus(_ context.Context, taskID, status string) error {
	if taskID == "" {
		return fmt.Errorf("set status: empty task id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[taskID] = status
	return nil
}
