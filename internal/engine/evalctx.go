package engine

import "github.com/gyaneshwarpardhi/autorule/internal/rule"

// evalContext adapts an event to the condition package: dot-path resolution
// for the native expression tree and a full activation map for CEL.
type evalContext struct {
	ev *rule.Event
}

// Resolve implements condition.EvalContext.
func (c *evalContext) Resolve(path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "payload":
		if c.ev.Payload == nil {
			return nil, false
		}
		return resolveMap(c.ev.Payload, path[1:])
	case "meta":
		if c.ev.Meta == nil {
			return nil, false
		}
		m := make(map[string]interface{}, len(c.ev.Meta))
		for k, v := range c.ev.Meta {
			m[k] = v
		}
		return resolveMap(m, path[1:])
	case "event":
		if len(path) < 2 {
			return nil, false
		}
		switch path[1] {
		case "id":
			return c.ev.ID, true
		case "trigger":
			return string(c.ev.Trigger), true
		case "entity_type":
			return c.ev.EntityType, true
		case "entity_id":
			return c.ev.EntityID, true
		case "project_id":
			return c.ev.ProjectID, true
		case "actor_id":
			return c.ev.ActorID, true
		}
	}
	return nil, false
}

// Activation implements condition.ActivationProvider for CEL conditions.
func (c *evalContext) Activation() map[string]interface{} {
	payload := c.ev.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	meta := make(map[string]interface{}, len(c.ev.Meta))
	for k, v := range c.ev.Meta {
		meta[k] = v
	}
	return map[string]interface{}{
		"event": map[string]interface{}{
			"id":          c.ev.ID,
			"trigger":     string(c.ev.Trigger),
			"entity_type": c.ev.EntityType,
			"entity_id":   c.ev.EntityID,
			"project_id":  c.ev.ProjectID,
			"actor_id":    c.ev.ActorID,
		},
		"payload": payload,
		"meta":    meta,
	}
}

func resolveMap(m map[string]interface{}, path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	val, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	sub, ok := val.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return resolveMap(sub, path[1:])
}
