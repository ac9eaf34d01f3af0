package config

import (
	"fmt"
	"strings"
)

// Validate checks server-level settings.
func (c *Config) Validate() error {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, "store: postgres requires a dsn")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q", c.Store.Driver))
	}
	if c.Engine.EventWorkers < 1 {
		errs = append(errs, "engine: event_workers must be positive")
	}
	if c.Engine.RuleWorkers < 1 {
		errs = append(errs, "engine: rule_workers must be positive")
	}
	if c.Engine.QueueDepth < 1 {
		errs = append(errs, "engine: queue_depth must be positive")
	}
	if c.Retention.RecordMaxAgeDays < 1 {
		errs = append(errs, "retention: record_max_age_days must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateRuleFile checks the seed file for duplicate names and structural
// validity of every definition. Full semantic validation (action params,
// condition compilation) happens when the rules are applied to the store.
func ValidateRuleFile(rf *RuleFile) error {
	var errs []string
	seen := make(map[string]int) // created_by + name → index
	for i, d := range rf.Rules {
		if d.Name == "" {
			errs = append(errs, fmt.Sprintf("rules[%d]: name is required", i))
			continue
		}
		key := d.CreatedBy + "\x00" + d.Name
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Sprintf("rules[%d]: duplicate name %q (first seen at rules[%d])", i, d.Name, prev))
		} else {
			seen[key] = i
		}
		if err := d.ToRule().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("rules[%d] %q: %v", i, d.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("rule file validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
