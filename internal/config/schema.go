package config

import (
	"github.com/gyaneshwarpardhi/autorule/internal/condition"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// Config is the top-level YAML structure for the server.
type Config struct {
	Version   string        `yaml:"version"`
	HTTP      HTTPConf      `yaml:"http"`
	Engine    EngineConf    `yaml:"engine"`
	Store     StoreConf     `yaml:"store"`
	NATS      NATSConf      `yaml:"nats"`
	Retention RetentionConf `yaml:"retention"`
	// RulesFile optionally points at a seed rule file which is applied at
	// startup and hot-reloaded on change.
	RulesFile string `yaml:"rules_file"`
}

// HTTPConf configures the API listener.
type HTTPConf struct {
	Addr string `yaml:"addr"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	EventWorkers   int `yaml:"event_workers"`
	RuleWorkers    int `yaml:"rule_workers"` // concurrent rule executions per event
	QueueDepth     int `yaml:"queue_depth"`
	EventTimeoutMs int `yaml:"event_timeout_ms"`
}

// StoreConf selects the persistence backend.
type StoreConf struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres" | "memory"
	DSN    string `yaml:"dsn"`    // file path (sqlite) or URL (postgres)
}

// NATSConf configures the optional broker integration. An empty URL
// disables both the event source and the NATS notifier.
type NATSConf struct {
	URL           string `yaml:"url"`
	Subject       string `yaml:"subject"`        // event source subscription
	Queue         string `yaml:"queue"`          // queue group name
	NotifySubject string `yaml:"notify_subject"` // prefix for outgoing notifications
}

// RetentionConf bounds how long execution records are kept.
type RetentionConf struct {
	RecordMaxAgeDays     int `yaml:"record_max_age_days"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// RuleFile is the YAML structure of a seed rule file.
type RuleFile struct {
	Version string    `yaml:"version"`
	Rules   []RuleDef `yaml:"rules"`
}

// RuleDef is the authorable subset of a rule. Counters and timestamps are
// store-owned and not part of the file format.
type RuleDef struct {
	Name                string                 `yaml:"name"`
	CreatedBy           string                 `yaml:"created_by"`
	Type                string                 `yaml:"type"`
	Trigger             string                 `yaml:"trigger"`
	Condition           *condition.Spec        `yaml:"condition"`
	Actions             []ActionDef            `yaml:"actions"`
	Scope               string                 `yaml:"scope"`
	ProjectID           string                 `yaml:"project_id"`
	Priority            int                    `yaml:"priority"`
	Active              *bool                  `yaml:"active"` // nil defaults to true
	CooldownMinutes     int                    `yaml:"cooldown_minutes"`
	MaxExecutionsPerDay int                    `yaml:"max_executions_per_day"`
	Window              rule.Window            `yaml:"window"`
}

// ActionDef mirrors rule.ActionSpec for YAML.
type ActionDef struct {
	Type   string                 `yaml:"type"`
	Params map[string]interface{} `yaml:"params"`
}

// ToRule converts a definition into a domain rule (not yet validated).
func (d RuleDef) ToRule() *rule.Rule {
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	actions := make([]rule.ActionSpec, 0, len(d.Actions))
	for _, a := range d.Actions {
		actions = append(actions, rule.ActionSpec{Type: a.Type, Params: a.Params})
	}
	return &rule.Rule{
		Name:                d.Name,
		CreatedBy:           d.CreatedBy,
		Type:                rule.Type(d.Type),
		Trigger:             rule.Trigger(d.Trigger),
		Condition:           d.Condition,
		Actions:             actions,
		Scope:               rule.Scope(d.Scope),
		ProjectID:           d.ProjectID,
		Priority:            d.Priority,
		Active:              active,
		CooldownMinutes:     d.CooldownMinutes,
		MaxExecutionsPerDay: d.MaxExecutionsPerDay,
		Window:              d.Window,
	}
}
