package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteSchema is applied on open. Statements are idempotent so startup
// doubles as migration for the embedded database.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		trigger_event TEXT NOT NULL,
		condition_json TEXT,
		actions_json TEXT NOT NULL,
		scope TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		cooldown_minutes INTEGER NOT NULL DEFAULT 0,
		max_executions_per_day INTEGER NOT NULL DEFAULT 0,
		window_json TEXT,
		execution_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_executed_at TIMESTAMP,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (created_by, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_dispatch
		ON rules (trigger_event, active, priority)`,
	`CREATE TABLE IF NOT EXISTS execution_records (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		trigger_event TEXT NOT NULL,
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_rule
		ON execution_records (rule_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_records_prune
		ON execution_records (created_at)`,
}

// OpenSQLite opens (or creates) the embedded database at path with WAL
// journal mode and a busy timeout, then ensures the schema exists.
func OpenSQLite(path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &SQL{db: db, bind: bindQuestion}, nil
}
