package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/autorule/internal/condition"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
)

// SQL implements Store on database/sql. SQLite and Postgres share every
// query; the only dialect difference is placeholder style, handled by bind.
type SQL struct {
	db   *sql.DB
	bind func(string) string
}

// bindQuestion leaves '?' placeholders alone (SQLite).
func bindQuestion(q string) string { return q }

// bindDollar rewrites '?' placeholders to $1..$n (Postgres).
func bindDollar(q string) string {
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

const ruleColumns = `id, name, created_by, type, trigger_event, condition_json, actions_json,
	scope, project_id, priority, active, cooldown_minutes, max_executions_per_day, window_json,
	execution_count, success_count, failure_count, last_executed_at, last_error, created_at, updated_at`

func (s *SQL) Create(ctx context.Context, r *rule.Rule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT EXISTS(SELECT 1 FROM rules WHERE created_by = ? AND name = ?)`),
		r.CreatedBy, r.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check rule name: %w", err)
	}
	if exists {
		return rule.Invalidf("rule name %q already exists for creator %q", r.Name, r.CreatedBy)
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	condJSON, actionsJSON, windowJSON, err := marshalRuleBlobs(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.bind(`
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, NULL, '', ?, ?)`),
		r.ID, r.Name, r.CreatedBy, string(r.Type), string(r.Trigger), condJSON, actionsJSON,
		string(r.Scope), r.ProjectID, r.Priority, r.Active, r.CooldownMinutes,
		r.MaxExecutionsPerDay, windowJSON, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func marshalRuleBlobs(r *rule.Rule) (cond sql.NullString, actions string, window sql.NullString, err error) {
	if r.Condition != nil {
		data, merr := json.Marshal(r.Condition)
		if merr != nil {
			return cond, "", window, fmt.Errorf("marshal condition: %w", merr)
		}
		cond = sql.NullString{String: string(data), Valid: true}
	}
	data, merr := json.Marshal(r.Actions)
	if merr != nil {
		return cond, "", window, fmt.Errorf("marshal actions: %w", merr)
	}
	actions = string(data)
	if !r.Window.IsZero() {
		data, merr := json.Marshal(r.Window)
		if merr != nil {
			return cond, "", window, fmt.Errorf("marshal window: %w", merr)
		}
		window = sql.NullString{String: string(data), Valid: true}
	}
	return cond, actions, window, nil
}

func scanRule(row interface{ Scan(...interface{}) error }) (*rule.Rule, error) {
	var (
		r            rule.Rule
		typ, trigger string
		scope        string
		condJSON     sql.NullString
		actionsJSON  string
		windowJSON   sql.NullString
		lastExecuted sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.CreatedBy, &typ, &trigger, &condJSON, &actionsJSON,
		&scope, &r.ProjectID, &r.Priority, &r.Active, &r.CooldownMinutes,
		&r.MaxExecutionsPerDay, &windowJSON, &r.ExecutionCount, &r.SuccessCount,
		&r.FailureCount, &lastExecuted, &r.LastError, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = rule.Type(typ)
	r.Trigger = rule.Trigger(trigger)
	r.Scope = rule.Scope(scope)
	if condJSON.Valid && condJSON.String != "" {
		var spec condition.Spec
		if err := json.Unmarshal([]byte(condJSON.String), &spec); err != nil {
			return nil, fmt.Errorf("unmarshal condition: %w", err)
		}
		r.Condition = &spec
	}
	if err := json.Unmarshal([]byte(actionsJSON), &r.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if windowJSON.Valid && windowJSON.String != "" {
		if err := json.Unmarshal([]byte(windowJSON.String), &r.Window); err != nil {
			return nil, fmt.Errorf("unmarshal window: %w", err)
		}
	}
	if lastExecuted.Valid {
		t := lastExecuted.Time
		r.LastExecutedAt = &t
	}
	return &r, nil
}

func (s *SQL) Get(ctx context.Context, id string) (*rule.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		s.bind(`SELECT `+ruleColumns+` FROM rules WHERE id = ?`), id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, rule.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *SQL) Update(ctx context.Context, r *rule.Rule) error {
	var dupe bool
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT EXISTS(SELECT 1 FROM rules WHERE created_by = ? AND name = ? AND id <> ?)`),
		r.CreatedBy, r.Name, r.ID).Scan(&dupe)
	if err != nil {
		return fmt.Errorf("check rule name: %w", err)
	}
	if dupe {
		return rule.Invalidf("rule name %q already exists for creator %q", r.Name, r.CreatedBy)
	}

	condJSON, actionsJSON, windowJSON, err := marshalRuleBlobs(r)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE rules SET name = ?, type = ?, trigger_event = ?, condition_json = ?,
			actions_json = ?, scope = ?, project_id = ?, priority = ?, active = ?,
			cooldown_minutes = ?, max_executions_per_day = ?, window_json = ?, updated_at = ?
		WHERE id = ?`),
		r.Name, string(r.Type), string(r.Trigger), condJSON, actionsJSON,
		string(r.Scope), r.ProjectID, r.Priority, r.Active, r.CooldownMinutes,
		r.MaxExecutionsPerDay, windowJSON, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func (s *SQL) Toggle(ctx context.Context, id string) (*rule.Rule, error) {
	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE rules SET active = NOT active, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("toggle rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("toggle rule: %w", err)
	}
	if n == 0 {
		return nil, rule.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQL) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM rules WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func (s *SQL) List(ctx context.Context, f ListFilter) ([]*rule.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rules WHERE 1=1`
	var args []interface{}
	if f.Active != nil {
		q += ` AND active = ?`
		args = append(args, *f.Active)
	}
	if f.Type != "" {
		q += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Scope != "" {
		q += ` AND scope = ?`
		args = append(args, string(f.Scope))
	}
	if f.ProjectID != "" {
		q += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	q += ` ORDER BY priority DESC, created_at DESC`
	return s.queryRules(ctx, q, args...)
}

func (s *SQL) FindActiveByTrigger(ctx context.Context, tr rule.Trigger, projectID string) ([]*rule.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rules
		WHERE active = ? AND trigger_event = ? AND (scope = 'global' OR project_id = ?)
		ORDER BY priority DESC, created_at DESC`
	return s.queryRules(ctx, q, true, string(tr), projectID)
}

func (s *SQL) queryRules(ctx context.Context, q string, args ...interface{}) ([]*rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []*rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// MarkExecuted is a single UPDATE so concurrent dispatchers increment
// atomically at the row level; no read-modify-write.
func (s *SQL) MarkExecuted(ctx context.Context, id string, at time.Time, outcome rule.Outcome, lastError string) error {
	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE rules SET
			execution_count = execution_count + 1,
			success_count = success_count + CASE WHEN ? = 'succeeded' THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN ? = 'failed' THEN 1 ELSE 0 END,
			last_executed_at = ?,
			last_error = ?
		WHERE id = ?`),
		string(outcome), string(outcome), at.UTC(), lastError, id)
	if err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	if n == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func (s *SQL) AppendRecord(ctx context.Context, rec *rule.ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	var payloadJSON sql.NullString
	if len(rec.Payload) > 0 {
		data, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO execution_records (id, rule_id, event_id, trigger_event, entity_type,
			entity_id, project_id, payload_json, outcome, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.RuleID, rec.EventID, string(rec.Trigger), rec.EntityType,
		rec.EntityID, rec.ProjectID, payloadJSON, string(rec.Outcome), rec.Error,
		rec.DurationMs, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *SQL) CountExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.bind(`
		SELECT COUNT(*) FROM execution_records
		WHERE rule_id = ? AND outcome IN ('succeeded', 'failed') AND created_at >= ?`),
		ruleID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return n, nil
}

func (s *SQL) ListRecords(ctx context.Context, ruleID string, limit int) ([]*rule.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, rule_id, event_id, trigger_event, entity_type, entity_id, project_id,
			payload_json, outcome, error, duration_ms, created_at
		FROM execution_records WHERE rule_id = ?
		ORDER BY created_at DESC LIMIT ?`), ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*rule.ExecutionRecord
	for rows.Next() {
		var (
			rec         rule.ExecutionRecord
			trigger     string
			outcome     string
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.EventID, &trigger, &rec.EntityType,
			&rec.EntityID, &rec.ProjectID, &payloadJSON, &outcome, &rec.Error,
			&rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Trigger = rule.Trigger(trigger)
		rec.Outcome = rule.Outcome(outcome)
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &rec.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *SQL) PruneRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.bind(`DELETE FROM execution_records WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQL) Close() error { return s.db.Close() }
