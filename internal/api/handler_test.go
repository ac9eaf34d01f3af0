package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
	"github.com/gyaneshwarpardhi/autorule/internal/config"
	"github.com/gyaneshwarpardhi/autorule/internal/engine"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
	"github.com/gyaneshwarpardhi/autorule/internal/store"
)

type okExecutor struct{ typ string }

func (e *okExecutor) Type() string { return e.typ }
func (e *okExecutor) Execute(context.Context, action.Invocation) (*action.Result, error) {
	return &action.Result{Type: e.typ, Success: true}, nil
}
func (e *okExecutor) Validate(params map[string]interface{}) error {
	if _, ok := params["assignee_id"]; e.typ == "assign_task" && !ok {
		return fmt.Errorf("assign_task: 'assignee_id' is required")
	}
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewMemory()
	reg := action.NewRegistry()
	reg.Register(&okExecutor{typ: "assign_task"})
	reg.Register(&okExecutor{typ: "send_notification"})

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, st, reg, config.EngineConf{
		EventWorkers: 2, RuleWorkers: 4, QueueDepth: 64, EventTimeoutMs: 5000,
	})
	srv := httptest.NewServer(New(eng, st, reg))
	t.Cleanup(func() {
		srv.Close()
		eng.Shutdown()
		cancel()
	})
	return srv, st
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func ruleBody(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":       name,
		"created_by": "tester",
		"type":       "task_auto_assignment",
		"trigger":    "task_created",
		"scope":      "global",
		"priority":   40,
		"active":     true,
		"condition": map[string]interface{}{
			"kind": "cmp", "field": "payload.priority", "op": "==", "value": "urgent",
		},
		"actions": []map[string]interface{}{
			{"type": "assign_task", "params": map[string]interface{}{"assignee_id": "u1"}},
		},
	}
}

func createRule(t *testing.T, srv *httptest.Server, name string) rule.Rule {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", ruleBody(name))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var r rule.Rule
	require.NoError(t, json.Unmarshal(body, &r))
	require.NotEmpty(t, r.ID)
	return r
}

func TestRuleCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createRule(t, srv, "crud")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got rule.Rule
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "crud", got.Name)

	update := ruleBody("crud")
	update["priority"] = 77
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/v1/rules/"+created.ID, update)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, 77, got.Priority)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &got))
	require.False(t, got.Active)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRule_Invalid(t *testing.T) {
	srv, _ := newTestServer(t)

	bad := ruleBody("bad")
	bad["trigger"] = "task_teleported"
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	unknownAction := ruleBody("bad-action")
	unknownAction["actions"] = []map[string]interface{}{{"type": "explode"}}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/rules", unknownAction)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	createRule(t, srv, "dup")
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/rules", ruleBody("dup"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRule_IgnoresForgedCounters(t *testing.T) {
	srv, _ := newTestServer(t)

	forged := ruleBody("forged")
	forged["execution_count"] = 99
	forged["success_count"] = 99
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", forged)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var got rule.Rule
	require.NoError(t, json.Unmarshal(body, &got))
	require.Zero(t, got.ExecutionCount)
	require.Zero(t, got.SuccessCount)
}

func TestListRules_Filters(t *testing.T) {
	srv, st := newTestServer(t)
	createRule(t, srv, "one")
	two := createRule(t, srv, "two")
	_, err := st.Toggle(context.Background(), two.ID)
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/?active=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Rules []rule.Rule `json:"rules"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Count)
	require.Equal(t, "one", out.Rules[0].Name)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/rules/?active=banana", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestEvent(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createRule(t, srv, "ingest")

	ev := map[string]interface{}{
		"trigger":     "task_created",
		"entity_type": "task",
		"entity_id":   "t1",
		"payload":     map[string]interface{}{"priority": "urgent"},
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/events", ev)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res engine.DispatchResult
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotEmpty(t, res.EventID)
	require.Len(t, res.Attempts, 1)
	require.Equal(t, created.ID, res.Attempts[0].RuleID)
	require.Equal(t, rule.OutcomeSucceeded, res.Attempts[0].Outcome)

	// Unknown triggers are rejected before dispatch.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/events", map[string]interface{}{"trigger": "task_exploded"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestBatch(t *testing.T) {
	srv, _ := newTestServer(t)
	createRule(t, srv, "batch")

	events := []map[string]interface{}{
		{"trigger": "task_created", "entity_type": "task", "entity_id": "t1"},
		{"trigger": "task_exploded"},
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/events/batch", events)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var out batchResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Accepted)
	require.Equal(t, 1, out.Rejected)
	require.Len(t, out.Errors, 1)
}

func TestIngestBatch_TooLarge(t *testing.T) {
	srv, _ := newTestServer(t)
	events := make([]map[string]interface{}, maxBatchSize+1)
	for i := range events {
		events[i] = map[string]interface{}{"trigger": "task_created"}
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/events/batch", events)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestRule_DryRun(t *testing.T) {
	srv, st := newTestServer(t)
	created := createRule(t, srv, "dry")

	ev := map[string]interface{}{
		"trigger": "task_created",
		"payload": map[string]interface{}{"priority": "urgent"},
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+created.ID+"/test", ev)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res engine.DryRunResult
	require.NoError(t, json.Unmarshal(body, &res))
	require.True(t, res.WouldMatch)

	ev["payload"] = map[string]interface{}{"priority": "low"}
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+created.ID+"/test", ev)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	require.False(t, res.WouldMatch)
	require.NotEmpty(t, res.Reason)

	// No side effects from testing.
	recs, err := st.ListRecords(context.Background(), created.ID, 10)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestListExecutions(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createRule(t, srv, "execs")

	ev := map[string]interface{}{
		"trigger":     "task_created",
		"entity_type": "task",
		"entity_id":   "t1",
		"payload":     map[string]interface{}{"priority": "urgent"},
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/events", ev)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+created.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Records []rule.ExecutionRecord `json:"records"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Count)
	require.Equal(t, rule.OutcomeSucceeded, out.Records[0].Outcome)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/rules/missing/executions", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+created.ID+"/executions?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "ready")

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
