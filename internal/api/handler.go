// Package api exposes the rule engine over HTTP: rule CRUD, event ingest,
// dry-run testing, execution history and operational endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
	"github.com/gyaneshwarpardhi/autorule/internal/engine"
	"github.com/gyaneshwarpardhi/autorule/internal/rule"
	"github.com/gyaneshwarpardhi/autorule/internal/store"
)

const (
	maxBatchSize       = 100
	defaultRecordLimit = 50
	maxRecordLimit     = 500

	// readyz reports unready above this queue utilization so load
	// balancers back off before the engine starts dropping events.
	readyQueueThreshold = 0.8
)

// Handler serves the HTTP API.
type Handler struct {
	engine *engine.Engine
	store  store.Store
	reg    *action.Registry
	mux    chi.Router
}

// New builds the router.
func New(eng *engine.Engine, st store.Store, reg *action.Registry) *Handler {
	h := &Handler{engine: eng, store: st, reg: reg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.ingestEvent)
		r.Post("/events/batch", h.ingestBatch)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getRule)
				r.Put("/", h.updateRule)
				r.Delete("/", h.deleteRule)
				r.Post("/toggle", h.toggleRule)
				r.Post("/test", h.testRule)
				r.Get("/executions", h.listExecutions)
			})
		})
	})

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h.mux = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- events ---

// decodeEvent parses and normalizes an inbound event: missing IDs and
// timestamps are filled in, unknown triggers are rejected.
func decodeEvent(r *http.Request, body json.RawMessage) (*rule.Event, error) {
	var ev rule.Event
	var err error
	if body != nil {
		err = json.Unmarshal(body, &ev)
	} else {
		err = json.NewDecoder(r.Body).Decode(&ev)
	}
	if err != nil {
		return nil, rule.Invalidf("invalid event payload: %v", err)
	}
	if !ev.Trigger.Known() {
		return nil, rule.Invalidf("unknown trigger %q", ev.Trigger)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := time.Now()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	ev.ReceivedAt = now
	return &ev, nil
}

func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeEvent(r, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	res, err := h.engine.ProcessSync(r.Context(), ev)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, engine.ErrQueueFull) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// ingestBatch enqueues up to maxBatchSize events for background dispatch.
// Events are accepted or rejected independently.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch payload: "+err.Error())
		return
	}
	if len(raw) > maxBatchSize {
		writeError(w, http.StatusBadRequest,
			"batch too large: "+strconv.Itoa(len(raw))+" events (max "+strconv.Itoa(maxBatchSize)+")")
		return
	}

	resp := batchResponse{}
	for _, msg := range raw {
		ev, err := decodeEvent(r, msg)
		if err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, err.Error())
			continue
		}
		if !h.engine.ProcessAsync(ev) {
			resp.Rejected++
			resp.Errors = append(resp.Errors, "event "+ev.ID+": queue full")
			continue
		}
		resp.Accepted++
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// --- rules ---

// decodeRule parses a rule payload and strips store-owned fields so callers
// cannot forge counters or timestamps.
func decodeRule(r *http.Request) (*rule.Rule, error) {
	var ru rule.Rule
	if err := json.NewDecoder(r.Body).Decode(&ru); err != nil {
		return nil, rule.Invalidf("invalid rule payload: %v", err)
	}
	ru.ExecutionCount = 0
	ru.SuccessCount = 0
	ru.FailureCount = 0
	ru.LastExecutedAt = nil
	ru.LastError = ""
	ru.CreatedAt = time.Time{}
	ru.UpdatedAt = time.Time{}
	return &ru, nil
}

func (h *Handler) validateRule(ru *rule.Rule) error {
	if err := ru.Validate(); err != nil {
		return err
	}
	return h.reg.ValidateSpecs(ru.Actions)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	ru, err := decodeRule(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if ru.ID == "" {
		ru.ID = uuid.New().String()
	}
	if err := h.validateRule(ru); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.Create(r.Context(), ru); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ru)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	ru, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ru)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	ru, err := decodeRule(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ru.ID = chi.URLParam(r, "id")
	if err := h.validateRule(ru); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.Update(r.Context(), ru); err != nil {
		writeStoreError(w, err)
		return
	}
	updated, err := h.store.Get(r.Context(), ru.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	h.engine.ForgetRule(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleRule(w http.ResponseWriter, r *http.Request) {
	ru, err := h.store.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ru)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	f := store.ListFilter{
		Type:      rule.Type(r.URL.Query().Get("type")),
		Scope:     rule.Scope(r.URL.Query().Get("scope")),
		ProjectID: r.URL.Query().Get("project_id"),
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active filter: "+v)
			return
		}
		f.Active = &active
	}
	rules, err := h.store.List(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// testRule dry-runs a rule against an event supplied in the request body.
// Nothing executes and nothing is recorded.
func (h *Handler) testRule(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeEvent(r, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	res, err := h.engine.DryRun(r.Context(), chi.URLParam(r, "id"), ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultRecordLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}

	// 404 for unknown rules rather than an empty list.
	if _, err := h.store.Get(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	recs, err := h.store.ListRecords(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// --- operational ---

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	util := h.engine.QueueUtilization()
	if util > readyQueueThreshold {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
