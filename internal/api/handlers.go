package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/logger"
	"github.com/ignite/lead-pipeline/internal/queue"
	"github.com/ignite/lead-pipeline/internal/rules"
	"github.com/ignite/lead-pipeline/internal/worker"
)

// Handlers carries the ingress endpoints' dependencies.
type Handlers struct {
	q       queue.Queue
	rules   rules.Store
	states  worker.StateStore
	metrics queue.MetricsReader
}

// NewHandlers creates the ingress handlers. states and metrics may be nil
// when the operational endpoints are not wanted.
func NewHandlers(q queue.Queue, ruleStore rules.Store, states worker.StateStore, metrics queue.MetricsReader) *Handlers {
	return &Handlers{q: q, rules: ruleStore, states: states, metrics: metrics}
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Submit validates a lead submission and enqueues it for identification.
// An enqueue failure is dead-lettered best-effort so the payload is not lost.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !sub.HasIdentifier() {
		respondError(w, http.StatusBadRequest, "at least one of email, full_name, phone is required")
		return
	}
	if len(sub.Payload) == 0 {
		sub.Payload = json.RawMessage("{}")
	}

	if _, err := h.q.Enqueue(r.Context(), queue.SubmissionQueue, sub, 0); err != nil {
		logger.Error("submission enqueue failed", "error", err.Error())
		raw, _ := json.Marshal(sub)
		dl := domain.DeadLetter{Message: raw, Error: err.Error()}
		if _, dlqErr := h.q.Enqueue(r.Context(), queue.SubmissionDLQ, dl, 0); dlqErr != nil {
			logger.Error("submission dlq publish failed", "error", dlqErr.Error())
		}
		respondError(w, http.StatusBadRequest, "failed to queue submission")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// ListRules returns every rule, enabled or not.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	all, err := h.rules.ListAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": all})
}

// CreateRule inserts a rule and signals the compiler.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if rule.Name == "" || rule.RouteName == "" {
		respondError(w, http.StatusBadRequest, "name and route_name are required")
		return
	}
	if err := rule.Predicate.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.rules.Insert(r.Context(), &rule); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	signal := domain.CompileSignal{RequestedAt: time.Now().UTC().Format(time.RFC3339), Reason: "rule created"}
	if _, err := h.q.Enqueue(r.Context(), queue.CompileQueue, signal, 0); err != nil {
		// rule persisted; compile will happen on the next signal
		logger.Error("compile signal enqueue failed", "error", err.Error())
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": rule.ID})
}

// PreviewTree compiles posted rules into a decision tree without publishing,
// so rule authors can inspect the compiled shape before enabling anything.
func (h *Handlers) PreviewTree(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rules []rules.Rule `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	tree, err := rules.BuildTree(body.Rules)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// ListWorkers returns worker liveness rows.
func (h *Handlers) ListWorkers(w http.ResponseWriter, r *http.Request) {
	if h.states == nil {
		respondError(w, http.StatusNotFound, "worker states unavailable")
		return
	}
	states, err := h.states.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": states})
}

// QueueMetrics returns per-queue depth.
func (h *Handlers) QueueMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		respondError(w, http.StatusNotFound, "queue metrics unavailable")
		return
	}
	m, err := h.metrics.QueueMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": m})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
