package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/internal/auth"
	"github.com/davidahmann/gatelog/pkg/types"
)

type Handler struct {
	Auth    auth.Authenticator
	Service *GovernService
}

type RemediateRequest struct {
	Context    types.OperationContext `json:"context"`
	Violations []types.Violation      `json:"violations"`
}

type OverrideRequest struct {
	Context       types.OperationContext `json:"context"`
	Violation     types.Violation        `json:"violation"`
	Justification string                 `json:"justification"`
	Approver      string                 `json:"approver,omitempty"`
}

type EventsResponse struct {
	Events []types.AuditEvent `json:"events"`
	Error  string             `json:"error,omitempty"`
}

type RuleSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Severity       string `json:"severity"`
	Mode           string `json:"mode"`
	Version        int    `json:"version"`
	CanAutoFix     bool   `json:"can_auto_fix"`
	Disabled       bool   `json:"disabled,omitempty"`
	DisabledReason string `json:"disabled_reason,omitempty"`
}

type RulesResponse struct {
	RegistryID      string        `json:"registry_id,omitempty"`
	RegistryVersion string        `json:"registry_version,omitempty"`
	Hash            string        `json:"hash"`
	Rules           []RuleSummary `json:"rules"`
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}

	var op types.OperationContext
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if op.Operation == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing operation"})
		return
	}

	result, err := h.Service.Evaluator.Evaluate(r.Context(), op)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Remediate(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}

	var req RemediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Violations) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing violations"})
		return
	}

	result, err := h.Service.Remediator.Remediate(req.Context, req.Violations)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Overrides(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Violation.RuleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing violation"})
		return
	}

	result, err := h.Service.Overrider.RequestOverride(req.Context, req.Violation, req.Justification, req.Approver)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Events answers audit queries. Malformed filters and store failures return
// an empty result set with an explicit error field rather than an HTTP
// failure, so compliance dashboards degrade gracefully.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusOK, EventsResponse{Events: []types.AuditEvent{}, Error: err.Error()})
		return
	}

	events, err := h.Service.Store.Query(filter)
	if err != nil {
		writeJSON(w, http.StatusOK, EventsResponse{Events: []types.AuditEvent{}, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}

	report, err := audit.VerifyIntegrity(h.Service.Store)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Service.Signer == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "checkpoint signing not configured"})
		return
	}

	cp, err := h.Service.Auditor.Checkpoint(h.Service.Signer, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}

	resp := RulesResponse{
		RegistryID:      h.Service.Rules.RegistryID,
		RegistryVersion: h.Service.Rules.RegistryVersion,
		Hash:            h.Service.Rules.Hash,
		Rules:           []RuleSummary{},
	}
	for _, rule := range h.Service.Rules.Registry.List() {
		resp.Rules = append(resp.Rules, RuleSummary{
			ID:             rule.ID,
			Name:           rule.Name,
			Category:       rule.Category,
			Severity:       string(rule.Severity),
			Mode:           string(rule.Mode),
			Version:        rule.Version,
			CanAutoFix:     rule.CanAutoFix,
			Disabled:       rule.Disabled,
			DisabledReason: rule.DisabledReason,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	builder := audit.NewFilter()

	if eventTypes, ok := q["event_type"]; ok {
		builder.EventTypes(eventTypes...)
	}
	if actor := q.Get("actor"); actor != "" {
		builder.Actor(actor)
	}
	if resourceType, resourceID := q.Get("resource_type"), q.Get("resource_id"); resourceType != "" || resourceID != "" {
		builder.Resource(resourceType, resourceID)
	}
	if result := q.Get("result"); result != "" {
		builder.Result(types.EventResult(result))
	}
	if has := q.Get("has_violations"); has != "" {
		parsed, err := strconv.ParseBool(has)
		if err != nil {
			return audit.Filter{}, err
		}
		builder.WithViolations(parsed)
	}
	if limit := q.Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			return audit.Filter{}, strconv.ErrSyntax
		}
		builder.Limit(parsed)
	}

	var from, to time.Time
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, err
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, err
		}
		to = parsed
	}
	if !from.IsZero() || !to.IsZero() {
		builder.Between(from, to)
	}

	return builder.Build(), nil
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	_, err := h.Auth.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
