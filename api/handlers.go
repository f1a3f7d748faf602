/*
handlers.go - HTTP API handlers for the recurring transaction engine

PURPOSE:
  Exposes the materialization engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Templates:
    GET    /api/templates                 List templates (owner filter)
    POST   /api/templates                 Create template + first window
    GET    /api/templates/{id}            Get template
    PUT    /api/templates/{id}            Patch + effective-date regeneration
    DELETE /api/templates/{id}            Retire at effective date
    GET    /api/templates/{id}/instances  Materialized instances

  Instances:
    GET    /api/owners/{id}/instances     Owner-wide instance list
    POST   /api/instances/{id}/complete   Mark completed

  Admin:
    POST   /api/admin/refresh             Run periodic refresh now
    POST   /api/admin/repair              Duplicate repair pass

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Seed a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Template or instance not found
  - 500: Store or internal errors

SECURITY NOTE:
  No authentication or authorization; ownership is a plain field. Auth is
  an external collaborator of this engine.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background refresh trigger
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/recurring-engine/recurring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      recurring.Store
	Reconciler *recurring.Reconciler
	Repairer   *recurring.Repairer
	Clock      recurring.Clock
	Log        zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler over the given store.
func NewHandler(store recurring.Store, clock recurring.Clock, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      store,
		Reconciler: recurring.NewReconciler(store, clock, log),
		Repairer:   recurring.NewRepairer(store, log),
		Clock:      clock,
		Log:        log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns templates, filtered by owner when provided.
// GET /api/templates?owner_id=
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner_id query parameter is required", nil)
		return
	}

	templates, err := h.Store.ListTemplatesByOwner(r.Context(), recurring.OwnerID(owner))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTemplate returns a single template.
// GET /api/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id := recurring.TemplateID(chi.URLParam(r, "id"))

	tpl, err := h.Store.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get template", err)
		return
	}
	if tpl == nil {
		writeError(w, http.StatusNotFound, "Template not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(*tpl))
}

// CreateTemplate creates a template and materializes its first window.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	tpl := recurring.Template{
		OwnerID:     recurring.OwnerID(req.OwnerID),
		Description: req.Description,
		Amount:      amount,
		Kind:        recurring.Kind(req.Kind),
		Category:    req.Category,
		DayOfMonth:  req.DayOfMonth,
		Active:      true,
	}
	if req.EndDate != "" {
		endDate, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
			return
		}
		tpl.EndDate = &endDate
	}

	created, err := h.Reconciler.OnTemplateCreate(r.Context(), tpl)
	if err != nil {
		writeDomainError(w, err, "Failed to create template")
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(*created))
}

// UpdateTemplate applies a field patch and regenerates from the effective date.
// PUT /api/templates/{id}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := recurring.TemplateID(chi.URLParam(r, "id"))

	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		writeDomainError(w, err, "Invalid patch")
		return
	}

	effectiveDate, err := h.parseEffectiveDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date format (use YYYY-MM-DD)", err)
		return
	}

	updated, err := h.Reconciler.OnTemplateUpdate(r.Context(), id, patch, effectiveDate)
	if err != nil {
		writeDomainError(w, err, "Failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(*updated))
}

// DeleteTemplate retires a template at an effective date.
// DELETE /api/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := recurring.TemplateID(chi.URLParam(r, "id"))

	// Effective date arrives in the query for DELETE (bodies on DELETE
	// are dropped by some proxies).
	effectiveDate, err := h.parseEffectiveDate(r.URL.Query().Get("effective_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Reconciler.OnTemplateDelete(r.Context(), id, effectiveDate); err != nil {
		writeDomainError(w, err, "Failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTemplateInstances returns a template's materialized instances.
// GET /api/templates/{id}/instances
func (h *Handler) ListTemplateInstances(w http.ResponseWriter, r *http.Request) {
	id := recurring.TemplateID(chi.URLParam(r, "id"))

	instances, err := h.Store.ListInstancesByTemplate(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTOs(instances))
}

// =============================================================================
// INSTANCE HANDLERS
// =============================================================================

// ListOwnerInstances returns an owner's instances within a date range.
// GET /api/owners/{id}/instances?from=&to=
func (h *Handler) ListOwnerInstances(w http.ResponseWriter, r *http.Request) {
	owner := recurring.OwnerID(chi.URLParam(r, "id"))

	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), h.Clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from/to format (use YYYY-MM-DD)", err)
		return
	}

	instances, err := h.Store.ListInstancesByOwner(r.Context(), owner, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTOs(instances))
}

// CompleteInstance marks an instance completed.
// POST /api/instances/{id}/complete
func (h *Handler) CompleteInstance(w http.ResponseWriter, r *http.Request) {
	id := recurring.InstanceID(chi.URLParam(r, "id"))

	if err := h.Store.MarkInstanceCompleted(r.Context(), id); err != nil {
		writeDomainError(w, err, "Failed to complete instance")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRefresh runs a periodic refresh pass immediately.
// POST /api/admin/refresh
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reconciler.OnPeriodicRefresh(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{
		Templates: summary.Templates,
		Generated: summary.Generated,
		Failed:    summary.Failed,
	})
}

// TriggerRepair runs a duplicate repair pass over the requested scope.
// POST /api/admin/repair
func (h *Handler) TriggerRepair(w http.ResponseWriter, r *http.Request) {
	var req RepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report, err := h.Repairer.Repair(r.Context(), recurring.RepairScope{
		TemplateID: recurring.TemplateID(req.TemplateID),
		OwnerID:    recurring.OwnerID(req.OwnerID),
	})
	if err != nil {
		writeDomainError(w, err, "Repair failed")
		return
	}
	writeJSON(w, http.StatusOK, RepairResponse{
		Groups:  report.Groups,
		Removed: report.Removed,
		Failed:  report.Failed,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseEffectiveDate parses a YYYY-MM-DD effective date; empty means now.
func (h *Handler) parseEffectiveDate(s string) (time.Time, error) {
	if s == "" {
		return h.Clock.Now(), nil
	}
	return time.Parse(dateLayout, s)
}

func parseRange(fromStr, toStr string, now time.Time) (from, to time.Time, err error) {
	// Default: trailing year through the forward horizon.
	from = now.AddDate(-1, 0, 0)
	to = now.AddDate(recurring.DefaultHorizonYears, 0, 0)

	if fromStr != "" {
		if from, err = time.Parse(dateLayout, fromStr); err != nil {
			return from, to, err
		}
	}
	if toStr != "" {
		if to, err = time.Parse(dateLayout, toStr); err != nil {
			return from, to, err
		}
		// Inclusive day bound
		to = to.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case recurring.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case recurring.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
