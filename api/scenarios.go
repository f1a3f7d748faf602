/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates recurring templates
	and lets the reconciler materialize their instances, then adjusts
	instance status to simulate history.

AVAILABLE SCENARIOS:

	personal-budget: Rent, salary, and a gym membership for one owner
	freelancer:      Irregular income plus fixed costs, end-dated retainer
	shared-house:    Two owners splitting rent and utilities

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create templates via the reconciler (instances materialize immediately)
 3. Mark past-dated instances completed to simulate history

USAGE VIA API:

	POST /api/scenarios/load
	{"id": "personal-budget"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared response helpers
  - recurring/reconciler.go: OnTemplateCreate
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/recurring-engine/recurring"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "personal-budget",
		Name:        "Personal Budget",
		Description: "Rent, monthly salary, and a gym membership for one owner",
	},
	{
		ID:          "freelancer",
		Name:        "Freelancer",
		Description: "Retainer income with an end date plus fixed monthly costs",
	},
	{
		ID:          "shared-house",
		Name:        "Shared House",
		Description: "Two owners splitting rent and utilities",
	},
}

// resettable is implemented by stores that can wipe all data for demos.
type resettable interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	res, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support scenario loading", nil)
		return
	}
	if err := res.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ID {
	case "personal-budget":
		err = h.loadPersonalBudgetScenario(ctx)
	case "freelancer":
		err = h.loadFreelancerScenario(ctx)
	case "shared-house":
		err = h.loadSharedHouseScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadPersonalBudgetScenario(ctx context.Context) error {
	owner := recurring.OwnerID("owner-alice")

	templates := []recurring.Template{
		{
			OwnerID:     owner,
			Description: "Rent",
			Amount:      decimal.NewFromInt(1450),
			Kind:        recurring.KindExpense,
			Category:    "housing",
			DayOfMonth:  1,
			Active:      true,
		},
		{
			OwnerID:     owner,
			Description: "Salary",
			Amount:      decimal.NewFromInt(5200),
			Kind:        recurring.KindIncome,
			Category:    "salary",
			DayOfMonth:  25,
			Active:      true,
		},
		{
			OwnerID:     owner,
			Description: "Gym membership",
			Amount:      decimal.NewFromFloat(39.99),
			Kind:        recurring.KindExpense,
			Category:    "health",
			DayOfMonth:  15,
			Active:      true,
		},
	}

	for _, tpl := range templates {
		if _, err := h.Reconciler.OnTemplateCreate(ctx, tpl); err != nil {
			return err
		}
	}

	return h.completePastInstances(ctx, owner)
}

func (h *Handler) loadFreelancerScenario(ctx context.Context) error {
	owner := recurring.OwnerID("owner-bob")
	now := h.Clock.Now()

	// Retainer ends six months out
	retainerEnd := now.AddDate(0, 6, 0)

	templates := []recurring.Template{
		{
			OwnerID:     owner,
			Description: "Client retainer",
			Amount:      decimal.NewFromInt(3000),
			Kind:        recurring.KindIncome,
			Category:    "consulting",
			DayOfMonth:  5,
			Active:      true,
			EndDate:     &retainerEnd,
		},
		{
			OwnerID:     owner,
			Description: "Coworking desk",
			Amount:      decimal.NewFromInt(250),
			Kind:        recurring.KindExpense,
			Category:    "office",
			DayOfMonth:  1,
			Active:      true,
		},
		{
			OwnerID:     owner,
			Description: "Accounting software",
			Amount:      decimal.NewFromFloat(29.50),
			Kind:        recurring.KindExpense,
			Category:    "tools",
			DayOfMonth:  31,
			Active:      true,
		},
	}

	for _, tpl := range templates {
		if _, err := h.Reconciler.OnTemplateCreate(ctx, tpl); err != nil {
			return err
		}
	}

	return h.completePastInstances(ctx, owner)
}

func (h *Handler) loadSharedHouseScenario(ctx context.Context) error {
	owners := []recurring.OwnerID{"owner-carol", "owner-dan"}

	for _, owner := range owners {
		templates := []recurring.Template{
			{
				OwnerID:     owner,
				Description: "Rent (half share)",
				Amount:      decimal.NewFromInt(900),
				Kind:        recurring.KindExpense,
				Category:    "housing",
				DayOfMonth:  1,
				Active:      true,
			},
			{
				OwnerID:     owner,
				Description: "Utilities (half share)",
				Amount:      decimal.NewFromInt(85),
				Kind:        recurring.KindExpense,
				Category:    "utilities",
				DayOfMonth:  20,
				Active:      true,
			},
		}
		for _, tpl := range templates {
			if _, err := h.Reconciler.OnTemplateCreate(ctx, tpl); err != nil {
				return err
			}
		}
	}

	for _, owner := range owners {
		if err := h.completePastInstances(ctx, owner); err != nil {
			return err
		}
	}
	return nil
}

// completePastInstances marks instances dated before today as completed so
// the seeded data has some history rather than an all-pending ledger.
func (h *Handler) completePastInstances(ctx context.Context, owner recurring.OwnerID) error {
	today := recurring.DateOnly(h.Clock.Now())
	instances, err := h.Store.ListInstancesByOwner(ctx, owner, time.Time{}, today)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if inst.Status != recurring.StatusPending {
			continue
		}
		if !inst.Date.Before(today) {
			continue
		}
		if err := h.Store.MarkInstanceCompleted(ctx, inst.ID); err != nil {
			return err
		}
	}
	return nil
}
