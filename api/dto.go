/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (dates parse, amounts parse) is done in handlers;
  domain validation (day-of-month bounds, kind) lives in the recurring
  package and is reused here.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/recurring-engine/recurring"
)

// dateLayout is the wire format for calendar dates.
const dateLayout = "2006-01-02"

// =============================================================================
// TEMPLATE TYPES
// =============================================================================

// TemplateDTO represents a recurring template in API responses.
type TemplateDTO struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	DayOfMonth  int    `json:"day_of_month"`
	Active      bool   `json:"active"`
	EndDate     string `json:"end_date,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func toTemplateDTO(t recurring.Template) TemplateDTO {
	dto := TemplateDTO{
		ID:          string(t.ID),
		OwnerID:     string(t.OwnerID),
		Description: t.Description,
		Amount:      t.Amount.String(),
		Kind:        string(t.Kind),
		Category:    t.Category,
		DayOfMonth:  t.DayOfMonth,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
	if t.EndDate != nil {
		dto.EndDate = t.EndDate.Format(dateLayout)
	}
	return dto
}

// CreateTemplateRequest is the request to create a template.
type CreateTemplateRequest struct {
	OwnerID     string `json:"owner_id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	DayOfMonth  int    `json:"day_of_month"`
	EndDate     string `json:"end_date,omitempty"`
}

// UpdateTemplateRequest is a field-level patch; omitted fields stay as-is.
type UpdateTemplateRequest struct {
	Description  *string `json:"description,omitempty"`
	Amount       *string `json:"amount,omitempty"`
	Kind         *string `json:"kind,omitempty"`
	Category     *string `json:"category,omitempty"`
	DayOfMonth   *int    `json:"day_of_month,omitempty"`
	EndDate      *string `json:"end_date,omitempty"`
	ClearEndDate bool    `json:"clear_end_date,omitempty"`

	// EffectiveDate scopes the regeneration; defaults to today.
	EffectiveDate string `json:"effective_date,omitempty"`
}

func (r UpdateTemplateRequest) toPatch() (recurring.TemplatePatch, error) {
	patch := recurring.TemplatePatch{
		Description:  r.Description,
		Category:     r.Category,
		DayOfMonth:   r.DayOfMonth,
		ClearEndDate: r.ClearEndDate,
	}
	if r.Amount != nil {
		amount, err := decimal.NewFromString(*r.Amount)
		if err != nil {
			return patch, &recurring.ValidationError{Field: "amount", Message: "must be a decimal number"}
		}
		patch.Amount = &amount
	}
	if r.Kind != nil {
		kind := recurring.Kind(*r.Kind)
		patch.Kind = &kind
	}
	if r.EndDate != nil {
		endDate, err := time.Parse(dateLayout, *r.EndDate)
		if err != nil {
			return patch, &recurring.ValidationError{Field: "end_date", Message: "must be YYYY-MM-DD"}
		}
		patch.EndDate = &endDate
	}
	return patch, nil
}

// DeleteTemplateRequest carries the effective date of a retirement.
type DeleteTemplateRequest struct {
	EffectiveDate string `json:"effective_date,omitempty"`
}

// =============================================================================
// INSTANCE TYPES
// =============================================================================

// InstanceDTO represents a materialized transaction in API responses.
type InstanceDTO struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	TemplateID  string `json:"template_id,omitempty"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toInstanceDTO(inst recurring.Instance) InstanceDTO {
	dto := InstanceDTO{
		ID:          string(inst.ID),
		OwnerID:     string(inst.OwnerID),
		Description: inst.Description,
		Amount:      inst.Amount.String(),
		Kind:        string(inst.Kind),
		Category:    inst.Category,
		Date:        inst.Date.Format(dateLayout),
		Status:      string(inst.Status),
		CreatedAt:   inst.CreatedAt.Format(time.RFC3339),
	}
	if inst.TemplateID != nil {
		dto.TemplateID = string(*inst.TemplateID)
	}
	return dto
}

func toInstanceDTOs(instances []recurring.Instance) []InstanceDTO {
	dtos := make([]InstanceDTO, len(instances))
	for i, inst := range instances {
		dtos[i] = toInstanceDTO(inst)
	}
	return dtos
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// RefreshResponse reports a periodic refresh pass.
type RefreshResponse struct {
	Templates int `json:"templates"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
}

// RepairRequest selects a repair scope (exactly one field).
type RepairRequest struct {
	TemplateID string `json:"template_id,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
}

// RepairResponse reports a duplicate repair pass.
type RepairResponse struct {
	Groups  int `json:"groups"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to seed.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
