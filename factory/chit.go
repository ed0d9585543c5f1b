/*
Package factory provides JSON to Go chit conversion.

PURPOSE:
  Converts JSON chit templates into validated chit.ChitInput values so that
  seed data, demo scenarios and admin tooling can describe schemes without
  code changes.

JSON SCHEMA:
  {
    "name": "Gold 1L",
    "description": "Ten month lakh scheme",
    "amount": 100000,
    "total_amount": 100000,
    "duration_in_months": 10,
    "total_members": 10,
    "start_date": "2025-01-01",
    "status": "open",
    "commission_rate": 0.05
  }

  Amounts accept JSON numbers or numeric strings. Omitted status means
  "draft"; omitted start date means "now" (decided by the service).

USAGE:
  f := factory.NewChitFactory()
  in, err := f.ParseChit(factory.MonthlyChitJSON("Gold 1L", 100000, 10, 10, "2025-01-01"))
  c, err := chits.Create(ctx, in)

SEE ALSO:
  - chit/chits.go: ChitInput and its validation
  - presets.go: ready-made templates
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ChitJSON is the JSON representation of a chit template.
type ChitJSON struct {
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	Amount           json.Number `json:"amount"`
	TotalAmount      json.Number `json:"total_amount,omitempty"`
	DurationInMonths int         `json:"duration_in_months"`
	TotalMembers     int         `json:"total_members"`
	StartDate        string      `json:"start_date,omitempty"`
	Status           string      `json:"status,omitempty"`
	CommissionRate   json.Number `json:"commission_rate,omitempty"`
}

// =============================================================================
// CHIT FACTORY
// =============================================================================

// ChitFactory converts JSON templates to chit inputs.
type ChitFactory struct{}

func NewChitFactory() *ChitFactory {
	return &ChitFactory{}
}

// ParseChit parses and validates a JSON template.
func (f *ChitFactory) ParseChit(jsonStr string) (chit.ChitInput, error) {
	dec := json.NewDecoder(bytes.NewBufferString(jsonStr))
	dec.DisallowUnknownFields()
	var cj ChitJSON
	if err := dec.Decode(&cj); err != nil {
		return chit.ChitInput{}, fmt.Errorf("failed to parse chit JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts a template and validates the result.
func (f *ChitFactory) FromJSON(cj ChitJSON) (chit.ChitInput, error) {
	in := chit.ChitInput{
		Name:             cj.Name,
		Description:      cj.Description,
		Amount:           chit.ParseMoney(cj.Amount),
		DurationInMonths: cj.DurationInMonths,
		TotalMembers:     cj.TotalMembers,
		Status:           chit.ChitStatus(cj.Status),
	}
	if cj.TotalAmount != "" {
		total := chit.ParseMoney(cj.TotalAmount)
		in.TotalAmount = &total
	}
	if cj.StartDate != "" {
		start, ok := chit.ParseDate(cj.StartDate)
		if !ok {
			return chit.ChitInput{}, &chit.ValidationError{Field: "start_date", Message: fmt.Sprintf("unparsable date %q", cj.StartDate)}
		}
		in.StartDate = &start
	}
	if cj.CommissionRate != "" {
		rate, err := decimal.NewFromString(cj.CommissionRate.String())
		if err != nil {
			return chit.ChitInput{}, &chit.ValidationError{Field: "commission_rate", Message: "must be a number"}
		}
		in.CommissionRate = &rate
	}
	if err := in.Validate(); err != nil {
		return chit.ChitInput{}, err
	}
	return in, nil
}
