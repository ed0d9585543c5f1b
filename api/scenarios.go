/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic chit
  data. Every scenario goes through the same services the API uses, so the
  loaded data obeys the same rules as live data.

AVAILABLE SCENARIOS:
  gold-running:  Five member chit, everyone approved, two months paid,
                 released with a 20,000 bid and three settlement records
  full-chit:     Three seat chit already full, one pending request waiting
                 to be auto-rejected on approval
  report-mix:    Several chits in different states for the admin report,
                 including one released with an overridden commission

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Register members
 3. Create chits from factory templates
 4. Join and approve members
 5. Record contributions, payments, releases and records

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "gold-running"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Services the loaders drive
  - factory/presets.go: Chit templates
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/manish-vm/EGS-chitfund-management-backend/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "gold-running",
		Name:        "Gold Running",
		Description: "Five members, two paid months, released with a 20,000 bid",
	},
	{
		ID:          "full-chit",
		Name:        "Full Chit",
		Description: "Capacity reached with one request still pending",
	},
	{
		ID:          "report-mix",
		Name:        "Report Mix",
		Description: "Chits in several states for the admin report",
	},
}

// Fixed member ids so tokens minted for demos stay valid across reloads.
var demoMembers = []chit.MemberInput{
	{ID: "10000000-0000-0000-0000-000000000001", Name: "Anitha Raman", Email: "anitha@example.com", Phone: "9000000001", Role: chit.RoleMember},
	{ID: "10000000-0000-0000-0000-000000000002", Name: "Bala Krishnan", Email: "bala@example.com", Phone: "9000000002", Role: chit.RoleMember},
	{ID: "10000000-0000-0000-0000-000000000003", Name: "Chitra Devi", Email: "chitra@example.com", Phone: "9000000003", Role: chit.RoleMember},
	{ID: "10000000-0000-0000-0000-000000000004", Name: "Dinesh Kumar", Email: "dinesh@example.com", Phone: "9000000004", Role: chit.RoleMember},
	{ID: "10000000-0000-0000-0000-000000000005", Name: "Ezhil Arasan", Email: "ezhil@example.com", Phone: "9000000005", Role: chit.RoleMember},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var load func(context.Context, string) error
	switch req.ScenarioID {
	case "gold-running":
		load = h.loadGoldRunningScenario
	case "full-chit":
		load = h.loadFullChitScenario
	case "report-mix":
		load = h.loadReportMixScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, IdentityFrom(ctx).UserID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	slog.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.store.(Resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	return rs.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadGoldRunningScenario(ctx context.Context, operator string) error {
	if err := h.registerMembers(ctx, demoMembers); err != nil {
		return err
	}

	start := h.monthsAgo(1)
	c, err := h.createChitFromJSON(ctx, factory.MonthlyChitJSON("Gold 1L", 100000, 5, 5, start.Format(time.DateOnly)), operator)
	if err != nil {
		return err
	}
	if err := h.admit(ctx, c.ID, demoMembers, operator); err != nil {
		return err
	}

	// Two paid months; the last member still owes the current one.
	installment := chit.MoneyFromInt(20000)
	for i, p := range chit.PeriodsFrom(start, 2) {
		for j, m := range demoMembers {
			if i == 1 && j == len(demoMembers)-1 {
				continue
			}
			if _, err := h.Contributions.RecordContribution(ctx, chit.ContributionInput{
				ChitID: c.ID, MemberID: m.ID, Amount: installment, Month: p.Month, Year: p.Year,
			}); err != nil {
				return fmt.Errorf("failed to record contribution: %w", err)
			}
		}
	}

	// The straggler has reported a payment that awaits verification.
	current := chit.PeriodsFrom(start, 2)[1]
	if _, err := h.Contributions.CreatePayment(ctx, chit.PaymentInput{
		ChitID: c.ID, MemberID: demoMembers[len(demoMembers)-1].ID, Amount: installment,
		Month: current.Month, Year: current.Year, Note: "Paid by UPI",
	}); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	released, err := h.Releases.Release(ctx, c.ID, chit.ReleaseInput{
		Bid:        chit.MoneyFromInt(20000),
		OperatorID: operator,
		Note:       "First auction",
	})
	if err != nil {
		return fmt.Errorf("failed to release chit: %w", err)
	}

	snap := released.Released
	for i := 0; i < 3; i++ {
		date := start.AddDate(0, 0, 7*i)
		in := chit.RecordInput{
			ChitID:       c.ID,
			ChitName:     c.Name,
			WalletAmount: snap.WalletAmount.Ptr(),
			BidAmount:    chit.MoneyFromInt(20000).Ptr(),
			Distributed:  snap.GWB.Ptr(),
			Date:         &date,
			CreatedBy:    operator,
		}
		if i == 0 {
			in.IsRelease = true
			in.ReleasedAmount = snap.FWA
		}
		if _, err := h.Records.CreateRecord(ctx, in); err != nil {
			return fmt.Errorf("failed to create record: %w", err)
		}
	}
	return nil
}

func (h *Handler) loadFullChitScenario(ctx context.Context, operator string) error {
	if err := h.registerMembers(ctx, demoMembers); err != nil {
		return err
	}

	c, err := h.createChitFromJSON(ctx, factory.MonthlyChitJSON("Silver 30K", 30000, 3, 3, h.monthsAgo(0).Format(time.DateOnly)), operator)
	if err != nil {
		return err
	}

	// Four applicants for three seats; the fourth stays pending.
	pending := make([]string, 0, 4)
	for _, m := range demoMembers[:4] {
		jr, _, err := h.Memberships.CreateJoinRequest(ctx, m.ID, c.ID)
		if err != nil {
			return fmt.Errorf("failed to create join request: %w", err)
		}
		pending = append(pending, jr.ID)
	}
	for _, id := range pending[:3] {
		if _, err := h.Memberships.Approve(ctx, id, operator); err != nil {
			return fmt.Errorf("failed to approve join request: %w", err)
		}
	}
	return nil
}

func (h *Handler) loadReportMixScenario(ctx context.Context, operator string) error {
	if err := h.registerMembers(ctx, demoMembers); err != nil {
		return err
	}

	// Open chit with a partial roster and no release yet.
	open, err := h.createChitFromJSON(ctx, factory.MonthlyChitJSON("Bronze 50K", 50000, 5, 5, h.monthsAgo(0).Format(time.DateOnly)), operator)
	if err != nil {
		return err
	}
	if err := h.admit(ctx, open.ID, demoMembers[:2], operator); err != nil {
		return err
	}

	// Running pooled chit released with an overridden commission.
	start := h.monthsAgo(3)
	pooled, err := h.createChitFromJSON(ctx,
		factory.PooledChitJSON("Diamond Pool", 100000, 500000, 5, 5, start.Format(time.DateOnly), "0.04"), operator)
	if err != nil {
		return err
	}
	if err := h.admit(ctx, pooled.ID, demoMembers, operator); err != nil {
		return err
	}
	for _, m := range demoMembers {
		p := chit.PeriodsFrom(start, 1)[0]
		if _, err := h.Contributions.RecordContribution(ctx, chit.ContributionInput{
			ChitID: pooled.ID, MemberID: m.ID, Amount: chit.MoneyFromInt(100000), Month: p.Month, Year: p.Year,
		}); err != nil {
			return fmt.Errorf("failed to record contribution: %w", err)
		}
	}
	if _, err := h.Releases.Release(ctx, pooled.ID, chit.ReleaseInput{
		Bid:                chit.MoneyFromInt(75000),
		CommissionOverride: chit.MoneyFromInt(20000).Ptr(),
		OperatorID:         operator,
	}); err != nil {
		return fmt.Errorf("failed to release chit: %w", err)
	}

	// Draft chit nobody has joined.
	if _, err := h.createChitFromJSON(ctx,
		`{"name":"Platinum 2L","amount":200000,"duration_in_months":20,"total_members":20}`, operator); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) registerMembers(ctx context.Context, members []chit.MemberInput) error {
	for _, m := range members {
		if _, err := h.Chits.SaveMember(ctx, m); err != nil {
			return fmt.Errorf("failed to save member %s: %w", m.Name, err)
		}
	}
	return nil
}

func (h *Handler) createChitFromJSON(ctx context.Context, jsonStr, operator string) (*chit.Chit, error) {
	in, err := h.Templates.ParseChit(jsonStr)
	if err != nil {
		return nil, err
	}
	in.CreatedBy = operator
	c, err := h.Chits.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create chit %s: %w", in.Name, err)
	}
	return c, nil
}

// admit files and approves a join request for every member.
func (h *Handler) admit(ctx context.Context, chitID string, members []chit.MemberInput, operator string) error {
	for _, m := range members {
		jr, _, err := h.Memberships.CreateJoinRequest(ctx, m.ID, chitID)
		if err != nil {
			return fmt.Errorf("failed to create join request: %w", err)
		}
		if _, err := h.Memberships.Approve(ctx, jr.ID, operator); err != nil {
			return fmt.Errorf("failed to approve join request: %w", err)
		}
	}
	return nil
}

// monthsAgo returns the first day of the month n months before now.
func (h *Handler) monthsAgo(n int) time.Time {
	now := time.Now()
	if h.now != nil {
		now = h.now()
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -n, 0)
}
