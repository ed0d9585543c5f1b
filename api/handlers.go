/*
handlers.go - HTTP API handlers for the chit fund engine

PURPOSE:
  Exposes the chit engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the chit services.

ENDPOINTS:
  Members:
    GET/POST /api/members                      Directory (admin)

  Chits:
    POST   /api/chits                          Create chit (admin)
    GET    /api/chits                          List chits
    GET    /api/chits/joined                   Chits the caller has joined
    GET    /api/chits/{id}                     Chit with collected total
    PUT    /api/chits/{id}                     Update definition (admin)
    DELETE /api/chits/{id}                     Delete a chit without members (admin)
    PATCH  /api/chits/{id}/release             Persist settlement snapshot (admin)

  Settlement records:
    GET    /api/chits/{id}/generated           List, ?monthKey=YYYY-MM
    POST   /api/chits/{id}/generated           Create with next sequence number
    PUT    /api/chits/{id}/generated/{rowId}   Patch fields
    DELETE /api/chits/{id}/generated/{rowId}   Delete (no renumbering)

  Membership:
    POST   /api/chits/{id}/join                Apply to join (member)
    GET    /api/join-requests/mine             Caller's requests
    GET    /api/join-requests/pending          Queue (admin)
    POST   /api/join-requests/{id}/approve     Approve or auto-reject when full
    POST   /api/join-requests/{id}/reject      Reject with reason

  Contributions and payments:
    POST   /api/contributions                  Record paid installment (admin)
    GET    /api/contributions                  ?memberId=, across chits
    GET    /api/chits/{id}/contributions       ?memberId= filter
    GET    /api/chits/{id}/unpaid/{memberId}   Months without a contribution
    POST   /api/chits/{id}/payments            Report a payment (member)
    GET    /api/payments                       ?status= (admin)
    GET    /api/payments/mine                  Caller's payment history
    GET    /api/payments/{id}                  Owner or admin
    PATCH  /api/payments/{id}/request-verification
    PATCH  /api/payments/{id}/approve          Creates the contribution
    PATCH  /api/payments/{id}/reject

  Notifications:
    GET    /api/notifications/mine             Caller's inbox
    PATCH  /api/notifications/read-all         Mark the inbox read
    PATCH  /api/notifications/{id}/read
    DELETE /api/notifications/{id}

  Reports:
    GET    /api/admin/reports                  ?q&from&to&sortBy&sortDir&page&pageSize
    POST   /api/admin/reminders/run            Send due contribution reminders

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with status from statusFor:
  - 400: Validation errors, malformed ids, unparsable amounts and dates
  - 403: Caller lacks the right (or is not a member)
  - 404: Resource not found
  - 409: Duplicates, sequence races, invalid state transitions
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/manish-vm/EGS-chitfund-management-backend/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all stored data. Needed only for demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Deps are the collaborators a Handler is built from.
type Deps struct {
	Store      chit.TxStore
	Calculator *chit.Calculator
	Notifier   chit.Notifier
	Tasks      chit.TaskQueue
	Inbox      chit.NotificationStore // optional, defaults to Store
	Now        func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Chits         *chit.ChitService
	Releases      *chit.ReleaseService
	Records       *chit.SequenceAllocator
	Memberships   *chit.MembershipService
	Contributions *chit.ContributionService
	Reporter      *chit.Reporter
	Reminders     *chit.ReminderService
	Templates     *factory.ChitFactory

	store chit.TxStore
	now   func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the chit services over one store.
func NewHandler(d Deps) *Handler {
	if d.Calculator == nil {
		d.Calculator = chit.NewCalculator(chit.DefaultCommissionRate)
	}
	return &Handler{
		Chits:         &chit.ChitService{Store: d.Store, Tasks: d.Tasks, Notifier: d.Notifier, Now: d.Now, Inbox: d.Inbox},
		Releases:      &chit.ReleaseService{Chits: d.Store, Calculator: d.Calculator, Now: d.Now},
		Records:       &chit.SequenceAllocator{Records: d.Store, Now: d.Now},
		Memberships:   &chit.MembershipService{Store: d.Store, Notifier: d.Notifier, Now: d.Now},
		Contributions: &chit.ContributionService{Store: d.Store, Notifier: d.Notifier, Now: d.Now},
		Reporter:      &chit.Reporter{Source: d.Store, Calculator: d.Calculator},
		Reminders:     &chit.ReminderService{Store: d.Store, Notifier: d.Notifier, Now: d.Now},
		Templates:     factory.NewChitFactory(),
		store:         d.Store,
		now:           d.Now,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns the directory.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Chits.ListMembers(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember adds or updates a directory entry.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.Chits.SaveMember(r.Context(), chit.MemberInput{
		ID:    req.ID,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  chit.Role(req.Role),
	})
	if err != nil {
		writeServiceError(w, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(*m))
}

// MyNotifications returns the caller's inbox.
func (h *Handler) MyNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Chits.Notifications(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to list notifications", err)
		return
	}
	dtos := make([]NotificationDTO, len(notes))
	for i, n := range notes {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead marks one of the caller's notifications read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Chits.MarkNotificationRead(r.Context(), IdentityFrom(r.Context()).UserID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "Failed to mark notification read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllNotificationsRead marks the caller's inbox read.
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Chits.MarkAllNotificationsRead(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to mark notifications read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// DeleteNotification removes one of the caller's notifications.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.Chits.DeleteNotification(r.Context(), IdentityFrom(r.Context()).UserID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "Failed to delete notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CHIT HANDLERS
// =============================================================================

// CreateChit creates a chit and announces it to every member.
func (h *Handler) CreateChit(w http.ResponseWriter, r *http.Request) {
	var req CreateChitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var fp fieldParser
	in := chit.ChitInput{
		Name:             req.Name,
		Description:      req.Description,
		Amount:           fp.amount("amount", req.Amount),
		TotalAmount:      fp.money("totalAmount", req.TotalAmount),
		DurationInMonths: req.DurationInMonths,
		TotalMembers:     req.TotalMembers,
		StartDate:        fp.date("startDate", req.StartDate),
		Status:           chit.ChitStatus(req.Status),
		CommissionRate:   fp.rate("commissionRate", req.CommissionRate),
		CreatedBy:        IdentityFrom(r.Context()).UserID,
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid chit", fp.err)
		return
	}

	c, err := h.Chits.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, "Failed to create chit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChitDTO(*c))
}

// UpdateChit changes a chit's definition. Roster and release are untouched.
func (h *Handler) UpdateChit(w http.ResponseWriter, r *http.Request) {
	var req UpdateChitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var fp fieldParser
	patch := chit.ChitPatch{
		Name:             req.Name,
		Description:      req.Description,
		Amount:           fp.money("amount", req.Amount),
		TotalAmount:      fp.money("totalAmount", req.TotalAmount),
		DurationInMonths: req.DurationInMonths,
		TotalMembers:     req.TotalMembers,
		CommissionRate:   fp.rate("commissionRate", req.CommissionRate),
	}
	if req.StartDate != nil {
		patch.StartDate = fp.date("startDate", *req.StartDate)
	}
	if req.Status != nil {
		status := chit.ChitStatus(*req.Status)
		patch.Status = &status
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid chit", fp.err)
		return
	}

	c, err := h.Chits.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, "Failed to update chit", err)
		return
	}
	writeJSON(w, http.StatusOK, toChitDTO(*c))
}

// DeleteChit removes a chit that has no approved members.
func (h *Handler) DeleteChit(w http.ResponseWriter, r *http.Request) {
	if err := h.Chits.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "Failed to delete chit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinedChits lists the chits the caller is an approved member of.
func (h *Handler) JoinedChits(w http.ResponseWriter, r *http.Request) {
	chits, err := h.Chits.JoinedChits(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to list joined chits", err)
		return
	}
	dtos := make([]ChitDTO, len(chits))
	for i, c := range chits {
		dtos[i] = toChitDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListChits returns all chits, newest first.
func (h *Handler) ListChits(w http.ResponseWriter, r *http.Request) {
	chits, err := h.Chits.List(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list chits", err)
		return
	}
	dtos := make([]ChitDTO, len(chits))
	for i, c := range chits {
		dtos[i] = toChitDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChit returns a chit with its collected total.
func (h *Handler) GetChit(w http.ResponseWriter, r *http.Request) {
	view, err := h.Chits.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get chit", err)
		return
	}
	dto := toChitDTO(view.Chit)
	collected := view.Collected.Float64()
	dto.Collected = &collected
	writeJSON(w, http.StatusOK, dto)
}

// ReleaseChit computes and persists the settlement snapshot.
func (h *Handler) ReleaseChit(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var fp fieldParser
	in := chit.ReleaseInput{
		Bid:                fp.amount("bidAmount", req.Bid),
		WalletAmount:       fp.money("walletAmount", req.WalletAmount),
		CommissionOverride: fp.money("commission", req.Commission),
		OperatorID:         IdentityFrom(r.Context()).UserID,
		Note:               req.Note,
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid release", fp.err)
		return
	}
	c, err := h.Releases.Release(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, "Failed to release chit", err)
		return
	}
	settlementReleases.Inc()
	writeJSON(w, http.StatusOK, toChitDTO(*c))
}

// =============================================================================
// SETTLEMENT RECORD HANDLERS
// =============================================================================

// ListRecords returns a chit's settlement records, newest first.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Records.ListRecords(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("monthKey"))
	if err != nil {
		writeServiceError(w, "Failed to list records", err)
		return
	}
	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRecord allocates the next sequence number. A lost race is a 409 and
// the client retries.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var fp fieldParser
	in := chit.RecordInput{
		ChitID:         chi.URLParam(r, "id"),
		ChitName:       req.ChitName,
		WalletAmount:   fp.money("walletAmount", req.WalletAmount),
		BidAmount:      fp.money("bidAmount", req.BidAmount),
		Distributed:    fp.money("distributed", req.Distributed),
		Date:           fp.date("date", req.Date),
		IsRelease:      req.IsRelease,
		ReleasedAmount: fp.amount("releasedAmount", req.ReleasedAmount),
		CreatedBy:      IdentityFrom(r.Context()).UserID,
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid record", fp.err)
		return
	}

	rec, err := h.Records.CreateRecord(r.Context(), in)
	if err != nil {
		if chit.IsRetryable(err) {
			sequenceConflicts.Inc()
		}
		writeServiceError(w, "Failed to create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(*rec))
}

// UpdateRecord patches a record. The sequence number never changes.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var fp fieldParser
	patch := chit.RecordPatch{
		ChitName:     req.ChitName,
		WalletAmount: fp.money("walletAmount", req.WalletAmount),
		BidAmount:    fp.money("bidAmount", req.BidAmount),
		Distributed:  fp.money("distributed", req.Distributed),
		MonthKey:     req.MonthKey,
	}
	if req.Date != nil {
		if patch.Date = fp.date("date", *req.Date); patch.Date == nil {
			fp.fail("date", "must be a date")
		}
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid record", fp.err)
		return
	}

	rec, err := h.Records.UpdateRecord(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "rowId"), patch)
	if err != nil {
		writeServiceError(w, "Failed to update record", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// DeleteRecord removes a record without renumbering its siblings.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.Records.DeleteRecord(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "rowId")); err != nil {
		writeServiceError(w, "Failed to delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MEMBERSHIP HANDLERS
// =============================================================================

// JoinChit files a join request for the caller. Repeating the call while a
// request is pending returns the same request with 200.
func (h *Handler) JoinChit(w http.ResponseWriter, r *http.Request) {
	jr, created, err := h.Memberships.CreateJoinRequest(r.Context(), IdentityFrom(r.Context()).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to create join request", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toJoinRequestDTO(*jr))
}

// MyJoinRequests lists the caller's requests, newest first.
func (h *Handler) MyJoinRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.Memberships.ListByMember(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to list join requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toJoinRequestDTOs(list))
}

// PendingJoinRequests lists the approval queue, oldest first.
func (h *Handler) PendingJoinRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.Memberships.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list join requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toJoinRequestDTOs(list))
}

// ApproveJoinRequest approves a pending request. A full chit turns the
// approval into a rejection and still answers 200.
func (h *Handler) ApproveJoinRequest(w http.ResponseWriter, r *http.Request) {
	out, err := h.Memberships.Approve(r.Context(), chi.URLParam(r, "id"), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to approve join request", err)
		return
	}
	outcome := "approved"
	if errors.Is(out.Err(), chit.ErrCapacityExceeded) {
		outcome = chit.ReasonCapacityExceeded
	}
	joinDecisions.WithLabelValues(outcome).Inc()

	dto := ApprovalDTO{Request: toJoinRequestDTO(*out.Request), CapacityExceeded: out.CapacityExceeded}
	if out.Chit != nil {
		c := toChitDTO(*out.Chit)
		dto.Chit = &c
	}
	writeJSON(w, http.StatusOK, dto)
}

// RejectJoinRequest rejects a pending request.
func (h *Handler) RejectJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	jr, err := h.Memberships.Reject(r.Context(), chi.URLParam(r, "id"), IdentityFrom(r.Context()).UserID, req.Reason)
	if err != nil {
		writeServiceError(w, "Failed to reject join request", err)
		return
	}
	joinDecisions.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusOK, toJoinRequestDTO(*jr))
}

// =============================================================================
// CONTRIBUTION HANDLERS
// =============================================================================

// RecordContribution records a paid installment directly.
func (h *Handler) RecordContribution(w http.ResponseWriter, r *http.Request) {
	var req RecordContributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var fp fieldParser
	in := chit.ContributionInput{
		ChitID:   req.ChitID,
		MemberID: req.MemberID,
		Amount:   fp.amount("amount", req.Amount),
		Month:    req.Month,
		Year:     req.Year,
		PaidDate: fp.date("paidDate", req.PaidDate),
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid contribution", fp.err)
		return
	}
	c, err := h.Contributions.RecordContribution(r.Context(), in)
	if err != nil {
		writeServiceError(w, "Failed to record contribution", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContributionDTO(*c))
}

// ListContributions lists a chit's contributions. Members only see their own.
func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("memberId")
	if id := IdentityFrom(r.Context()); !id.IsAdmin() {
		memberID = id.UserID
	}
	list, err := h.Contributions.ListContributions(r.Context(), chi.URLParam(r, "id"), memberID)
	if err != nil {
		writeServiceError(w, "Failed to list contributions", err)
		return
	}
	dtos := make([]ContributionDTO, len(list))
	for i, c := range list {
		dtos[i] = toContributionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MemberContributions lists one member's contributions across every chit.
// Members may only ask about themselves.
func (h *Handler) MemberContributions(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	memberID := r.URL.Query().Get("memberId")
	if memberID == "" {
		memberID = id.UserID
	}
	if !id.IsAdmin() && memberID != id.UserID {
		writeServiceError(w, "Forbidden", chit.ErrForbidden)
		return
	}
	list, err := h.Contributions.MemberContributions(r.Context(), memberID)
	if err != nil {
		writeServiceError(w, "Failed to list contributions", err)
		return
	}
	dtos := make([]ContributionDTO, len(list))
	for i, c := range list {
		dtos[i] = toContributionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UnpaidPeriods lists the months a member still owes.
func (h *Handler) UnpaidPeriods(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")
	if id := IdentityFrom(r.Context()); !id.IsAdmin() && id.UserID != memberID {
		writeServiceError(w, "Forbidden", chit.ErrForbidden)
		return
	}
	periods, err := h.Contributions.UnpaidPeriods(r.Context(), chi.URLParam(r, "id"), memberID)
	if err != nil {
		writeServiceError(w, "Failed to list unpaid periods", err)
		return
	}
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = PeriodDTO{Month: p.Month, Year: p.Year}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment reports a payment for verification. Admins may report on a
// member's behalf.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := IdentityFrom(r.Context())
	memberID := id.UserID
	if id.IsAdmin() && req.MemberID != "" {
		memberID = req.MemberID
	}
	var fp fieldParser
	in := chit.PaymentInput{
		ChitID:   chi.URLParam(r, "id"),
		MemberID: memberID,
		Amount:   fp.amount("amount", req.Amount),
		Month:    req.Month,
		Year:     req.Year,
		Note:     req.Note,
	}
	if fp.err != nil {
		writeServiceError(w, "Invalid payment", fp.err)
		return
	}
	p, err := h.Contributions.CreatePayment(r.Context(), in)
	if err != nil {
		writeServiceError(w, "Failed to create payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p))
}

// ListPayments lists payments, optionally by status.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Contributions.ListPayments(r.Context(), chit.PaymentStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(list))
	for i, p := range list {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MyPayments lists the caller's payments, newest first.
func (h *Handler) MyPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Contributions.MemberPayments(r.Context(), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(list))
	for i, p := range list {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayment returns one payment to its owner or an admin.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	p, err := h.Contributions.GetPayment(r.Context(), chi.URLParam(r, "id"), id.UserID, id.Role)
	if err != nil {
		writeServiceError(w, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// RequestVerification moves a payment to verification_requested.
func (h *Handler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	p, err := h.Contributions.RequestVerification(r.Context(), chi.URLParam(r, "id"), id.UserID, id.Role)
	if err != nil {
		writeServiceError(w, "Failed to request verification", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// ApprovePayment marks a payment paid and records its contribution.
func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	p, c, err := h.Contributions.ApprovePayment(r.Context(), chi.URLParam(r, "id"), IdentityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, "Failed to approve payment", err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentApprovalDTO{Payment: toPaymentDTO(*p), Contribution: toContributionDTO(*c)})
}

// RejectPayment rejects a payment with a reason.
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.Contributions.RejectPayment(r.Context(), chi.URLParam(r, "id"), IdentityFrom(r.Context()).UserID, req.Reason)
	if err != nil {
		writeServiceError(w, "Failed to reject payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// Report returns the filtered, sorted, paginated chit report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := chit.NewReportQuery(q.Get("q"), q.Get("from"), q.Get("to"), q.Get("sortBy"), q.Get("sortDir"), q.Get("page"), q.Get("pageSize"))

	rep, err := h.Reporter.BuildReport(r.Context(), query)
	if err != nil {
		writeServiceError(w, "Failed to build report", err)
		return
	}
	reportDegradedRows.Add(float64(rep.Degraded))
	writeJSON(w, http.StatusOK, toReportResponse(rep))
}

// RunReminders sends contribution reminders immediately.
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.Reminders.SendDue(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to send reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeServiceError maps an engine error to its HTTP status.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(message, "error", err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case chit.IsClientError(err):
		return http.StatusBadRequest
	case chit.IsForbidden(err):
		return http.StatusForbidden
	case chit.IsNotFound(err):
		return http.StatusNotFound
	case chit.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the body into v, keeping numbers exact. It writes a 400
// and returns false on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// fieldParser converts loosely typed request fields. It keeps the first
// failure as a ValidationError naming the field.
type fieldParser struct {
	err error
}

// money returns nil for absent or blank values.
func (p *fieldParser) money(field string, v any) *chit.Money {
	if s, ok := v.(string); v == nil || ok && strings.TrimSpace(s) == "" {
		return nil
	}
	m, ok := chit.ParseMoneyStrict(v)
	if !ok {
		p.fail(field, "must be a number")
		return nil
	}
	return &m
}

// amount is money for required fields; absent is zero.
func (p *fieldParser) amount(field string, v any) chit.Money {
	if m := p.money(field, v); m != nil {
		return *m
	}
	return chit.Money{}
}

func (p *fieldParser) rate(field string, v any) *decimal.Decimal {
	if m := p.money(field, v); m != nil {
		return &m.Value
	}
	return nil
}

// date returns nil for a blank value.
func (p *fieldParser) date(field, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, ok := chit.ParseDate(raw)
	if !ok {
		p.fail(field, "must be a date")
		return nil
	}
	return &d
}

func (p *fieldParser) fail(field, message string) {
	if p.err == nil {
		p.err = &chit.ValidationError{Field: field, Message: message}
	}
}

func toJoinRequestDTOs(list []chit.JoinRequest) []JoinRequestDTO {
	dtos := make([]JoinRequestDTO, len(list))
	for i, jr := range list {
		dtos[i] = toJoinRequestDTO(jr)
	}
	return dtos
}
