/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the chit
  engine's types from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY ON THE WIRE:
  Requests accept amounts as JSON numbers or numeric strings. Any other
  present value is a 400 naming the field (see chit.ParseMoneyStrict).
  Responses carry plain numbers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateMemberRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type CreateChitRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Amount           any    `json:"amount"`
	TotalAmount      any    `json:"totalAmount"`
	DurationInMonths int    `json:"durationInMonths"`
	TotalMembers     int    `json:"totalMembers"`
	StartDate        string `json:"startDate"`
	Status           string `json:"status"`
	CommissionRate   any    `json:"commissionRate"`
}

// UpdateChitRequest changes a chit's definition. Absent fields are kept.
type UpdateChitRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	Amount           any     `json:"amount"`
	TotalAmount      any     `json:"totalAmount"`
	DurationInMonths *int    `json:"durationInMonths"`
	TotalMembers     *int    `json:"totalMembers"`
	StartDate        *string `json:"startDate"`
	Status           *string `json:"status"`
	CommissionRate   any     `json:"commissionRate"`
}

// ReleaseRequest mirrors the release form. Missing optional amounts are
// derived; present ones are stored as given.
type ReleaseRequest struct {
	Bid          any    `json:"bidAmount"`
	Commission   any    `json:"commission"`
	WalletAmount any    `json:"walletAmount"`
	Note         string `json:"note"`
}

type CreateRecordRequest struct {
	ChitName       string `json:"chitName"`
	WalletAmount   any    `json:"walletAmount"`
	BidAmount      any    `json:"bidAmount"`
	Distributed    any    `json:"distributed"`
	Date           string `json:"date"`
	IsRelease      bool   `json:"isRelease"`
	ReleasedAmount any    `json:"releasedAmount"`
}

type UpdateRecordRequest struct {
	ChitName     *string `json:"chitName"`
	WalletAmount any     `json:"walletAmount"`
	BidAmount    any     `json:"bidAmount"`
	Distributed  any     `json:"distributed"`
	Date         *string `json:"date"`
	MonthKey     *string `json:"monthKey"`
}

type DecisionRequest struct {
	Reason string `json:"reason"`
}

type RecordContributionRequest struct {
	ChitID   string `json:"chitId"`
	MemberID string `json:"memberId"`
	Amount   any    `json:"amount"`
	Month    string `json:"month"`
	Year     int    `json:"year"`
	PaidDate string `json:"paidDate"`
}

type CreatePaymentRequest struct {
	MemberID string `json:"memberId"`
	Amount   any    `json:"amount"`
	Month    string `json:"month"`
	Year     int    `json:"year"`
	Note     string `json:"note"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type MemberDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type RosterEntryDTO struct {
	MemberID string `json:"memberId"`
	Approved bool   `json:"approved"`
	JoinedAt string `json:"joinedAt,omitempty"`
}

type SnapshotDTO struct {
	RCA          float64 `json:"rca"`
	GWB          float64 `json:"gwb"`
	Commission   float64 `json:"commission"`
	FWA          float64 `json:"fwa"`
	WalletAmount float64 `json:"walletAmount"`
	ReleasedAt   string  `json:"releasedAt"`
	ReleasedBy   string  `json:"releasedBy,omitempty"`
	Note         string  `json:"note,omitempty"`
}

type ChitDTO struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Amount            float64          `json:"amount"`
	TotalAmount       *float64         `json:"totalAmount,omitempty"`
	DurationInMonths  int              `json:"durationInMonths"`
	TotalMembers      int              `json:"totalMembers"`
	ApprovedMembers   int              `json:"approvedMembers"`
	StartDate         string           `json:"startDate"`
	Status            string           `json:"status"`
	CommissionRate    *float64         `json:"commissionRate,omitempty"`
	Members           []RosterEntryDTO `json:"members"`
	Released          *SnapshotDTO     `json:"released,omitempty"`
	WalletAmount      *float64         `json:"walletAmount,omitempty"`
	DistributedAmount *float64         `json:"distributedAmount,omitempty"`
	Collected         *float64         `json:"collectedAmount,omitempty"`
	CreatedAt         string           `json:"createdAt,omitempty"`
}

type RecordDTO struct {
	ID             string  `json:"id"`
	ChitID         string  `json:"chitId"`
	ChitName       string  `json:"chitName"`
	MonthKey       string  `json:"monthKey"`
	SequenceNumber int     `json:"sequenceNumber"`
	Date           string  `json:"date"`
	WalletAmount   float64 `json:"walletAmount"`
	BidAmount      float64 `json:"bidAmount"`
	Distributed    float64 `json:"distributed"`
	IsRelease      bool    `json:"isRelease"`
	ReleasedAmount float64 `json:"releasedAmount"`
	CreatedBy      string  `json:"createdBy,omitempty"`
}

type JoinRequestDTO struct {
	ID        string `json:"id"`
	MemberID  string `json:"memberId"`
	ChitID    string `json:"chitId"`
	Status    string `json:"status"`
	DecidedBy string `json:"decidedBy,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ApprovalDTO reports the outcome of an approve call. A full chit yields
// status "rejected" with reason "capacity_exceeded", not an error.
type ApprovalDTO struct {
	Request          JoinRequestDTO `json:"request"`
	CapacityExceeded bool           `json:"capacityExceeded"`
	Chit             *ChitDTO       `json:"chit,omitempty"`
}

type ContributionDTO struct {
	ID       string  `json:"id"`
	ChitID   string  `json:"chitId"`
	MemberID string  `json:"memberId"`
	Amount   float64 `json:"amount"`
	Month    string  `json:"month"`
	Year     int     `json:"year"`
	Status   string  `json:"status"`
	PaidDate string  `json:"paidDate,omitempty"`
}

type PaymentDTO struct {
	ID              string  `json:"id"`
	ChitID          string  `json:"chitId"`
	MemberID        string  `json:"memberId"`
	Amount          float64 `json:"amount"`
	Month           string  `json:"month"`
	Year            int     `json:"year"`
	Note            string  `json:"note,omitempty"`
	Status          string  `json:"status"`
	PaidAt          string  `json:"paidAt,omitempty"`
	RejectionReason string  `json:"rejectionReason,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

type PaymentApprovalDTO struct {
	Payment      PaymentDTO      `json:"payment"`
	Contribution ContributionDTO `json:"contribution"`
}

type PeriodDTO struct {
	Month string `json:"month"`
	Year  int    `json:"year"`
}

type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

type ReportRowDTO struct {
	ChitID               string       `json:"chitId"`
	ChitName             string       `json:"chitName"`
	Status               string       `json:"status"`
	TotalMembers         int          `json:"totalMembers"`
	ApprovedMembers      int          `json:"approvedMembers"`
	TotalAmount          float64      `json:"totalAmount"`
	CollectedAmount      float64      `json:"collectedAmount"`
	PendingAmount        float64      `json:"pendingAmount"`
	PendingPaymentsCount int          `json:"pendingPaymentsCount"`
	FinalWallet          float64      `json:"finalWallet"`
	DistributedAmount    float64      `json:"distributedAmount"`
	Commission           float64      `json:"commission"`
	Released             *SnapshotDTO `json:"released,omitempty"`
	StartDate            string       `json:"startDate"`
	CreatedAt            string       `json:"createdAt"`
}

type ReportSummaryDTO struct {
	TotalChits      int     `json:"totalChits"`
	TotalMembers    int     `json:"totalMembers"`
	TotalCollected  float64 `json:"totalCollected"`
	TotalAmountSum  float64 `json:"totalAmountSum"`
	TotalPending    float64 `json:"totalPending"`
	TotalWallet     float64 `json:"totalWallet"`
	PendingPayments int     `json:"pendingPayments"`
}

type ReportResponse struct {
	Rows     []ReportRowDTO   `json:"rows"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Summary  ReportSummaryDTO `json:"summary"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func moneyPtr(m *chit.Money) *float64 {
	if m == nil {
		return nil
	}
	f := m.Float64()
	return &f
}

func toMemberDTO(m chit.Member) MemberDTO {
	return MemberDTO{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Role:      string(m.Role),
		CreatedAt: formatTime(m.CreatedAt),
	}
}

func toSnapshotDTO(s *chit.SettlementSnapshot) *SnapshotDTO {
	if s == nil {
		return nil
	}
	return &SnapshotDTO{
		RCA:          s.RCA.Float64(),
		GWB:          s.GWB.Float64(),
		Commission:   s.Commission.Float64(),
		FWA:          s.FWA.Float64(),
		WalletAmount: s.WalletAmount.Float64(),
		ReleasedAt:   formatTime(s.ReleasedAt),
		ReleasedBy:   s.ReleasedBy,
		Note:         s.Note,
	}
}

func toChitDTO(c chit.Chit) ChitDTO {
	members := make([]RosterEntryDTO, len(c.Roster))
	for i, e := range c.Roster {
		members[i] = RosterEntryDTO{MemberID: e.MemberID, Approved: e.Approved, JoinedAt: formatTime(e.JoinedAt)}
	}
	dto := ChitDTO{
		ID:                c.ID,
		Name:              c.Name,
		Description:       c.Description,
		Amount:            c.Amount.Float64(),
		TotalAmount:       moneyPtr(c.TotalAmount),
		DurationInMonths:  c.DurationInMonths,
		TotalMembers:      c.TotalMembers,
		ApprovedMembers:   c.ApprovedCount(),
		StartDate:         formatTime(c.StartDate),
		Status:            string(c.Status),
		Members:           members,
		Released:          toSnapshotDTO(c.Released),
		WalletAmount:      moneyPtr(c.WalletAmount),
		DistributedAmount: moneyPtr(c.DistributedAmount),
		CreatedAt:         formatTime(c.CreatedAt),
	}
	if c.CommissionRate != nil {
		f, _ := c.CommissionRate.Float64()
		dto.CommissionRate = &f
	}
	return dto
}

func toRecordDTO(r chit.GeneratedRecord) RecordDTO {
	return RecordDTO{
		ID:             r.ID,
		ChitID:         r.ChitID,
		ChitName:       r.ChitName,
		MonthKey:       r.MonthKey,
		SequenceNumber: r.Sequence,
		Date:           formatTime(r.Date),
		WalletAmount:   r.WalletAmount.Float64(),
		BidAmount:      r.BidAmount.Float64(),
		Distributed:    r.Distributed.Float64(),
		IsRelease:      r.IsRelease,
		ReleasedAmount: r.ReleasedAmount.Float64(),
		CreatedBy:      r.CreatedBy,
	}
}

func toJoinRequestDTO(jr chit.JoinRequest) JoinRequestDTO {
	return JoinRequestDTO{
		ID:        jr.ID,
		MemberID:  jr.MemberID,
		ChitID:    jr.ChitID,
		Status:    string(jr.Status),
		DecidedBy: jr.DecidedBy,
		Reason:    jr.Reason,
		CreatedAt: formatTime(jr.CreatedAt),
		UpdatedAt: formatTime(jr.UpdatedAt),
	}
}

func toContributionDTO(c chit.Contribution) ContributionDTO {
	return ContributionDTO{
		ID:       c.ID,
		ChitID:   c.ChitID,
		MemberID: c.MemberID,
		Amount:   c.Amount.Float64(),
		Month:    c.Month,
		Year:     c.Year,
		Status:   string(c.Status),
		PaidDate: formatTime(c.PaidDate),
	}
}

func toPaymentDTO(p chit.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:              p.ID,
		ChitID:          p.ChitID,
		MemberID:        p.MemberID,
		Amount:          p.Amount.Float64(),
		Month:           p.Month,
		Year:            p.Year,
		Note:            p.Note,
		Status:          string(p.Status),
		RejectionReason: p.RejectionReason,
		CreatedAt:       formatTime(p.CreatedAt),
	}
	if p.PaidAt != nil {
		dto.PaidAt = formatTime(*p.PaidAt)
	}
	return dto
}

func toNotificationDTO(n chit.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: formatTime(n.CreatedAt),
	}
}

func toReportResponse(rep *chit.Report) ReportResponse {
	rows := make([]ReportRowDTO, len(rep.Rows))
	for i, r := range rep.Rows {
		rows[i] = ReportRowDTO{
			ChitID:               r.ChitID,
			ChitName:             r.ChitName,
			Status:               string(r.Status),
			TotalMembers:         r.TotalMembers,
			ApprovedMembers:      r.ApprovedMembers,
			TotalAmount:          r.TotalAmount.Float64(),
			CollectedAmount:      r.CollectedAmount.Float64(),
			PendingAmount:        r.PendingAmount.Float64(),
			PendingPaymentsCount: r.PendingPaymentsCount,
			FinalWallet:          r.FinalWallet.Float64(),
			DistributedAmount:    r.DistributedAmount.Float64(),
			Commission:           r.Commission.Float64(),
			Released:             toSnapshotDTO(r.Released),
			StartDate:            formatTime(r.StartDate),
			CreatedAt:            formatTime(r.CreatedAt),
		}
	}
	s := rep.Summary
	return ReportResponse{
		Rows:     rows,
		Total:    rep.Total,
		Page:     rep.Page,
		PageSize: rep.PageSize,
		Summary: ReportSummaryDTO{
			TotalChits:      s.TotalChits,
			TotalMembers:    s.TotalMembers,
			TotalCollected:  s.TotalCollected.Float64(),
			TotalAmountSum:  s.TotalAmountSum.Float64(),
			TotalPending:    s.TotalPending.Float64(),
			TotalWallet:     s.TotalWallet.Float64(),
			PendingPayments: s.PendingPayments,
		},
	}
}
