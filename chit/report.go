/*
report.go - Reporting aggregator

PURPOSE:
  Builds the operator's cross-chit financial report: one row per chit with
  collected and pending amounts, in-flight payments and wallet figures,
  plus a summary over every matching chit.

PIPELINE:
  ListChits -> filter -> project rows -> sort -> summarize -> paginate

  The summary is computed over the whole filtered set before pagination.
  The one exception is PendingPayments, which sums only the rows on the
  returned page.

WALLET FIGURES:
  A released chit reports its stored snapshot. Otherwise the settlement
  calculator runs with RCA = 0, so the whole principal counts as
  distributable before commission. Rows that needed the fallback are
  flagged Degraded; that is informational and never fails the report.

BAD INPUT:
  Unparsable dates mean "no bound". Bad page numbers are normalized.
  An unknown sort key sorts by collected amount. The report does not
  return validation errors.

SEE ALSO:
  - settlement.go: Calculator used for the fallback path
  - api/handlers.go: GET /api/admin/reports
*/
package chit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Report pagination defaults.
const (
	DefaultPageSize = 25
	DefaultSortKey  = SortCollectedAmount
)

// Sort keys accepted by the report.
const (
	SortChitName        = "chitName"
	SortTotalMembers    = "totalMembers"
	SortTotalAmount     = "totalAmount"
	SortCollectedAmount = "collectedAmount"
	SortPendingAmount   = "pendingAmount"
	SortPendingPayments = "pendingPaymentsCount"
	SortFinalWallet     = "finalWallet"
	SortDistributed     = "distributedAmount"
	SortCreatedAt       = "createdAt"
	SortStartDate       = "startDate"
)

// =============================================================================
// QUERY
// =============================================================================

// ReportQuery is a normalized report request.
type ReportQuery struct {
	Text     string
	From     *time.Time
	To       *time.Time
	SortBy   string
	Asc      bool
	Page     int
	PageSize int
}

// NewReportQuery builds a query from raw request parameters. It never fails:
// malformed values fall back to defaults.
func NewReportQuery(text, from, to, sortBy, sortDir, page, pageSize string) ReportQuery {
	q := ReportQuery{
		Text:   strings.TrimSpace(text),
		SortBy: normalizeSortKey(sortBy),
		Asc:    strings.EqualFold(strings.TrimSpace(sortDir), "asc"),
	}
	if t, ok := ParseDate(from); ok {
		q.From = &t
	}
	if t, ok := ParseDate(to); ok {
		if isDateOnly(to) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		q.To = &t
	}

	q.Page = 1
	if n, err := strconv.Atoi(strings.TrimSpace(page)); err == nil {
		q.Page = n
	}
	q.PageSize = DefaultPageSize
	if n, err := strconv.Atoi(strings.TrimSpace(pageSize)); err == nil && n != 0 {
		q.PageSize = n
	}
	return q.normalized()
}

// normalized clamps page and page size to >= 1.
func (q ReportQuery) normalized() ReportQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	q.SortBy = normalizeSortKey(q.SortBy)
	return q
}

func isDateOnly(s string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	return err == nil
}

func normalizeSortKey(k string) string {
	k = strings.TrimSpace(k)
	if _, ok := rowSorters[k]; ok {
		return k
	}
	return DefaultSortKey
}

// Match reports whether c passes the text and date filters.
func (q ReportQuery) Match(c *Chit) bool {
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Description), needle) &&
			!strings.Contains(strings.ToLower(c.ID), needle) {
			return false
		}
	}
	if q.From != nil && c.StartDate.Before(*q.From) {
		return false
	}
	if q.To != nil && c.StartDate.After(*q.To) {
		return false
	}
	return true
}

// =============================================================================
// RESULT
// =============================================================================

// ReportRow is one chit's projected figures.
type ReportRow struct {
	ChitID               string
	ChitName             string
	Status               ChitStatus
	TotalMembers         int
	ApprovedMembers      int
	TotalAmount          Money
	CollectedAmount      Money
	PendingAmount        Money
	PendingPaymentsCount int
	FinalWallet          Money
	DistributedAmount    Money
	Commission           Money
	Released             *SettlementSnapshot
	Degraded             bool
	StartDate            time.Time
	CreatedAt            time.Time
}

// ReportSummary aggregates the filtered set.
type ReportSummary struct {
	TotalChits      int
	TotalMembers    int
	TotalCollected  Money
	TotalAmountSum  Money
	TotalPending    Money
	TotalWallet     Money
	PendingPayments int // current page only
}

// Report is the paginated report.
type Report struct {
	Rows     []ReportRow
	Total    int
	Page     int
	PageSize int
	Summary  ReportSummary

	// Degraded counts filtered chits whose wallet figures were derived.
	Degraded int
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Reporter builds reports from a read-only source.
type Reporter struct {
	Source     ReportSource
	Calculator *Calculator
}

// BuildReport runs the report pipeline. Errors come only from the source.
func (r *Reporter) BuildReport(ctx context.Context, q ReportQuery) (*Report, error) {
	q = q.normalized()

	chits, err := r.Source.ListChits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chits: %w", err)
	}
	collected, err := r.Source.CollectedByChit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum contributions: %w", err)
	}
	inFlight, err := r.Source.CountPaymentsByChit(ctx, InFlightPaymentStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	rows := make([]ReportRow, 0, len(chits))
	for i := range chits {
		c := &chits[i]
		if !q.Match(c) {
			continue
		}
		rows = append(rows, r.project(c, collected[c.ID], inFlight[c.ID]))
	}

	SortRows(rows, q.SortBy, q.Asc)

	rep := &Report{
		Total:    len(rows),
		Page:     q.Page,
		PageSize: q.PageSize,
		Summary:  Summarize(rows),
	}
	for _, row := range rows {
		if row.Degraded {
			rep.Degraded++
		}
	}

	rep.Rows = Paginate(rows, q.Page, q.PageSize)
	for _, row := range rep.Rows {
		rep.Summary.PendingPayments += row.PendingPaymentsCount
	}

	if rep.Degraded > 0 {
		slog.Debug("report used derived wallet figures", "chits", rep.Degraded)
	}
	return rep, nil
}

func (r *Reporter) project(c *Chit, collected Money, pendingPayments int) ReportRow {
	total := c.Principal()
	collected = collected.ClampZero()

	overrides := c.Released.Overrides()
	if c.Released == nil && c.DistributedAmount != nil {
		overrides.GWB = c.DistributedAmount
	}
	s := r.calculator().ForChit(c).Compute(total, Money{}, overrides)

	distributed := s.DistributedAmount
	if c.DistributedAmount != nil {
		distributed = c.DistributedAmount.ClampZero()
	}

	return ReportRow{
		ChitID:               c.ID,
		ChitName:             c.Name,
		Status:               c.Status,
		TotalMembers:         c.TotalMembers,
		ApprovedMembers:      c.ApprovedCount(),
		TotalAmount:          total,
		CollectedAmount:      collected,
		PendingAmount:        total.Sub(collected).ClampZero(),
		PendingPaymentsCount: pendingPayments,
		FinalWallet:          s.FWA,
		DistributedAmount:    distributed,
		Commission:           s.Commission,
		Released:             c.Released,
		Degraded:             !s.FullyStored(),
		StartDate:            c.StartDate,
		CreatedAt:            c.CreatedAt,
	}
}

func (r *Reporter) calculator() *Calculator {
	if r.Calculator == nil {
		return NewCalculator(DefaultCommissionRate)
	}
	return r.Calculator
}

// Summarize totals rows. PendingPayments is left at zero for the caller.
func Summarize(rows []ReportRow) ReportSummary {
	var s ReportSummary
	s.TotalChits = len(rows)
	for _, row := range rows {
		s.TotalMembers += row.TotalMembers
		s.TotalCollected = s.TotalCollected.Add(row.CollectedAmount)
		s.TotalAmountSum = s.TotalAmountSum.Add(row.TotalAmount)
		s.TotalWallet = s.TotalWallet.Add(row.FinalWallet)
	}
	s.TotalPending = s.TotalAmountSum.Sub(s.TotalCollected).ClampZero()
	return s
}

// Paginate returns the 1-based page of rows. Out-of-range pages are empty.
func Paginate(rows []ReportRow, page, size int) []ReportRow {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	// Compare page numbers before multiplying; (page-1)*size can overflow.
	pages := len(rows) / size
	if len(rows)%size != 0 {
		pages++
	}
	if page > pages {
		return []ReportRow{}
	}
	start := (page - 1) * size
	end := len(rows)
	if size < end-start {
		end = start + size
	}
	return rows[start:end]
}

// =============================================================================
// SORTING
// =============================================================================

// rowSorters compare the primary key only; -1, 0, 1.
var rowSorters = map[string]func(a, b *ReportRow) int{
	SortChitName:        func(a, b *ReportRow) int { return strings.Compare(a.ChitName, b.ChitName) },
	SortTotalMembers:    func(a, b *ReportRow) int { return compareInt(a.TotalMembers, b.TotalMembers) },
	SortTotalAmount:     func(a, b *ReportRow) int { return a.TotalAmount.Cmp(b.TotalAmount) },
	SortCollectedAmount: func(a, b *ReportRow) int { return a.CollectedAmount.Cmp(b.CollectedAmount) },
	SortPendingAmount:   func(a, b *ReportRow) int { return a.PendingAmount.Cmp(b.PendingAmount) },
	SortPendingPayments: func(a, b *ReportRow) int { return compareInt(a.PendingPaymentsCount, b.PendingPaymentsCount) },
	SortFinalWallet:     func(a, b *ReportRow) int { return a.FinalWallet.Cmp(b.FinalWallet) },
	SortDistributed:     func(a, b *ReportRow) int { return a.DistributedAmount.Cmp(b.DistributedAmount) },
	SortCreatedAt:       func(a, b *ReportRow) int { return a.CreatedAt.Compare(b.CreatedAt) },
	SortStartDate:       func(a, b *ReportRow) int { return a.StartDate.Compare(b.StartDate) },
}

// SortRows orders rows by key (descending unless asc). Ties break on chit
// name ascending, then chit id, regardless of direction.
func SortRows(rows []ReportRow, key string, asc bool) {
	cmp := rowSorters[normalizeSortKey(key)]
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if c := cmp(a, b); c != 0 {
			if asc {
				return c < 0
			}
			return c > 0
		}
		if c := strings.Compare(a.ChitName, b.ChitName); c != 0 {
			return c < 0
		}
		return a.ChitID < b.ChitID
	})
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
