package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manish-vm/EGS-chitfund-management-backend/api"
	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/manish-vm/EGS-chitfund-management-backend/chit/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

const (
	adminID   = "00000000-0000-0000-0000-000000000001"
	memberOne = "20000000-0000-0000-0000-000000000001"
	memberTwo = "20000000-0000-0000-0000-000000000002"
)

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

// inboxNotifier saves notifications synchronously.
type inboxNotifier struct{ inbox chit.NotificationStore }

func (n inboxNotifier) Notify(ctx context.Context, notes ...chit.Notification) {
	_ = n.inbox.SaveNotifications(ctx, notes)
}

type testServer struct {
	t      *testing.T
	router http.Handler
	tokens *api.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemory()
	h := api.NewHandler(api.Deps{
		Store:    st,
		Notifier: inboxNotifier{inbox: st},
		Now:      func() time.Time { return testNow },
	})
	tokens := api.NewJWTManager("test-secret", time.Hour)
	return &testServer{
		t:      t,
		router: api.NewRouter(h, api.RouterOptions{JWT: tokens}),
		tokens: tokens,
	}
}

func (s *testServer) token(userID string, role chit.Role) string {
	s.t.Helper()
	tok, err := s.tokens.Generate(userID, role)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(method, path string, body any) *httptest.ResponseRecorder {
	return s.do(method, path, s.token(adminID, chit.RoleAdmin), body)
}

func (s *testServer) member(id, method, path string, body any) *httptest.ResponseRecorder {
	return s.do(method, path, s.token(id, chit.RoleMember), body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createChit(name string, amount, members int) api.ChitDTO {
	s.t.Helper()
	rec := s.admin(http.MethodPost, "/api/chits", map[string]any{
		"name":             name,
		"amount":           amount,
		"durationInMonths": members,
		"totalMembers":     members,
		"startDate":        "2025-05-01",
		"status":           "open",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.ChitDTO](s.t, rec)
}

// admitMember joins a member and approves the request.
func (s *testServer) admitMember(chitID, memberID string) {
	s.t.Helper()
	rec := s.member(memberID, http.MethodPost, "/api/chits/"+chitID+"/join", nil)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	jr := decode[api.JoinRequestDTO](s.t, rec)

	rec = s.admin(http.MethodPost, "/api/join-requests/"+jr.ID+"/approve", nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealth_IsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/chits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/chits", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := api.NewJWTManager("other-secret", time.Hour)
	forged, err := other.Generate(adminID, chit.RoleAdmin)
	require.NoError(t, err)
	rec = s.do(http.MethodGet, "/api/chits", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_DevAdminWhenAuthDisabled(t *testing.T) {
	h := api.NewHandler(api.Deps{Store: store.NewMemory()})
	router := api.NewRouter(h, api.RouterOptions{DevAdmin: adminID})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/reports", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_AdminRoutesRejectMembers(t *testing.T) {
	s := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/chits"},
		{http.MethodGet, "/api/members"},
		{http.MethodGet, "/api/join-requests/pending"},
		{http.MethodGet, "/api/admin/reports"},
		{http.MethodPost, "/api/scenarios/load"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := s.member(memberOne, p.method, p.path, map[string]any{})
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

// =============================================================================
// CHITS
// =============================================================================

func TestCreateChit(t *testing.T) {
	s := newTestServer(t)

	c := s.createChit("Gold 1L", 100000, 5)

	assert.Equal(t, "Gold 1L", c.Name)
	assert.Equal(t, 100000.0, c.Amount)
	assert.Equal(t, "open", c.Status)
	assert.Equal(t, 0, c.ApprovedMembers)
}

func TestCreateChit_ValidationIs400(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"zero amount", map[string]any{"name": "X", "amount": 0, "durationInMonths": 1, "totalMembers": 1}},
		{"missing name", map[string]any{"amount": 100, "durationInMonths": 1, "totalMembers": 1}},
		{"bad start date", map[string]any{"name": "X", "amount": 100, "durationInMonths": 1, "totalMembers": 1, "startDate": "someday"}},
		{"bad status", map[string]any{"name": "X", "amount": 100, "durationInMonths": 1, "totalMembers": 1, "status": "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.admin(http.MethodPost, "/api/chits", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[api.ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCreateChit_UnparsableNumbersAre400(t *testing.T) {
	s := newTestServer(t)
	base := func() map[string]any {
		return map[string]any{"name": "X", "amount": 100, "durationInMonths": 1, "totalMembers": 1}
	}

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"words for commission rate", "commissionRate", "five percent"},
		{"boolean commission rate", "commissionRate", true},
		{"words for amount", "amount", "one lakh"},
		{"object total amount", "totalAmount", map[string]any{"value": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			body[tt.key] = tt.value

			rec := s.admin(http.MethodPost, "/api/chits", body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, tt.key)
		})
	}

	// Nothing was stored
	rec := s.admin(http.MethodGet, "/api/chits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.ChitDTO](t, rec))
}

func TestUpdateChit(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	s.admitMember(c.ID, memberOne)
	path := "/api/chits/" + c.ID

	rec := s.admin(http.MethodPut, path, map[string]any{"name": "Gold Plus", "amount": "150000", "commissionRate": "0.04"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.ChitDTO](t, rec)
	assert.Equal(t, "Gold Plus", got.Name)
	assert.Equal(t, 150000.0, got.Amount)
	assert.Equal(t, 1, got.ApprovedMembers)

	// Target below the approved count
	rec = s.admin(http.MethodPut, path, map[string]any{"totalMembers": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.admin(http.MethodPut, path, map[string]any{"commissionRate": "five percent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.member(memberOne, http.MethodPut, path, map[string]any{"name": "Mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteChit(t *testing.T) {
	s := newTestServer(t)
	empty := s.createChit("Empty", 100000, 5)
	busy := s.createChit("Busy", 100000, 5)
	s.admitMember(busy.ID, memberOne)

	rec := s.admin(http.MethodDelete, "/api/chits/"+empty.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.admin(http.MethodGet, "/api/chits/"+empty.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A chit with approved members stays
	rec = s.admin(http.MethodDelete, "/api/chits/"+busy.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJoinedChits(t *testing.T) {
	s := newTestServer(t)
	mine := s.createChit("Mine", 100000, 5)
	s.createChit("Other", 100000, 5)
	s.admitMember(mine.ID, memberOne)

	rec := s.member(memberOne, http.MethodGet, "/api/chits/joined", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[[]api.ChitDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	rec = s.member(memberTwo, http.MethodGet, "/api/chits/joined", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.ChitDTO](t, rec))
}

func TestGetChit_StatusMapping(t *testing.T) {
	s := newTestServer(t)

	rec := s.admin(http.MethodGet, "/api/chits/"+chit.NewID(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.admin(http.MethodGet, "/api/chits/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChit_IncludesCollected(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	s.admitMember(c.ID, memberOne)

	rec := s.admin(http.MethodPost, "/api/contributions", map[string]any{
		"chitId": c.ID, "memberId": memberOne, "amount": "20000", "month": "May", "year": 2025,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.member(memberOne, http.MethodGet, "/api/chits/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.ChitDTO](t, rec)
	require.NotNil(t, got.Collected)
	assert.Equal(t, 20000.0, *got.Collected)
	assert.Equal(t, 1, got.ApprovedMembers)
}

// =============================================================================
// RELEASE AND REPORT
// =============================================================================

func TestReleaseChit_PersistsSnapshot(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)

	// GIVEN: a 20,000 bid at the default 5% rate
	rec := s.admin(http.MethodPatch, "/api/chits/"+c.ID+"/release", map[string]any{"bidAmount": 20000})

	// THEN: the split is 20000 / 80000 / 4000 / 76000
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.ChitDTO](t, rec)
	require.NotNil(t, got.Released)
	assert.Equal(t, 20000.0, got.Released.RCA)
	assert.Equal(t, 80000.0, got.Released.GWB)
	assert.Equal(t, 4000.0, got.Released.Commission)
	assert.Equal(t, 76000.0, got.Released.FWA)
	require.NotNil(t, got.DistributedAmount)
	assert.Equal(t, 80000.0, *got.DistributedAmount)
}

func TestReleaseChit_CommissionOverride(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)

	rec := s.admin(http.MethodPatch, "/api/chits/"+c.ID+"/release", map[string]any{
		"bidAmount":  "20000",
		"commission": "3000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.ChitDTO](t, rec)
	assert.Equal(t, 3000.0, got.Released.Commission)
	assert.Equal(t, 77000.0, got.Released.FWA)
}

func TestReport_FilterSortAndFallback(t *testing.T) {
	s := newTestServer(t)

	released := s.createChit("Gold Released", 100000, 5)
	s.createChit("Gold Pending", 50000, 5)
	s.createChit("Silver", 30000, 3)

	rec := s.admin(http.MethodPatch, "/api/chits/"+released.ID+"/release", map[string]any{"bidAmount": 20000})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: filtering by name and sorting by total amount
	rec = s.admin(http.MethodGet, "/api/admin/reports?q=gold&sortBy=totalAmount&sortDir=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode[api.ReportResponse](t, rec)

	// THEN: both gold chits, smallest first
	require.Equal(t, 2, rep.Total)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "Gold Pending", rep.Rows[0].ChitName)
	assert.Equal(t, "Gold Released", rep.Rows[1].ChitName)

	// Unreleased chit falls back to RCA 0: 50000 - 2500
	assert.Equal(t, 47500.0, rep.Rows[0].FinalWallet)
	assert.Nil(t, rep.Rows[0].Released)
	assert.Equal(t, 76000.0, rep.Rows[1].FinalWallet)
}

func TestReport_Pagination(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"A", "B", "C"} {
		s.createChit(name, 10000, 2)
	}

	rec := s.admin(http.MethodGet, "/api/admin/reports?sortBy=chitName&sortDir=asc&page=2&pageSize=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[api.ReportResponse](t, rec)

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Page)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "C", rep.Rows[0].ChitName)
	assert.Equal(t, 3, rep.Summary.TotalChits)
}

func TestReport_HugePageIsEmpty(t *testing.T) {
	s := newTestServer(t)
	s.createChit("A", 10000, 2)

	// (page-1)*pageSize overflows int64 for this page
	rec := s.admin(http.MethodGet, "/api/admin/reports?page=368934881474191034&pageSize=25", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode[api.ReportResponse](t, rec)
	assert.Empty(t, rep.Rows)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 1, rep.Summary.TotalChits)
}

// =============================================================================
// SETTLEMENT RECORDS
// =============================================================================

func TestGeneratedRecords_Sequence(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	path := "/api/chits/" + c.ID + "/generated"
	body := map[string]any{
		"chitName":     "Gold",
		"walletAmount": 76000,
		"bidAmount":    20000,
		"distributed":  80000,
		"date":         "2025-06-10",
	}

	first := decode[api.RecordDTO](t, s.admin(http.MethodPost, path, body))
	second := decode[api.RecordDTO](t, s.admin(http.MethodPost, path, body))
	assert.Equal(t, "2025-06", first.MonthKey)
	assert.Equal(t, 1, first.SequenceNumber)
	assert.Equal(t, 2, second.SequenceNumber)

	// Another month starts again at 1
	body["date"] = "2025-07-02"
	july := decode[api.RecordDTO](t, s.admin(http.MethodPost, path, body))
	assert.Equal(t, "2025-07", july.MonthKey)
	assert.Equal(t, 1, july.SequenceNumber)

	// Deleting never renumbers the survivors
	rec := s.admin(http.MethodDelete, path+"/"+first.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.admin(http.MethodGet, path+"?monthKey=2025-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.RecordDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].SequenceNumber)
}

func TestGeneratedRecords_MissingAmountsIs400(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)

	rec := s.admin(http.MethodPost, "/api/chits/"+c.ID+"/generated", map[string]any{"bidAmount": 20000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneratedRecords_NextAfterDeleteSkipsGap(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	path := "/api/chits/" + c.ID + "/generated"
	body := map[string]any{"walletAmount": 1, "bidAmount": 2, "distributed": 3, "date": "2025-06-10"}

	// GIVEN: records 1 and 2, then record 1 deleted
	first := decode[api.RecordDTO](t, s.admin(http.MethodPost, path, body))
	second := decode[api.RecordDTO](t, s.admin(http.MethodPost, path, body))
	require.Equal(t, http.StatusNoContent, s.admin(http.MethodDelete, path+"/"+first.ID, nil).Code)

	// WHEN: another record is created
	rec := s.admin(http.MethodPost, path, body)

	// THEN: it takes 3, not the 2 the survivor holds
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	third := decode[api.RecordDTO](t, rec)
	assert.Equal(t, 2, second.SequenceNumber)
	assert.Equal(t, 3, third.SequenceNumber)
}

func TestGeneratedRecords_MalformedFieldsAre400(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	path := "/api/chits/" + c.ID + "/generated"

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"unparsable date", map[string]any{"walletAmount": 1, "bidAmount": 2, "distributed": 3, "date": "next tuesday"}, "date"},
		{"words for wallet", map[string]any{"walletAmount": "lots", "bidAmount": 2, "distributed": 3}, "walletAmount"},
		{"array for bid", map[string]any{"walletAmount": 1, "bidAmount": []int{2}, "distributed": 3}, "bidAmount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.admin(http.MethodPost, path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, tt.field)
		})
	}

	rec := s.admin(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.RecordDTO](t, rec))
}

func TestGeneratedRecords_UpdateKeepsSequence(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	path := "/api/chits/" + c.ID + "/generated"

	created := decode[api.RecordDTO](t, s.admin(http.MethodPost, path, map[string]any{
		"walletAmount": 1, "bidAmount": 2, "distributed": 3, "date": "2025-06-10",
	}))

	rec := s.admin(http.MethodPut, path+"/"+created.ID, map[string]any{"bidAmount": "2500.50", "date": "2025-08-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[api.RecordDTO](t, rec)
	assert.Equal(t, 2500.5, updated.BidAmount)
	assert.Equal(t, "2025-08", updated.MonthKey)
	assert.Equal(t, created.SequenceNumber, updated.SequenceNumber)
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

func TestJoinChit_IsIdempotentWhilePending(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)

	rec := s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/join", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[api.JoinRequestDTO](t, rec)

	rec = s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/join", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[api.JoinRequestDTO](t, rec)
	assert.Equal(t, first.ID, again.ID)

	rec = s.member(memberOne, http.MethodGet, "/api/join-requests/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.JoinRequestDTO](t, rec), 1)
}

func TestApproveJoinRequest_CapacityExceeded(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Solo", 10000, 1)

	one := decode[api.JoinRequestDTO](t, s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/join", nil))
	two := decode[api.JoinRequestDTO](t, s.member(memberTwo, http.MethodPost, "/api/chits/"+c.ID+"/join", nil))

	// WHEN: the first request fills the only seat
	rec := s.admin(http.MethodPost, "/api/join-requests/"+one.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[api.ApprovalDTO](t, rec)
	assert.False(t, approved.CapacityExceeded)
	assert.Equal(t, "approved", approved.Request.Status)

	// THEN: the second approval becomes a rejection, not an error
	rec = s.admin(http.MethodPost, "/api/join-requests/"+two.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	full := decode[api.ApprovalDTO](t, rec)
	assert.True(t, full.CapacityExceeded)
	assert.Equal(t, "rejected", full.Request.Status)
	assert.Equal(t, chit.ReasonCapacityExceeded, full.Request.Reason)

	// AND: terminal requests cannot move again
	rec = s.admin(http.MethodPost, "/api/join-requests/"+one.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: the member is notified of the rejection
	rec = s.member(memberTwo, http.MethodGet, "/api/notifications/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]api.NotificationDTO](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, "Join request rejected", notes[0].Title)
}

func TestJoinChit_AlreadyMemberIs409(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	s.admitMember(c.ID, memberOne)

	rec := s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/join", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectJoinRequest_WithReason(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	jr := decode[api.JoinRequestDTO](t, s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/join", nil))

	rec := s.admin(http.MethodPost, "/api/join-requests/"+jr.ID+"/reject", map[string]any{"reason": "incomplete KYC"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.JoinRequestDTO](t, rec)
	assert.Equal(t, "rejected", got.Status)
	assert.Equal(t, "incomplete KYC", got.Reason)

	rec = s.admin(http.MethodGet, "/api/join-requests/pending", nil)
	assert.Empty(t, decode[[]api.JoinRequestDTO](t, rec))
}

// =============================================================================
// CONTRIBUTIONS AND PAYMENTS
// =============================================================================

func TestPaymentVerificationFlow(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	s.admitMember(c.ID, memberOne)

	// GIVEN: a reported payment
	rec := s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/payments", map[string]any{
		"amount": 20000, "month": "June", "year": 2025, "note": "UPI ref 123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[api.PaymentDTO](t, rec)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, memberOne, p.MemberID)

	// Approval before verification is an invalid transition
	rec = s.admin(http.MethodPatch, "/api/payments/"+p.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Another member cannot request verification
	rec = s.member(memberTwo, http.MethodPatch, "/api/payments/"+p.ID+"/request-verification", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.member(memberOne, http.MethodPatch, "/api/payments/"+p.ID+"/request-verification", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "verification_requested", decode[api.PaymentDTO](t, rec).Status)

	// WHEN: the operator approves
	rec = s.admin(http.MethodPatch, "/api/payments/"+p.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[api.PaymentApprovalDTO](t, rec)

	// THEN: the payment is paid and a contribution exists
	assert.Equal(t, "paid", out.Payment.Status)
	assert.Equal(t, "paid", out.Contribution.Status)
	assert.Equal(t, 20000.0, out.Contribution.Amount)

	rec = s.member(memberOne, http.MethodGet, "/api/chits/"+c.ID+"/unpaid/"+memberOne, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unpaid := decode[[]api.PeriodDTO](t, rec)
	assert.NotContains(t, unpaid, api.PeriodDTO{Month: "June", Year: 2025})
	assert.Contains(t, unpaid, api.PeriodDTO{Month: "May", Year: 2025})
}

func TestCreatePayment_NotMemberIs403(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)

	rec := s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/payments", map[string]any{
		"amount": 20000, "month": "June", "year": 2025,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRecordContribution_DuplicateIs409(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	s.admitMember(c.ID, memberOne)
	body := map[string]any{"chitId": c.ID, "memberId": memberOne, "amount": 20000, "month": "June", "year": 2025}

	rec := s.admin(http.MethodPost, "/api/contributions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.admin(http.MethodPost, "/api/contributions", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecordContribution_MalformedFieldsAre400(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)
	s.admitMember(c.ID, memberOne)

	rec := s.admin(http.MethodPost, "/api/contributions", map[string]any{
		"chitId": c.ID, "memberId": memberOne, "amount": 20000, "month": "June", "year": 2025, "paidDate": "yesterday",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, "paidDate")

	rec = s.member(memberOne, http.MethodPost, "/api/chits/"+c.ID+"/payments", map[string]any{
		"amount": "twenty thousand", "month": "June", "year": 2025,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberHistory(t *testing.T) {
	s := newTestServer(t)
	gold := s.createChit("Gold", 100000, 5)
	silver := s.createChit("Silver", 50000, 5)
	s.admitMember(gold.ID, memberOne)
	s.admitMember(silver.ID, memberOne)
	s.admitMember(gold.ID, memberTwo)

	for _, id := range []string{gold.ID, silver.ID} {
		rec := s.admin(http.MethodPost, "/api/contributions", map[string]any{
			"chitId": id, "memberId": memberOne, "amount": 1000, "month": "May", "year": 2025,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := s.member(memberOne, http.MethodPost, "/api/chits/"+gold.ID+"/payments", map[string]any{
		"amount": 1000, "month": "June", "year": 2025,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[api.PaymentDTO](t, rec)

	// Contributions across both chits
	rec = s.member(memberOne, http.MethodGet, "/api/contributions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]api.ContributionDTO](t, rec), 2)

	rec = s.admin(http.MethodGet, "/api/contributions?memberId="+memberOne, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ContributionDTO](t, rec), 2)

	rec = s.member(memberTwo, http.MethodGet, "/api/contributions?memberId="+memberOne, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Payment history and lookup
	rec = s.member(memberOne, http.MethodGet, "/api/payments/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]api.PaymentDTO](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)

	rec = s.member(memberTwo, http.MethodGet, "/api/payments/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.PaymentDTO](t, rec))

	rec = s.member(memberOne, http.MethodGet, "/api/payments/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode[api.PaymentDTO](t, rec).Status)

	rec = s.member(memberTwo, http.MethodGet, "/api/payments/"+p.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.admin(http.MethodGet, "/api/payments/"+chit.NewID(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationInbox(t *testing.T) {
	s := newTestServer(t)
	gold := s.createChit("Gold", 100000, 5)
	silver := s.createChit("Silver", 50000, 5)
	s.admitMember(gold.ID, memberOne)
	s.admitMember(silver.ID, memberOne)

	rec := s.member(memberOne, http.MethodGet, "/api/notifications/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]api.NotificationDTO](t, rec)
	require.Len(t, notes, 2)

	// Another member cannot touch them
	rec = s.member(memberTwo, http.MethodPatch, "/api/notifications/"+notes[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.member(memberTwo, http.MethodDelete, "/api/notifications/"+notes[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.member(memberOne, http.MethodPatch, "/api/notifications/"+notes[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.member(memberOne, http.MethodPatch, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"updated": 1}, decode[map[string]int](t, rec))

	rec = s.member(memberOne, http.MethodDelete, "/api/notifications/"+notes[1].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.member(memberOne, http.MethodGet, "/api/notifications/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	left := decode[[]api.NotificationDTO](t, rec)
	require.Len(t, left, 1)
	assert.Equal(t, notes[0].ID, left[0].ID)
	assert.True(t, left[0].Read)
}

func TestUnpaidPeriods_OtherMemberIs403(t *testing.T) {
	s := newTestServer(t)
	c := s.createChit("Gold", 100000, 5)

	rec := s.member(memberTwo, http.MethodGet, "/api/chits/"+c.ID+"/unpaid/"+memberOne, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLoadScenario_GoldRunning(t *testing.T) {
	s := newTestServer(t)

	rec := s.admin(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "gold-running"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.admin(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "gold-running", decode[api.ScenarioDTO](t, rec).ID)

	rec = s.admin(http.MethodGet, "/api/admin/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[api.ReportResponse](t, rec)
	require.Len(t, rep.Rows, 1)

	row := rep.Rows[0]
	assert.Equal(t, 5, row.ApprovedMembers)
	assert.Equal(t, 180000.0, row.CollectedAmount)
	assert.Equal(t, 1, row.PendingPaymentsCount)
	assert.Equal(t, 76000.0, row.FinalWallet)

	rec = s.admin(http.MethodGet, "/api/chits/"+row.ChitID+"/generated", nil)
	records := decode[[]api.RecordDTO](t, rec)
	assert.Len(t, records, 3)
}

func TestLoadScenario_ReloadStartsClean(t *testing.T) {
	s := newTestServer(t)

	for _, id := range []string{"report-mix", "full-chit"} {
		rec := s.admin(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": id})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.admin(http.MethodGet, "/api/chits", nil)
	chits := decode[[]api.ChitDTO](t, rec)
	require.Len(t, chits, 1)
	assert.Equal(t, 3, chits[0].ApprovedMembers)

	rec = s.admin(http.MethodGet, "/api/join-requests/pending", nil)
	assert.Len(t, decode[[]api.JoinRequestDTO](t, rec), 1)
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	rec := s.admin(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
