/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Campaign creation, lookup, deletion and extension
- Donation workflow and its error mapping
- Reconciliation endpoints driving status changes
- Scenario loading
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/campaign/store"
	"github.com/warp/campaign-engine/reconcile"
)

var t0 = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router *chi.Mux
	mem    *store.Memory
	clock  *campaign.FixedClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	clock := campaign.NewFixedClock(t0)
	logger := zerolog.Nop()

	ledger := campaign.NewLedger(mem, clock)
	n := 0
	ledger.NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}

	sched := reconcile.NewScheduler(reconcile.New(mem, clock, nil, logger), logger)
	sched.Runs = mem

	h := NewHandler(ledger, campaign.NewStats(mem, clock), sched, mem, logger)
	h.Resetter = mem
	return &testServer{router: NewRouter(h, RouterConfig{}), mem: mem, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createCampaign(t *testing.T, goal int64, start, end time.Time) CampaignDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/campaigns", CreateCampaignRequest{
		Name: "Clean Water", Goal: goal, StartTime: start, EndTime: end,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CampaignDTO](t, rec)
}

func (s *testServer) tick(t *testing.T) TickResultDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/reconciliation/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[TickResultDTO](t, rec)
}

func (s *testServer) donate(t *testing.T, campaignID string, amount int64) DonationDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/campaigns/"+campaignID+"/donations", DonateRequest{Amount: amount})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[DonationDTO](t, rec)
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func TestCreateCampaign(t *testing.T) {
	s := newTestServer(t)

	// WHEN: A valid campaign is created
	c := s.createCampaign(t, 1_000_000, t0.Add(time.Hour), t0.Add(48*time.Hour))

	// THEN: It starts CREATED with no progress
	assert.Equal(t, "CREATED", c.Status)
	assert.Equal(t, int64(0), c.Donated)
	assert.Equal(t, 0, c.PercentCapped)
	assert.Equal(t, campaign.DefaultImageURL, c.ImageURL)
}

func TestCreateCampaign_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  any
		want int
	}{
		{"malformed body", "not json", http.StatusBadRequest},
		{"missing name", CreateCampaignRequest{Goal: 1, StartTime: t0, EndTime: t0.Add(time.Hour)}, http.StatusBadRequest},
		{"end before start", CreateCampaignRequest{Name: "x", Goal: 1, StartTime: t0, EndTime: t0.Add(-time.Hour)}, http.StatusUnprocessableEntity},
		{"negative goal", CreateCampaignRequest{Name: "x", Goal: -5, StartTime: t0, EndTime: t0.Add(time.Hour)}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/campaigns", tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGetCampaign_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/campaigns/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "campaign not found")
}

func TestDeleteCampaign_OnlyWhileCreated(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: One campaign still CREATED and one opened by a tick
	later := s.createCampaign(t, 100, t0.Add(time.Hour), t0.Add(48*time.Hour))
	open := s.createCampaign(t, 100, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	s.tick(t)

	// THEN: Only the CREATED one can be deleted
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/campaigns/"+later.ID, nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/api/campaigns/"+open.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/campaigns/"+later.ID, nil).Code)
}

func TestExtendCampaign(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 100, t0, t0.Add(24*time.Hour))

	rec := s.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/extend", ExtendCampaignRequest{Days: 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	extended := decode[CampaignDTO](t, rec)
	assert.True(t, extended.EndTime.Equal(t0.Add(8*24*time.Hour)))
	assert.Equal(t, "0.0", extended.PercentUncapped)
	assert.Contains(t, rec.Body.String(), `"percent_uncapped":"0.0"`)

	rec = s.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/extend", ExtendCampaignRequest{Days: 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExtendCampaign_RejectsDayCountsPastTheLimit(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 100, t0, t0.Add(24*time.Hour))

	tests := []struct {
		name string
		days int
	}{
		{"one past the limit", 3*365 + 1},
		// 213504 days in nanoseconds wraps int64 to roughly 25 minutes.
		{"wraps to a small duration", 213504},
		{"wraps negative", 106752},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/extend", ExtendCampaignRequest{Days: tt.days})
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		})
	}

	// THEN: The end time never moved
	rec := s.do(t, http.MethodGet, "/api/campaigns/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CampaignDTO](t, rec).EndTime.Equal(t0.Add(24*time.Hour)))

	rec = s.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/extend", ExtendCampaignRequest{Days: 3 * 365})
	assert.Equal(t, http.StatusOK, rec.Code, "the limit itself is accepted")
}

// =============================================================================
// DONATIONS AND RECONCILIATION
// =============================================================================

func TestDonationFlow_CompletesOnNextTick(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A campaign whose start has passed, opened by a tick
	c := s.createCampaign(t, 1_000, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	res := s.tick(t)
	require.Equal(t, 1, res.Transitioned)
	assert.Equal(t, "CAMPAIGN_OPENED", res.Transitions[0].Event)

	// WHEN: A donation meeting the goal is confirmed
	d := s.donate(t, c.ID, 1_500)
	assert.Equal(t, "PENDING", d.Status)
	assert.Nil(t, d.DonorID)

	rec := s.do(t, http.MethodPost, "/api/donations/"+d.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Progress reflects it immediately but status waits for the tick
	got := decode[CampaignDTO](t, s.do(t, http.MethodGet, "/api/campaigns/"+c.ID, nil))
	assert.Equal(t, "OPEN", got.Status)
	assert.Equal(t, int64(1_500), got.Donated)
	assert.Equal(t, "150.0", got.PercentUncapped)
	assert.Equal(t, 100, got.PercentCapped)

	res = s.tick(t)
	require.Equal(t, 1, res.Transitioned)
	assert.Equal(t, "COMPLETE", res.Transitions[0].To)

	got = decode[CampaignDTO](t, s.do(t, http.MethodGet, "/api/campaigns/"+c.ID, nil))
	assert.Equal(t, "COMPLETE", got.Status)
}

func TestDonate_Rejected(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 1_000, t0.Add(time.Hour), t0.Add(48*time.Hour))

	// WHEN: Donating to a campaign that has not opened
	rec := s.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/donations", DonateRequest{Amount: 10})

	// THEN: The donation is rejected and nothing is stored
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	list := decode[[]DonationDTO](t, s.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/donations", nil))
	assert.Empty(t, list)
}

func TestDonationTransitions(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 1_000, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	s.tick(t)
	d := s.donate(t, c.ID, 100)

	confirm := "/api/donations/" + d.ID + "/confirm"
	refuse := "/api/donations/" + d.ID + "/refuse"
	reset := "/api/donations/" + d.ID + "/reset"

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, confirm, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, confirm, nil).Code, "confirm is idempotent")
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, refuse, nil).Code, "confirmed cannot be refused")

	rec := s.do(t, http.MethodPost, reset, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", decode[DonationDTO](t, rec).Status)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, refuse, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/donations/missing/confirm", nil).Code)
}

func TestListDonations_PendingFilterAndDonors(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 1_000, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	s.tick(t)

	donor := "acct-1"
	rec := s.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/donations", DonateRequest{DonorID: &donor, Amount: 300})
	require.Equal(t, http.StatusCreated, rec.Code)
	confirmed := decode[DonationDTO](t, rec)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/donations/"+confirmed.ID+"/confirm", nil).Code)
	s.donate(t, c.ID, 50)

	all := decode[[]DonationDTO](t, s.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/donations", nil))
	pending := decode[[]DonationDTO](t, s.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/donations?pending=true", nil))
	assert.Len(t, all, 2)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(50), pending[0].Amount)

	donors := decode[[]DonorTotalDTO](t, s.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/donors", nil))
	assert.Equal(t, []DonorTotalDTO{{DonorID: "acct-1", Amount: 300}}, donors)
}

func TestFollowAndUnfollow(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 1_000, t0, t0.Add(48*time.Hour))
	path := "/api/campaigns/" + c.ID + "/followers/acct-7"

	rec := s.do(t, http.MethodPut, path, FollowRequest{Address: "a@example.com", ReceiveNotifications: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[FollowerDTO](t, rec).ReceiveNotifications)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodPut, "/api/campaigns/missing/followers/acct-7", FollowRequest{}).Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestStats(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, 100, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	s.tick(t)
	d := s.donate(t, c.ID, 100)
	s.donate(t, c.ID, 40)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/donations/"+d.ID+"/confirm", nil).Code)
	s.tick(t)

	rec := s.do(t, http.MethodGet, "/api/stats?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[DashboardDTO](t, rec)

	assert.Equal(t, int64(100), dash.ConfirmedLastWeek)
	assert.Equal(t, 100, dash.CompletedPercentage)
	assert.Equal(t, 1, dash.PendingDonations)
	assert.Equal(t, 2, dash.AnonymousDonations)
	assert.Len(t, dash.Daily, 7)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/stats?days=0", nil).Code)
}

func TestReconciliationRuns(t *testing.T) {
	s := newTestServer(t)
	s.createCampaign(t, 100, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	s.tick(t)
	s.tick(t)

	runs := decode[[]ReconciliationRunDTO](t, s.do(t, http.MethodGet, "/api/reconciliation/runs", nil))
	require.Len(t, runs, 2)
	assert.Equal(t, reconcile.TriggerManual, runs[0].Trigger)
	assert.NotNil(t, runs[0].CompletedAt)

	next := decode[NextRunDTO](t, s.do(t, http.MethodGet, "/api/reconciliation/next", nil))
	assert.Nil(t, next.NextRun, "scheduler not started")
	assert.False(t, next.Running)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLoadScenario_Funded(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "funded"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[[]CampaignDTO](t, s.do(t, http.MethodGet, "/api/campaigns", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "COMPLETE", list[0].Status)
	assert.Equal(t, "120.0", list[0].PercentUncapped)
	assert.Equal(t, 100, list[0].PercentCapped)
}

func TestLoadScenario_Reopened(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "reopened"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[[]CampaignDTO](t, s.do(t, http.MethodGet, "/api/campaigns", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "OPEN", list[0].Status)
	assert.Equal(t, int64(0), list[0].Donated)
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	s := newTestServer(t)
	s.createCampaign(t, 100, t0, t0.Add(time.Hour))

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "launch"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[[]CampaignDTO](t, s.do(t, http.MethodGet, "/api/campaigns", nil))
	require.Len(t, list, 2)
	statuses := []string{list[0].Status, list[1].Status}
	assert.ElementsMatch(t, []string{"OPEN", "CREATED"}, statuses)
}

func TestLoadDemo(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/demo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[[]CampaignDTO](t, s.do(t, http.MethodGet, "/api/campaigns", nil))
	assert.Len(t, list, 5)
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decode[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarios))
}
