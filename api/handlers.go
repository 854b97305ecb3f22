/*
handlers.go - HTTP API handlers for the campaign engine

PURPOSE:
  Exposes the donation ledger and the reconciler via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.
  Handlers never change campaign status; only the reconciler does.

ENDPOINTS:
  Campaigns:
    GET    /api/campaigns                      List campaigns with progress
    POST   /api/campaigns                      Create campaign (CREATED)
    GET    /api/campaigns/{id}                 Get campaign with progress
    DELETE /api/campaigns/{id}                 Delete (CREATED only)
    POST   /api/campaigns/{id}/extend          Push end time out
    GET    /api/campaigns/{id}/daily           Daily confirmed series

  Donations:
    POST   /api/campaigns/{id}/donations       Donate (PENDING)
    GET    /api/campaigns/{id}/donations       List (?pending=true)
    GET    /api/campaigns/{id}/donors          Per-donor confirmed totals
    POST   /api/donations/{id}/confirm         PENDING -> CONFIRMED
    POST   /api/donations/{id}/refuse          PENDING -> REFUSED
    POST   /api/donations/{id}/reset           any -> PENDING

  Followers:
    PUT    /api/campaigns/{id}/followers/{accountID}
    DELETE /api/campaigns/{id}/followers/{accountID}

  Admin:
    GET    /api/stats                          Dashboard (?days=30)
    POST   /api/reconciliation/run             Run one tick now
    GET    /api/reconciliation/next            Next scheduled tick
    GET    /api/reconciliation/runs            Recent ticks

  Scenarios (scenarios.go):
    GET    /api/scenarios                      List scenarios
    POST   /api/scenarios/load                 Reset and load one
    POST   /api/scenarios/demo                 Reset and load all

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input
  - 404: Campaign or donation not found
  - 409: Illegal transition, tick already running, lost race
  - 422: Rejected donation, invalid period/goal/extension
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/reconcile"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Reconciliation is the scheduler surface the API drives.
type Reconciliation interface {
	RunNow(ctx context.Context) (reconcile.Result, error)
	NextRun() time.Time
	Running() bool
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *campaign.Ledger
	Stats     *campaign.Stats
	Reconcile Reconciliation
	Runs      campaign.RunStore // optional
	Resetter  Resetter          // optional; scenarios need it
	Logger    zerolog.Logger
}

func NewHandler(ledger *campaign.Ledger, stats *campaign.Stats, rec Reconciliation, runs campaign.RunStore, logger zerolog.Logger) *Handler {
	return &Handler{
		Ledger:    ledger,
		Stats:     stats,
		Reconcile: rec,
		Runs:      runs,
		Logger:    logger,
	}
}

// =============================================================================
// CAMPAIGN HANDLERS
// =============================================================================

// ListCampaigns returns all campaigns with freshly computed progress.
// GET /api/campaigns
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaigns, err := h.Ledger.ListCampaigns(ctx)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		p, err := h.Ledger.Progress(ctx, c)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		dtos = append(dtos, toCampaignDTO(c, p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCampaign creates a campaign in CREATED.
// POST /api/campaigns
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	c, err := h.Ledger.CreateCampaign(r.Context(), campaign.NewCampaign{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Goal:        req.Goal,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampaignDTO(c, campaign.ComputeProgress(c.Goal, 0)))
}

// GetCampaign returns one campaign.
// GET /api/campaigns/{id}
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.Ledger.GetCampaign(ctx, campaignIDParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := h.Ledger.Progress(ctx, c)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignDTO(c, p))
}

// DeleteCampaign removes a campaign that has not opened yet.
// DELETE /api/campaigns/{id}
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteCampaign(r.Context(), campaignIDParam(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExtendCampaign pushes the end time out by whole days. Status is left to
// the reconciler.
// POST /api/campaigns/{id}/extend
func (h *Handler) ExtendCampaign(w http.ResponseWriter, r *http.Request) {
	var req ExtendCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// Bound days before converting; a large count wraps the Duration.
	if maxDays := int(campaign.MaxExtension / day); req.Days <= 0 || req.Days > maxDays {
		h.writeDomainError(w, r, fmt.Errorf("%w: %d days (max %d)", campaign.ErrExtensionTooLong, req.Days, maxDays))
		return
	}

	ctx := r.Context()
	c, err := h.Ledger.ExtendCampaign(ctx, campaignIDParam(r), time.Duration(req.Days)*day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := h.Ledger.Progress(ctx, c)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignDTO(c, p))
}

// CampaignDaily returns the campaign's daily confirmed totals.
// GET /api/campaigns/{id}/daily?days=30
func (h *Handler) CampaignDaily(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(w, r)
	if !ok {
		return
	}
	series, err := h.Stats.CampaignDaily(r.Context(), campaignIDParam(r), days)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyDTOs(series))
}

// =============================================================================
// DONATION HANDLERS
// =============================================================================

// Donate records a PENDING donation.
// POST /api/campaigns/{id}/donations
func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	var req DonateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var donor *campaign.AccountID
	if req.DonorID != nil && strings.TrimSpace(*req.DonorID) != "" {
		id := campaign.AccountID(strings.TrimSpace(*req.DonorID))
		donor = &id
	}

	d, err := h.Ledger.Donate(r.Context(), campaignIDParam(r), donor, req.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDonationDTO(d))
}

// ListDonations returns a campaign's donations, newest first.
// GET /api/campaigns/{id}/donations?pending=true
func (h *Handler) ListDonations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := campaignIDParam(r)

	var (
		donations []campaign.Donation
		err       error
	)
	if pending, _ := strconv.ParseBool(r.URL.Query().Get("pending")); pending {
		donations, err = h.Ledger.PendingDonations(ctx, id)
	} else {
		donations, err = h.Ledger.Donations(ctx, id)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDonationDTOs(donations))
}

// ListDonors returns identified donors ranked by confirmed total.
// GET /api/campaigns/{id}/donors
func (h *Handler) ListDonors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := campaignIDParam(r)
	if _, err := h.Ledger.GetCampaign(ctx, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	ranked, err := h.Ledger.RankedDonors(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]DonorTotalDTO, len(ranked))
	for i, d := range ranked {
		dtos[i] = DonorTotalDTO{DonorID: string(d.DonorID), Amount: d.Amount}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ConfirmDonation POST /api/donations/{id}/confirm
func (h *Handler) ConfirmDonation(w http.ResponseWriter, r *http.Request) {
	h.transitionDonation(w, r, h.Ledger.Confirm)
}

// RefuseDonation POST /api/donations/{id}/refuse
func (h *Handler) RefuseDonation(w http.ResponseWriter, r *http.Request) {
	h.transitionDonation(w, r, h.Ledger.Refuse)
}

// ResetDonation POST /api/donations/{id}/reset
func (h *Handler) ResetDonation(w http.ResponseWriter, r *http.Request) {
	h.transitionDonation(w, r, h.Ledger.Reset)
}

func (h *Handler) transitionDonation(w http.ResponseWriter, r *http.Request, op func(context.Context, campaign.DonationID) (campaign.Donation, error)) {
	id := campaign.DonationID(chi.URLParam(r, "id"))
	d, err := op(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.Logger.Info().
		Str("donation_id", string(d.ID)).
		Str("campaign_id", string(d.CampaignID)).
		Str("status", string(d.Status)).
		Msg("donation status changed")
	writeJSON(w, http.StatusOK, toDonationDTO(d))
}

// =============================================================================
// FOLLOWER HANDLERS
// =============================================================================

// Follow creates or updates the follower edge.
// PUT /api/campaigns/{id}/followers/{accountID}
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	var req FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	accountID := campaign.AccountID(chi.URLParam(r, "accountID"))
	f, err := h.Ledger.Follow(r.Context(), accountID, campaignIDParam(r), req.Address, req.ReceiveNotifications)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FollowerDTO{
		AccountID:            string(f.AccountID),
		CampaignID:           string(f.CampaignID),
		Address:              f.Address,
		ReceiveNotifications: f.ReceiveNotifications,
		CreatedAt:            f.CreatedAt,
	})
}

// Unfollow DELETE /api/campaigns/{id}/followers/{accountID}
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	accountID := campaign.AccountID(chi.URLParam(r, "accountID"))
	if err := h.Ledger.Unfollow(r.Context(), accountID, campaignIDParam(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetStats returns the dashboard.
// GET /api/stats?days=30
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(w, r)
	if !ok {
		return
	}
	dash, err := h.Stats.Dashboard(r.Context(), days)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		ConfirmedLastWeek:   dash.ConfirmedLastWeek,
		ConfirmedLast3Days:  dash.ConfirmedLast3Days,
		CompletedPercentage: dash.CompletedPercentage,
		PendingDonations:    dash.PendingDonations,
		AnonymousDonations:  dash.AnonymousDonations,
		AttributedDonations: dash.AttributedDonations,
		Daily:               toDailyDTOs(dash.Daily),
	})
}

// RunReconciliation runs one tick synchronously.
// POST /api/reconciliation/run
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reconcile.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTickResultDTO(res))
}

// NextReconciliation GET /api/reconciliation/next
func (h *Handler) NextReconciliation(w http.ResponseWriter, r *http.Request) {
	dto := NextRunDTO{Running: h.Reconcile.Running()}
	if next := h.Reconcile.NextRun(); !next.IsZero() {
		dto.NextRun = &next
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListReconciliationRuns GET /api/reconciliation/runs?limit=50
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []ReconciliationRunDTO{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	runs, err := h.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func campaignIDParam(r *http.Request) campaign.CampaignID {
	return campaign.CampaignID(chi.URLParam(r, "id"))
}

// daysParam reads ?days=, default 30, max 366.
func daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return 30, true
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 || days > 366 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 366", err)
		return 0, false
	}
	return days, true
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

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case campaign.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrCampaignNotDeletable),
		errors.Is(err, reconcile.ErrTickInProgress),
		errors.Is(err, reconcile.ErrLockHeld),
		campaign.IsRetryable(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case campaign.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, "rejected", err)
	default:
		h.Logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
