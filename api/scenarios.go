/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with campaigns,
  donations and followers that demonstrate the lifecycle.

AVAILABLE SCENARIOS:
  launch:         One campaign opening now, one scheduled for later
  almost-funded:  Open campaign at 95% with a pending gift on top
  funded:         Over-funded campaign, COMPLETE (120% uncapped, 100 capped)
  reopened:       Completed, closed, then reopened after a donation reset

HOW SCENARIOS WORK:
 1. Reset the store
 2. Create campaigns through the ledger (always CREATED)
 3. Run reconciliation ticks to move them along
 4. Donate, confirm, refuse or reset between ticks

  Status is never written directly. Every status a scenario shows was
  reached through the reconciler.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "funded"}

  POST /api/scenarios/demo   (all scenarios side by side)

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - reconcile/scheduler.go: RunNow
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/campaign-engine/campaign"
)

// Resetter clears every campaign, donation, follower and run.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ErrUnknownScenario is returned for an unrecognised scenario id.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "launch",
		Name:        "Launch",
		Description: "One campaign opening now with a follower, one scheduled for next week",
	},
	{
		ID:          "almost-funded",
		Name:        "Almost Funded",
		Description: "Open campaign at 95% confirmed, a pending gift would complete it",
	},
	{
		ID:          "funded",
		Name:        "Funded",
		Description: "Over-funded campaign in COMPLETE, uncapped progress above 100%",
	},
	{
		ID:          "reopened",
		Name:        "Reopened",
		Description: "Campaign that completed and closed, then reopened when a gift was reset",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var loaders = map[string]scenarioLoader{
	"launch":        loadLaunchScenario,
	"almost-funded": loadAlmostFundedScenario,
	"funded":        loadFundedScenario,
	"reopened":      loadReopenedScenario,
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenario resets the store and loads one scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.SeedScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, ErrUnknownScenario) {
			writeError(w, http.StatusBadRequest, "unknown scenario", err)
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// LoadDemo resets the store and loads every scenario side by side.
// POST /api/scenarios/demo
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.SeedDemo(r.Context()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": "demo"})
}

// SeedScenario resets the store and loads scenario id.
func (h *Handler) SeedScenario(ctx context.Context, id string) error {
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := load(ctx, h); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	h.Logger.Info().Str("scenario", id).Msg("scenario loaded")
	return nil
}

// SeedDemo resets the store and loads every scenario.
func (h *Handler) SeedDemo(ctx context.Context) error {
	if err := h.reset(ctx); err != nil {
		return err
	}
	for _, s := range scenarios {
		if err := loaders[s.ID](ctx, h); err != nil {
			return fmt.Errorf("load scenario %s: %w", s.ID, err)
		}
	}
	h.Logger.Info().Int("scenarios", len(scenarios)).Msg("demo loaded")
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	if h.Resetter == nil {
		return errors.New("store does not support reset")
	}
	return h.Resetter.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const day = 24 * time.Hour

func loadLaunchScenario(ctx context.Context, h *Handler) error {
	now := h.Ledger.Clock.Now()

	wells, err := h.Ledger.CreateCampaign(ctx, campaign.NewCampaign{
		Name:        "Clean Water Wells",
		Description: "Drill **three** wells for villages in the highlands.",
		Goal:        50_000_000,
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(30 * day),
	})
	if err != nil {
		return err
	}
	if _, err := h.Ledger.CreateCampaign(ctx, campaign.NewCampaign{
		Name:        "School Library",
		Description: "Books and shelves for a rural primary school.",
		Goal:        12_000_000,
		StartTime:   now.Add(7 * day),
		EndTime:     now.Add(45 * day),
	}); err != nil {
		return err
	}

	if _, err := h.Ledger.Follow(ctx, "acct-lan", wells.ID, "lan@example.com", true); err != nil {
		return err
	}
	if _, err := h.Ledger.Follow(ctx, "acct-minh", wells.ID, "minh@example.com", false); err != nil {
		return err
	}

	// CREATED -> OPEN for the wells; the library is not due yet.
	if err := h.ticks(ctx, 1); err != nil {
		return err
	}

	donor := campaign.AccountID("acct-lan")
	_, err = h.Ledger.Donate(ctx, wells.ID, &donor, 500_000)
	return err
}

func loadAlmostFundedScenario(ctx context.Context, h *Handler) error {
	now := h.Ledger.Clock.Now()

	c, err := h.Ledger.CreateCampaign(ctx, campaign.NewCampaign{
		Name:        "Flood Relief Kits",
		Description: "Emergency kits for families displaced by the floods.",
		Goal:        2_000_000,
		StartTime:   now.Add(-5 * day),
		EndTime:     now.Add(10 * day),
	})
	if err != nil {
		return err
	}
	if err := h.ticks(ctx, 1); err != nil {
		return err
	}

	a, b := campaign.AccountID("acct-hoa"), campaign.AccountID("acct-tuan")
	if err := h.donateConfirmed(ctx, c.ID, &a, 1_500_000); err != nil {
		return err
	}
	if err := h.donateConfirmed(ctx, c.ID, nil, 400_000); err != nil {
		return err
	}
	refused, err := h.Ledger.Donate(ctx, c.ID, &b, 300_000)
	if err != nil {
		return err
	}
	if _, err := h.Ledger.Refuse(ctx, refused.ID); err != nil {
		return err
	}
	_, err = h.Ledger.Donate(ctx, c.ID, &b, 150_000)
	return err
}

func loadFundedScenario(ctx context.Context, h *Handler) error {
	now := h.Ledger.Clock.Now()

	c, err := h.Ledger.CreateCampaign(ctx, campaign.NewCampaign{
		Name:        "Community Kitchen",
		Description: "A year of hot meals at the community kitchen.",
		Goal:        1_000_000,
		StartTime:   now.Add(-3 * day),
		EndTime:     now.Add(20 * day),
	})
	if err != nil {
		return err
	}
	if _, err := h.Ledger.Follow(ctx, "acct-lan", c.ID, "lan@example.com", true); err != nil {
		return err
	}
	if err := h.ticks(ctx, 1); err != nil {
		return err
	}

	donor := campaign.AccountID("acct-quang")
	if err := h.donateConfirmed(ctx, c.ID, &donor, 1_200_000); err != nil {
		return err
	}
	// OPEN -> COMPLETE
	return h.ticks(ctx, 1)
}

func loadReopenedScenario(ctx context.Context, h *Handler) error {
	now := h.Ledger.Clock.Now()

	c, err := h.Ledger.CreateCampaign(ctx, campaign.NewCampaign{
		Name:        "Animal Shelter Roof",
		Description: "Replace the storm-damaged roof of the shelter.",
		Goal:        800_000,
		StartTime:   now.Add(-10 * day),
		EndTime:     now.Add(-time.Hour),
	})
	if err != nil {
		return err
	}
	if err := h.ticks(ctx, 1); err != nil { // CREATED -> OPEN
		return err
	}

	donor := campaign.AccountID("acct-vy")
	d, err := h.Ledger.Donate(ctx, c.ID, &donor, 800_000)
	if err != nil {
		return err
	}
	if _, err := h.Ledger.Confirm(ctx, d.ID); err != nil {
		return err
	}
	// OPEN -> COMPLETE -> CLOSED
	if err := h.ticks(ctx, 2); err != nil {
		return err
	}

	if _, err := h.Ledger.Reset(ctx, d.ID); err != nil {
		return err
	}
	// CLOSED -> OPEN
	return h.ticks(ctx, 1)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) ticks(ctx context.Context, n int) error {
	if h.Reconcile == nil {
		return errors.New("no reconciler configured")
	}
	for i := 0; i < n; i++ {
		if _, err := h.Reconcile.RunNow(ctx); err != nil {
			return fmt.Errorf("reconciliation tick: %w", err)
		}
	}
	return nil
}

func (h *Handler) donateConfirmed(ctx context.Context, id campaign.CampaignID, donor *campaign.AccountID, amount int64) error {
	d, err := h.Ledger.Donate(ctx, id, donor, amount)
	if err != nil {
		return err
	}
	_, err = h.Ledger.Confirm(ctx, d.ID)
	return err
}
