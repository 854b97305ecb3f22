/*
Package reconcile advances campaign status over time.

PURPOSE:
  The Reconciler is the only code that changes a campaign's status. Each
  Tick loads every campaign, reads its confirmed total fresh from the
  ledger, asks campaign.NextStatus what follows, commits the change with a
  compare-and-set and hands the transition to the notification fan-out.

FAILURE SEMANTICS:
  - Listing campaigns fails: the tick fails, nothing changes.
  - One campaign fails (read, CAS conflict, write): logged, counted in
    Result.Failed, skipped. Its status is unchanged so the next tick
    re-evaluates it.
  - ctx cancelled mid-tick: remaining campaigns are abandoned; those
    already committed stay committed.

GUARANTEES:
  - At most one transition per campaign per tick.
  - Idempotent: a second tick with no clock or ledger change commits nothing.
  - Publish never blocks the tick.

SEE ALSO:
  - campaign/statemachine.go: transition rules
  - scheduler.go: fixed-rate loop with single-flight
  - notify/fanout.go: Publisher implementation
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/campaign"
)

// Publisher receives committed transitions. Implementations must not block.
type Publisher interface {
	Publish(t campaign.Transition) bool
}

// Result summarises one tick.
type Result struct {
	Evaluated    int
	Transitioned int
	Skipped      int // evaluated, no rule fired
	Failed       int
	Transitions  []campaign.Transition
	Duration     time.Duration
}

type Reconciler struct {
	store     campaign.Store
	ledger    *campaign.Ledger
	clock     campaign.Clock
	publisher Publisher
	logger    zerolog.Logger
}

// New builds a Reconciler. publisher may be nil.
func New(store campaign.Store, clock campaign.Clock, publisher Publisher, logger zerolog.Logger) *Reconciler {
	if clock == nil {
		clock = campaign.SystemClock{}
	}
	return &Reconciler{
		store:     store,
		ledger:    campaign.NewLedger(store, clock),
		clock:     clock,
		publisher: publisher,
		logger:    logger.With().Str("component", "reconciler").Logger(),
	}
}

// Tick evaluates every campaign once.
func (r *Reconciler) Tick(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	campaigns, err := r.store.ListCampaigns(ctx)
	if err != nil {
		return res, fmt.Errorf("list campaigns: %w", err)
	}

	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			r.logger.Warn().
				Int("remaining", len(campaigns)-res.Evaluated).
				Msg("tick abandoned")
			return res, err
		}

		res.Evaluated++
		t, fired, err := r.evaluate(ctx, c)
		switch {
		case err != nil:
			res.Failed++
			r.logFailure(c, err)
		case !fired:
			res.Skipped++
		default:
			res.Transitioned++
			res.Transitions = append(res.Transitions, t)
			r.logger.Info().
				Str("campaign_id", string(c.ID)).
				Str("from", string(t.From)).
				Str("to", string(t.To)).
				Str("event", string(t.Event)).
				Msg("campaign transitioned")
			if r.publisher != nil {
				r.publisher.Publish(t)
			}
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// evaluate decides and commits at most one transition for c.
func (r *Reconciler) evaluate(ctx context.Context, c campaign.Campaign) (campaign.Transition, bool, error) {
	progress, err := r.ledger.Progress(ctx, c)
	if err != nil {
		return campaign.Transition{}, false, fmt.Errorf("read donated amount: %w", err)
	}

	now := r.clock.Now()
	to, event, fired := campaign.NextStatus(c, now, progress)
	if !fired {
		return campaign.Transition{}, false, nil
	}

	if err := r.store.UpdateCampaignStatus(ctx, c.ID, c.Status, to); err != nil {
		return campaign.Transition{}, false, fmt.Errorf("persist %s -> %s: %w", c.Status, to, err)
	}

	from := c.Status
	c.Status = to
	return campaign.Transition{Campaign: c, From: from, To: to, Event: event, At: now}, true, nil
}

func (r *Reconciler) logFailure(c campaign.Campaign, err error) {
	ev := r.logger.Error()
	if errors.Is(err, campaign.ErrConcurrentModification) || errors.Is(err, campaign.ErrCampaignNotFound) {
		ev = r.logger.Warn()
	}
	ev.Err(err).
		Str("campaign_id", string(c.ID)).
		Str("status", string(c.Status)).
		Msg("campaign skipped this tick")
}
