/*
ledger.go - Donation ledger and campaign administration

PURPOSE:
  The Ledger is the only path through which money reaches a campaign.
  Donations start PENDING and count toward the goal only once CONFIRMED.
  Totals are always recomputed from the stored donations; nothing is cached.

DONATION WORKFLOW:
  PENDING   -> CONFIRMED  (Confirm, idempotent)
  PENDING   -> REFUSED    (Refuse, idempotent)
  CONFIRMED -> PENDING    (Reset)
  REFUSED   -> PENDING    (Reset)

  Anything else is a DonationTransitionError. Amounts never change.

CAMPAIGN STATUS:
  The Ledger never changes a campaign's status. A confirmed donation that
  meets the goal is picked up by the reconciler on its next tick.

SEE ALSO:
  - progress.go: percentage arithmetic
  - reconcile/reconciler.go: status changes
*/
package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxExtension bounds how far ExtendCampaign may push an end time at once.
const MaxExtension = 3 * 365 * 24 * time.Hour

type Ledger struct {
	Store Store
	Clock Clock

	// NewID generates identifiers for campaigns and donations.
	NewID func() string
}

func NewLedger(store Store, clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{Store: store, Clock: clock, NewID: uuid.NewString}
}

// =============================================================================
// DONATIONS
// =============================================================================

// Donate records a PENDING donation. donor is nil for anonymous gifts.
func (l *Ledger) Donate(ctx context.Context, campaignID CampaignID, donor *AccountID, amount int64) (Donation, error) {
	c, err := l.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return Donation{}, err
	}
	if !c.Status.AcceptsDonations() {
		return Donation{}, &RejectedDonationError{
			CampaignID: c.ID, Status: c.Status, Amount: amount, Reason: RejectCampaignNotAccepting,
		}
	}
	if amount <= 0 {
		return Donation{}, &RejectedDonationError{
			CampaignID: c.ID, Status: c.Status, Amount: amount, Reason: RejectNonPositiveAmount,
		}
	}

	d := Donation{
		ID:         DonationID(l.NewID()),
		CampaignID: c.ID,
		DonorID:    donor,
		Amount:     amount,
		DonatedAt:  l.Clock.Now(),
		Status:     DonationPending,
	}
	if err := l.Store.SaveDonation(ctx, d); err != nil {
		return Donation{}, fmt.Errorf("save donation: %w", err)
	}
	return d, nil
}

// Confirm marks a donation CONFIRMED. Confirming twice is a no-op.
func (l *Ledger) Confirm(ctx context.Context, id DonationID) (Donation, error) {
	return l.transition(ctx, id, DonationConfirmed, DonationPending)
}

// Refuse marks a donation REFUSED. Refusing twice is a no-op.
func (l *Ledger) Refuse(ctx context.Context, id DonationID) (Donation, error) {
	return l.transition(ctx, id, DonationRefused, DonationPending)
}

// Reset puts a donation back to PENDING from any state.
func (l *Ledger) Reset(ctx context.Context, id DonationID) (Donation, error) {
	return l.transition(ctx, id, DonationPending, DonationPending, DonationConfirmed, DonationRefused)
}

// transition moves a donation to `to` if its current status is `to` or one
// of `from`.
func (l *Ledger) transition(ctx context.Context, id DonationID, to DonationStatus, from ...DonationStatus) (Donation, error) {
	d, err := l.Store.GetDonation(ctx, id)
	if err != nil {
		return Donation{}, err
	}
	if d.Status == to {
		return *d, nil
	}
	if !excluded(d.Status, from) {
		return Donation{}, &DonationTransitionError{DonationID: id, From: d.Status, To: to}
	}

	if err := l.Store.UpdateDonationStatus(ctx, id, d.Status, to); err != nil {
		return Donation{}, fmt.Errorf("donation %s %s -> %s: %w", id, d.Status, to, err)
	}
	d.Status = to
	return *d, nil
}

// =============================================================================
// AGGREGATION
// =============================================================================

// DonatedAmount sums the campaign's confirmed donations, read fresh.
func (l *Ledger) DonatedAmount(ctx context.Context, campaignID CampaignID) (int64, error) {
	donations, err := l.Store.ListDonations(ctx, campaignID, DonationPending, DonationRefused)
	if err != nil {
		return 0, err
	}
	return SumConfirmed(donations), nil
}

// Progress returns the derived funding state of c.
func (l *Ledger) Progress(ctx context.Context, c Campaign) (Progress, error) {
	donated, err := l.DonatedAmount(ctx, c.ID)
	if err != nil {
		return Progress{}, err
	}
	return ComputeProgress(c.Goal, donated), nil
}

// DonorTotals maps each identified donor to the sum of their confirmed gifts.
func (l *Ledger) DonorTotals(ctx context.Context, campaignID CampaignID) (map[AccountID]int64, error) {
	donations, err := l.Store.ListDonations(ctx, campaignID, DonationPending, DonationRefused)
	if err != nil {
		return nil, err
	}
	return DonorTotalsOf(donations), nil
}

// RankedDonors is DonorTotals ordered largest first.
func (l *Ledger) RankedDonors(ctx context.Context, campaignID CampaignID) ([]DonorTotal, error) {
	totals, err := l.DonorTotals(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return RankDonors(totals), nil
}

// Donations lists every donation of a campaign, newest first.
func (l *Ledger) Donations(ctx context.Context, campaignID CampaignID) ([]Donation, error) {
	if _, err := l.Store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return l.Store.ListDonations(ctx, campaignID)
}

// PendingDonations lists donations still awaiting review or refused, i.e.
// everything except CONFIRMED.
func (l *Ledger) PendingDonations(ctx context.Context, campaignID CampaignID) ([]Donation, error) {
	if _, err := l.Store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return l.Store.ListDonations(ctx, campaignID, DonationConfirmed)
}

// =============================================================================
// CAMPAIGN ADMINISTRATION
// =============================================================================

// CreateCampaign validates input and stores a campaign in CREATED.
func (l *Ledger) CreateCampaign(ctx context.Context, in NewCampaign) (Campaign, error) {
	if !in.EndTime.After(in.StartTime) {
		return Campaign{}, ErrInvalidPeriod
	}
	if in.Goal < 0 {
		return Campaign{}, ErrInvalidGoal
	}

	image := strings.TrimSpace(in.ImageURL)
	if image == "" {
		image = DefaultImageURL
	}

	now := l.Clock.Now()
	c := Campaign{
		ID:          CampaignID(l.NewID()),
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    image,
		Goal:        in.Goal,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.Store.SaveCampaign(ctx, c); err != nil {
		return Campaign{}, fmt.Errorf("save campaign: %w", err)
	}
	return c, nil
}

func (l *Ledger) GetCampaign(ctx context.Context, id CampaignID) (Campaign, error) {
	c, err := l.Store.GetCampaign(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	return *c, nil
}

func (l *Ledger) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	return l.Store.ListCampaigns(ctx)
}

// ExtendCampaign pushes the end time out by d. The returned campaign is
// re-read so its status reflects any tick that ran meanwhile.
func (l *Ledger) ExtendCampaign(ctx context.Context, id CampaignID, d time.Duration) (Campaign, error) {
	if d <= 0 || d > MaxExtension {
		return Campaign{}, fmt.Errorf("%w: %s (max %s)", ErrExtensionTooLong, d, MaxExtension)
	}
	c, err := l.Store.GetCampaign(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	c.EndTime = c.EndTime.Add(d)
	c.UpdatedAt = l.Clock.Now()
	if err := l.Store.SaveCampaign(ctx, *c); err != nil {
		return Campaign{}, fmt.Errorf("save campaign: %w", err)
	}
	return l.GetCampaign(ctx, id)
}

// DeleteCampaign removes a campaign that has not opened yet. The store
// checks CREATED in the same step as the delete.
func (l *Ledger) DeleteCampaign(ctx context.Context, id CampaignID) error {
	return l.Store.DeleteCampaign(ctx, id)
}

// =============================================================================
// FOLLOWERS
// =============================================================================

// Follow creates or updates the follower edge for (account, campaign).
func (l *Ledger) Follow(ctx context.Context, accountID AccountID, campaignID CampaignID, address string, notify bool) (Follower, error) {
	if _, err := l.Store.GetCampaign(ctx, campaignID); err != nil {
		return Follower{}, err
	}
	f := Follower{
		AccountID:            accountID,
		CampaignID:           campaignID,
		Address:              strings.TrimSpace(address),
		ReceiveNotifications: notify,
		CreatedAt:            l.Clock.Now(),
	}
	if err := l.Store.SaveFollower(ctx, f); err != nil {
		return Follower{}, fmt.Errorf("save follower: %w", err)
	}
	return f, nil
}

func (l *Ledger) Unfollow(ctx context.Context, accountID AccountID, campaignID CampaignID) error {
	return l.Store.DeleteFollower(ctx, accountID, campaignID)
}
