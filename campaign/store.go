/*
store.go - Persistence interface for campaigns, donations and followers

PURPOSE:
  Defines the boundary between the campaign engine and the database.
  Implementations must give read-your-writes consistency: a donation saved
  before a reconciliation pass reads it must be visible to that pass.

KEY INTERFACES:
  Store: campaigns, donations and follower edges

SINGLE-RECORD ATOMICITY:
  Every write touches one row. UpdateCampaignStatus is a compare-and-set
  so a reconciler tick never overwrites a status that changed since it
  loaded the campaign; SaveCampaign leaves status alone on update.
  UpdateDonationStatus is the same guard for the donation workflow, and
  DeleteCampaign checks CREATED in the same step that deletes.
  SaveDonation never rewrites the amount of an existing donation.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite / PostgreSQL through sqlx
  - campaign/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level service using Store
  - reconcile/reconciler.go: The periodic pass over ListCampaigns
*/
package campaign

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// ListCampaigns returns every campaign. Full scan; no pagination.
	ListCampaigns(ctx context.Context) ([]Campaign, error)

	// GetCampaign returns ErrCampaignNotFound when id is unknown.
	GetCampaign(ctx context.Context, id CampaignID) (*Campaign, error)

	// SaveCampaign inserts a campaign, or updates the descriptive fields and
	// time window of an existing one. The stored status is never touched on
	// update; only UpdateCampaignStatus writes it.
	SaveCampaign(ctx context.Context, c Campaign) error

	// UpdateCampaignStatus sets status to `to` only if it is currently `from`.
	// Returns ErrCampaignNotFound or ErrConcurrentModification otherwise.
	UpdateCampaignStatus(ctx context.Context, id CampaignID, from, to Status) error

	// DeleteCampaign removes a campaign still in CREATED, with its donations
	// and followers. The status check and the delete are one step. Returns
	// ErrCampaignNotFound, or ErrCampaignNotDeletable once it has left CREATED.
	DeleteCampaign(ctx context.Context, id CampaignID) error

	// ListDonations returns a campaign's donations, newest first, skipping
	// any whose status is listed in exclude.
	ListDonations(ctx context.Context, campaignID CampaignID, exclude ...DonationStatus) ([]Donation, error)

	// ListAllDonations returns every donation, newest first.
	ListAllDonations(ctx context.Context) ([]Donation, error)

	// GetDonation returns ErrDonationNotFound when id is unknown.
	GetDonation(ctx context.Context, id DonationID) (*Donation, error)

	// SaveDonation inserts a donation, or updates only the status of an
	// existing one.
	SaveDonation(ctx context.Context, d Donation) error

	// UpdateDonationStatus sets status to `to` only if it is currently `from`.
	// Returns ErrDonationNotFound or ErrConcurrentModification otherwise.
	UpdateDonationStatus(ctx context.Context, id DonationID, from, to DonationStatus) error

	// SaveFollower inserts or updates the (account, campaign) edge.
	SaveFollower(ctx context.Context, f Follower) error

	// DeleteFollower removes the (account, campaign) edge if present.
	DeleteFollower(ctx context.Context, accountID AccountID, campaignID CampaignID) error

	// ListFollowers returns all edges pointing at a campaign.
	ListFollowers(ctx context.Context, campaignID CampaignID) ([]Follower, error)
}

// excluded reports whether status appears in the exclude list.
func excluded(status DonationStatus, exclude []DonationStatus) bool {
	for _, s := range exclude {
		if s == status {
			return true
		}
	}
	return false
}

// FilterDonations drops donations whose status is in exclude. Store
// implementations that filter in memory share it.
func FilterDonations(donations []Donation, exclude ...DonationStatus) []Donation {
	if len(exclude) == 0 {
		return donations
	}
	out := make([]Donation, 0, len(donations))
	for _, d := range donations {
		if !excluded(d.Status, exclude) {
			out = append(out, d)
		}
	}
	return out
}

// =============================================================================
// RUN STORE - Reconciliation audit trail
// =============================================================================

// ReconciliationRun records the outcome of one reconciler tick.
type ReconciliationRun struct {
	ID           string
	Trigger      string // "schedule" or "manual"
	StartedAt    time.Time
	CompletedAt  time.Time
	Evaluated    int
	Transitioned int
	Skipped      int
	Failed       int
	Error        string
}

// RunStore persists reconciliation runs. Both Store implementations
// provide it.
type RunStore interface {
	SaveRun(ctx context.Context, run ReconciliationRun) error

	// ListRuns returns the most recent runs first, at most limit of them.
	ListRuns(ctx context.Context, limit int) ([]ReconciliationRun, error)
}
