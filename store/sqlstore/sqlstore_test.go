package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var t0 = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveCampaign(t *testing.T, store *sqlstore.Store, id string, status campaign.Status) campaign.Campaign {
	t.Helper()
	c := campaign.Campaign{
		ID:          campaign.CampaignID(id),
		Name:        "Campaign " + id,
		Description: "desc",
		ImageURL:    campaign.DefaultImageURL,
		Goal:        10000,
		StartTime:   t0,
		EndTime:     t0.Add(30 * 24 * time.Hour),
		Status:      status,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
	require.NoError(t, store.SaveCampaign(context.Background(), c))
	return c
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func TestStore_CampaignRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := saveCampaign(t, store, "c-1", campaign.StatusCreated)

	got, err := store.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	_, err = store.GetCampaign(ctx, "missing")
	assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)

	want.EndTime = want.EndTime.Add(time.Hour)
	require.NoError(t, store.SaveCampaign(ctx, want))
	all, err := store.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, want.EndTime, all[0].EndTime)
}

func TestStore_UpdateCampaignStatus_CompareAndSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusOpen)

	require.NoError(t, store.UpdateCampaignStatus(ctx, "c-1", campaign.StatusOpen, campaign.StatusComplete))

	// Stale `from`
	err := store.UpdateCampaignStatus(ctx, "c-1", campaign.StatusOpen, campaign.StatusComplete)
	assert.ErrorIs(t, err, campaign.ErrConcurrentModification)
	assert.True(t, campaign.IsRetryable(err))

	err = store.UpdateCampaignStatus(ctx, "missing", campaign.StatusOpen, campaign.StatusComplete)
	assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)

	got, err := store.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusComplete, got.Status)
}

func TestStore_DeleteCampaign_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusCreated)

	require.NoError(t, store.SaveDonation(ctx, campaign.Donation{
		ID: "d-1", CampaignID: "c-1", Amount: 10, DonatedAt: t0, Status: campaign.DonationPending,
	}))
	require.NoError(t, store.SaveFollower(ctx, campaign.Follower{
		AccountID: "alice", CampaignID: "c-1", ReceiveNotifications: true, CreatedAt: t0,
	}))

	require.NoError(t, store.DeleteCampaign(ctx, "c-1"))

	_, err := store.GetDonation(ctx, "d-1")
	assert.ErrorIs(t, err, campaign.ErrDonationNotFound)
	followers, err := store.ListFollowers(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, followers)

	assert.ErrorIs(t, store.DeleteCampaign(ctx, "c-1"), campaign.ErrCampaignNotFound)
}

func TestStore_SaveCampaign_LeavesStatusAlone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	stale := saveCampaign(t, store, "c-1", campaign.StatusOpen)

	// GIVEN: A tick completed the campaign after a writer loaded it as OPEN
	require.NoError(t, store.UpdateCampaignStatus(ctx, "c-1", campaign.StatusOpen, campaign.StatusComplete))

	// WHEN: The writer saves its stale copy with a new end time
	stale.EndTime = stale.EndTime.Add(24 * time.Hour)
	require.NoError(t, store.SaveCampaign(ctx, stale))

	// THEN: The end time moves but the status stays COMPLETE
	got, err := store.GetCampaign(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusComplete, got.Status)
	assert.Equal(t, stale.EndTime, got.EndTime)
}

func TestStore_DeleteCampaign_OnlyWhileCreated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusCreated)
	require.NoError(t, store.SaveDonation(ctx, campaign.Donation{
		ID: "d-1", CampaignID: "c-1", Amount: 10, DonatedAt: t0, Status: campaign.DonationPending,
	}))
	require.NoError(t, store.UpdateCampaignStatus(ctx, "c-1", campaign.StatusCreated, campaign.StatusOpen))

	err := store.DeleteCampaign(ctx, "c-1")
	assert.ErrorIs(t, err, campaign.ErrCampaignNotDeletable)

	_, err = store.GetCampaign(ctx, "c-1")
	assert.NoError(t, err)
	_, err = store.GetDonation(ctx, "d-1")
	assert.NoError(t, err, "donations survive a refused delete")
}

// =============================================================================
// DONATIONS
// =============================================================================

func TestStore_Donations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusOpen)
	alice := campaign.AccountID("alice")

	donations := []campaign.Donation{
		{ID: "d-1", CampaignID: "c-1", DonorID: &alice, Amount: 100, DonatedAt: t0, Status: campaign.DonationConfirmed},
		{ID: "d-2", CampaignID: "c-1", Amount: 200, DonatedAt: t0.Add(time.Minute), Status: campaign.DonationPending},
		{ID: "d-3", CampaignID: "c-1", Amount: 300, DonatedAt: t0.Add(2 * time.Minute), Status: campaign.DonationRefused},
	}
	for _, d := range donations {
		require.NoError(t, store.SaveDonation(ctx, d))
	}

	all, err := store.ListDonations(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, campaign.DonationID("d-3"), all[0].ID, "newest first")

	confirmed, err := store.ListDonations(ctx, "c-1", campaign.DonationPending, campaign.DonationRefused)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, alice, *confirmed[0].DonorID)
	assert.Equal(t, t0, confirmed[0].DonatedAt)

	anon, err := store.GetDonation(ctx, "d-2")
	require.NoError(t, err)
	assert.True(t, anon.IsAnonymous())
}

func TestStore_SaveDonation_NeverRewritesAmount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusOpen)

	d := campaign.Donation{ID: "d-1", CampaignID: "c-1", Amount: 100, DonatedAt: t0, Status: campaign.DonationPending}
	require.NoError(t, store.SaveDonation(ctx, d))

	d.Amount = 999999
	d.Status = campaign.DonationConfirmed
	require.NoError(t, store.SaveDonation(ctx, d))

	got, err := store.GetDonation(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Amount)
	assert.Equal(t, campaign.DonationConfirmed, got.Status)
}

func TestStore_UpdateDonationStatus_CompareAndSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusOpen)
	require.NoError(t, store.SaveDonation(ctx, campaign.Donation{
		ID: "d-1", CampaignID: "c-1", Amount: 10, DonatedAt: t0, Status: campaign.DonationPending,
	}))

	require.NoError(t, store.UpdateDonationStatus(ctx, "d-1", campaign.DonationPending, campaign.DonationConfirmed))

	// Stale `from`
	err := store.UpdateDonationStatus(ctx, "d-1", campaign.DonationPending, campaign.DonationRefused)
	assert.ErrorIs(t, err, campaign.ErrConcurrentModification)

	err = store.UpdateDonationStatus(ctx, "missing", campaign.DonationPending, campaign.DonationRefused)
	assert.ErrorIs(t, err, campaign.ErrDonationNotFound)

	got, err := store.GetDonation(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, campaign.DonationConfirmed, got.Status)
}

func TestStore_SaveDonation_UnknownCampaign(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveDonation(context.Background(), campaign.Donation{
		ID: "d-1", CampaignID: "missing", Amount: 1, DonatedAt: t0, Status: campaign.DonationPending,
	})
	assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

// =============================================================================
// FOLLOWERS
// =============================================================================

func TestStore_Followers_OneEdgePerPair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveCampaign(t, store, "c-1", campaign.StatusOpen)

	f := campaign.Follower{AccountID: "alice", CampaignID: "c-1", Address: "a@example.com", ReceiveNotifications: true, CreatedAt: t0}
	require.NoError(t, store.SaveFollower(ctx, f))
	f.ReceiveNotifications = false
	require.NoError(t, store.SaveFollower(ctx, f))
	require.NoError(t, store.SaveFollower(ctx, campaign.Follower{AccountID: "bob", CampaignID: "c-1", ReceiveNotifications: true, CreatedAt: t0}))

	followers, err := store.ListFollowers(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, campaign.AccountID("alice"), followers[0].AccountID)
	assert.False(t, followers[0].ReceiveNotifications)
	assert.Equal(t, "a@example.com", followers[0].Address)

	require.NoError(t, store.DeleteFollower(ctx, "alice", "c-1"))
	followers, err = store.ListFollowers(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, followers, 1)
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func TestStore_Runs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := campaign.ReconciliationRun{ID: "run-1", Trigger: "schedule", StartedAt: t0}
	require.NoError(t, store.SaveRun(ctx, run))
	run.CompletedAt = t0.Add(time.Second)
	run.Evaluated = 3
	run.Transitioned = 1
	require.NoError(t, store.SaveRun(ctx, run))
	require.NoError(t, store.SaveRun(ctx, campaign.ReconciliationRun{ID: "run-2", Trigger: "manual", StartedAt: t0.Add(time.Minute)}))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.True(t, runs[0].CompletedAt.IsZero())
	assert.Equal(t, run, runs[1])
}
