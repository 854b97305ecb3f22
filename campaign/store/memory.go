// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/campaign-engine/campaign"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	campaigns map[campaign.CampaignID]campaign.Campaign
	donations map[campaign.DonationID]campaign.Donation
	followers map[followerKey]campaign.Follower
	runs      []campaign.ReconciliationRun
}

type followerKey struct {
	AccountID  campaign.AccountID
	CampaignID campaign.CampaignID
}

func NewMemory() *Memory {
	return &Memory{
		campaigns: make(map[campaign.CampaignID]campaign.Campaign),
		donations: make(map[campaign.DonationID]campaign.Donation),
		followers: make(map[followerKey]campaign.Follower),
	}
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns = make(map[campaign.CampaignID]campaign.Campaign)
	m.donations = make(map[campaign.DonationID]campaign.Donation)
	m.followers = make(map[followerKey]campaign.Follower)
	m.runs = nil
	return nil
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func (m *Memory) ListCampaigns(_ context.Context) ([]campaign.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]campaign.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) GetCampaign(_ context.Context, id campaign.CampaignID) (*campaign.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	return &c, nil
}

func (m *Memory) SaveCampaign(_ context.Context, c campaign.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.campaigns[c.ID]; ok {
		c.Status = existing.Status
	}
	m.campaigns[c.ID] = c
	return nil
}

func (m *Memory) UpdateCampaignStatus(_ context.Context, id campaign.CampaignID, from, to campaign.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrCampaignNotFound
	}
	if c.Status != from {
		return campaign.ErrConcurrentModification
	}
	c.Status = to
	m.campaigns[id] = c
	return nil
}

func (m *Memory) DeleteCampaign(_ context.Context, id campaign.CampaignID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrCampaignNotFound
	}
	if c.Status != campaign.StatusCreated {
		return campaign.ErrCampaignNotDeletable
	}
	delete(m.campaigns, id)
	for did, d := range m.donations {
		if d.CampaignID == id {
			delete(m.donations, did)
		}
	}
	for k := range m.followers {
		if k.CampaignID == id {
			delete(m.followers, k)
		}
	}
	return nil
}

// =============================================================================
// DONATIONS
// =============================================================================

func (m *Memory) ListDonations(_ context.Context, campaignID campaign.CampaignID, exclude ...campaign.DonationStatus) ([]campaign.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []campaign.Donation
	for _, d := range m.donations {
		if d.CampaignID == campaignID {
			result = append(result, d)
		}
	}
	return newestFirst(campaign.FilterDonations(result, exclude...)), nil
}

func (m *Memory) ListAllDonations(_ context.Context) ([]campaign.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]campaign.Donation, 0, len(m.donations))
	for _, d := range m.donations {
		result = append(result, d)
	}
	return newestFirst(result), nil
}

func (m *Memory) GetDonation(_ context.Context, id campaign.DonationID) (*campaign.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.donations[id]
	if !ok {
		return nil, campaign.ErrDonationNotFound
	}
	return &d, nil
}

// SaveDonation inserts d, or updates only the status of an existing donation.
func (m *Memory) SaveDonation(_ context.Context, d campaign.Donation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.donations[d.ID]; ok {
		existing.Status = d.Status
		m.donations[d.ID] = existing
		return nil
	}
	if _, ok := m.campaigns[d.CampaignID]; !ok {
		return campaign.ErrCampaignNotFound
	}
	if d.DonorID != nil {
		donor := *d.DonorID
		d.DonorID = &donor
	}
	m.donations[d.ID] = d
	return nil
}

func (m *Memory) UpdateDonationStatus(_ context.Context, id campaign.DonationID, from, to campaign.DonationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.donations[id]
	if !ok {
		return campaign.ErrDonationNotFound
	}
	if d.Status != from {
		return campaign.ErrConcurrentModification
	}
	d.Status = to
	m.donations[id] = d
	return nil
}

func newestFirst(donations []campaign.Donation) []campaign.Donation {
	sort.Slice(donations, func(i, j int) bool {
		if !donations[i].DonatedAt.Equal(donations[j].DonatedAt) {
			return donations[i].DonatedAt.After(donations[j].DonatedAt)
		}
		return donations[i].ID < donations[j].ID
	})
	return donations
}

// =============================================================================
// FOLLOWERS
// =============================================================================

func (m *Memory) SaveFollower(_ context.Context, f campaign.Follower) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.campaigns[f.CampaignID]; !ok {
		return campaign.ErrCampaignNotFound
	}
	k := followerKey{AccountID: f.AccountID, CampaignID: f.CampaignID}
	if existing, ok := m.followers[k]; ok {
		f.CreatedAt = existing.CreatedAt
	}
	m.followers[k] = f
	return nil
}

func (m *Memory) DeleteFollower(_ context.Context, accountID campaign.AccountID, campaignID campaign.CampaignID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.followers, followerKey{AccountID: accountID, CampaignID: campaignID})
	return nil
}

func (m *Memory) ListFollowers(_ context.Context, campaignID campaign.CampaignID) ([]campaign.Follower, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []campaign.Follower
	for k, f := range m.followers {
		if k.CampaignID == campaignID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run campaign.ReconciliationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]campaign.ReconciliationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]campaign.ReconciliationRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, m.runs[i])
	}
	return result, nil
}
