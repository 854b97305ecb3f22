/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the ledger, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/reconcile"
)

// =============================================================================
// CAMPAIGNS
// =============================================================================

// CampaignDTO represents a campaign with its derived progress.
// PercentUncapped is a fixed one-decimal string, e.g. "150.0".
type CampaignDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	ImageURL        string    `json:"image_url"`
	Goal            int64     `json:"goal"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	Donated         int64     `json:"donated"`
	PercentUncapped string    `json:"percent_uncapped"`
	PercentCapped   int       `json:"percent_capped"`
	CreatedAt       time.Time `json:"created_at"`
}

type CreateCampaignRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Goal        int64     `json:"goal"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type ExtendCampaignRequest struct {
	Days int `json:"days"`
}

func toCampaignDTO(c campaign.Campaign, p campaign.Progress) CampaignDTO {
	return CampaignDTO{
		ID:              string(c.ID),
		Name:            c.Name,
		Description:     c.Description,
		ImageURL:        c.ImageURL,
		Goal:            c.Goal,
		StartTime:       c.StartTime,
		EndTime:         c.EndTime,
		Status:          string(c.Status),
		Donated:         p.Donated,
		PercentUncapped: p.Uncapped.StringFixed(1),
		PercentCapped:   p.Capped,
		CreatedAt:       c.CreatedAt,
	}
}

// =============================================================================
// DONATIONS
// =============================================================================

type DonationDTO struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	DonorID    *string   `json:"donor_id"`
	Amount     int64     `json:"amount"`
	DonatedAt  time.Time `json:"donated_at"`
	Status     string    `json:"status"`
}

type DonateRequest struct {
	DonorID *string `json:"donor_id"` // omitted or null = anonymous
	Amount  int64   `json:"amount"`
}

type DonorTotalDTO struct {
	DonorID string `json:"donor_id"`
	Amount  int64  `json:"amount"`
}

func toDonationDTO(d campaign.Donation) DonationDTO {
	dto := DonationDTO{
		ID:         string(d.ID),
		CampaignID: string(d.CampaignID),
		Amount:     d.Amount,
		DonatedAt:  d.DonatedAt,
		Status:     string(d.Status),
	}
	if d.DonorID != nil {
		donor := string(*d.DonorID)
		dto.DonorID = &donor
	}
	return dto
}

func toDonationDTOs(donations []campaign.Donation) []DonationDTO {
	dtos := make([]DonationDTO, len(donations))
	for i, d := range donations {
		dtos[i] = toDonationDTO(d)
	}
	return dtos
}

// =============================================================================
// FOLLOWERS
// =============================================================================

type FollowRequest struct {
	Address              string `json:"address"`
	ReceiveNotifications bool   `json:"receive_notifications"`
}

type FollowerDTO struct {
	AccountID            string    `json:"account_id"`
	CampaignID           string    `json:"campaign_id"`
	Address              string    `json:"address"`
	ReceiveNotifications bool      `json:"receive_notifications"`
	CreatedAt            time.Time `json:"created_at"`
}

// =============================================================================
// STATS
// =============================================================================

type DashboardDTO struct {
	ConfirmedLastWeek   int64            `json:"confirmed_last_week"`
	ConfirmedLast3Days  int64            `json:"confirmed_last_3_days"`
	CompletedPercentage int              `json:"completed_percentage"`
	PendingDonations    int              `json:"pending_donations"`
	AnonymousDonations  int              `json:"anonymous_donations"`
	AttributedDonations int              `json:"attributed_donations"`
	Daily               []DailyAmountDTO `json:"daily"`
}

type DailyAmountDTO struct {
	Day    string `json:"day"` // YYYY-MM-DD
	Amount int64  `json:"amount"`
}

func toDailyDTOs(series []campaign.DailyAmount) []DailyAmountDTO {
	dtos := make([]DailyAmountDTO, len(series))
	for i, d := range series {
		dtos[i] = DailyAmountDTO{Day: d.Day.Format("2006-01-02"), Amount: d.Amount}
	}
	return dtos
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type TransitionDTO struct {
	CampaignID string    `json:"campaign_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Event      string    `json:"event"`
	At         time.Time `json:"at"`
}

type TickResultDTO struct {
	Evaluated    int             `json:"evaluated"`
	Transitioned int             `json:"transitioned"`
	Skipped      int             `json:"skipped"`
	Failed       int             `json:"failed"`
	DurationMS   int64           `json:"duration_ms"`
	Transitions  []TransitionDTO `json:"transitions"`
}

type NextRunDTO struct {
	NextRun *time.Time `json:"next_run"`
	Running bool       `json:"running"`
}

type ReconciliationRunDTO struct {
	ID           string     `json:"id"`
	Trigger      string     `json:"trigger"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Evaluated    int        `json:"evaluated"`
	Transitioned int        `json:"transitioned"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	Error        string     `json:"error,omitempty"`
}

func toTickResultDTO(res reconcile.Result) TickResultDTO {
	dto := TickResultDTO{
		Evaluated:    res.Evaluated,
		Transitioned: res.Transitioned,
		Skipped:      res.Skipped,
		Failed:       res.Failed,
		DurationMS:   res.Duration.Milliseconds(),
		Transitions:  make([]TransitionDTO, len(res.Transitions)),
	}
	for i, t := range res.Transitions {
		dto.Transitions[i] = TransitionDTO{
			CampaignID: string(t.Campaign.ID),
			From:       string(t.From),
			To:         string(t.To),
			Event:      string(t.Event),
			At:         t.At,
		}
	}
	return dto
}

func toRunDTO(r campaign.ReconciliationRun) ReconciliationRunDTO {
	dto := ReconciliationRunDTO{
		ID:           r.ID,
		Trigger:      r.Trigger,
		StartedAt:    r.StartedAt,
		Evaluated:    r.Evaluated,
		Transitioned: r.Transitioned,
		Skipped:      r.Skipped,
		Failed:       r.Failed,
		Error:        r.Error,
	}
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		dto.CompletedAt = &completed
	}
	return dto
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
