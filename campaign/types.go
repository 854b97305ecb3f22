/*
Package campaign provides the fundraising campaign engine.

PURPOSE:
  This package holds the domain types and rules for charity campaigns:
  the lifecycle state machine, the donation ledger with its
  confirm/refuse/reset workflow, and the progress arithmetic that decides
  when a goal has been met.

KEY CONCEPTS IN THIS FILE (types.go):
  - Campaign: a fundraising effort with a goal, a time window and a status
  - Donation: a pledge attached to a campaign; only CONFIRMED ones count
  - Follower: labeled edge account -> campaign carrying a notification flag
  - Transition: one status change observed by the reconciler

DESIGN PRINCIPLES:
  1. Money is an int64 in the smallest currency unit. No floats.
  2. Percentages are derived on read (see progress.go), never stored.
  3. Status only moves through NextStatus (statemachine.go).
  4. IDs are typed strings so campaign and donation IDs cannot be mixed.

SEE ALSO:
  - statemachine.go: transition rules
  - ledger.go: donation workflow and aggregation
  - store.go: persistence interface
*/
package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CampaignID string
type DonationID string
type AccountID string

// =============================================================================
// CAMPAIGN STATUS & EVENTS
// =============================================================================

type Status string

const (
	StatusCreated  Status = "CREATED"  // Initial, before start time
	StatusOpen     Status = "OPEN"     // Accepting donations, goal not met
	StatusComplete Status = "COMPLETE" // Goal met, still accepting donations
	StatusClosed   Status = "CLOSED"   // Ended; may reopen if under goal
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusOpen, StatusComplete, StatusClosed:
		return true
	}
	return false
}

// AcceptsDonations reports whether donors may pledge to a campaign in s.
func (s Status) AcceptsDonations() bool {
	return s == StatusOpen || s == StatusComplete
}

// Event names a lifecycle transition. Notification templates are keyed by it.
type Event string

const (
	EventOpened    Event = "CAMPAIGN_OPENED"
	EventCompleted Event = "CAMPAIGN_COMPLETED"
	EventClosed    Event = "CAMPAIGN_CLOSED"
	EventReopened  Event = "CAMPAIGN_REOPENED"
)

// =============================================================================
// CAMPAIGN
// =============================================================================

// DefaultImageURL is used when a campaign is created without an image.
const DefaultImageURL = "https://www.shutterstock.com/image-vector/fundraising-giving-heart-symbol-money-600nw-2509445751.jpg"

type Campaign struct {
	ID          CampaignID
	Name        string
	Description string
	ImageURL    string
	Goal        int64 // smallest currency unit; 0 means already funded
	StartTime   time.Time
	EndTime     time.Time
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewCampaign is the input for creating a campaign.
type NewCampaign struct {
	Name        string
	Description string
	ImageURL    string
	Goal        int64
	StartTime   time.Time
	EndTime     time.Time
}

// =============================================================================
// DONATION
// =============================================================================

type DonationStatus string

const (
	DonationPending   DonationStatus = "PENDING"
	DonationConfirmed DonationStatus = "CONFIRMED"
	DonationRefused   DonationStatus = "REFUSED"
)

type Donation struct {
	ID         DonationID
	CampaignID CampaignID
	DonorID    *AccountID // nil = anonymous
	Amount     int64      // immutable after creation
	DonatedAt  time.Time
	Status     DonationStatus
}

func (d Donation) IsAnonymous() bool { return d.DonorID == nil }
func (d Donation) IsConfirmed() bool { return d.Status == DonationConfirmed }

// =============================================================================
// FOLLOWER EDGE
// =============================================================================

// Follower records that an account watches a campaign. At most one edge
// exists per (AccountID, CampaignID).
type Follower struct {
	AccountID            AccountID
	CampaignID           CampaignID
	Address              string // where notifications are delivered
	ReceiveNotifications bool
	CreatedAt            time.Time
}

// =============================================================================
// PROGRESS & TRANSITIONS
// =============================================================================

// Progress is the derived funding state of a campaign.
type Progress struct {
	Donated  int64           // sum of confirmed donations
	Uncapped decimal.Decimal // one decimal place, may exceed 100
	Capped   int             // min(Uncapped, 100) rounded to an integer
}

// Transition is a status change committed by the reconciler.
type Transition struct {
	Campaign Campaign // state after the change
	From     Status
	To       Status
	Event    Event
	At       time.Time
}

// DonorTotal is one row of the per-donor aggregation.
type DonorTotal struct {
	DonorID AccountID
	Amount  int64
}
