/*
errors.go - Centralized error types for the campaign engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers wrap these with context and classify them with errors.Is.

ERROR CATEGORIES:
  1. Not found - campaign or donation does not exist
  2. Client errors - rejected donations, bad periods, illegal edits
  3. Store errors - concurrent modification

USAGE:
  if errors.Is(err, campaign.ErrDonationRejected) {
      var rej *campaign.RejectedDonationError
      errors.As(err, &rej)
      ...
  }

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package campaign

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCampaignNotFound is returned when a referenced campaign doesn't exist.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrDonationNotFound is returned when a referenced donation doesn't exist.
	ErrDonationNotFound = errors.New("donation not found")

	// ErrDonationRejected is returned when a donation cannot be accepted.
	// The concrete error is a *RejectedDonationError.
	ErrDonationRejected = errors.New("donation rejected")

	// ErrInvalidPeriod is returned when a campaign ends at or before its start.
	ErrInvalidPeriod = errors.New("invalid period: end not after start")

	// ErrInvalidGoal is returned for negative goals.
	ErrInvalidGoal = errors.New("invalid goal: must not be negative")

	// ErrConcurrentModification is returned when a compare-and-set status
	// update finds the stored status changed underneath it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrCampaignNotDeletable is returned when deleting a campaign that has
	// left the CREATED state.
	ErrCampaignNotDeletable = errors.New("campaign can only be deleted while CREATED")

	// ErrExtensionTooLong is returned when an extension is non-positive or
	// longer than MaxExtension.
	ErrExtensionTooLong = errors.New("invalid extension")

	// ErrInvalidTransition is returned when a donation status change is not
	// one of the allowed edges.
	ErrInvalidTransition = errors.New("invalid donation transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RejectReason says why a donation was refused at creation.
type RejectReason string

const (
	RejectCampaignNotAccepting RejectReason = "campaign_not_accepting"
	RejectNonPositiveAmount    RejectReason = "non_positive_amount"
)

// RejectedDonationError provides details about a rejected donation.
type RejectedDonationError struct {
	CampaignID CampaignID
	Status     Status
	Amount     int64
	Reason     RejectReason
}

func (e *RejectedDonationError) Error() string {
	switch e.Reason {
	case RejectNonPositiveAmount:
		return fmt.Sprintf("donation rejected: amount %d must be positive", e.Amount)
	default:
		return fmt.Sprintf("donation rejected: campaign %s is %s", e.CampaignID, e.Status)
	}
}

func (e *RejectedDonationError) Unwrap() error {
	return ErrDonationRejected
}

// DonationTransitionError describes a disallowed donation status change.
type DonationTransitionError struct {
	DonationID DonationID
	From       DonationStatus
	To         DonationStatus
}

func (e *DonationTransitionError) Error() string {
	return fmt.Sprintf("donation %s: cannot move %s -> %s", e.DonationID, e.From, e.To)
}

func (e *DonationTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDonationRejected) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidGoal) ||
		errors.Is(err, ErrCampaignNotDeletable) ||
		errors.Is(err, ErrExtensionTooLong) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrDonationNotFound)
}
