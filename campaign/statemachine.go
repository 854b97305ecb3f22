/*
statemachine.go - Campaign lifecycle transition rules

PURPOSE:
  Pure decision of what status follows the current one, given the time and
  the confirmed funds. No I/O; the reconciler persists the result.

STATES:
  CREATED -> OPEN -> COMPLETE -> CLOSED -> OPEN (reopen)

RULES (checked in this order, first match wins):
  1. CREATED  -> OPEN      when now >= start                    CAMPAIGN_OPENED
  2. OPEN     -> COMPLETE  when donated >= goal                 CAMPAIGN_COMPLETED
  3. COMPLETE -> CLOSED    when now >= end                      CAMPAIGN_CLOSED
  4. CLOSED   -> OPEN      when now >= start and capped < 100   CAMPAIGN_REOPENED

  At most one rule fires per evaluation. A campaign that becomes OPEN and is
  already funded completes on the following pass, not in the same one.
*/
package campaign

import "time"

// NextStatus evaluates the transition rules for c. fired is false when no
// rule matches; status and event are then the zero values.
func NextStatus(c Campaign, now time.Time, p Progress) (status Status, event Event, fired bool) {
	switch c.Status {
	case StatusCreated:
		if reached(now, c.StartTime) {
			return StatusOpen, EventOpened, true
		}
	case StatusOpen:
		if p.Donated >= c.Goal {
			return StatusComplete, EventCompleted, true
		}
	case StatusComplete:
		if reached(now, c.EndTime) {
			return StatusClosed, EventClosed, true
		}
	case StatusClosed:
		if reached(now, c.StartTime) && p.Capped < 100 {
			return StatusOpen, EventReopened, true
		}
	}
	return "", "", false
}
