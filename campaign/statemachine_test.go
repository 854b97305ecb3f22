package campaign_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/campaign-engine/campaign"
)

var t0 = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func campaignIn(status campaign.Status, goal int64) campaign.Campaign {
	return campaign.Campaign{
		ID:        "c-1",
		Name:      "Clean Water",
		Goal:      goal,
		StartTime: t0,
		EndTime:   t0.Add(30 * 24 * time.Hour),
		Status:    status,
	}
}

// =============================================================================
// TRANSITION RULES
// =============================================================================

func TestNextStatus_Rules(t *testing.T) {
	tests := []struct {
		name      string
		status    campaign.Status
		goal      int64
		donated   int64
		now       time.Time
		wantFired bool
		want      campaign.Status
		wantEvent campaign.Event
	}{
		{"created before start", campaign.StatusCreated, 10000, 0, t0.Add(-time.Second), false, "", ""},
		{"created at start", campaign.StatusCreated, 10000, 0, t0, true, campaign.StatusOpen, campaign.EventOpened},
		{"created after start", campaign.StatusCreated, 10000, 0, t0.Add(time.Hour), true, campaign.StatusOpen, campaign.EventOpened},
		{"open under goal", campaign.StatusOpen, 10000, 9999, t0.Add(time.Hour), false, "", ""},
		{"open at goal", campaign.StatusOpen, 10000, 10000, t0.Add(time.Hour), true, campaign.StatusComplete, campaign.EventCompleted},
		{"open past end under goal stays open", campaign.StatusOpen, 10000, 0, t0.Add(60 * 24 * time.Hour), false, "", ""},
		{"open zero goal", campaign.StatusOpen, 0, 0, t0, true, campaign.StatusComplete, campaign.EventCompleted},
		{"complete before end", campaign.StatusComplete, 10000, 10000, t0.Add(time.Hour), false, "", ""},
		{"complete at end", campaign.StatusComplete, 10000, 10000, t0.Add(30 * 24 * time.Hour), true, campaign.StatusClosed, campaign.EventClosed},
		{"closed funded", campaign.StatusClosed, 10000, 10000, t0.Add(60 * 24 * time.Hour), false, "", ""},
		{"closed 99 percent", campaign.StatusClosed, 10000, 9900, t0.Add(60 * 24 * time.Hour), true, campaign.StatusOpen, campaign.EventReopened},
		{"closed before start", campaign.StatusClosed, 10000, 0, t0.Add(-time.Hour), false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := campaignIn(tt.status, tt.goal)
			p := campaign.ComputeProgress(tt.goal, tt.donated)

			got, event, fired := campaign.NextStatus(c, tt.now, p)

			assert.Equal(t, tt.wantFired, fired)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantEvent, event)
		})
	}
}

func TestNextStatus_ReopenGating(t *testing.T) {
	// GIVEN: A closed campaign whose capped percentage rounds to 100
	// WHEN: now >= start
	// THEN: It stays closed; 99.4% reopens

	c := campaignIn(campaign.StatusClosed, 1000)
	now := t0.Add(90 * 24 * time.Hour)

	_, _, fired := campaign.NextStatus(c, now, campaign.ComputeProgress(1000, 995))
	assert.False(t, fired, "99.5% rounds to a capped 100")

	to, event, fired := campaign.NextStatus(c, now, campaign.ComputeProgress(1000, 994))
	assert.True(t, fired)
	assert.Equal(t, campaign.StatusOpen, to)
	assert.Equal(t, campaign.EventReopened, event)
}

func TestNextStatus_OneEdgePerEvaluation(t *testing.T) {
	// GIVEN: A created campaign that is fully funded and already past its end
	// WHEN: Evaluated repeatedly, applying each result
	// THEN: It walks CREATED -> OPEN -> COMPLETE -> CLOSED one edge at a time

	c := campaignIn(campaign.StatusCreated, 100)
	now := t0.Add(365 * 24 * time.Hour)
	p := campaign.ComputeProgress(100, 100)

	var path []campaign.Status
	for i := 0; i < 5; i++ {
		to, _, fired := campaign.NextStatus(c, now, p)
		if !fired {
			break
		}
		path = append(path, to)
		c.Status = to
	}

	assert.Equal(t, []campaign.Status{campaign.StatusOpen, campaign.StatusComplete, campaign.StatusClosed}, path)
}
