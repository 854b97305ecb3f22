package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/notify"
)

func testCampaign() campaign.Campaign {
	return campaign.Campaign{
		ID:      "c-42",
		Name:    "Clean Water",
		Goal:    1500000,
		EndTime: time.Date(2025, time.June, 1, 18, 30, 0, 0, time.UTC),
	}
}

func TestRender_FillsPlaceholders(t *testing.T) {
	r := notify.NewRenderer("https://give.example.org/", "đ")
	templates := notify.DefaultTemplates()

	subject, body := r.Render(templates[campaign.EventCompleted], testCampaign())
	assert.Equal(t, "Campaign Completed Donation Quota!", subject)
	assert.Equal(t,
		"Thanks to the generosity of all donators, **Clean Water** has completed their donation goal of 1,500,000đ! Thank you!\n"+
			"https://give.example.org/campaigns/campaign?id=c-42",
		body)

	_, body = r.Render(templates[campaign.EventReopened], testCampaign())
	assert.Contains(t, body, "will end at 2025-06-01 18:30!")
}

func TestDefaultTemplates_CoverEveryEvent(t *testing.T) {
	templates := notify.DefaultTemplates()
	for _, e := range []campaign.Event{
		campaign.EventOpened, campaign.EventCompleted, campaign.EventClosed, campaign.EventReopened,
	} {
		tmpl, ok := templates[e]
		assert.True(t, ok, e)
		assert.NotEmpty(t, tmpl.Subject)
		assert.Contains(t, tmpl.Body, notify.PlaceholderLink)
	}
}

func TestCampaignURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/campaigns/campaign?id=a%26b", notify.CampaignURL("http://localhost:8080", "a&b"))
}

func TestBodyHTML(t *testing.T) {
	assert.Equal(t, "<strong>A &amp; B</strong> ended<br>\nlink", notify.BodyHTML("**A & B** ended\nlink"))
	assert.Equal(t, "A & B ended", notify.BodyText("**A & B** ended"))
}
