package notify

import (
	"net/url"
	"strings"

	"github.com/warp/campaign-engine/campaign"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Placeholders recognised in template subjects and bodies.
const (
	PlaceholderName    = "{CAMPAIGN_NAME}"
	PlaceholderGoal    = "{CAMPAIGN_GOAL}"
	PlaceholderEndTime = "{CAMPAIGN_END_TIME}"
	PlaceholderLink    = "{CAMPAIGN_LINK}"
)

// EndTimeLayout formats {CAMPAIGN_END_TIME}.
const EndTimeLayout = "2006-01-02 15:04"

type Template struct {
	Subject string
	Body    string
}

// Templates maps an event to its template. Events without an entry are not
// notified.
type Templates map[campaign.Event]Template

func DefaultTemplates() Templates {
	return Templates{
		campaign.EventOpened: {
			Subject: "Campaign Open For Donates!",
			Body:    "**{CAMPAIGN_NAME}** is now open for donations! Donate now!\n{CAMPAIGN_LINK}",
		},
		campaign.EventCompleted: {
			Subject: "Campaign Completed Donation Quota!",
			Body:    "Thanks to the generosity of all donators, **{CAMPAIGN_NAME}** has completed their donation goal of {CAMPAIGN_GOAL}! Thank you!\n{CAMPAIGN_LINK}",
		},
		campaign.EventClosed: {
			Subject: "Campaign Ended!",
			Body:    "**{CAMPAIGN_NAME}** has ended! Thank you!\n{CAMPAIGN_LINK}",
		},
		campaign.EventReopened: {
			Subject: "Campaign Re-Opened!",
			Body:    "**{CAMPAIGN_NAME}** has just been re-opened, and will end at {CAMPAIGN_END_TIME}! Donate now!\n{CAMPAIGN_LINK}",
		},
	}
}

// Renderer fills template placeholders for a campaign.
type Renderer struct {
	BaseURL        string
	CurrencySuffix string
	printer        *message.Printer
}

func NewRenderer(baseURL, currencySuffix string) *Renderer {
	return &Renderer{
		BaseURL:        baseURL,
		CurrencySuffix: currencySuffix,
		printer:        message.NewPrinter(language.English),
	}
}

// Render returns the subject and body of t for c.
func (r *Renderer) Render(t Template, c campaign.Campaign) (subject, body string) {
	replacer := strings.NewReplacer(
		PlaceholderName, c.Name,
		PlaceholderGoal, r.FormatGoal(c.Goal),
		PlaceholderEndTime, c.EndTime.UTC().Format(EndTimeLayout),
		PlaceholderLink, CampaignURL(r.BaseURL, c.ID),
	)
	return replacer.Replace(t.Subject), replacer.Replace(t.Body)
}

// FormatGoal groups thousands and appends the currency suffix: 10,000đ.
func (r *Renderer) FormatGoal(amount int64) string {
	return r.printer.Sprintf("%d", amount) + r.CurrencySuffix
}

// CampaignURL builds the public link to a campaign page.
func CampaignURL(base string, id campaign.CampaignID) string {
	return strings.TrimRight(base, "/") + "/campaigns/campaign?id=" + url.QueryEscape(string(id))
}
