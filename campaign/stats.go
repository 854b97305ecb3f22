package campaign

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Dashboard summarises the ledger for administrators. Money figures count
// confirmed donations only.
type Dashboard struct {
	ConfirmedLastWeek   int64
	ConfirmedLast3Days  int64
	CompletedPercentage int // share of campaigns in COMPLETE or CLOSED
	PendingDonations    int
	AnonymousDonations  int
	AttributedDonations int
	Daily               []DailyAmount
}

// DailyAmount is the confirmed total donated on one UTC calendar day.
type DailyAmount struct {
	Day    time.Time
	Amount int64
}

// Stats computes dashboard figures from the store.
type Stats struct {
	Store Store
	Clock Clock
}

func NewStats(store Store, clock Clock) *Stats {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Stats{Store: store, Clock: clock}
}

// Dashboard builds the summary with a daily series covering the last `days`
// days, today included.
func (s *Stats) Dashboard(ctx context.Context, days int) (Dashboard, error) {
	campaigns, err := s.Store.ListCampaigns(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	donations, err := s.Store.ListAllDonations(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	now := s.Clock.Now()
	out := Dashboard{
		ConfirmedLastWeek:   confirmedSince(donations, now.Add(-7*24*time.Hour)),
		ConfirmedLast3Days:  confirmedSince(donations, now.Add(-3*24*time.Hour)),
		CompletedPercentage: completedPercentage(campaigns),
		Daily:               DailyAmounts(donations, now, days),
	}
	for _, d := range donations {
		if d.Status == DonationPending {
			out.PendingDonations++
		}
		if d.IsAnonymous() {
			out.AnonymousDonations++
		} else {
			out.AttributedDonations++
		}
	}
	return out, nil
}

// CampaignDaily is the daily confirmed series for one campaign.
func (s *Stats) CampaignDaily(ctx context.Context, id CampaignID, days int) ([]DailyAmount, error) {
	if _, err := s.Store.GetCampaign(ctx, id); err != nil {
		return nil, err
	}
	donations, err := s.Store.ListDonations(ctx, id, DonationPending, DonationRefused)
	if err != nil {
		return nil, err
	}
	return DailyAmounts(donations, s.Clock.Now(), days), nil
}

// DailyAmounts buckets confirmed donations into the `days` UTC days ending
// with the day of now, oldest first. Days without donations are zero.
func DailyAmounts(donations []Donation, now time.Time, days int) []DailyAmount {
	if days <= 0 {
		return nil
	}
	today := truncateDay(now)
	first := today.AddDate(0, 0, -(days - 1))

	series := make([]DailyAmount, days)
	index := make(map[time.Time]int, days)
	for i := range series {
		day := first.AddDate(0, 0, i)
		series[i].Day = day
		index[day] = i
	}
	for _, d := range donations {
		if !d.IsConfirmed() {
			continue
		}
		if i, ok := index[truncateDay(d.DonatedAt)]; ok {
			series[i].Amount += d.Amount
		}
	}
	return series
}

func confirmedSince(donations []Donation, since time.Time) int64 {
	var total int64
	for _, d := range donations {
		if d.IsConfirmed() && !d.DonatedAt.Before(since) {
			total += d.Amount
		}
	}
	return total
}

func completedPercentage(campaigns []Campaign) int {
	if len(campaigns) == 0 {
		return 0
	}
	done := 0
	for _, c := range campaigns {
		if c.Status == StatusComplete || c.Status == StatusClosed {
			done++
		}
	}
	pct := decimal.NewFromInt(int64(done)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(len(campaigns))), 0)
	return int(pct.IntPart())
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
