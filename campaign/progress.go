package campaign

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeProgress derives the funding percentages for a goal.
//
// Uncapped is donated/goal*100 rounded half-up to one decimal place and may
// exceed 100. Capped is min(Uncapped, 100) rounded half-up to an integer.
// A goal of zero (or below) counts as already met: both values are 100.
func ComputeProgress(goal, donated int64) Progress {
	if goal <= 0 {
		return Progress{Donated: donated, Uncapped: hundred.Round(1), Capped: 100}
	}

	// DivRound rounds half away from zero; amounts are non-negative so this
	// is half-up.
	uncapped := decimal.NewFromInt(donated).
		Mul(hundred).
		DivRound(decimal.NewFromInt(goal), 1)

	capped := decimal.Min(uncapped, hundred).Round(0)

	return Progress{
		Donated:  donated,
		Uncapped: uncapped,
		Capped:   int(capped.IntPart()),
	}
}

// SumConfirmed totals the amounts of CONFIRMED donations.
func SumConfirmed(donations []Donation) int64 {
	var total int64
	for _, d := range donations {
		if d.IsConfirmed() {
			total += d.Amount
		}
	}
	return total
}

// DonorTotalsOf groups confirmed, attributed donations by donor.
// Anonymous donations are left out.
func DonorTotalsOf(donations []Donation) map[AccountID]int64 {
	totals := make(map[AccountID]int64)
	for _, d := range donations {
		if !d.IsConfirmed() || d.IsAnonymous() {
			continue
		}
		totals[*d.DonorID] += d.Amount
	}
	return totals
}

// RankDonors orders donor totals by amount, largest first, ties by id.
func RankDonors(totals map[AccountID]int64) []DonorTotal {
	ranked := make([]DonorTotal, 0, len(totals))
	for id, amount := range totals {
		ranked = append(ranked, DonorTotal{DonorID: id, Amount: amount})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Amount != ranked[j].Amount {
			return ranked[i].Amount > ranked[j].Amount
		}
		return ranked[i].DonorID < ranked[j].DonorID
	})
	return ranked
}
