package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type ExpenseEntry struct {
	PaidBy string
	Amount decimal.Decimal
}

type DepositEntry struct {
	DepositedBy string
	Amount      decimal.Decimal
}

type Totals struct {
	TotalExpenses      decimal.Decimal
	TotalContributions decimal.Decimal
	// PaidBy holds an entry for every participant, zero when they paid nothing.
	PaidBy map[string]decimal.Decimal
}

// Aggregate sums expense and contribution records into group totals and per-participant
// paid amounts.
func Aggregate(participants []Participant, expenses []ExpenseEntry, contributions []decimal.Decimal) (Totals, error) {
	index, err := indexParticipants(participants)
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{
		TotalExpenses:      decimal.Zero,
		TotalContributions: decimal.Zero,
		PaidBy:             zeroed(participants),
	}

	for i, e := range expenses {
		if err := checkAmount(fmt.Sprintf("expense %d", i), e.Amount); err != nil {
			return Totals{}, err
		}
		if _, ok := index[e.PaidBy]; !ok {
			return Totals{}, fmt.Errorf("%w: expense %d paid by unknown participant %q", ErrInvalidInput, i, e.PaidBy)
		}
		totals.TotalExpenses = totals.TotalExpenses.Add(e.Amount)
		totals.PaidBy[e.PaidBy] = totals.PaidBy[e.PaidBy].Add(e.Amount)
	}

	for i, c := range contributions {
		if err := checkAmount(fmt.Sprintf("contribution %d", i), c); err != nil {
			return Totals{}, err
		}
		totals.TotalContributions = totals.TotalContributions.Add(c)
	}

	return totals, nil
}

// SumDeposits totals deposits per participant, with a zero entry for participants who
// deposited nothing.
func SumDeposits(participants []Participant, deposits []DepositEntry) (map[string]decimal.Decimal, error) {
	index, err := indexParticipants(participants)
	if err != nil {
		return nil, err
	}

	sums := zeroed(participants)
	for i, d := range deposits {
		if err := checkAmount(fmt.Sprintf("deposit %d", i), d.Amount); err != nil {
			return nil, err
		}
		if _, ok := index[d.DepositedBy]; !ok {
			return nil, fmt.Errorf("%w: deposit %d made by unknown participant %q", ErrInvalidInput, i, d.DepositedBy)
		}
		sums[d.DepositedBy] = sums[d.DepositedBy].Add(d.Amount)
	}

	return sums, nil
}

func zeroed(participants []Participant) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		m[p.ID] = decimal.Zero
	}
	return m
}
