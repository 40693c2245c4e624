package settlement

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Residual is the signed sum of all balances. It is zero for a ledger whose totals are
// internally consistent.
func Residual(records []BalanceRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Balance)
	}
	return sum
}

// VerifyBalances reports whether the balances reconcile. Closing a ledger requires it.
func VerifyBalances(records []BalanceRecord) bool {
	return Residual(records).Abs().LessThan(Epsilon())
}

type Summary struct {
	TotalExpenses       decimal.Decimal `json:"total_expenses"`
	TotalContributions  decimal.Decimal `json:"total_contributions"`
	NetExpense          decimal.Decimal `json:"net_expense"`
	Surplus             decimal.Decimal `json:"surplus"`
	SharePerParticipant decimal.Decimal `json:"share_per_participant"`
	Balances            []BalanceRecord `json:"balances"`
	Instructions        []Instruction   `json:"instructions"`
	Residual            decimal.Decimal `json:"residual"`
	Balanced            bool            `json:"balanced"`
}

// Summarize runs the calculator, the netting and the integrity check over one snapshot.
// Unbalanced input is reported through Balanced, only malformed input is an error.
func Summarize(in Input) (Summary, error) {
	records, breakdown, err := Calculate(in)
	if err != nil {
		return Summary{}, err
	}

	instructions, err := Settle(records)
	if err != nil && !errors.Is(err, ErrUnbalanced) {
		return Summary{}, err
	}

	return Summary{
		TotalExpenses:       in.TotalExpenses,
		TotalContributions:  in.TotalContributions,
		NetExpense:          breakdown.NetExpense,
		Surplus:             breakdown.Surplus,
		SharePerParticipant: breakdown.SharePerParticipant,
		Balances:            records,
		Instructions:        instructions,
		Residual:            Residual(records),
		Balanced:            VerifyBalances(records),
	}, nil
}

// Record returns the balance record of one participant.
func (s Summary) Record(participantID string) (BalanceRecord, bool) {
	for _, r := range s.Balances {
		if r.ParticipantID == participantID {
			return r, true
		}
	}
	return BalanceRecord{}, false
}
