package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Input is the snapshot the calculator works on. Paid and Deposited may omit participants;
// missing entries count as zero.
type Input struct {
	Participants       []Participant
	TotalExpenses      decimal.Decimal
	TotalContributions decimal.Decimal
	Paid               map[string]decimal.Decimal
	Deposited          map[string]decimal.Decimal
}

type Breakdown struct {
	NetExpense          decimal.Decimal
	Surplus             decimal.Decimal
	SharePerParticipant decimal.Decimal
}

// Calculate derives each participant's equal share of the net cost and the signed balance
// against what they already paid or deposited. Records come back in participant order.
//
// Contributions that exceed expenses floor the net cost at zero and are reported as Surplus,
// so no share is ever negative.
func Calculate(in Input) ([]BalanceRecord, Breakdown, error) {
	index, err := indexParticipants(in.Participants)
	if err != nil {
		return nil, Breakdown{}, err
	}
	if err := checkAmount("total expenses", in.TotalExpenses); err != nil {
		return nil, Breakdown{}, err
	}
	if err := checkAmount("total contributions", in.TotalContributions); err != nil {
		return nil, Breakdown{}, err
	}
	if err := checkPerParticipant("paid", in.Paid, index); err != nil {
		return nil, Breakdown{}, err
	}
	if err := checkPerParticipant("deposit", in.Deposited, index); err != nil {
		return nil, Breakdown{}, err
	}

	rawNet := in.TotalExpenses.Sub(in.TotalContributions)
	b := Breakdown{
		NetExpense: decimal.Max(rawNet, decimal.Zero),
		Surplus:    decimal.Max(rawNet.Neg(), decimal.Zero),
	}
	b.SharePerParticipant = b.NetExpense.Div(decimal.NewFromInt(int64(len(in.Participants))))

	records := make([]BalanceRecord, 0, len(in.Participants))
	for _, p := range in.Participants {
		paid := amountOf(in.Paid, p.ID)
		deposit := amountOf(in.Deposited, p.ID)
		adjustedShare := b.SharePerParticipant.Sub(deposit)

		records = append(records, BalanceRecord{
			ParticipantID: p.ID,
			Code:          p.Code,
			Name:          p.Name,
			Paid:          paid,
			Share:         b.SharePerParticipant,
			Deposit:       deposit,
			Balance:       adjustedShare.Sub(paid),
		})
	}

	return records, b, nil
}

func checkPerParticipant(what string, amounts map[string]decimal.Decimal, index map[string]int) error {
	for id, amount := range amounts {
		if _, ok := index[id]; !ok {
			return fmt.Errorf("%w: %s recorded for unknown participant %q", ErrInvalidInput, what, id)
		}
		if err := checkAmount(what+" of "+id, amount); err != nil {
			return err
		}
	}
	return nil
}

func amountOf(amounts map[string]decimal.Decimal, id string) decimal.Decimal {
	if v, ok := amounts[id]; ok {
		return v
	}
	return decimal.Zero
}
