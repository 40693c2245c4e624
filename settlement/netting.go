package settlement

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

type position struct {
	id     string
	index  int
	amount decimal.Decimal
}

// Settle matches the largest remaining debtor with the largest remaining creditor until one
// side runs out. Equal amounts keep participant order, so identical input always yields the
// same instructions.
//
// When the records do not net to zero the instructions generated so far are returned together
// with an error wrapping ErrUnbalanced.
func Settle(records []BalanceRecord) ([]Instruction, error) {
	var debtors, creditors []position
	for i, r := range records {
		switch {
		case r.Balance.GreaterThan(Epsilon()):
			debtors = append(debtors, position{id: r.ParticipantID, index: i, amount: r.Balance})
		case r.Balance.LessThan(Epsilon().Neg()):
			creditors = append(creditors, position{id: r.ParticipantID, index: i, amount: r.Balance.Abs()})
		}
	}
	sortPositions(debtors)
	sortPositions(creditors)

	instructions := make([]Instruction, 0, len(debtors)+len(creditors))
	d, c := 0, 0
	for d < len(debtors) && c < len(creditors) {
		debtor, creditor := &debtors[d], &creditors[c]

		transfer := decimal.Min(debtor.amount, creditor.amount)
		if transfer.GreaterThan(Epsilon()) {
			instructions = append(instructions, Instruction{
				From:   debtor.id,
				To:     creditor.id,
				Amount: transfer.Round(2),
			})
		}

		debtor.amount = debtor.amount.Sub(transfer)
		creditor.amount = creditor.amount.Sub(transfer)

		if debtor.amount.LessThanOrEqual(Epsilon()) {
			d++
		}
		if creditor.amount.LessThanOrEqual(Epsilon()) {
			c++
		}
	}

	left := decimal.Zero
	for _, p := range debtors {
		left = left.Add(p.amount)
	}
	for _, p := range creditors {
		left = left.Add(p.amount)
	}
	if left.GreaterThan(Epsilon()) {
		return instructions, fmt.Errorf("%w: %s left unmatched", ErrUnbalanced, left.StringFixed(2))
	}

	return instructions, nil
}

func sortPositions(ps []position) {
	slices.SortStableFunc(ps, func(a, b position) int {
		if c := b.amount.Cmp(a.amount); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
}
