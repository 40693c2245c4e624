// Package export renders ledger data as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/billbatista/rateio/ledger"
	"github.com/billbatista/rateio/settlement"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Expenses writes one row per expense. Payers are shown by participant name.
func Expenses(w io.Writer, participants []ledger.Participant, expenses []ledger.Expense) error {
	names := participantNames(participants)

	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "title", "category", "amount", "paid_by", "notes"})
	for _, e := range expenses {
		cw.Write([]string{
			e.Date.Format(dateLayout),
			e.Title,
			e.Category,
			e.Amount.StringFixed(2),
			names[e.PaidBy],
			e.Notes,
		})
	}
	cw.Flush()
	return cw.Error()
}

func Contributions(w io.Writer, contributions []ledger.Contribution) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "contributor", "relationship", "amount", "notes"})
	for _, c := range contributions {
		cw.Write([]string{
			c.Date.Format(dateLayout),
			c.ContributorName,
			c.Relationship,
			c.Amount.StringFixed(2),
			c.Notes,
		})
	}
	cw.Flush()
	return cw.Error()
}

// Settlement writes three blocks separated by blank lines: totals, balances and transfers.
func Settlement(w io.Writer, s settlement.Summary) error {
	names := make(map[string]string, len(s.Balances))
	for _, b := range s.Balances {
		names[b.ParticipantID] = b.Name
	}

	cw := csv.NewWriter(w)
	rows := [][]string{
		{"metric", "value"},
		{"total_expenses", s.TotalExpenses.StringFixed(2)},
		{"total_contributions", s.TotalContributions.StringFixed(2)},
		{"net_expense", s.NetExpense.StringFixed(2)},
		{"surplus", s.Surplus.StringFixed(2)},
		{"share_per_participant", s.SharePerParticipant.StringFixed(2)},
		{"residual", s.Residual.StringFixed(2)},
		{"balanced", strconv.FormatBool(s.Balanced)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}

	// csv.Writer can't emit an empty record, write the separator directly
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	cw.Write([]string{"participant", "code", "paid", "deposit", "share", "balance", "status"})
	for _, b := range s.Balances {
		cw.Write([]string{
			b.Name,
			b.Code,
			b.Paid.StringFixed(2),
			b.Deposit.StringFixed(2),
			b.Share.StringFixed(2),
			b.Balance.StringFixed(2),
			string(b.Status()),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	cw.Write([]string{"from", "to", "amount"})
	for _, in := range s.Instructions {
		cw.Write([]string{names[in.From], names[in.To], in.Amount.StringFixed(2)})
	}
	cw.Flush()
	return cw.Error()
}

func participantNames(participants []ledger.Participant) map[uuid.UUID]string {
	names := make(map[uuid.UUID]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.Name
	}
	return names
}
