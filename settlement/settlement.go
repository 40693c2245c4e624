// Package settlement computes how much each participant of a shared ledger owes or is owed
// and the transfers that settle the group.
//
// The package is pure: every function works on a snapshot supplied by the caller and returns a
// fresh result, so it is safe to call from concurrent requests.
package settlement

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// epsilonExp places the settlement tolerance at one cent.
const epsilonExp = -2

// Epsilon returns the largest magnitude treated as settled. It applies to balance
// classification, transfer pruning and the integrity check.
func Epsilon() decimal.Decimal {
	return decimal.New(1, epsilonExp)
}

var (
	ErrInvalidInput = errors.New("invalid settlement input")
	ErrUnbalanced   = errors.New("balances do not reconcile")
)

type Participant struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

type Status string

const (
	StatusOwes    Status = "owes"
	StatusOwed    Status = "owed"
	StatusSettled Status = "settled"
)

// BalanceRecord is one participant's position. A positive Balance owes money into the pool,
// a negative Balance receives money from it.
type BalanceRecord struct {
	ParticipantID string          `json:"participant_id"`
	Code          string          `json:"code,omitempty"`
	Name          string          `json:"name"`
	Paid          decimal.Decimal `json:"paid"`
	Share         decimal.Decimal `json:"share"`
	Deposit       decimal.Decimal `json:"deposit"`
	Balance       decimal.Decimal `json:"balance"`
}

func (b BalanceRecord) Status() Status {
	switch {
	case b.Balance.GreaterThan(Epsilon()):
		return StatusOwes
	case b.Balance.LessThan(Epsilon().Neg()):
		return StatusOwed
	default:
		return StatusSettled
	}
}

// Instruction tells From to transfer Amount to To.
type Instruction struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// FromFloat converts a float amount read from a loosely typed source, rejecting NaN and
// infinities instead of letting them reach the calculation.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite amount %v", ErrInvalidInput, f)
	}
	return decimal.NewFromFloat(f), nil
}

func indexParticipants(participants []Participant) (map[string]int, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidInput)
	}

	index := make(map[string]int, len(participants))
	for i, p := range participants {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: participant %d has no id", ErrInvalidInput, i)
		}
		if _, dup := index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %q", ErrInvalidInput, p.ID)
		}
		index[p.ID] = i
	}

	return index, nil
}

func checkAmount(what string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s has negative amount %s", ErrInvalidInput, what, amount)
	}
	return nil
}
