package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Ledger struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	OverallBudget decimal.Decimal `json:"overall_budget"`
	IsClosed      bool            `json:"is_closed"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
	ClosedBy      *uuid.UUID      `json:"closed_by,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Participant is a member of the group that shares the ledger. Position fixes the canonical
// order used for balances and tie-breaking.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	LedgerID uuid.UUID `json:"ledger_id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

type Expense struct {
	ID        uuid.UUID       `json:"id"`
	LedgerID  uuid.UUID       `json:"ledger_id"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	PaidBy    uuid.UUID       `json:"paid_by"`
	Date      time.Time       `json:"date"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Contribution is money given to the group by someone outside it. It lowers the cost every
// participant has to share.
type Contribution struct {
	ID              uuid.UUID       `json:"id"`
	LedgerID        uuid.UUID       `json:"ledger_id"`
	ContributorName string          `json:"contributor_name"`
	Relationship    string          `json:"relationship,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Deposit is an advance a participant paid into the common pool.
type Deposit struct {
	ID          uuid.UUID       `json:"id"`
	LedgerID    uuid.UUID       `json:"ledger_id"`
	DepositedBy uuid.UUID       `json:"deposited_by"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CategoryBudget struct {
	LedgerID uuid.UUID       `json:"ledger_id"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

type ExpenseInput struct {
	Title    string          `json:"title"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	PaidBy   uuid.UUID       `json:"paid_by"`
	Date     time.Time       `json:"date"`
	Notes    string          `json:"notes"`
}

type ContributionInput struct {
	ContributorName string          `json:"contributor_name"`
	Relationship    string          `json:"relationship"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	Notes           string          `json:"notes"`
}

type DepositInput struct {
	DepositedBy uuid.UUID       `json:"deposited_by"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Notes       string          `json:"notes"`
}

const maxNotesLength = 1000

// ErrValidation is wrapped by every input validation error.
var ErrValidation = errors.New("validation failed")

var (
	ErrEmptyName        = fmt.Errorf("%w: name can't be empty", ErrValidation)
	ErrEmptyCurrency    = fmt.Errorf("%w: currency can't be empty", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrNegativeBudget   = fmt.Errorf("%w: budget can't be negative", ErrValidation)
	ErrEmptyTitle       = fmt.Errorf("%w: title can't be empty", ErrValidation)
	ErrEmptyCategory    = fmt.Errorf("%w: category can't be empty", ErrValidation)
	ErrEmptyContributor = fmt.Errorf("%w: contributor name can't be empty", ErrValidation)
	ErrEmptyCode        = fmt.Errorf("%w: participant code can't be empty", ErrValidation)
	ErrMissingDate      = fmt.Errorf("%w: date is required", ErrValidation)
	ErrNotesTooLong     = fmt.Errorf("%w: notes can't exceed %d characters", ErrValidation, maxNotesLength)
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnknownParticipant = errors.New("participant does not belong to the ledger")
	ErrLedgerClosed       = errors.New("ledger is closed")
	ErrLedgerOpen         = errors.New("ledger is not closed")
	ErrLedgerChanged      = errors.New("ledger changed while closing")
	ErrUnbalanced         = errors.New("ledger balances do not reconcile")
)

func NewLedger(name string, currency string) (Ledger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Ledger{}, ErrEmptyName
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return Ledger{}, ErrEmptyCurrency
	}

	return Ledger{
		ID:            uuid.New(),
		Name:          name,
		Currency:      currency,
		OverallBudget: decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func NewParticipant(ledgerID uuid.UUID, code, name string, position int) (Participant, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Participant{}, ErrEmptyCode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, ErrEmptyName
	}

	return Participant{
		ID:       uuid.New(),
		LedgerID: ledgerID,
		Code:     code,
		Name:     name,
		Position: position,
	}, nil
}

func (in ExpenseInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrEmptyTitle
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	return validateCommon(in.Amount, in.Date, in.Notes)
}

func (in ContributionInput) validate() error {
	if strings.TrimSpace(in.ContributorName) == "" {
		return ErrEmptyContributor
	}
	return validateCommon(in.Amount, in.Date, in.Notes)
}

func (in DepositInput) validate() error {
	return validateCommon(in.Amount, in.Date, in.Notes)
}

func validateCommon(amount decimal.Decimal, date time.Time, notes string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if date.IsZero() {
		return ErrMissingDate
	}
	if len([]rune(notes)) > maxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

func NewExpense(ledgerID uuid.UUID, in ExpenseInput) (Expense, error) {
	if err := in.validate(); err != nil {
		return Expense{}, err
	}

	now := time.Now().UTC()
	return Expense{
		ID:        uuid.New(),
		LedgerID:  ledgerID,
		Title:     strings.TrimSpace(in.Title),
		Category:  normalizeCategory(in.Category),
		Amount:    in.Amount,
		PaidBy:    in.PaidBy,
		Date:      dateOnly(in.Date),
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// apply overwrites the editable fields of e with in.
func (e *Expense) apply(in ExpenseInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	e.Title = strings.TrimSpace(in.Title)
	e.Category = normalizeCategory(in.Category)
	e.Amount = in.Amount
	e.PaidBy = in.PaidBy
	e.Date = dateOnly(in.Date)
	e.Notes = in.Notes
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func NewContribution(ledgerID uuid.UUID, in ContributionInput) (Contribution, error) {
	if err := in.validate(); err != nil {
		return Contribution{}, err
	}

	now := time.Now().UTC()
	return Contribution{
		ID:              uuid.New(),
		LedgerID:        ledgerID,
		ContributorName: strings.TrimSpace(in.ContributorName),
		Relationship:    strings.TrimSpace(in.Relationship),
		Amount:          in.Amount,
		Date:            dateOnly(in.Date),
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (c *Contribution) apply(in ContributionInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	c.ContributorName = strings.TrimSpace(in.ContributorName)
	c.Relationship = strings.TrimSpace(in.Relationship)
	c.Amount = in.Amount
	c.Date = dateOnly(in.Date)
	c.Notes = in.Notes
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func NewDeposit(ledgerID uuid.UUID, in DepositInput) (Deposit, error) {
	if err := in.validate(); err != nil {
		return Deposit{}, err
	}

	now := time.Now().UTC()
	return Deposit{
		ID:          uuid.New(),
		LedgerID:    ledgerID,
		DepositedBy: in.DepositedBy,
		Amount:      in.Amount,
		Date:        dateOnly(in.Date),
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (d *Deposit) apply(in DepositInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	d.DepositedBy = in.DepositedBy
	d.Amount = in.Amount
	d.Date = dateOnly(in.Date)
	d.Notes = in.Notes
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// normalizeCategory upper-cases category names so "Food" and "FOOD" share a budget line.
func normalizeCategory(category string) string {
	return strings.ToUpper(strings.TrimSpace(category))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Repository interface {
	CreateLedger(ctx context.Context, l Ledger) error
	GetLedger(ctx context.Context, id uuid.UUID) (*Ledger, error)
	FindLedgerByName(ctx context.Context, name string) (*Ledger, error)
	ListLedgers(ctx context.Context) ([]Ledger, error)
	CloseLedger(ctx context.Context, id uuid.UUID, version int64, at time.Time, by uuid.UUID) (bool, error)
	ReopenLedger(ctx context.Context, id uuid.UUID) (bool, error)
	// WithOpenLedger runs fn in one transaction that only proceeds while the ledger is open.
	// Entry writes go through the Repository passed to fn.
	WithOpenLedger(ctx context.Context, ledgerID uuid.UUID, fn func(Repository) error) error
	SetOverallBudget(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error

	CreateParticipant(ctx context.Context, p Participant) error
	ListParticipants(ctx context.Context, ledgerID uuid.UUID) ([]Participant, error)

	CreateExpense(ctx context.Context, e Expense) error
	UpdateExpense(ctx context.Context, e Expense) error
	DeleteExpense(ctx context.Context, ledgerID, id uuid.UUID) (bool, error)
	GetExpense(ctx context.Context, ledgerID, id uuid.UUID) (*Expense, error)
	ListExpenses(ctx context.Context, ledgerID uuid.UUID) ([]Expense, error)

	CreateContribution(ctx context.Context, c Contribution) error
	UpdateContribution(ctx context.Context, c Contribution) error
	DeleteContribution(ctx context.Context, ledgerID, id uuid.UUID) (bool, error)
	GetContribution(ctx context.Context, ledgerID, id uuid.UUID) (*Contribution, error)
	ListContributions(ctx context.Context, ledgerID uuid.UUID) ([]Contribution, error)

	CreateDeposit(ctx context.Context, d Deposit) error
	UpdateDeposit(ctx context.Context, d Deposit) error
	DeleteDeposit(ctx context.Context, ledgerID, id uuid.UUID) (bool, error)
	GetDeposit(ctx context.Context, ledgerID, id uuid.UUID) (*Deposit, error)
	ListDeposits(ctx context.Context, ledgerID uuid.UUID) ([]Deposit, error)

	UpsertCategoryBudget(ctx context.Context, b CategoryBudget) error
	DeleteCategoryBudget(ctx context.Context, ledgerID uuid.UUID, category string) (bool, error)
	ListCategoryBudgets(ctx context.Context, ledgerID uuid.UUID) ([]CategoryBudget, error)
}
