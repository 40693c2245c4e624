package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// querier is the part of *sql.DB and *sql.Tx the repository needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repository struct {
	db *sql.DB
	q  querier
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db, q: db}
}

const ledgerColumns = `id, name, currency, overall_budget, is_closed, closed_at, closed_by, version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLedger(s scanner) (*Ledger, error) {
	var (
		l        Ledger
		closedAt sql.NullTime
		closedBy uuid.NullUUID
	)
	err := s.Scan(
		&l.ID,
		&l.Name,
		&l.Currency,
		&l.OverallBudget,
		&l.IsClosed,
		&closedAt,
		&closedBy,
		&l.Version,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		l.ClosedAt = &t
	}
	if closedBy.Valid {
		id := closedBy.UUID
		l.ClosedBy = &id
	}
	return &l, nil
}

func (r *repository) CreateLedger(ctx context.Context, l Ledger) error {
	query := `INSERT INTO ledgers (id, name, currency, overall_budget, is_closed, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.ExecContext(ctx, query, l.ID, l.Name, l.Currency, l.OverallBudget, l.IsClosed, l.CreatedAt)
	return err
}

func (r *repository) GetLedger(ctx context.Context, id uuid.UUID) (*Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers WHERE id = $1`

	l, err := scanLedger(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (r *repository) FindLedgerByName(ctx context.Context, name string) (*Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers WHERE name = $1 ORDER BY created_at LIMIT 1`

	l, err := scanLedger(r.q.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (r *repository) ListLedgers(ctx context.Context) ([]Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ledgers []Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, *l)
	}

	return ledgers, rows.Err()
}

// WithOpenLedger bumps the ledger version and runs fn against a repository bound to the same
// transaction, so a write either lands before a close or not at all. A closed ledger gives
// ErrLedgerClosed and a missing one ErrNotFound; fn is not called in either case.
func (r *repository) WithOpenLedger(ctx context.Context, ledgerID uuid.UUID, fn func(Repository) error) error {
	if r.db == nil {
		if err := r.bumpVersion(ctx, ledgerID); err != nil {
			return err
		}
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	txRepo := &repository{q: tx}
	if err := txRepo.bumpVersion(ctx, ledgerID); err != nil {
		return err
	}
	if err := fn(txRepo); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *repository) bumpVersion(ctx context.Context, ledgerID uuid.UUID) error {
	query := `UPDATE ledgers SET version = version + 1 WHERE id = $1 AND is_closed = $2`
	res, err := r.q.ExecContext(ctx, query, ledgerID, false)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledgers WHERE id = $1)`, ledgerID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrLedgerClosed
}

// CloseLedger closes the ledger only if it is still open at the given version. It reports
// whether the row changed; false means the ledger was closed or written to in the meantime.
func (r *repository) CloseLedger(ctx context.Context, id uuid.UUID, version int64, at time.Time, by uuid.UUID) (bool, error) {
	query := `UPDATE ledgers SET is_closed = $1, closed_at = $2, closed_by = $3, version = version + 1
              WHERE id = $4 AND is_closed = $5 AND version = $6`
	res, err := r.q.ExecContext(ctx, query, true, at, by, id, false, version)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

// ReopenLedger clears the closed flag and reports whether the ledger was closed.
func (r *repository) ReopenLedger(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE ledgers SET is_closed = $1, closed_at = NULL, closed_by = NULL, version = version + 1
              WHERE id = $2 AND is_closed = $3`
	res, err := r.q.ExecContext(ctx, query, false, id, true)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) SetOverallBudget(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `UPDATE ledgers SET overall_budget = $1 WHERE id = $2`
	_, err := r.q.ExecContext(ctx, query, amount, id)
	return err
}

func (r *repository) CreateParticipant(ctx context.Context, p Participant) error {
	query := `INSERT INTO participants (id, ledger_id, code, name, sort_order) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query, p.ID, p.LedgerID, p.Code, p.Name, p.Position)
	return err
}

func (r *repository) ListParticipants(ctx context.Context, ledgerID uuid.UUID) ([]Participant, error) {
	query := `SELECT id, ledger_id, code, name, sort_order FROM participants WHERE ledger_id = $1 ORDER BY sort_order`

	rows, err := r.q.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.LedgerID, &p.Code, &p.Name, &p.Position); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

const expenseColumns = `id, ledger_id, title, category, amount, paid_by, spent_on, notes, created_at, updated_at`

func scanExpense(s scanner) (*Expense, error) {
	var e Expense
	err := s.Scan(&e.ID, &e.LedgerID, &e.Title, &e.Category, &e.Amount, &e.PaidBy, &e.Date, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Date = dateOnly(e.Date)
	return &e, nil
}

func (r *repository) CreateExpense(ctx context.Context, e Expense) error {
	query := `INSERT INTO expenses (` + expenseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.ExecContext(ctx, query,
		e.ID,
		e.LedgerID,
		e.Title,
		e.Category,
		e.Amount,
		e.PaidBy,
		e.Date,
		e.Notes,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return err
}

func (r *repository) UpdateExpense(ctx context.Context, e Expense) error {
	query := `UPDATE expenses SET title = $1, category = $2, amount = $3, paid_by = $4, spent_on = $5, notes = $6, updated_at = $7
              WHERE id = $8 AND ledger_id = $9`
	_, err := r.q.ExecContext(ctx, query, e.Title, e.Category, e.Amount, e.PaidBy, e.Date, e.Notes, e.UpdatedAt, e.ID, e.LedgerID)
	return err
}

func (r *repository) DeleteExpense(ctx context.Context, ledgerID, id uuid.UUID) (bool, error) {
	return r.deleteRow(ctx, `DELETE FROM expenses WHERE id = $1 AND ledger_id = $2`, id, ledgerID)
}

func (r *repository) GetExpense(ctx context.Context, ledgerID, id uuid.UUID) (*Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND ledger_id = $2`

	e, err := scanExpense(r.q.QueryRowContext(ctx, query, id, ledgerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *repository) ListExpenses(ctx context.Context, ledgerID uuid.UUID) ([]Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ledger_id = $1 ORDER BY spent_on DESC, created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}

	return expenses, rows.Err()
}

const contributionColumns = `id, ledger_id, contributor_name, relationship, amount, received_on, notes, created_at, updated_at`

func scanContribution(s scanner) (*Contribution, error) {
	var c Contribution
	err := s.Scan(&c.ID, &c.LedgerID, &c.ContributorName, &c.Relationship, &c.Amount, &c.Date, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Date = dateOnly(c.Date)
	return &c, nil
}

func (r *repository) CreateContribution(ctx context.Context, c Contribution) error {
	query := `INSERT INTO contributions (` + contributionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.ExecContext(ctx, query,
		c.ID,
		c.LedgerID,
		c.ContributorName,
		c.Relationship,
		c.Amount,
		c.Date,
		c.Notes,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *repository) UpdateContribution(ctx context.Context, c Contribution) error {
	query := `UPDATE contributions SET contributor_name = $1, relationship = $2, amount = $3, received_on = $4, notes = $5, updated_at = $6
              WHERE id = $7 AND ledger_id = $8`
	_, err := r.q.ExecContext(ctx, query, c.ContributorName, c.Relationship, c.Amount, c.Date, c.Notes, c.UpdatedAt, c.ID, c.LedgerID)
	return err
}

func (r *repository) DeleteContribution(ctx context.Context, ledgerID, id uuid.UUID) (bool, error) {
	return r.deleteRow(ctx, `DELETE FROM contributions WHERE id = $1 AND ledger_id = $2`, id, ledgerID)
}

func (r *repository) GetContribution(ctx context.Context, ledgerID, id uuid.UUID) (*Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1 AND ledger_id = $2`

	c, err := scanContribution(r.q.QueryRowContext(ctx, query, id, ledgerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *repository) ListContributions(ctx context.Context, ledgerID uuid.UUID) ([]Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE ledger_id = $1 ORDER BY received_on DESC, created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		contributions = append(contributions, *c)
	}

	return contributions, rows.Err()
}

const depositColumns = `id, ledger_id, deposited_by, amount, deposited_on, notes, created_at, updated_at`

func scanDeposit(s scanner) (*Deposit, error) {
	var d Deposit
	err := s.Scan(&d.ID, &d.LedgerID, &d.DepositedBy, &d.Amount, &d.Date, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Date = dateOnly(d.Date)
	return &d, nil
}

func (r *repository) CreateDeposit(ctx context.Context, d Deposit) error {
	query := `INSERT INTO deposits (` + depositColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.ExecContext(ctx, query,
		d.ID,
		d.LedgerID,
		d.DepositedBy,
		d.Amount,
		d.Date,
		d.Notes,
		d.CreatedAt,
		d.UpdatedAt,
	)
	return err
}

func (r *repository) UpdateDeposit(ctx context.Context, d Deposit) error {
	query := `UPDATE deposits SET deposited_by = $1, amount = $2, deposited_on = $3, notes = $4, updated_at = $5
              WHERE id = $6 AND ledger_id = $7`
	_, err := r.q.ExecContext(ctx, query, d.DepositedBy, d.Amount, d.Date, d.Notes, d.UpdatedAt, d.ID, d.LedgerID)
	return err
}

func (r *repository) DeleteDeposit(ctx context.Context, ledgerID, id uuid.UUID) (bool, error) {
	return r.deleteRow(ctx, `DELETE FROM deposits WHERE id = $1 AND ledger_id = $2`, id, ledgerID)
}

func (r *repository) GetDeposit(ctx context.Context, ledgerID, id uuid.UUID) (*Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE id = $1 AND ledger_id = $2`

	d, err := scanDeposit(r.q.QueryRowContext(ctx, query, id, ledgerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *repository) ListDeposits(ctx context.Context, ledgerID uuid.UUID) ([]Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE ledger_id = $1 ORDER BY deposited_on DESC, created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *d)
	}

	return deposits, rows.Err()
}

func (r *repository) UpsertCategoryBudget(ctx context.Context, b CategoryBudget) error {
	query := `INSERT INTO category_budgets (ledger_id, category, amount) VALUES ($1, $2, $3)
              ON CONFLICT (ledger_id, category) DO UPDATE SET amount = excluded.amount`
	_, err := r.q.ExecContext(ctx, query, b.LedgerID, b.Category, b.Amount)
	return err
}

func (r *repository) DeleteCategoryBudget(ctx context.Context, ledgerID uuid.UUID, category string) (bool, error) {
	return r.deleteRow(ctx, `DELETE FROM category_budgets WHERE ledger_id = $1 AND category = $2`, ledgerID, category)
}

func (r *repository) ListCategoryBudgets(ctx context.Context, ledgerID uuid.UUID) ([]CategoryBudget, error) {
	query := `SELECT ledger_id, category, amount FROM category_budgets WHERE ledger_id = $1 ORDER BY category`

	rows, err := r.q.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []CategoryBudget
	for rows.Next() {
		var b CategoryBudget
		if err := rows.Scan(&b.LedgerID, &b.Category, &b.Amount); err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}

	return budgets, rows.Err()
}

func (r *repository) deleteRow(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
