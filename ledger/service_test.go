package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/billbatista/rateio/eventlogger"
	"github.com/billbatista/rateio/settlement"
	"github.com/billbatista/rateio/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type recordingSink struct {
	mu     sync.Mutex
	events []eventlogger.Event
}

func (r *recordingSink) Log(e eventlogger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc          *Service
	repo         Repository
	sink         *recordingSink
	ledger       Ledger
	participants []Participant
	actor        uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, storage.DriverSQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ctx := context.Background()
	repo := NewRepository(db)

	l, err := NewLedger("Wedding", "INR")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateLedger(ctx, l); err != nil {
		t.Fatalf("CreateLedger: %v", err)
	}

	var participants []Participant
	for i, code := range []string{"A", "B", "C", "D"} {
		p, err := NewParticipant(l.ID, code, "Participant "+code, i)
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("CreateParticipant: %v", err)
		}
		participants = append(participants, p)
	}

	sink := &recordingSink{}
	return &fixture{
		svc:          NewService(repo, sink, time.Minute),
		repo:         repo,
		sink:         sink,
		ledger:       l,
		participants: participants,
		actor:        uuid.New(),
	}
}

func (f *fixture) addExpense(t *testing.T, payer int, amount string) *Expense {
	t.Helper()
	e, err := f.svc.CreateExpense(context.Background(), f.ledger.ID, f.actor, ExpenseInput{
		Title:    "Expense",
		Category: "general",
		Amount:   decimal.RequireFromString(amount),
		PaidBy:   f.participants[payer].ID,
		Date:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	return e
}

func TestSummaryFourParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addExpense(t, 0, "1000")
	f.addExpense(t, 2, "200")

	summary, err := f.svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if !summary.SharePerParticipant.Equal(decimal.NewFromInt(300)) {
		t.Errorf("share = %s", summary.SharePerParticipant)
	}
	id := func(i int) string { return f.participants[i].ID.String() }
	want := []settlement.Instruction{
		{From: id(1), To: id(0), Amount: decimal.NewFromInt(300)},
		{From: id(3), To: id(0), Amount: decimal.NewFromInt(300)},
		{From: id(2), To: id(0), Amount: decimal.NewFromInt(100)},
	}
	if len(summary.Instructions) != len(want) {
		t.Fatalf("instructions = %v", summary.Instructions)
	}
	for i := range want {
		got := summary.Instructions[i]
		if got.From != want[i].From || got.To != want[i].To || !got.Amount.Equal(want[i].Amount) {
			t.Errorf("instruction %d = %+v, want %+v", i, got, want[i])
		}
	}
	if !summary.Balanced {
		t.Error("expected balanced ledger")
	}
}

func TestSummaryCacheIsInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.addExpense(t, 0, "400")
	first, err := f.svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !first.TotalExpenses.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("total = %s", first.TotalExpenses)
	}

	in := ExpenseInput{Title: "Fixed", Category: "general", Amount: decimal.NewFromInt(800), PaidBy: e.PaidBy, Date: e.Date}
	if _, err := f.svc.UpdateExpense(ctx, f.ledger.ID, e.ID, f.actor, in); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}

	second, err := f.svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !second.TotalExpenses.Equal(decimal.NewFromInt(800)) {
		t.Errorf("stale summary, total = %s", second.TotalExpenses)
	}

	if err := f.svc.DeleteExpense(ctx, f.ledger.ID, e.ID, f.actor); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	third, err := f.svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !third.TotalExpenses.IsZero() || len(third.Instructions) != 0 {
		t.Errorf("after delete: %+v", third)
	}
}

func TestMutationsRejectUnknownParticipantsAndRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateExpense(ctx, f.ledger.ID, f.actor, ExpenseInput{
		Title: "Ghost", Category: "x", Amount: decimal.NewFromInt(1), PaidBy: uuid.New(), Date: time.Now(),
	})
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("expected ErrUnknownParticipant, got %v", err)
	}

	_, err = f.svc.CreateDeposit(ctx, f.ledger.ID, f.actor, DepositInput{
		DepositedBy: uuid.New(), Amount: decimal.NewFromInt(1), Date: time.Now(),
	})
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("expected ErrUnknownParticipant, got %v", err)
	}

	if err := f.svc.DeleteExpense(ctx, f.ledger.ID, uuid.New(), f.actor); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Expenses(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown ledger, got %v", err)
	}
	if _, err := f.svc.UpdateContribution(ctx, f.ledger.ID, uuid.New(), f.actor, ContributionInput{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseAndReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addExpense(t, 0, "1000")
	f.addExpense(t, 2, "200")

	if _, err := f.svc.Reopen(ctx, f.ledger.ID, f.actor); !errors.Is(err, ErrLedgerOpen) {
		t.Errorf("expected ErrLedgerOpen, got %v", err)
	}

	closed, err := f.svc.Close(ctx, f.ledger.ID, f.actor)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !closed.IsClosed || closed.ClosedAt == nil || closed.ClosedBy == nil || *closed.ClosedBy != f.actor {
		t.Errorf("closed ledger = %+v", closed)
	}

	stored, err := f.svc.Ledger(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if !stored.IsClosed || stored.ClosedBy == nil {
		t.Errorf("stored ledger = %+v", stored)
	}

	if _, err := f.svc.Close(ctx, f.ledger.ID, f.actor); !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("expected ErrLedgerClosed on second close, got %v", err)
	}
	_, err = f.svc.CreateContribution(ctx, f.ledger.ID, f.actor, ContributionInput{
		ContributorName: "Late", Amount: decimal.NewFromInt(5), Date: time.Now(),
	})
	if !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("expected ErrLedgerClosed on mutation, got %v", err)
	}

	// reads still work on a closed ledger
	if _, err := f.svc.Summary(ctx, f.ledger.ID); err != nil {
		t.Errorf("Summary on closed ledger: %v", err)
	}

	reopened, err := f.svc.Reopen(ctx, f.ledger.ID, f.actor)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.IsClosed || reopened.ClosedAt != nil {
		t.Errorf("reopened ledger = %+v", reopened)
	}
	f.addExpense(t, 1, "40")

	got := f.sink.types()
	want := []string{EventExpenseCreated, EventExpenseCreated, EventLedgerClosed, EventLedgerReopened, EventExpenseCreated}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if f.sink.events[2].Metadata[MetadataLedgerID] != f.ledger.ID.String() {
		t.Errorf("metadata = %v", f.sink.events[2].Metadata)
	}
}

func TestCloseRejectsUnbalancedLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addExpense(t, 0, "1200")
	_, err := f.svc.CreateContribution(ctx, f.ledger.ID, f.actor, ContributionInput{
		ContributorName: "Aunt", Amount: decimal.NewFromInt(400), Date: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}

	if _, err := f.svc.Close(ctx, f.ledger.ID, f.actor); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}

	stored, err := f.svc.Ledger(ctx, f.ledger.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.IsClosed {
		t.Error("unbalanced ledger was closed")
	}

	results, err := f.svc.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(results) != 1 || results[0].Balanced {
		t.Errorf("audit = %+v", results)
	}
	if !results[0].Residual.Equal(decimal.NewFromInt(-400)) {
		t.Errorf("residual = %s, want -400", results[0].Residual)
	}
}

func TestParticipantView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addExpense(t, 0, "1000")
	f.addExpense(t, 2, "200")

	view, err := f.svc.ParticipantView(ctx, f.ledger.ID, f.participants[0].ID)
	if err != nil {
		t.Fatalf("ParticipantView: %v", err)
	}
	if view.Status != settlement.StatusOwed {
		t.Errorf("status = %s", view.Status)
	}
	if !view.Balance.Balance.Equal(decimal.NewFromInt(-700)) {
		t.Errorf("balance = %s", view.Balance.Balance)
	}
	if len(view.Expenses) != 1 || len(view.Receive) != 3 || len(view.Pay) != 0 {
		t.Errorf("view = %+v", view)
	}

	c, err := f.svc.ParticipantView(ctx, f.ledger.ID, f.participants[2].ID)
	if err != nil {
		t.Fatalf("ParticipantView: %v", err)
	}
	if c.Status != settlement.StatusOwes || len(c.Pay) != 1 || !c.Pay[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("view = %+v", c)
	}

	if _, err := f.svc.ParticipantView(ctx, f.ledger.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDepositsFlowIntoBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addExpense(t, 0, "1200")
	d, err := f.svc.CreateDeposit(ctx, f.ledger.ID, f.actor, DepositInput{
		DepositedBy: f.participants[1].ID, Amount: decimal.NewFromInt(300), Date: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}

	summary, err := f.svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := summary.Record(f.participants[1].ID.String())
	if !b.Balance.IsZero() || !b.Deposit.Equal(decimal.NewFromInt(300)) {
		t.Errorf("B = %+v", b)
	}

	updated, err := f.svc.UpdateDeposit(ctx, f.ledger.ID, d.ID, f.actor, DepositInput{
		DepositedBy: f.participants[1].ID, Amount: decimal.NewFromInt(100), Date: d.Date,
	})
	if err != nil {
		t.Fatalf("UpdateDeposit: %v", err)
	}
	if !updated.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("amount = %s", updated.Amount)
	}

	deposits, err := f.svc.Deposits(ctx, f.ledger.ID)
	if err != nil || len(deposits) != 1 {
		t.Fatalf("Deposits = %v, %v", deposits, err)
	}
	if err := f.svc.DeleteDeposit(ctx, f.ledger.ID, d.ID, f.actor); err != nil {
		t.Fatalf("DeleteDeposit: %v", err)
	}
}

func TestBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addExpense(t, 0, "75")
	if err := f.svc.SetOverallBudget(ctx, f.ledger.ID, f.actor, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("SetOverallBudget: %v", err)
	}
	if _, err := f.svc.SetCategoryBudget(ctx, f.ledger.ID, f.actor, "General", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("SetCategoryBudget: %v", err)
	}
	if _, err := f.svc.SetCategoryBudget(ctx, f.ledger.ID, f.actor, "general", decimal.NewFromInt(80)); err != nil {
		t.Fatalf("SetCategoryBudget upsert: %v", err)
	}
	if _, err := f.svc.SetCategoryBudget(ctx, f.ledger.ID, f.actor, "x", decimal.NewFromInt(-1)); !errors.Is(err, ErrNegativeBudget) {
		t.Errorf("expected ErrNegativeBudget, got %v", err)
	}

	summary, err := f.svc.Budgets(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Budgets: %v", err)
	}
	if !summary.Overall.Budget.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("overall = %+v", summary.Overall)
	}
	if len(summary.Categories) != 1 || summary.Categories[0].Status != BudgetRed {
		t.Errorf("categories = %+v", summary.Categories)
	}

	if err := f.svc.DeleteCategoryBudget(ctx, f.ledger.ID, f.actor, "GENERAL"); err != nil {
		t.Fatalf("DeleteCategoryBudget: %v", err)
	}
	if err := f.svc.DeleteCategoryBudget(ctx, f.ledger.ID, f.actor, "GENERAL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	cats, err := f.svc.CategorySummary(ctx, f.ledger.ID)
	if err != nil || len(cats) != 1 || cats[0].Category != "GENERAL" {
		t.Errorf("CategorySummary = %v, %v", cats, err)
	}
}

// interleavedRepo runs a hook around a repository call so a test can land one operation in
// the middle of another.
type interleavedRepo struct {
	Repository
	beforeWrite       func()
	beforeClose       func()
	afterListExpenses func()
}

func (r *interleavedRepo) WithOpenLedger(ctx context.Context, ledgerID uuid.UUID, fn func(Repository) error) error {
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	return r.Repository.WithOpenLedger(ctx, ledgerID, fn)
}

func (r *interleavedRepo) CloseLedger(ctx context.Context, id uuid.UUID, version int64, at time.Time, by uuid.UUID) (bool, error) {
	if r.beforeClose != nil {
		r.beforeClose()
	}
	return r.Repository.CloseLedger(ctx, id, version, at, by)
}

func (r *interleavedRepo) ListExpenses(ctx context.Context, ledgerID uuid.UUID) ([]Expense, error) {
	expenses, err := r.Repository.ListExpenses(ctx, ledgerID)
	if r.afterListExpenses != nil {
		r.afterListExpenses()
	}
	return expenses, err
}

func (f *fixture) expenseInput(amount int64) ExpenseInput {
	return ExpenseInput{
		Title:    "Venue",
		Category: "general",
		Amount:   decimal.NewFromInt(amount),
		PaidBy:   f.participants[0].ID,
		Date:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestCloseLandingBeforeWriteRejectsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := &interleavedRepo{Repository: f.repo}
	svc := NewService(repo, nil, time.Minute)
	var closeErr error
	repo.beforeWrite = sync.OnceFunc(func() {
		_, closeErr = svc.Close(ctx, f.ledger.ID, f.actor)
	})

	_, err := svc.CreateExpense(ctx, f.ledger.ID, f.actor, f.expenseInput(400))
	if closeErr != nil {
		t.Fatalf("Close: %v", closeErr)
	}
	if !errors.Is(err, ErrLedgerClosed) {
		t.Fatalf("expected ErrLedgerClosed, got %v", err)
	}

	expenses, err := f.repo.ListExpenses(ctx, f.ledger.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(expenses) != 0 {
		t.Errorf("closed ledger holds %d expenses", len(expenses))
	}
}

func TestWriteLandingBeforeCloseAbortsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := &interleavedRepo{Repository: f.repo}
	svc := NewService(repo, nil, time.Minute)
	var writeErr error
	repo.beforeClose = sync.OnceFunc(func() {
		_, writeErr = svc.CreateExpense(ctx, f.ledger.ID, f.actor, f.expenseInput(400))
	})

	if _, err := svc.Close(ctx, f.ledger.ID, f.actor); !errors.Is(err, ErrLedgerChanged) {
		t.Fatalf("expected ErrLedgerChanged, got %v", err)
	}
	if writeErr != nil {
		t.Fatalf("CreateExpense: %v", writeErr)
	}

	stored, err := svc.Ledger(ctx, f.ledger.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.IsClosed {
		t.Fatal("ledger closed on a version that was never verified")
	}

	closed, err := svc.Close(ctx, f.ledger.ID, f.actor)
	if err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !closed.IsClosed || closed.Version <= stored.Version {
		t.Errorf("closed ledger = %+v, previous version %d", closed, stored.Version)
	}
}

func TestSummaryComputedAcrossWriteIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := &interleavedRepo{Repository: f.repo}
	svc := NewService(repo, nil, time.Minute)
	var writeErr error
	repo.afterListExpenses = sync.OnceFunc(func() {
		_, writeErr = svc.CreateExpense(ctx, f.ledger.ID, f.actor, f.expenseInput(400))
	})

	first, err := svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if writeErr != nil {
		t.Fatalf("CreateExpense: %v", writeErr)
	}
	if !first.TotalExpenses.IsZero() {
		t.Fatalf("first summary total = %s, want the pre-write value", first.TotalExpenses)
	}

	second, err := svc.Summary(ctx, f.ledger.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !second.TotalExpenses.Equal(decimal.NewFromInt(400)) {
		t.Errorf("after the write, total = %s, want 400", second.TotalExpenses)
	}
}
