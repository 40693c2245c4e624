package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/billbatista/rateio/eventlogger"
	"github.com/billbatista/rateio/settlement"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Snapshot is every row that feeds a settlement, read at one point in time.
type Snapshot struct {
	Ledger        Ledger
	Participants  []Participant
	Expenses      []Expense
	Contributions []Contribution
	Deposits      []Deposit
}

type ParticipantView struct {
	Participant Participant              `json:"participant"`
	Balance     settlement.BalanceRecord `json:"balance"`
	Status      settlement.Status        `json:"status"`
	Expenses    []Expense                `json:"expenses"`
	Deposits    []Deposit                `json:"deposits"`
	Pay         []settlement.Instruction `json:"pay"`
	Receive     []settlement.Instruction `json:"receive"`
}

type AuditResult struct {
	LedgerID uuid.UUID       `json:"ledger_id"`
	Balanced bool            `json:"balanced"`
	Residual decimal.Decimal `json:"residual"`
}

type Service struct {
	repo      Repository
	events    EventSink
	summaries *cache.Cache
	now       func() time.Time

	// generations counts invalidations per ledger. A summary is only cached when no
	// invalidation happened while it was computed.
	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

// NewService builds the ledger service. Settlement summaries are cached for summaryTTL and
// dropped whenever the ledger changes. events may be nil.
func NewService(repo Repository, events EventSink, summaryTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		events:      events,
		summaries:   cache.New(summaryTTL, 2*summaryTTL),
		now:         time.Now,
		generations: make(map[uuid.UUID]uint64),
	}
}

func (s *Service) emit(eventType string, ledgerID, actor uuid.UUID, data any) {
	if s.events == nil {
		return
	}
	s.events.Log(newLedgerEvent(eventType, ledgerID, actor, data))
}

func (s *Service) invalidate(ledgerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[ledgerID]++
	s.summaries.Delete(ledgerID.String())
}

func (s *Service) generation(ledgerID uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[ledgerID]
}

// cacheSummary stores summary unless the ledger was invalidated after gen was read.
func (s *Service) cacheSummary(ledgerID uuid.UUID, gen uint64, summary settlement.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[ledgerID] != gen {
		return
	}
	s.summaries.Set(ledgerID.String(), summary, cache.DefaultExpiration)
}

func (s *Service) Ledger(ctx context.Context, ledgerID uuid.UUID) (*Ledger, error) {
	l, err := s.repo.GetLedger(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

// openLedger loads a ledger that is about to be mutated. The write itself is gated again by
// Repository.WithOpenLedger.
func (s *Service) openLedger(ctx context.Context, ledgerID uuid.UUID) (*Ledger, error) {
	l, err := s.Ledger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if l.IsClosed {
		return nil, ErrLedgerClosed
	}
	return l, nil
}

func (s *Service) Participants(ctx context.Context, ledgerID uuid.UUID) ([]Participant, error) {
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return nil, err
	}
	return s.repo.ListParticipants(ctx, ledgerID)
}

func (s *Service) requireParticipant(ctx context.Context, ledgerID, participantID uuid.UUID) error {
	participants, err := s.repo.ListParticipants(ctx, ledgerID)
	if err != nil {
		return fmt.Errorf("loading participants: %w", err)
	}
	for _, p := range participants {
		if p.ID == participantID {
			return nil
		}
	}
	return ErrUnknownParticipant
}

func (s *Service) Expenses(ctx context.Context, ledgerID uuid.UUID) ([]Expense, error) {
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, ledgerID)
}

func (s *Service) Expense(ctx context.Context, ledgerID, id uuid.UUID) (*Expense, error) {
	e, err := s.repo.GetExpense(ctx, ledgerID, id)
	if err != nil {
		return nil, fmt.Errorf("loading expense: %w", err)
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *Service) CreateExpense(ctx context.Context, ledgerID, actor uuid.UUID, in ExpenseInput) (*Expense, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	e, err := NewExpense(ledgerID, in)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, ledgerID, e.PaidBy); err != nil {
		return nil, err
	}
	err = s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		if err := tx.CreateExpense(ctx, e); err != nil {
			return fmt.Errorf("saving expense: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ledgerID)
	s.emit(EventExpenseCreated, ledgerID, actor, EntryChangedEvent{
		EntryID:     e.ID.String(),
		Amount:      e.Amount.String(),
		Category:    e.Category,
		Participant: e.PaidBy.String(),
	})
	return &e, nil
}

func (s *Service) UpdateExpense(ctx context.Context, ledgerID, id, actor uuid.UUID, in ExpenseInput) (*Expense, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	e, err := s.Expense(ctx, ledgerID, id)
	if err != nil {
		return nil, err
	}
	if err := e.apply(in); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, ledgerID, e.PaidBy); err != nil {
		return nil, err
	}
	err = s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		if err := tx.UpdateExpense(ctx, *e); err != nil {
			return fmt.Errorf("updating expense: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ledgerID)
	s.emit(EventExpenseUpdated, ledgerID, actor, EntryChangedEvent{
		EntryID:     e.ID.String(),
		Amount:      e.Amount.String(),
		Category:    e.Category,
		Participant: e.PaidBy.String(),
	})
	return e, nil
}

func (s *Service) DeleteExpense(ctx context.Context, ledgerID, id, actor uuid.UUID) error {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return err
	}
	var found bool
	err := s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		var err error
		if found, err = tx.DeleteExpense(ctx, ledgerID, id); err != nil {
			return fmt.Errorf("deleting expense: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	s.invalidate(ledgerID)
	s.emit(EventExpenseDeleted, ledgerID, actor, EntryChangedEvent{EntryID: id.String()})
	return nil
}

func (s *Service) Contributions(ctx context.Context, ledgerID uuid.UUID) ([]Contribution, error) {
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return nil, err
	}
	return s.repo.ListContributions(ctx, ledgerID)
}

func (s *Service) CreateContribution(ctx context.Context, ledgerID, actor uuid.UUID, in ContributionInput) (*Contribution, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	c, err := NewContribution(ledgerID, in)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		if err := tx.CreateContribution(ctx, c); err != nil {
			return fmt.Errorf("saving contribution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ledgerID)
	s.emit(EventContributionCreated, ledgerID, actor, EntryChangedEvent{EntryID: c.ID.String(), Amount: c.Amount.String()})
	return &c, nil
}

func (s *Service) UpdateContribution(ctx context.Context, ledgerID, id, actor uuid.UUID, in ContributionInput) (*Contribution, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	c, err := s.repo.GetContribution(ctx, ledgerID, id)
	if err != nil {
		return nil, fmt.Errorf("loading contribution: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if err := c.apply(in); err != nil {
		return nil, err
	}
	err = s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		if err := tx.UpdateContribution(ctx, *c); err != nil {
			return fmt.Errorf("updating contribution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ledgerID)
	s.emit(EventContributionUpdated, ledgerID, actor, EntryChangedEvent{EntryID: c.ID.String(), Amount: c.Amount.String()})
	return c, nil
}

func (s *Service) DeleteContribution(ctx context.Context, ledgerID, id, actor uuid.UUID) error {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return err
	}
	var found bool
	err := s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		var err error
		if found, err = tx.DeleteContribution(ctx, ledgerID, id); err != nil {
			return fmt.Errorf("deleting contribution: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	s.invalidate(ledgerID)
	s.emit(EventContributionDeleted, ledgerID, actor, EntryChangedEvent{EntryID: id.String()})
	return nil
}

func (s *Service) Deposits(ctx context.Context, ledgerID uuid.UUID) ([]Deposit, error) {
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return nil, err
	}
	return s.repo.ListDeposits(ctx, ledgerID)
}

func (s *Service) CreateDeposit(ctx context.Context, ledgerID, actor uuid.UUID, in DepositInput) (*Deposit, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	d, err := NewDeposit(ledgerID, in)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, ledgerID, d.DepositedBy); err != nil {
		return nil, err
	}
	err = s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		if err := tx.CreateDeposit(ctx, d); err != nil {
			return fmt.Errorf("saving deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ledgerID)
	s.emit(EventDepositCreated, ledgerID, actor, EntryChangedEvent{
		EntryID:     d.ID.String(),
		Amount:      d.Amount.String(),
		Participant: d.DepositedBy.String(),
	})
	return &d, nil
}

func (s *Service) UpdateDeposit(ctx context.Context, ledgerID, id, actor uuid.UUID, in DepositInput) (*Deposit, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}
	d, err := s.repo.GetDeposit(ctx, ledgerID, id)
	if err != nil {
		return nil, fmt.Errorf("loading deposit: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	if err := d.apply(in); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, ledgerID, d.DepositedBy); err != nil {
		return nil, err
	}
	err = s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		if err := tx.UpdateDeposit(ctx, *d); err != nil {
			return fmt.Errorf("updating deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ledgerID)
	s.emit(EventDepositUpdated, ledgerID, actor, EntryChangedEvent{
		EntryID:     d.ID.String(),
		Amount:      d.Amount.String(),
		Participant: d.DepositedBy.String(),
	})
	return d, nil
}

func (s *Service) DeleteDeposit(ctx context.Context, ledgerID, id, actor uuid.UUID) error {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return err
	}
	var found bool
	err := s.repo.WithOpenLedger(ctx, ledgerID, func(tx Repository) error {
		var err error
		if found, err = tx.DeleteDeposit(ctx, ledgerID, id); err != nil {
			return fmt.Errorf("deleting deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	s.invalidate(ledgerID)
	s.emit(EventDepositDeleted, ledgerID, actor, EntryChangedEvent{EntryID: id.String()})
	return nil
}

func (s *Service) CategorySummary(ctx context.Context, ledgerID uuid.UUID) ([]CategoryTotal, error) {
	expenses, err := s.Expenses(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	return SummarizeCategories(expenses), nil
}

func (s *Service) Budgets(ctx context.Context, ledgerID uuid.UUID) (BudgetSummary, error) {
	l, err := s.Ledger(ctx, ledgerID)
	if err != nil {
		return BudgetSummary{}, err
	}

	var (
		budgets  []CategoryBudget
		expenses []Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		budgets, err = s.repo.ListCategoryBudgets(gctx, ledgerID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpenses(gctx, ledgerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return BudgetSummary{}, fmt.Errorf("loading budgets: %w", err)
	}

	return SummarizeBudgets(l.OverallBudget, budgets, expenses), nil
}

func (s *Service) SetOverallBudget(ctx context.Context, ledgerID, actor uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeBudget
	}
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return err
	}
	if err := s.repo.SetOverallBudget(ctx, ledgerID, amount); err != nil {
		return fmt.Errorf("saving overall budget: %w", err)
	}

	s.emit(EventBudgetUpdated, ledgerID, actor, BudgetChangedEvent{Amount: amount.String()})
	return nil
}

func (s *Service) SetCategoryBudget(ctx context.Context, ledgerID, actor uuid.UUID, category string, amount decimal.Decimal) (CategoryBudget, error) {
	category = normalizeCategory(category)
	if category == "" {
		return CategoryBudget{}, ErrEmptyCategory
	}
	if amount.IsNegative() {
		return CategoryBudget{}, ErrNegativeBudget
	}
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return CategoryBudget{}, err
	}

	b := CategoryBudget{LedgerID: ledgerID, Category: category, Amount: amount}
	if err := s.repo.UpsertCategoryBudget(ctx, b); err != nil {
		return CategoryBudget{}, fmt.Errorf("saving category budget: %w", err)
	}

	s.emit(EventBudgetUpdated, ledgerID, actor, BudgetChangedEvent{Category: category, Amount: amount.String()})
	return b, nil
}

func (s *Service) DeleteCategoryBudget(ctx context.Context, ledgerID, actor uuid.UUID, category string) error {
	category = normalizeCategory(category)
	if _, err := s.Ledger(ctx, ledgerID); err != nil {
		return err
	}
	found, err := s.repo.DeleteCategoryBudget(ctx, ledgerID, category)
	if err != nil {
		return fmt.Errorf("deleting category budget: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	s.emit(EventBudgetDeleted, ledgerID, actor, BudgetChangedEvent{Category: category})
	return nil
}

// Snapshot reads the ledger and all of its settlement rows concurrently.
func (s *Service) Snapshot(ctx context.Context, ledgerID uuid.UUID) (*Snapshot, error) {
	l, err := s.Ledger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Ledger: *l}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Participants, err = s.repo.ListParticipants(gctx, ledgerID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Expenses, err = s.repo.ListExpenses(gctx, ledgerID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Contributions, err = s.repo.ListContributions(gctx, ledgerID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Deposits, err = s.repo.ListDeposits(gctx, ledgerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading ledger snapshot: %w", err)
	}

	return snap, nil
}

// Input converts the snapshot into the settlement engine's input, with participants in their
// canonical order.
func (snap *Snapshot) Input() (settlement.Input, error) {
	participants := make([]settlement.Participant, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, settlement.Participant{ID: p.ID.String(), Code: p.Code, Name: p.Name})
	}

	expenses := make([]settlement.ExpenseEntry, 0, len(snap.Expenses))
	for _, e := range snap.Expenses {
		expenses = append(expenses, settlement.ExpenseEntry{PaidBy: e.PaidBy.String(), Amount: e.Amount})
	}

	contributions := make([]decimal.Decimal, 0, len(snap.Contributions))
	for _, c := range snap.Contributions {
		contributions = append(contributions, c.Amount)
	}

	deposits := make([]settlement.DepositEntry, 0, len(snap.Deposits))
	for _, d := range snap.Deposits {
		deposits = append(deposits, settlement.DepositEntry{DepositedBy: d.DepositedBy.String(), Amount: d.Amount})
	}

	totals, err := settlement.Aggregate(participants, expenses, contributions)
	if err != nil {
		return settlement.Input{}, err
	}
	deposited, err := settlement.SumDeposits(participants, deposits)
	if err != nil {
		return settlement.Input{}, err
	}

	return settlement.Input{
		Participants:       participants,
		TotalExpenses:      totals.TotalExpenses,
		TotalContributions: totals.TotalContributions,
		Paid:               totals.PaidBy,
		Deposited:          deposited,
	}, nil
}

func (s *Service) computeSummary(ctx context.Context, ledgerID uuid.UUID) (*Snapshot, settlement.Summary, error) {
	snap, err := s.Snapshot(ctx, ledgerID)
	if err != nil {
		return nil, settlement.Summary{}, err
	}
	in, err := snap.Input()
	if err != nil {
		return nil, settlement.Summary{}, err
	}
	summary, err := settlement.Summarize(in)
	if err != nil {
		return nil, settlement.Summary{}, err
	}
	return snap, summary, nil
}

// Summary returns the settlement of a ledger. The result is shared with other callers and
// must not be modified.
func (s *Service) Summary(ctx context.Context, ledgerID uuid.UUID) (settlement.Summary, error) {
	key := ledgerID.String()
	if cached, ok := s.summaries.Get(key); ok {
		return cached.(settlement.Summary), nil
	}

	gen := s.generation(ledgerID)
	_, summary, err := s.computeSummary(ctx, ledgerID)
	if err != nil {
		return settlement.Summary{}, err
	}
	s.cacheSummary(ledgerID, gen, summary)
	return summary, nil
}

func (s *Service) ParticipantView(ctx context.Context, ledgerID, participantID uuid.UUID) (*ParticipantView, error) {
	snap, summary, err := s.computeSummary(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	view := &ParticipantView{
		Expenses: make([]Expense, 0),
		Deposits: make([]Deposit, 0),
		Pay:      make([]settlement.Instruction, 0),
		Receive:  make([]settlement.Instruction, 0),
	}
	found := false
	for _, p := range snap.Participants {
		if p.ID == participantID {
			view.Participant = p
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}

	id := participantID.String()
	view.Balance, _ = summary.Record(id)
	view.Status = view.Balance.Status()
	for _, e := range snap.Expenses {
		if e.PaidBy == participantID {
			view.Expenses = append(view.Expenses, e)
		}
	}
	for _, d := range snap.Deposits {
		if d.DepositedBy == participantID {
			view.Deposits = append(view.Deposits, d)
		}
	}
	for _, in := range summary.Instructions {
		switch id {
		case in.From:
			view.Pay = append(view.Pay, in)
		case in.To:
			view.Receive = append(view.Receive, in)
		}
	}

	return view, nil
}

// Close freezes a ledger once its balances reconcile. Mutations are rejected until it is
// reopened.
// Close verifies the ledger balances and closes it. The close only applies to the version that
// was verified; a write landing in between gives ErrLedgerChanged.
func (s *Service) Close(ctx context.Context, ledgerID, actor uuid.UUID) (*Ledger, error) {
	if _, err := s.openLedger(ctx, ledgerID); err != nil {
		return nil, err
	}

	snap, summary, err := s.computeSummary(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if !settlement.VerifyBalances(summary.Balances) {
		return nil, fmt.Errorf("%w: residual %s", ErrUnbalanced, summary.Residual.StringFixed(2))
	}

	l := snap.Ledger
	now := s.now().UTC()
	changed, err := s.repo.CloseLedger(ctx, ledgerID, l.Version, now, actor)
	if err != nil {
		return nil, fmt.Errorf("closing ledger: %w", err)
	}
	if !changed {
		current, err := s.Ledger(ctx, ledgerID)
		if err != nil {
			return nil, err
		}
		if current.IsClosed {
			return nil, ErrLedgerClosed
		}
		return nil, ErrLedgerChanged
	}

	s.invalidate(ledgerID)
	s.emit(EventLedgerClosed, ledgerID, actor, LedgerStatusEvent{
		Residual: summary.Residual.StringFixed(2),
		Balanced: true,
		At:       now,
	})

	l.IsClosed = true
	l.ClosedAt = &now
	l.ClosedBy = &actor
	l.Version++
	return &l, nil
}

func (s *Service) Reopen(ctx context.Context, ledgerID, actor uuid.UUID) (*Ledger, error) {
	l, err := s.Ledger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if !l.IsClosed {
		return nil, ErrLedgerOpen
	}

	changed, err := s.repo.ReopenLedger(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("reopening ledger: %w", err)
	}
	if !changed {
		return nil, ErrLedgerOpen
	}

	s.invalidate(ledgerID)
	s.emit(EventLedgerReopened, ledgerID, actor, LedgerStatusEvent{At: s.now().UTC()})

	l.IsClosed = false
	l.ClosedAt = nil
	l.ClosedBy = nil
	l.Version++
	return l, nil
}

// Audit runs the integrity check over every open ledger. A ledger that fails to load is
// logged and skipped.
func (s *Service) Audit(ctx context.Context) ([]AuditResult, error) {
	ledgers, err := s.repo.ListLedgers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ledgers: %w", err)
	}

	results := make([]AuditResult, 0, len(ledgers))
	for _, l := range ledgers {
		if l.IsClosed {
			continue
		}
		_, summary, err := s.computeSummary(ctx, l.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, err
			}
			slog.Error("failed to audit ledger", "ledger_id", l.ID, "error", err)
			continue
		}

		res := AuditResult{LedgerID: l.ID, Balanced: summary.Balanced, Residual: summary.Residual}
		if !res.Balanced {
			slog.Warn("ledger balances do not reconcile", "ledger_id", l.ID, "residual", res.Residual.StringFixed(2))
		}
		s.emit(EventIntegrityChecked, l.ID, uuid.Nil, LedgerStatusEvent{
			Residual: res.Residual.StringFixed(2),
			Balanced: res.Balanced,
			At:       s.now().UTC(),
		})
		results = append(results, res)
	}

	return results, nil
}

// IsInvalidInput reports whether err comes from rejected user input rather than from storage.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, settlement.ErrInvalidInput)
}

// ActivityFilter keeps the events that belong to ledgerID.
func ActivityFilter(events []eventlogger.Event, ledgerID uuid.UUID) []eventlogger.Event {
	id := ledgerID.String()
	kept := make([]eventlogger.Event, 0, len(events))
	for _, e := range events {
		if strings.EqualFold(e.Metadata[MetadataLedgerID], id) {
			kept = append(kept, e)
		}
	}
	return kept
}
