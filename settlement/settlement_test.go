package settlement

import (
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func people(ids ...string) []Participant {
	ps := make([]Participant, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, Participant{ID: id, Name: "Participant " + id})
	}
	return ps
}

func assertInstructions(t *testing.T, got []Instruction, want []Instruction) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d instructions %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i].From != want[i].From || got[i].To != want[i].To || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("instruction %d: got %s -> %s %s, want %s -> %s %s",
				i, got[i].From, got[i].To, got[i].Amount, want[i].From, want[i].To, want[i].Amount)
		}
	}
}

func TestSummarizeFourParticipants(t *testing.T) {
	participants := people("A", "B", "C", "D")

	totals, err := Aggregate(participants, []ExpenseEntry{
		{PaidBy: "A", Amount: dec("1000")},
		{PaidBy: "C", Amount: dec("200")},
	}, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !totals.TotalExpenses.Equal(dec("1200")) {
		t.Fatalf("total expenses = %s, want 1200", totals.TotalExpenses)
	}
	if !totals.PaidBy["B"].IsZero() {
		t.Errorf("B paid %s, want 0", totals.PaidBy["B"])
	}

	summary, err := Summarize(Input{
		Participants:       participants,
		TotalExpenses:      totals.TotalExpenses,
		TotalContributions: totals.TotalContributions,
		Paid:               totals.PaidBy,
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if !summary.SharePerParticipant.Equal(dec("300")) {
		t.Errorf("share = %s, want 300", summary.SharePerParticipant)
	}

	wantBalances := map[string]string{"A": "-700", "B": "300", "C": "100", "D": "300"}
	for _, r := range summary.Balances {
		if !r.Balance.Equal(dec(wantBalances[r.ParticipantID])) {
			t.Errorf("balance of %s = %s, want %s", r.ParticipantID, r.Balance, wantBalances[r.ParticipantID])
		}
	}
	if got := summary.Balances[0].Status(); got != StatusOwed {
		t.Errorf("A status = %s, want %s", got, StatusOwed)
	}
	if got := summary.Balances[1].Status(); got != StatusOwes {
		t.Errorf("B status = %s, want %s", got, StatusOwes)
	}

	assertInstructions(t, summary.Instructions, []Instruction{
		{From: "B", To: "A", Amount: dec("300")},
		{From: "D", To: "A", Amount: dec("300")},
		{From: "C", To: "A", Amount: dec("100")},
	})

	if !summary.Balanced {
		t.Errorf("expected balanced summary, residual %s", summary.Residual)
	}
}

func TestCalculateSurplus(t *testing.T) {
	participants := people("A", "B", "C")

	records, breakdown, err := Calculate(Input{
		Participants:       participants,
		TotalExpenses:      dec("500"),
		TotalContributions: dec("800"),
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if !breakdown.NetExpense.IsZero() {
		t.Errorf("net expense = %s, want 0", breakdown.NetExpense)
	}
	if !breakdown.Surplus.Equal(dec("300")) {
		t.Errorf("surplus = %s, want 300", breakdown.Surplus)
	}
	if !breakdown.SharePerParticipant.IsZero() {
		t.Errorf("share = %s, want 0", breakdown.SharePerParticipant)
	}
	for _, r := range records {
		if r.Share.IsNegative() {
			t.Errorf("negative share for %s", r.ParticipantID)
		}
		if r.Status() != StatusSettled {
			t.Errorf("%s status = %s, want settled", r.ParticipantID, r.Status())
		}
	}

	instructions, err := Settle(records)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(instructions) != 0 {
		t.Errorf("expected no instructions, got %v", instructions)
	}
}

func TestSurplusWithPaymentsAsksNobodyToPay(t *testing.T) {
	records, _, err := Calculate(Input{
		Participants:       people("A", "B"),
		TotalExpenses:      dec("500"),
		TotalContributions: dec("800"),
		Paid:               map[string]decimal.Decimal{"A": dec("500")},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	instructions, err := Settle(records)
	if len(instructions) != 0 {
		t.Errorf("expected no instructions, got %v", instructions)
	}
	if !errors.Is(err, ErrUnbalanced) {
		t.Errorf("expected ErrUnbalanced, got %v", err)
	}
	if VerifyBalances(records) {
		t.Error("expected balances to be flagged")
	}
}

func TestDepositsReduceShare(t *testing.T) {
	summary, err := Summarize(Input{
		Participants:  people("A", "B", "C", "D"),
		TotalExpenses: dec("1200"),
		Paid:          map[string]decimal.Decimal{"A": dec("1200")},
		Deposited:     map[string]decimal.Decimal{"B": dec("300")},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	b, ok := summary.Record("B")
	if !ok {
		t.Fatal("missing record for B")
	}
	if !b.Balance.IsZero() {
		t.Errorf("B balance = %s, want 0", b.Balance)
	}

	assertInstructions(t, summary.Instructions, []Instruction{
		{From: "C", To: "A", Amount: dec("300")},
		{From: "D", To: "A", Amount: dec("300")},
	})

	// the deposit sits in the pool, so the balances alone do not reconcile
	if summary.Balanced {
		t.Error("expected unbalanced summary")
	}
	if !summary.Residual.Equal(dec("-300")) {
		t.Errorf("residual = %s, want -300", summary.Residual)
	}
}

func TestSettleRoundsAndPrunes(t *testing.T) {
	records, _, err := Calculate(Input{
		Participants:  people("A", "B", "C"),
		TotalExpenses: dec("100"),
		Paid:          map[string]decimal.Decimal{"A": dec("100")},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !VerifyBalances(records) {
		t.Fatalf("expected balanced records, residual %s", Residual(records))
	}

	instructions, err := Settle(records)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	assertInstructions(t, instructions, []Instruction{
		{From: "B", To: "A", Amount: dec("33.33")},
		{From: "C", To: "A", Amount: dec("33.33")},
	})
}

func TestSettleEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		balances   []string
		want       []Instruction
		unbalanced bool
	}{
		{
			name:     "all settled",
			balances: []string{"0", "0.005", "-0.01"},
			want:     []Instruction{},
		},
		{
			name:     "equal remainders close in one step",
			balances: []string{"-100", "100"},
			want:     []Instruction{{From: "P1", To: "P0", Amount: dec("100")}},
		},
		{
			name:     "equal creditors keep participant order",
			balances: []string{"-50", "-50", "100"},
			want: []Instruction{
				{From: "P2", To: "P0", Amount: dec("50")},
				{From: "P2", To: "P1", Amount: dec("50")},
			},
		},
		{
			name:       "only debtors",
			balances:   []string{"50", "0", "0"},
			want:       []Instruction{},
			unbalanced: true,
		},
		{
			name:       "more owed than owing",
			balances:   []string{"-100", "60"},
			want:       []Instruction{{From: "P1", To: "P0", Amount: dec("60")}},
			unbalanced: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]BalanceRecord, 0, len(tt.balances))
			for i, b := range tt.balances {
				records = append(records, BalanceRecord{ParticipantID: "P" + strconv.Itoa(i), Balance: dec(b)})
			}

			got, err := Settle(records)
			if tt.unbalanced != errors.Is(err, ErrUnbalanced) {
				t.Fatalf("unexpected error state: %v", err)
			}
			if !tt.unbalanced && err != nil {
				t.Fatalf("Settle: %v", err)
			}
			assertInstructions(t, got, tt.want)
		})
	}
}

func TestSettleIsDeterministic(t *testing.T) {
	records := []BalanceRecord{
		{ParticipantID: "A", Balance: dec("-250")},
		{ParticipantID: "B", Balance: dec("125")},
		{ParticipantID: "C", Balance: dec("-125")},
		{ParticipantID: "D", Balance: dec("125")},
		{ParticipantID: "E", Balance: dec("125")},
	}

	first, err := Settle(records)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	for range 5 {
		again, err := Settle(records)
		if err != nil {
			t.Fatalf("Settle: %v", err)
		}
		assertInstructions(t, again, first)
	}
}

func TestSettlementClearsBalances(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for round := range 200 {
		n := 1 + r.IntN(7)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = "P" + strconv.Itoa(i)
		}
		participants := people(ids...)

		// amounts in multiples of n cents keep the share exact
		var expenses []ExpenseEntry
		for range r.IntN(10) {
			expenses = append(expenses, ExpenseEntry{
				PaidBy: ids[r.IntN(n)],
				Amount: decimal.New(int64(r.IntN(50000)*n), -2),
			})
		}

		totals, err := Aggregate(participants, expenses, nil)
		if err != nil {
			t.Fatalf("round %d: Aggregate: %v", round, err)
		}
		records, _, err := Calculate(Input{
			Participants:  participants,
			TotalExpenses: totals.TotalExpenses,
			Paid:          totals.PaidBy,
		})
		if err != nil {
			t.Fatalf("round %d: Calculate: %v", round, err)
		}
		if !VerifyBalances(records) {
			t.Fatalf("round %d: residual %s", round, Residual(records))
		}

		instructions, err := Settle(records)
		if err != nil {
			t.Fatalf("round %d: Settle: %v", round, err)
		}
		if len(instructions) > n-1 && n > 0 {
			t.Errorf("round %d: %d instructions for %d participants", round, len(instructions), n)
		}

		remaining := make(map[string]decimal.Decimal, n)
		for _, rec := range records {
			remaining[rec.ParticipantID] = rec.Balance
		}
		for _, in := range instructions {
			if !in.Amount.GreaterThan(Epsilon()) {
				t.Errorf("round %d: instruction below epsilon: %v", round, in)
			}
			remaining[in.From] = remaining[in.From].Sub(in.Amount)
			remaining[in.To] = remaining[in.To].Add(in.Amount)
		}
		for id, b := range remaining {
			if b.Abs().GreaterThan(Epsilon()) {
				t.Errorf("round %d: %s left with %s", round, id, b)
			}
		}
	}
}

func TestInvalidInput(t *testing.T) {
	participants := people("A", "B")

	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "no participants",
			run: func() error {
				_, _, err := Calculate(Input{TotalExpenses: dec("10")})
				return err
			},
		},
		{
			name: "duplicate participant",
			run: func() error {
				_, err := Aggregate(people("A", "A"), nil, nil)
				return err
			},
		},
		{
			name: "negative expense",
			run: func() error {
				_, err := Aggregate(participants, []ExpenseEntry{{PaidBy: "A", Amount: dec("-1")}}, nil)
				return err
			},
		},
		{
			name: "unknown payer",
			run: func() error {
				_, err := Aggregate(participants, []ExpenseEntry{{PaidBy: "Z", Amount: dec("1")}}, nil)
				return err
			},
		},
		{
			name: "negative contribution",
			run: func() error {
				_, err := Aggregate(participants, nil, []decimal.Decimal{dec("-5")})
				return err
			},
		},
		{
			name: "unknown depositor",
			run: func() error {
				_, err := SumDeposits(participants, []DepositEntry{{DepositedBy: "Z", Amount: dec("1")}})
				return err
			},
		},
		{
			name: "negative deposit in input",
			run: func() error {
				_, _, err := Calculate(Input{
					Participants: participants,
					Deposited:    map[string]decimal.Decimal{"A": dec("-1")},
				})
				return err
			},
		},
		{
			name: "paid by unknown participant in input",
			run: func() error {
				_, _, err := Calculate(Input{
					Participants: participants,
					Paid:         map[string]decimal.Decimal{"Z": dec("1")},
				})
				return err
			},
		},
		{
			name: "NaN amount",
			run: func() error {
				_, err := FromFloat(math.NaN())
				return err
			},
		},
		{
			name: "infinite amount",
			run: func() error {
				_, err := FromFloat(math.Inf(1))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSumDepositsIncludesEveryone(t *testing.T) {
	sums, err := SumDeposits(people("A", "B", "C"), []DepositEntry{
		{DepositedBy: "B", Amount: dec("100")},
		{DepositedBy: "B", Amount: dec("50.5")},
	})
	if err != nil {
		t.Fatalf("SumDeposits: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d entries, want 3", len(sums))
	}
	if !sums["B"].Equal(dec("150.5")) {
		t.Errorf("B deposited %s, want 150.5", sums["B"])
	}
	if !sums["A"].IsZero() {
		t.Errorf("A deposited %s, want 0", sums["A"])
	}
}

func TestEpsilonIsOneCent(t *testing.T) {
	if got := Epsilon(); !got.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("Epsilon() = %s, want 0.01", got)
	}
	// the value returned is a copy, shifting it leaves the tolerance intact
	shifted := Epsilon().Add(decimal.NewFromInt(1))
	if shifted.Equal(Epsilon()) || !Epsilon().Equal(decimal.New(1, -2)) {
		t.Errorf("tolerance changed to %s", Epsilon())
	}
}
