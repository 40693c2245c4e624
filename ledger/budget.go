package ledger

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

type BudgetStatus string

const (
	BudgetGreen BudgetStatus = "green"
	BudgetAmber BudgetStatus = "amber"
	BudgetRed   BudgetStatus = "red"
)

var (
	amberThreshold = decimal.NewFromInt(70)
	redThreshold   = decimal.NewFromInt(90)
	hundred        = decimal.NewFromInt(100)
)

// StatusFor maps the share of a budget already spent, in percent, to its traffic light.
func StatusFor(percentUsed decimal.Decimal) BudgetStatus {
	switch {
	case percentUsed.GreaterThan(redThreshold):
		return BudgetRed
	case percentUsed.GreaterThanOrEqual(amberThreshold):
		return BudgetAmber
	default:
		return BudgetGreen
	}
}

type BudgetLine struct {
	Category    string          `json:"category,omitempty"`
	Budget      decimal.Decimal `json:"budget"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	PercentUsed decimal.Decimal `json:"percent_used"`
	Status      BudgetStatus    `json:"status"`
}

type BudgetSummary struct {
	Overall    BudgetLine   `json:"overall"`
	Categories []BudgetLine `json:"categories"`
}

func newBudgetLine(category string, budget, spent decimal.Decimal) BudgetLine {
	percent := decimal.Zero
	if budget.IsPositive() {
		percent = spent.Div(budget).Mul(hundred).Round(2)
	}
	return BudgetLine{
		Category:    category,
		Budget:      budget,
		Spent:       spent,
		Remaining:   budget.Sub(spent),
		PercentUsed: percent,
		Status:      StatusFor(percent),
	}
}

// SummarizeBudgets compares spending with the overall budget and with every category budget.
// Categories with spending but no budget are listed with a zero budget.
func SummarizeBudgets(overall decimal.Decimal, budgets []CategoryBudget, expenses []Expense) BudgetSummary {
	spent := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, e := range expenses {
		spent[e.Category] = spent[e.Category].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	lines := make([]BudgetLine, 0, len(budgets))
	seen := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		seen[b.Category] = true
		lines = append(lines, newBudgetLine(b.Category, b.Amount, spent[b.Category]))
	}
	for category, amount := range spent {
		if !seen[category] {
			lines = append(lines, newBudgetLine(category, decimal.Zero, amount))
		}
	}
	slices.SortFunc(lines, func(a, b BudgetLine) int {
		return cmp.Compare(a.Category, b.Category)
	})

	return BudgetSummary{
		Overall:    newBudgetLine("", overall, total),
		Categories: lines,
	}
}

type CategoryTotal struct {
	Category   string          `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

// SummarizeCategories groups expenses by category, largest total first.
func SummarizeCategories(expenses []Expense) []CategoryTotal {
	byCategory := make(map[string]*CategoryTotal)
	grand := decimal.Zero
	for _, e := range expenses {
		ct, ok := byCategory[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category}
			byCategory[e.Category] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
		grand = grand.Add(e.Amount)
	}

	totals := make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		if grand.IsPositive() {
			ct.Percentage = ct.Total.Div(grand).Mul(hundred).Round(2)
		}
		totals = append(totals, *ct)
	}
	slices.SortFunc(totals, func(a, b CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})

	return totals
}
