package handler

import (
	"net/http"
	"strings"

	"github.com/billbatista/rateio/ledger"
	"github.com/billbatista/rateio/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type expenseRequest struct {
	Title    string          `json:"title"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	PaidBy   uuid.UUID       `json:"paid_by"`
	Date     string          `json:"date"`
	Notes    string          `json:"notes"`
}

func (req expenseRequest) input() (ledger.ExpenseInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.ExpenseInput{}, err
	}
	return ledger.ExpenseInput{
		Title:    req.Title,
		Category: req.Category,
		Amount:   req.Amount,
		PaidBy:   req.PaidBy,
		Date:     date,
		Notes:    req.Notes,
	}, nil
}

type contributionRequest struct {
	ContributorName string          `json:"contributor_name"`
	Relationship    string          `json:"relationship"`
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date"`
	Notes           string          `json:"notes"`
}

func (req contributionRequest) input() (ledger.ContributionInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.ContributionInput{}, err
	}
	return ledger.ContributionInput{
		ContributorName: req.ContributorName,
		Relationship:    req.Relationship,
		Amount:          req.Amount,
		Date:            date,
		Notes:           req.Notes,
	}, nil
}

type depositRequest struct {
	DepositedBy uuid.UUID       `json:"deposited_by"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Notes       string          `json:"notes"`
}

func (req depositRequest) input() (ledger.DepositInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.DepositInput{}, err
	}
	return ledger.DepositInput{
		DepositedBy: req.DepositedBy,
		Amount:      req.Amount,
		Date:        date,
		Notes:       req.Notes,
	}, nil
}

// ledgerID reads the ledger from the URL. RequireLedgerAccess has already validated it.
func ledgerID(r *http.Request) uuid.UUID {
	id, _ := uuid.Parse(chi.URLParam(r, "ledgerID"))
	return id
}

func actor(r *http.Request) uuid.UUID {
	id, _ := middleware.GetUserID(r.Context())
	return id
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.Ledgers.Ledger(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "fetch ledger")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.Ledgers.Participants(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "list participants")
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Ledgers.Expenses(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "list expenses")
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := expenses[:0]
		for _, e := range expenses {
			if strings.EqualFold(e.Category, category) {
				filtered = append(filtered, e)
			}
		}
		expenses = filtered
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	e, err := h.Ledgers.Expense(r.Context(), ledgerID(r), id)
	if err != nil {
		serviceError(w, err, "fetch expense")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) categorySummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Ledgers.CategorySummary(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "summarize categories")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		serviceError(w, err, "create expense")
		return
	}
	e, err := h.Ledgers.CreateExpense(r.Context(), ledgerID(r), actor(r), in)
	if err != nil {
		serviceError(w, err, "create expense")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		serviceError(w, err, "update expense")
		return
	}
	e, err := h.Ledgers.UpdateExpense(r.Context(), ledgerID(r), id, actor(r), in)
	if err != nil {
		serviceError(w, err, "update expense")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Ledgers.DeleteExpense(r.Context(), ledgerID(r), id, actor(r)); err != nil {
		serviceError(w, err, "delete expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listContributions(w http.ResponseWriter, r *http.Request) {
	contributions, err := h.Ledgers.Contributions(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "list contributions")
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

func (h *Handler) createContribution(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		serviceError(w, err, "create contribution")
		return
	}
	c, err := h.Ledgers.CreateContribution(r.Context(), ledgerID(r), actor(r), in)
	if err != nil {
		serviceError(w, err, "create contribution")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) updateContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req contributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		serviceError(w, err, "update contribution")
		return
	}
	c, err := h.Ledgers.UpdateContribution(r.Context(), ledgerID(r), id, actor(r), in)
	if err != nil {
		serviceError(w, err, "update contribution")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Ledgers.DeleteContribution(r.Context(), ledgerID(r), id, actor(r)); err != nil {
		serviceError(w, err, "delete contribution")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.Ledgers.Deposits(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "list deposits")
		return
	}
	writeJSON(w, http.StatusOK, deposits)
}

func (h *Handler) createDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		serviceError(w, err, "create deposit")
		return
	}
	d, err := h.Ledgers.CreateDeposit(r.Context(), ledgerID(r), actor(r), in)
	if err != nil {
		serviceError(w, err, "create deposit")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) updateDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		serviceError(w, err, "update deposit")
		return
	}
	d, err := h.Ledgers.UpdateDeposit(r.Context(), ledgerID(r), id, actor(r), in)
	if err != nil {
		serviceError(w, err, "update deposit")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) deleteDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Ledgers.DeleteDeposit(r.Context(), ledgerID(r), id, actor(r)); err != nil {
		serviceError(w, err, "delete deposit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
