package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/billbatista/rateio/eventlogger"
	"github.com/billbatista/rateio/export"
	"github.com/billbatista/rateio/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type budgetRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) getBudgets(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledgers.Budgets(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "load budgets")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) setOverallBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Ledgers.SetOverallBudget(r.Context(), ledgerID(r), actor(r), req.Amount); err != nil {
		serviceError(w, err, "set overall budget")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) setCategoryBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.Ledgers.SetCategoryBudget(r.Context(), ledgerID(r), actor(r), chi.URLParam(r, "category"), req.Amount)
	if err != nil {
		serviceError(w, err, "set category budget")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) deleteCategoryBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledgers.DeleteCategoryBudget(r.Context(), ledgerID(r), actor(r), chi.URLParam(r, "category")); err != nil {
		serviceError(w, err, "delete category budget")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledgers.Summary(r.Context(), ledgerID(r))
	if err != nil {
		serviceError(w, err, "compute settlement")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) getParticipantView(w http.ResponseWriter, r *http.Request) {
	participantID, ok := idParam(w, r, "participantID")
	if !ok {
		return
	}
	view, err := h.Ledgers.ParticipantView(r.Context(), ledgerID(r), participantID)
	if err != nil {
		serviceError(w, err, "compute participant view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) closeLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.Ledgers.Close(r.Context(), ledgerID(r), actor(r))
	if err != nil {
		serviceError(w, err, "close ledger")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) reopenLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.Ledgers.Reopen(r.Context(), ledgerID(r), actor(r))
	if err != nil {
		serviceError(w, err, "reopen ledger")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledgerID(r)
	kind := strings.ToLower(chi.URLParam(r, "kind"))

	// render into a buffer so a failure can still be reported with a proper status
	var buf bytes.Buffer
	switch kind {
	case "expenses":
		snap, err := h.Ledgers.Snapshot(ctx, id)
		if err != nil {
			serviceError(w, err, "export expenses")
			return
		}
		if err := export.Expenses(&buf, snap.Participants, snap.Expenses); err != nil {
			serviceError(w, err, "export expenses")
			return
		}
	case "contributions":
		contributions, err := h.Ledgers.Contributions(ctx, id)
		if err != nil {
			serviceError(w, err, "export contributions")
			return
		}
		if err := export.Contributions(&buf, contributions); err != nil {
			serviceError(w, err, "export contributions")
			return
		}
	case "settlement":
		summary, err := h.Ledgers.Summary(ctx, id)
		if err != nil {
			serviceError(w, err, "export settlement")
			return
		}
		if err := export.Settlement(&buf, summary); err != nil {
			serviceError(w, err, "export settlement")
			return
		}
	default:
		writeError(w, http.StatusNotFound, "unknown export "+kind)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%s.csv", kind, id)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// activity lists the audit events recorded for the ledger, optionally narrowed to one type.
func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusNotImplemented, "activity log is not available")
		return
	}

	types := ledger.EventTypes
	if t := r.URL.Query().Get("type"); t != "" {
		types = []string{t}
	}

	id := ledgerID(r)
	events := []eventlogger.Event{}
	for _, t := range types {
		found, err := h.Events.GetByType(r.Context(), t)
		if err != nil {
			serviceError(w, err, "query activity")
			return
		}
		events = append(events, ledger.ActivityFilter(found, id)...)
	}
	eventlogger.SortByTime(events)

	writeJSON(w, http.StatusOK, events)
}
