package ledger

import (
	"time"

	"github.com/billbatista/rateio/eventlogger"
	"github.com/google/uuid"
)

const (
	EventExpenseCreated      = "expense.created"
	EventExpenseUpdated      = "expense.updated"
	EventExpenseDeleted      = "expense.deleted"
	EventContributionCreated = "contribution.created"
	EventContributionUpdated = "contribution.updated"
	EventContributionDeleted = "contribution.deleted"
	EventDepositCreated      = "deposit.created"
	EventDepositUpdated      = "deposit.updated"
	EventDepositDeleted      = "deposit.deleted"
	EventBudgetUpdated       = "budget.updated"
	EventBudgetDeleted       = "budget.deleted"
	EventLedgerClosed        = "ledger.closed"
	EventLedgerReopened      = "ledger.reopened"
	EventIntegrityChecked    = "ledger.integrity_checked"
)

// EventTypes lists every event the service emits.
var EventTypes = []string{
	EventExpenseCreated, EventExpenseUpdated, EventExpenseDeleted,
	EventContributionCreated, EventContributionUpdated, EventContributionDeleted,
	EventDepositCreated, EventDepositUpdated, EventDepositDeleted,
	EventBudgetUpdated, EventBudgetDeleted,
	EventLedgerClosed, EventLedgerReopened, EventIntegrityChecked,
}

// MetadataLedgerID is the metadata key carrying the ledger an event belongs to.
const MetadataLedgerID = "ledger_id"

type EntryChangedEvent struct {
	EntryID  string `json:"entry_id"`
	Amount   string `json:"amount,omitempty"`
	Category string `json:"category,omitempty"`
	// Participant is the payer or depositor, empty for contributions.
	Participant string `json:"participant,omitempty"`
}

type BudgetChangedEvent struct {
	Category string `json:"category"`
	Amount   string `json:"amount,omitempty"`
}

type LedgerStatusEvent struct {
	Residual string    `json:"residual"`
	Balanced bool      `json:"balanced"`
	At       time.Time `json:"at"`
}

// EventSink receives audit events. eventlogger.Worker satisfies it.
type EventSink interface {
	Log(event eventlogger.Event)
}

func newLedgerEvent(eventType string, ledgerID, actor uuid.UUID, data any) eventlogger.Event {
	metadata := map[string]string{MetadataLedgerID: ledgerID.String()}
	if actor != uuid.Nil {
		metadata["actor_id"] = actor.String()
	}
	return eventlogger.NewEvent(
		eventlogger.WithType(eventType),
		eventlogger.WithData(data),
		eventlogger.WithMetadata(metadata),
	)
}
