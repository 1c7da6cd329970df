package escrow

import "time"

// EventType labels one observable state transition.
type EventType string

const (
	EventDepositCreated       EventType = "deposit_created"
	EventDepositClaimed       EventType = "deposit_claimed"
	EventDepositRefunded      EventType = "deposit_refunded"
	EventSignerUpdated        EventType = "signer_updated"
	EventFeeConfigUpdated     EventType = "fee_config_updated"
	EventOwnershipTransferred EventType = "ownership_transferred"
	EventAccountFunded        EventType = "account_funded"
)

// Event is an indexer-facing record of a successful state transition.
// Events are written in the same transaction as the transition itself, so
// each transition produces exactly one event and failed calls produce none.
type Event struct {
	ID        string
	Type      EventType
	DepositID *uint64
	Payload   map[string]any
	CreatedAt time.Time
}
