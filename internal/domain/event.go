package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventTransactionPosted    EventType = "wallet.transaction.posted"
	EventTransactionFinalized EventType = "wallet.transaction.finalized"
	EventFundsLocked          EventType = "wallet.funds.locked"
	EventFundsUnlocked        EventType = "wallet.funds.unlocked"
	EventRequestStatusChanged EventType = "payment_request.status_changed"
	EventBonusGranted         EventType = "bonus.granted"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWallet         AggregateType = "wallet"
	AggregatePaymentRequest AggregateType = "payment_request"
	AggregateBonus          AggregateType = "bonus"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRecord is a stored draft with its sequence id.
type OutboxRecord struct {
	SeqID int64
	OutboxDraft
}
