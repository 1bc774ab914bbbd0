package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newDraft(agg AggregateType, aggID string, evt EventType, partition string, payload any) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partition,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    time.Now(),
	}
}

// NewTransactionPostedEvent creates the standard wallet event for a new ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	return newDraft(AggregateWallet, tx.WalletID.String(), EventTransactionPosted, tx.UserID.String(), tx)
}

// NewTransactionFinalizedEvent is emitted when a pending entry reaches a terminal status.
func NewTransactionFinalizedEvent(tx *Transaction) OutboxDraft {
	return newDraft(AggregateWallet, tx.WalletID.String(), EventTransactionFinalized, tx.UserID.String(), tx)
}

// NewFundsMovedEvent records a balance <-> locked move that is not itself a ledger entry.
func NewFundsMovedEvent(w *Wallet, locked bool, amount decimal.Decimal, reference string) OutboxDraft {
	evt := EventFundsLocked
	if !locked {
		evt = EventFundsUnlocked
	}
	return newDraft(AggregateWallet, w.ID.String(), evt, w.UserID.String(), map[string]any{
		"user_id":        w.UserID.String(),
		"amount":         amount,
		"balance":        w.Balance,
		"locked_balance": w.LockedBalance,
		"reference":      reference,
	})
}

// NewRequestStatusChangedEvent records a payment-request state transition.
func NewRequestStatusChangedEvent(req *PaymentRequest, from RequestStatus) OutboxDraft {
	return newDraft(AggregatePaymentRequest, req.ID, EventRequestStatusChanged, req.UserID.String(), map[string]any{
		"request_id": req.ID,
		"user_id":    req.UserID.String(),
		"type":       req.Type,
		"method":     req.Method,
		"amount":     req.Amount,
		"from":       from,
		"to":         req.Status,
	})
}

// NewBonusGrantedEvent records a bonus credit.
func NewBonusGrantedEvent(userID uuid.UUID, kind BonusKind, amount decimal.Decimal, txID string) OutboxDraft {
	return newDraft(AggregateBonus, userID.String(), EventBonusGranted, userID.String(), map[string]any{
		"user_id":        userID.String(),
		"kind":           kind,
		"amount":         amount,
		"transaction_id": txID,
	})
}
