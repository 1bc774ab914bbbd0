package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates all wallet transaction types.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxBet        TransactionType = "bet"
	TxWin        TransactionType = "win"
	TxBonus      TransactionType = "bonus"
	TxRefund     TransactionType = "refund"
	TxCommission TransactionType = "commission"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	_, ok := transactionPrefixes[t]
	return ok
}

// IsDebit reports whether movements of this type reduce the available balance.
func (t TransactionType) IsDebit() bool {
	return t == TxBet || t == TxWithdrawal
}

var transactionPrefixes = map[TransactionType]string{
	TxDeposit:    "DEP",
	TxWithdrawal: "WDR",
	TxBet:        "BET",
	TxWin:        "WIN",
	TxBonus:      "BONUS",
	TxRefund:     "RFD",
	TxCommission: "COM",
}

// IDPrefix returns the id prefix used for transactions of this type.
func (t TransactionType) IDPrefix() string {
	if p, ok := transactionPrefixes[t]; ok {
		return p
	}
	return "TX"
}

// TransactionStatus tracks the single pending -> terminal transition.
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further status change is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxStatusCompleted || s == TxStatusFailed || s == TxStatusCancelled
}

// Metadata is the free-form annotation map stored with a transaction.
type Metadata map[string]any

// Merge returns a new map with extra's keys written over m's.
func (m Metadata) Merge(extra Metadata) Metadata {
	out := make(Metadata, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Transaction is one append-only ledger entry.
type Transaction struct {
	ID            string            `json:"id"`
	WalletID      uuid.UUID         `json:"wallet_id"`
	UserID        uuid.UUID         `json:"user_id"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	PaymentMethod *PaymentMethod    `json:"payment_method,omitempty"`
	ProviderRef   *string           `json:"provider_ref,omitempty"`
	Metadata      Metadata          `json:"metadata"`
	Description   string            `json:"description"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Balanced reports whether balance_after = balance_before + amount.
func (t *Transaction) Balanced() bool {
	return t.BalanceBefore.Add(t.Amount).Equal(t.BalanceAfter)
}

// TransactionFilter selects ledger entries. Zero-valued fields are ignored.
type TransactionFilter struct {
	ID          string
	WalletID    *uuid.UUID
	Type        TransactionType
	Status      TransactionStatus
	ProviderRef string
	Limit       int
	Offset      int
}

// Matches reports whether tx satisfies every set field of f.
func (f TransactionFilter) Matches(tx *Transaction) bool {
	if f.ID != "" && tx.ID != f.ID {
		return false
	}
	if f.WalletID != nil && tx.WalletID != *f.WalletID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.ProviderRef != "" && (tx.ProviderRef == nil || *tx.ProviderRef != f.ProviderRef) {
		return false
	}
	return true
}
