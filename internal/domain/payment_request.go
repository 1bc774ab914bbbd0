package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestType distinguishes deposit claims from withdrawal claims.
type RequestType string

const (
	RequestDeposit    RequestType = "deposit"
	RequestWithdrawal RequestType = "withdrawal"
)

// TransactionType returns the ledger type paired with a request of this type.
func (t RequestType) TransactionType() TransactionType {
	if t == RequestWithdrawal {
		return TxWithdrawal
	}
	return TxDeposit
}

// PaymentMethod identifies the external channel a request moves money through.
type PaymentMethod string

const (
	MethodBkash  PaymentMethod = "bkash"
	MethodNagad  PaymentMethod = "nagad"
	MethodRocket PaymentMethod = "rocket"
	MethodUSDT   PaymentMethod = "usdt"
	MethodBank   PaymentMethod = "bank"
)

// AllPaymentMethods lists every supported method.
func AllPaymentMethods() []PaymentMethod {
	return []PaymentMethod{MethodBkash, MethodNagad, MethodRocket, MethodUSDT, MethodBank}
}

// IsMobileMoney reports whether the method identifies accounts by mobile number.
func (m PaymentMethod) IsMobileMoney() bool {
	return m == MethodBkash || m == MethodNagad || m == MethodRocket
}

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	for _, known := range AllPaymentMethods() {
		if m == known {
			return true
		}
	}
	return false
}

// RequestStatus is a state in the payment-request lifecycle.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestApproved   RequestStatus = "approved"
	RequestRejected   RequestStatus = "rejected"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

// requestTransitions is the allowed edge set of the state machine.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:    {RequestApproved, RequestRejected, RequestCancelled},
	RequestApproved:   {RequestProcessing, RequestCompleted, RequestCancelled},
	RequestProcessing: {RequestCompleted, RequestRejected, RequestCancelled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the request can no longer change state.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestRejected || s == RequestCompleted || s == RequestCancelled
}

// AdminNotes records who moved a request through review, and when.
type AdminNotes struct {
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedBy      string     `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ProcessedBy     string     `json:"processedBy,omitempty"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	Note            string     `json:"note,omitempty"`
}

// PaymentRequest is a user-submitted deposit or withdrawal claim awaiting review.
type PaymentRequest struct {
	ID                 string          `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Type               RequestType     `json:"type"`
	Method             PaymentMethod   `json:"method"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	SenderNumber       string          `json:"sender_number"`
	ReceiverNumber     string          `json:"receiver_number"`
	ExternalTxID       string          `json:"external_tx_id"`
	ProofRef           *string         `json:"proof_ref,omitempty"`
	Status             RequestStatus   `json:"status"`
	AdminNotes         AdminNotes      `json:"admin_notes"`
	UserNote           string          `json:"user_note,omitempty"`
	DestinationAccount string          `json:"destination_account,omitempty"`
	TransactionID      string          `json:"transaction_id"`
	ProviderRef        *string         `json:"provider_ref,omitempty"`
	DispatchedAt       *time.Time      `json:"dispatched_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PayoutClaimed reports whether a payout has been handed, or is being handed,
// to the provider. A claimed request can only be settled or failed.
func (r *PaymentRequest) PayoutClaimed() bool {
	return r.ProviderRef != nil || r.DispatchedAt != nil
}

// CreatePaymentRequestParams is the input to the request-creation operation.
type CreatePaymentRequestParams struct {
	UserID       uuid.UUID
	Type         RequestType
	Method       PaymentMethod
	Amount       decimal.Decimal
	ExternalTxID string
	SenderNumber string
	ProofRef     *string
	Note         string
}
