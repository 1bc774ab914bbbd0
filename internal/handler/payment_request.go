package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/attaboy/walletcore/internal/auth"
	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/service"
)

// PaymentRequestHandler serves a player's own payment requests.
type PaymentRequestHandler struct {
	svc *service.PaymentRequestService
}

// NewPaymentRequestHandler creates a new PaymentRequestHandler.
func NewPaymentRequestHandler(svc *service.PaymentRequestService) *PaymentRequestHandler {
	return &PaymentRequestHandler{svc: svc}
}

type createPaymentRequestInput struct {
	Type         string      `json:"type" validate:"required,request_type"`
	Method       string      `json:"method" validate:"required,payment_method"`
	Amount       json.Number `json:"amount" validate:"required,money"`
	ExternalTxID string      `json:"external_tx_id" validate:"required,max=64"`
	SenderNumber string      `json:"sender_number" validate:"required,max=64"`
	ProofRef     *string     `json:"proof_ref,omitempty" validate:"omitempty,max=512"`
	Note         string      `json:"note,omitempty" validate:"max=500"`
}

// Create handles POST /payment-requests.
func (h *PaymentRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in createPaymentRequestInput
	if err := DecodeAndValidate(r, &in); err != nil {
		RespondError(w, err)
		return
	}

	req, err := h.svc.Create(r.Context(), domain.CreatePaymentRequestParams{
		UserID:       userID,
		Type:         domain.RequestType(in.Type),
		Method:       domain.PaymentMethod(in.Method),
		Amount:       ParseMoney(in.Amount.String()),
		ExternalTxID: in.ExternalTxID,
		SenderNumber: in.SenderNumber,
		ProofRef:     in.ProofRef,
		Note:         in.Note,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, req)
}

// List handles GET /payment-requests.
func (h *PaymentRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, err := QueryLimit(r, 20, 100)
	if err != nil {
		RespondError(w, err)
		return
	}

	reqs, err := h.svc.ListForUser(r.Context(), userID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

// Get handles GET /payment-requests/{id}.
func (h *PaymentRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	req, err := h.svc.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

// Cancel handles POST /payment-requests/{id}/cancel.
func (h *PaymentRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	req, err := h.svc.CancelForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

// userIDFromContext returns the authenticated player's id.
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	id := auth.SubjectFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	return id, nil
}
