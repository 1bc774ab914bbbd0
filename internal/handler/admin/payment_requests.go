package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/attaboy/walletcore/internal/auth"
	"github.com/attaboy/walletcore/internal/handler"
	"github.com/attaboy/walletcore/internal/service"
)

// PaymentRequestAdminHandler is the review queue for payment requests.
type PaymentRequestAdminHandler struct {
	svc *service.PaymentRequestService
}

// NewPaymentRequestAdminHandler creates a new PaymentRequestAdminHandler.
func NewPaymentRequestAdminHandler(svc *service.PaymentRequestService) *PaymentRequestAdminHandler {
	return &PaymentRequestAdminHandler{svc: svc}
}

// ListPending handles GET /admin/payment-requests/pending.
func (h *PaymentRequestAdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, err := handler.QueryLimit(r, 50, 500)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	reqs, err := h.svc.ListPending(r.Context(), limit)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

// Get handles GET /admin/payment-requests/{id}.
func (h *PaymentRequestAdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

type approveInput struct {
	Note string `json:"note" validate:"max=500"`
}

// Approve handles POST /admin/payment-requests/{id}/approve. The body is optional.
func (h *PaymentRequestAdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var in approveInput
	if r.ContentLength != 0 {
		if err := handler.DecodeAndValidate(r, &in); err != nil {
			handler.RespondError(w, err)
			return
		}
	}

	req, err := h.svc.Approve(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()), in.Note)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

type rejectInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Reject handles POST /admin/payment-requests/{id}/reject.
func (h *PaymentRequestAdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var in rejectInput
	if err := handler.DecodeAndValidate(r, &in); err != nil {
		handler.RespondError(w, err)
		return
	}

	req, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()), in.Reason)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

// Cancel handles POST /admin/payment-requests/{id}/cancel.
func (h *PaymentRequestAdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

// Settle handles POST /admin/payment-requests/{id}/settle: staff confirm a
// processing withdrawal was paid out by hand.
func (h *PaymentRequestAdminHandler) Settle(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.SettleWithdrawal(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

type failInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Fail handles POST /admin/payment-requests/{id}/fail. The locked funds go
// back to the user's balance. The body is optional.
func (h *PaymentRequestAdminHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var in failInput
	if r.ContentLength != 0 {
		if err := handler.DecodeAndValidate(r, &in); err != nil {
			handler.RespondError(w, err)
			return
		}
	}

	req, err := h.svc.FailWithdrawal(r.Context(), chi.URLParam(r, "id"), in.Reason, auth.ActorFromContext(r.Context()))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}
