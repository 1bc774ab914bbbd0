package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/service"
)

// CheckoutHandler starts channel checkouts and quotes exchange rates.
type CheckoutHandler struct {
	requests *service.PaymentRequestService
	gateway  *provider.Gateway
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(requests *service.PaymentRequestService, gateway *provider.Gateway) *CheckoutHandler {
	return &CheckoutHandler{requests: requests, gateway: gateway}
}

type checkoutInput struct {
	Method string      `json:"method" validate:"required,payment_method"`
	Amount json.Number `json:"amount" validate:"required,money"`
}

// Checkout handles POST /deposits/checkout.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in checkoutInput
	if err := DecodeAndValidate(r, &in); err != nil {
		RespondError(w, err)
		return
	}

	co, err := h.requests.Checkout(r.Context(), userID, domain.PaymentMethod(in.Method), ParseMoney(in.Amount.String()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, co)
}

// GetRate handles GET /rates/{asset}.
func (h *CheckoutHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToLower(chi.URLParam(r, "asset"))
	if !provider.Supported(asset) {
		RespondError(w, domain.ErrNotFound("rate", asset))
		return
	}

	rate := h.gateway.GetExchangeRate(r.Context(), asset)
	RespondJSON(w, http.StatusOK, map[string]any{
		"asset":    asset,
		"currency": "BDT",
		"rate":     rate,
	})
}
