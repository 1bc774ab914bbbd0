package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/service"
)

// WebhookHandler handles payment channel settlement callbacks.
type WebhookHandler struct {
	requests *service.PaymentRequestService
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(requests *service.PaymentRequestService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{requests: requests, logger: logger}
}

// HandleSettlement handles POST /webhooks/settlement.
// The signature covers the raw body, so it is read before any decoding.
func (h *WebhookHandler) HandleSettlement(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		RespondError(w, domain.ErrValidation("unreadable body"))
		return
	}

	sigHeader := r.Header.Get(provider.SettlementHeader)
	if sigHeader == "" {
		h.logger.Warn("missing settlement signature header")
		RespondError(w, domain.ErrUnauthorized("missing "+provider.SettlementHeader+" header"))
		return
	}

	if err := h.requests.HandleSettlementWebhook(r.Context(), body, sigHeader); err != nil {
		h.logger.Error("process settlement webhook", "error", err, "request_id", GetRequestID(r.Context()))
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
