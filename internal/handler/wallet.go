package handler

import (
	"net/http"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/service"
)

// WalletHandler handles wallet balance, ledger history and stats endpoints.
type WalletHandler struct {
	wallets *service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetBalance handles GET /wallet.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	bal, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, bal)
}

// GetTransactions handles GET /wallet/transactions?type=&limit=.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
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

	txType := domain.TransactionType(r.URL.Query().Get("type"))
	txs, err := h.wallets.Transactions(r.Context(), userID, txType, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// GetStats handles GET /stats/me.
func (h *WalletHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	stats, err := h.wallets.GetUserStats(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}
