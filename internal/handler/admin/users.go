package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/handler"
	"github.com/attaboy/walletcore/internal/service"
)

// UserAdminHandler exposes per-user stats and ledger audits.
type UserAdminHandler struct {
	wallets *service.WalletService
}

// NewUserAdminHandler creates a new UserAdminHandler.
func NewUserAdminHandler(wallets *service.WalletService) *UserAdminHandler {
	return &UserAdminHandler{wallets: wallets}
}

// Stats handles GET /admin/users/{id}/stats.
func (h *UserAdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid user id"))
		return
	}

	stats, err := h.wallets.GetUserStats(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, stats)
}

type auditResponse struct {
	UserID           uuid.UUID       `json:"user_id"`
	TransactionCount int             `json:"transaction_count"`
	Wallet           domain.Wallet   `json:"wallet"`
	AllPassed        bool            `json:"all_passed"`
	Invariants       []invariantView `json:"invariants"`
}

type invariantView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Audit handles GET /admin/wallets/{userID}/audit.
func (h *UserAdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid user id"))
		return
	}

	res, err := h.wallets.Audit(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	resp := auditResponse{
		UserID:           res.UserID,
		TransactionCount: res.TransactionCount,
		Wallet:           res.Wallet,
		AllPassed:        res.AllPassed,
		Invariants:       make([]invariantView, 0, len(res.Invariants)),
	}
	for _, c := range res.Invariants {
		resp.Invariants = append(resp.Invariants, invariantView{Name: c.Name, Passed: c.Passed, Detail: c.Detail})
	}
	handler.RespondJSON(w, http.StatusOK, resp)
}
