package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/service"
)

// BonusHandler handles daily bonus claims and withdrawal eligibility.
type BonusHandler struct {
	bonuses *service.BonusService
}

// NewBonusHandler creates a new BonusHandler.
func NewBonusHandler(bonuses *service.BonusService) *BonusHandler {
	return &BonusHandler{bonuses: bonuses}
}

// ClaimDaily handles POST /bonus/daily. A second claim on the same calendar
// day answers 200 with already_claimed set.
func (h *BonusHandler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.bonuses.ClaimDailyBonus(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// GetStreak handles GET /bonus/streak.
func (h *BonusHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	st, err := h.bonuses.GetStreak(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, st)
}

// Eligibility handles GET /withdrawals/eligibility?amount=.
func (h *BonusHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		RespondError(w, domain.ErrValidation("amount query parameter must be a decimal"))
		return
	}

	elig, err := h.bonuses.CanWithdraw(r.Context(), userID, amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, elig)
}
