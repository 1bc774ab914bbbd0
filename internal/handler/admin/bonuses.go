package admin

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/attaboy/walletcore/internal/handler"
	"github.com/attaboy/walletcore/internal/service"
)

// BonusAdminHandler grants one-off bonuses.
type BonusAdminHandler struct {
	bonuses *service.BonusService
}

// NewBonusAdminHandler creates a new BonusAdminHandler.
func NewBonusAdminHandler(bonuses *service.BonusService) *BonusAdminHandler {
	return &BonusAdminHandler{bonuses: bonuses}
}

type welcomeInput struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// GrantWelcome handles POST /admin/bonuses/welcome.
func (h *BonusAdminHandler) GrantWelcome(w http.ResponseWriter, r *http.Request) {
	var in welcomeInput
	if err := handler.DecodeAndValidate(r, &in); err != nil {
		handler.RespondError(w, err)
		return
	}

	res, err := h.bonuses.GiveWelcomeBonus(r.Context(), in.UserID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, grantStatus(res.AlreadyGranted), res)
}

type referralInput struct {
	ReferrerID uuid.UUID `json:"referrer_id" validate:"required"`
	ReferredID uuid.UUID `json:"referred_id" validate:"required"`
}

// GrantReferral handles POST /admin/bonuses/referral. A partially applied
// grant answers with the error and the leg that did land.
func (h *BonusAdminHandler) GrantReferral(w http.ResponseWriter, r *http.Request) {
	var in referralInput
	if err := handler.DecodeAndValidate(r, &in); err != nil {
		handler.RespondError(w, err)
		return
	}

	res, err := h.bonuses.GiveReferralBonus(r.Context(), in.ReferrerID, in.ReferredID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, grantStatus(res.Referrer.AlreadyGranted && res.Referred.AlreadyGranted), res)
}

type depositBonusInput struct {
	UserID    uuid.UUID   `json:"user_id" validate:"required"`
	Amount    json.Number `json:"deposit_amount" validate:"required,money"`
	SourceRef string      `json:"source_ref" validate:"required,max=128"`
}

// GrantDeposit handles POST /admin/bonuses/deposit.
func (h *BonusAdminHandler) GrantDeposit(w http.ResponseWriter, r *http.Request) {
	var in depositBonusInput
	if err := handler.DecodeAndValidate(r, &in); err != nil {
		handler.RespondError(w, err)
		return
	}

	res, err := h.bonuses.GiveDepositBonus(r.Context(), in.UserID, handler.ParseMoney(in.Amount.String()), in.SourceRef)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, grantStatus(res.AlreadyGranted), res)
}

func grantStatus(already bool) int {
	if already {
		return http.StatusOK
	}
	return http.StatusCreated
}
