package walletserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/guard"
	"github.com/attaboy/walletcore/internal/handler"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/service"
)

// SignatureHeader carries the callback signature, in the same
// "t=<unix>,v1=<hex hmac>" form as settlement webhooks.
const SignatureHeader = "X-Game-Signature"

const (
	maxCallbackBody  = 64 << 10
	callbackRetained = 24 * time.Hour
)

// Action is the wallet operation a game engine asks for.
type Action string

const (
	ActionBalance Action = "balance"
	ActionBet     Action = "bet"
	ActionWin     Action = "win"
	ActionRefund  Action = "refund"
)

// Callback is the body every game engine callback carries.
type Callback struct {
	CallbackID       string          `json:"callback_id"`
	UserID           uuid.UUID       `json:"user_id"`
	GameID           string          `json:"game_id"`
	RoundID          string          `json:"round_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	BetTransactionID string          `json:"bet_transaction_id,omitempty"`
}

// Response is returned for every callback. Status mirrors the HTTP status so
// engines that ignore transport codes can still branch on it.
type Response struct {
	Status        int    `json:"status"`
	Balance       string `json:"balance,omitempty"`
	Currency      string `json:"currency,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

// Server answers game engine wallet callbacks by recording game play
// against the ledger.
type Server struct {
	games    *service.GamePlayService
	wallets  *service.WalletService
	verifier *provider.SettlementVerifier
	seen     *guard.IdempotencyGuard
	logger   *slog.Logger
}

// NewServer creates a Server whose callbacks must be signed with secret.
func NewServer(games *service.GamePlayService, wallets *service.WalletService, secret string, logger *slog.Logger) *Server {
	return &Server{
		games:    games,
		wallets:  wallets,
		verifier: provider.NewSettlementVerifier(secret),
		seen:     guard.NewIdempotencyGuard(callbackRetained),
		logger:   logger,
	}
}

// WithClock replaces the time source used for signature tolerance and
// callback retention.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.verifier.WithClock(now)
	s.seen.WithClock(now)
	return s
}

// Routes builds the callback router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/balance", s.handle(ActionBalance))
	r.Post("/bet", s.handle(ActionBet))
	r.Post("/win", s.handle(ActionWin))
	r.Post("/refund", s.handle(ActionRefund))
	return r
}

func (s *Server) handle(action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			respond(w, http.StatusBadRequest, Response{Error: "unreadable body"})
			return
		}

		if err := s.verifier.Authenticate(body, r.Header.Get(SignatureHeader)); err != nil {
			s.logger.Warn("game callback signature rejected", "action", action, "error", err)
			respond(w, http.StatusUnauthorized, Response{Error: "invalid signature"})
			return
		}

		var cb Callback
		if err := json.Unmarshal(body, &cb); err != nil {
			respond(w, http.StatusBadRequest, Response{Error: "invalid request"})
			return
		}
		if cb.UserID == uuid.Nil {
			respond(w, http.StatusBadRequest, Response{Error: "user_id is required"})
			return
		}

		s.logger.Info("game callback",
			"action", action,
			"callback_id", cb.CallbackID,
			"user_id", cb.UserID,
			"game_id", cb.GameID,
			"amount", cb.Amount.StringFixed(2),
		)

		key := ""
		if action != ActionBalance && cb.CallbackID != "" {
			key = string(action) + ":" + cb.CallbackID
		}
		if res := s.seen.Check(r.Context(), key); !res.Allowed {
			s.replyBalance(r.Context(), w, cb.UserID, Response{Duplicate: true})
			return
		}

		tx, err := s.dispatch(r.Context(), action, cb)
		if err != nil {
			if key != "" {
				s.seen.Remove(key)
			}
			appErr := domain.AsAppError(err)
			if appErr == nil || appErr.Status >= http.StatusInternalServerError {
				s.logger.Error("game callback failed", "action", action, "user_id", cb.UserID, "error", err)
			}
			if appErr == nil {
				respond(w, http.StatusInternalServerError, Response{Error: "internal error"})
				return
			}
			respond(w, appErr.Status, Response{Error: appErr.Message, Code: appErr.Code})
			return
		}

		out := Response{}
		if tx != nil {
			out.TransactionID = tx.ID
		}
		s.replyBalance(r.Context(), w, cb.UserID, out)
	}
}

// dispatch runs the ledger operation for action. Balance enquiries post
// nothing and return a nil transaction.
func (s *Server) dispatch(ctx context.Context, action Action, cb Callback) (*domain.Transaction, error) {
	round := service.GameRound{UserID: cb.UserID, GameID: cb.GameID, RoundID: cb.RoundID, Amount: cb.Amount}
	switch action {
	case ActionBalance:
		return nil, nil
	case ActionBet:
		return s.games.RecordBet(ctx, round)
	case ActionWin:
		return s.games.RecordWin(ctx, round)
	case ActionRefund:
		if cb.BetTransactionID == "" {
			return nil, domain.ErrValidation("bet_transaction_id is required")
		}
		return s.games.RecordRefund(ctx, cb.UserID, cb.BetTransactionID, cb.Amount)
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unknown wallet action %q", action))
	}
}

func (s *Server) replyBalance(ctx context.Context, w http.ResponseWriter, userID uuid.UUID, out Response) {
	bal, err := s.wallets.Balance(ctx, userID)
	if err != nil {
		s.logger.Error("game callback balance read failed", "user_id", userID, "error", err)
		respond(w, http.StatusInternalServerError, Response{Error: "internal error"})
		return
	}
	out.Balance = bal.Balance.StringFixed(2)
	out.Currency = bal.Currency
	respond(w, http.StatusOK, out)
}

func respond(w http.ResponseWriter, status int, out Response) {
	out.Status = status
	handler.RespondJSON(w, status, out)
}
