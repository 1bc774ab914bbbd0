package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/repository"
)

// GamePlayService records bets, wins and refunds against the wallet.
type GamePlayService struct {
	store     repository.Store
	rec       *ledger.Recorder
	observers ledger.Observers
	logger    *slog.Logger
}

// NewGamePlayService creates a GamePlayService.
func NewGamePlayService(store repository.Store, rec *ledger.Recorder, logger *slog.Logger) *GamePlayService {
	return &GamePlayService{store: store, rec: rec, logger: logger}
}

// WithObservers registers observers notified after each commit.
func (s *GamePlayService) WithObservers(obs ...ledger.Observer) *GamePlayService {
	s.observers = append(s.observers, obs...)
	return s
}

// GameRound identifies the game play a movement belongs to.
type GameRound struct {
	UserID  uuid.UUID
	GameID  string
	RoundID string
	Amount  decimal.Decimal
}

func (g GameRound) validate() error {
	if g.UserID == uuid.Nil {
		return domain.ErrValidation("user id is required")
	}
	if strings.TrimSpace(g.GameID) == "" {
		return domain.ErrValidation("game id is required")
	}
	return domain.ValidatePositiveAmount(g.Amount)
}

func (g GameRound) metadata() domain.Metadata {
	meta := domain.Metadata{"gameId": g.GameID}
	if g.RoundID != "" {
		meta["roundId"] = g.RoundID
	}
	return meta
}

// RecordBet debits a stake. A stake above the available balance fails with
// InsufficientFunds and changes nothing.
func (s *GamePlayService) RecordBet(ctx context.Context, round GameRound) (*domain.Transaction, error) {
	if err := round.validate(); err != nil {
		return nil, err
	}
	return s.post(ctx, ledger.Entry{
		UserID:      round.UserID,
		Type:        domain.TxBet,
		Amount:      round.Amount.Neg(),
		Metadata:    round.metadata(),
		Description: "Bet on " + round.GameID,
	})
}

// RecordWin credits a payout.
func (s *GamePlayService) RecordWin(ctx context.Context, round GameRound) (*domain.Transaction, error) {
	if err := round.validate(); err != nil {
		return nil, err
	}
	return s.post(ctx, ledger.Entry{
		UserID:      round.UserID,
		Type:        domain.TxWin,
		Amount:      round.Amount,
		Metadata:    round.metadata(),
		Description: "Win on " + round.GameID,
	})
}

// RecordRefund returns a completed bet's stake. Each bet can be refunded
// once, and never for more than was staked.
func (s *GamePlayService) RecordRefund(ctx context.Context, userID uuid.UUID, betTxID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}

	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		w, err := s.rec.LockWallet(ctx, r, userID)
		if err != nil {
			return err
		}
		bet, err := r.Transactions.Find(ctx, domain.TransactionFilter{ID: betTxID, WalletID: &w.ID})
		if err != nil {
			return fmt.Errorf("find bet: %w", err)
		}
		if bet == nil || bet.Type != domain.TxBet {
			return domain.ErrNotFound("bet", betTxID)
		}
		if bet.Status != domain.TxStatusCompleted {
			return domain.ErrConflict(fmt.Sprintf("bet %s is %s", betTxID, bet.Status))
		}
		if amount.GreaterThan(bet.Amount.Abs()) {
			return domain.ErrValidation(fmt.Sprintf("refund %s exceeds stake %s", amount.StringFixed(2), bet.Amount.Abs().StringFixed(2)))
		}

		ref := "refund:" + betTxID
		prior, err := r.Transactions.Find(ctx, domain.TransactionFilter{WalletID: &w.ID, Type: domain.TxRefund, ProviderRef: ref})
		if err != nil {
			return fmt.Errorf("find refund: %w", err)
		}
		if prior != nil {
			return domain.ErrConflict(fmt.Sprintf("bet %s was already refunded by %s", betTxID, prior.ID))
		}

		meta := domain.Metadata{"originalTransactionId": betTxID}
		if gameID, ok := bet.Metadata["gameId"]; ok {
			meta["gameId"] = gameID
		}
		posting, err = s.rec.ApplyDelta(ctx, r, ledger.Entry{
			UserID:      userID,
			Type:        domain.TxRefund,
			Amount:      amount,
			ProviderRef: &ref,
			Metadata:    meta,
			Description: "Refund of " + betTxID,
		})
		return err
	})
	if err != nil {
		return nil, wrapErr("record refund", err)
	}

	s.observers.Notify(ctx, posting)
	return posting.Transaction, nil
}

func (s *GamePlayService) post(ctx context.Context, e ledger.Entry) (*domain.Transaction, error) {
	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		posting, err = s.rec.ApplyDelta(ctx, r, e)
		return err
	})
	if err != nil {
		return nil, wrapErr("record "+string(e.Type), err)
	}

	s.observers.Notify(ctx, posting)
	s.logger.Debug("game play recorded",
		"user_id", e.UserID,
		"type", e.Type,
		"amount", posting.Transaction.Amount.StringFixed(2),
		"transaction_id", posting.Transaction.ID,
	)
	return posting.Transaction, nil
}
