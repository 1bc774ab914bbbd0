package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/projection"
	"github.com/attaboy/walletcore/internal/repository"
)

// WalletService serves wallet reads: balances, ledger history, stats and audits.
type WalletService struct {
	store    repository.Store
	cache    projection.Store
	limits   policy.LimitPolicy
	currency string
	logger   *slog.Logger
}

// NewWalletService creates a WalletService. cache may be nil.
func NewWalletService(store repository.Store, cache projection.Store, limits policy.LimitPolicy, currency string, logger *slog.Logger) *WalletService {
	return &WalletService{store: store, cache: cache, limits: limits, currency: currency, logger: logger}
}

// Balance returns the user's balances, from the projection cache when warm.
// A user with no wallet yet has zero balances.
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (*projection.BalanceProjection, error) {
	if s.cache != nil {
		cached, err := projection.GetBalance(ctx, s.cache, userID.String())
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, projection.ErrMiss) {
			s.logger.Warn("balance projection read failed", "user_id", userID, "error", err)
		}
	}

	w, err := s.store.Repos().Wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get wallet", err)
	}
	if w == nil {
		return &projection.BalanceProjection{
			UserID:        userID.String(),
			Balance:       decimal.Zero,
			LockedBalance: decimal.Zero,
			Currency:      s.currency,
		}, nil
	}

	p := projection.BalanceProjection{
		UserID:        userID.String(),
		Balance:       w.Balance,
		LockedBalance: w.LockedBalance,
		Currency:      w.Currency,
		UpdatedAt:     w.UpdatedAt,
	}
	if s.cache != nil {
		if err := projection.UpdateBalance(ctx, s.cache, p); err != nil {
			s.logger.Warn("balance projection write failed", "user_id", userID, "error", err)
		}
	}
	return &p, nil
}

// Transactions returns the user's ledger entries, newest first.
func (s *WalletService) Transactions(ctx context.Context, userID uuid.UUID, txType domain.TransactionType, limit int) ([]domain.Transaction, error) {
	w, err := s.store.Repos().Wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get wallet", err)
	}
	if w == nil {
		return []domain.Transaction{}, nil
	}
	txs, err := s.store.Repos().Transactions.List(ctx, domain.TransactionFilter{WalletID: &w.ID, Type: txType, Limit: limit})
	if err != nil {
		return nil, domain.ErrInternal("list transactions", err)
	}
	return txs, nil
}

// GetUserStats combines wallet counters, wagering progress, the current
// bonus streak and the number of pending requests.
func (s *WalletService) GetUserStats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	repos := s.store.Repos()
	user, err := repos.Users.GetProfile(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get user profile", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}

	w, err := repos.Wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get wallet", err)
	}
	if w == nil {
		w = domain.NewWallet(userID, s.currency, user.CreatedAt)
	}

	streak, err := repos.Bonuses.GetStreak(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get streak", err)
	}
	current := 0
	if streak != nil {
		current = streak.CurrentStreak
	}

	pending, err := repos.Requests.CountByUser(ctx, userID, domain.RequestPending)
	if err != nil {
		return nil, domain.ErrInternal("count user requests", err)
	}

	wagered := user.Wagered(w)
	requirement := policy.WageringProgress(s.limits, wagered)
	return &domain.UserStats{
		UserID:                userID,
		Currency:              w.Currency,
		WalletBalance:         w.Balance,
		LockedBalance:         w.LockedBalance,
		TotalDeposited:        w.TotalDeposited,
		TotalWithdrawn:        w.TotalWithdrawn,
		TotalWon:              w.TotalWon,
		TotalLost:             w.TotalLost,
		TotalWagered:          wagered,
		CanWithdraw:           requirement.Remaining.IsZero(),
		WithdrawalRequirement: requirement,
		CurrentStreak:         current,
		PendingRequests:       pending,
	}, nil
}

// Audit checks the ledger invariants for one user's wallet.
func (s *WalletService) Audit(ctx context.Context, userID uuid.UUID) (*ledger.AuditResult, error) {
	res, err := ledger.AuditWallet(ctx, s.store, userID)
	if err != nil {
		return nil, wrapErr("audit wallet", err)
	}
	if !res.AllPassed {
		s.logger.Error("ledger audit failed", "user_id", userID, "failed", len(res.Failed()))
	}
	return res, nil
}
