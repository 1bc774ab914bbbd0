package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/repository"
)

var errAlreadyGranted = errors.New("bonus already granted")

// BonusService credits daily, welcome, referral and deposit bonuses.
type BonusService struct {
	store     repository.Store
	rec       *ledger.Recorder
	limits    policy.LimitPolicy
	loc       *time.Location
	observers ledger.Observers
	logger    *slog.Logger
	now       func() time.Time
}

// NewBonusService creates a BonusService. Daily claims are dated in loc.
func NewBonusService(store repository.Store, rec *ledger.Recorder, limits policy.LimitPolicy, loc *time.Location, logger *slog.Logger) *BonusService {
	if loc == nil {
		loc = time.UTC
	}
	return &BonusService{
		store:  store,
		rec:    rec,
		limits: limits,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// WithObservers registers observers notified after each commit.
func (s *BonusService) WithObservers(obs ...ledger.Observer) *BonusService {
	s.observers = append(s.observers, obs...)
	return s
}

// WithClock replaces the time source.
func (s *BonusService) WithClock(now func() time.Time) *BonusService {
	s.now = now
	return s
}

// ClaimDailyBonus pays today's streak bonus. A second claim on the same
// calendar day pays nothing and leaves the streak alone. A claim the day after
// the last one extends the streak; any longer gap restarts it at 1.
func (s *BonusService) ClaimDailyBonus(ctx context.Context, userID uuid.UUID) (*domain.DailyBonusResult, error) {
	var result *domain.DailyBonusResult
	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		// The wallet lock serialises claims for one user.
		if _, err := s.rec.LockWallet(ctx, r, userID); err != nil {
			return err
		}
		streak, err := r.Bonuses.GetStreak(ctx, userID)
		if err != nil {
			return fmt.Errorf("get streak: %w", err)
		}
		if streak == nil {
			streak = &domain.BonusStreak{UserID: userID, TotalBonusAmount: decimal.Zero}
		}

		now := s.now()
		today := domain.CalendarDate(now, s.loc)
		yesterday := today.AddDate(0, 0, -1)
		if streak.LastClaimDate != nil && streak.LastClaimDate.Equal(today) {
			result = &domain.DailyBonusResult{Amount: decimal.Zero, Streak: streak.CurrentStreak, AlreadyClaimed: true}
			return nil
		}

		next := 1
		if streak.LastClaimDate != nil && streak.LastClaimDate.Equal(yesterday) {
			next = streak.CurrentStreak + 1
		}
		tier := domain.DailyBonusFor(next)
		amount := tier.Payout()

		posting, err = s.rec.ApplyDelta(ctx, r, ledger.Entry{
			UserID:      userID,
			Type:        domain.TxBonus,
			Amount:      amount,
			Description: fmt.Sprintf("Daily Bonus - Day %d", tier.Day),
			IDPrefix:    domain.BonusDaily.TxPrefix(),
			Metadata: domain.Metadata{
				"day":        tier.Day,
				"baseAmount": tier.Amount.StringFixed(2),
				"multiplier": tier.Multiplier.String(),
				"streak":     next,
			},
		})
		if err != nil {
			return err
		}

		streak.LastClaimDate = &today
		streak.CurrentStreak = next
		streak.TotalBonusesClaimed++
		streak.TotalBonusAmount = streak.TotalBonusAmount.Add(amount)
		streak.UpdatedAt = now
		if err := r.Bonuses.SaveStreak(ctx, streak); err != nil {
			return fmt.Errorf("save streak: %w", err)
		}
		if err := r.Outbox.Insert(ctx, domain.NewBonusGrantedEvent(userID, domain.BonusDaily, amount, posting.Transaction.ID)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		result = &domain.DailyBonusResult{Amount: amount, Streak: next, TransactionID: posting.Transaction.ID}
		return nil
	})
	if err != nil {
		return nil, wrapErr("claim daily bonus", err)
	}

	s.observers.Notify(ctx, posting)
	if !result.AlreadyClaimed {
		s.logger.Info("daily bonus claimed", "user_id", userID, "streak", result.Streak, "amount", result.Amount.StringFixed(2))
	}
	return result, nil
}

// GetStreak returns the user's streak, zero-valued if they never claimed.
func (s *BonusService) GetStreak(ctx context.Context, userID uuid.UUID) (*domain.BonusStreak, error) {
	st, err := s.store.Repos().Bonuses.GetStreak(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get streak", err)
	}
	if st == nil {
		return &domain.BonusStreak{UserID: userID, TotalBonusAmount: decimal.Zero}, nil
	}
	return st, nil
}

// SweepExpiredStreaks resets every streak whose last claim is older than
// yesterday. Claims themselves already restart broken streaks; the sweep keeps
// reported streaks honest for users who stopped claiming.
func (s *BonusService) SweepExpiredStreaks(ctx context.Context) (int, error) {
	cutoff := domain.CalendarDate(s.now(), s.loc).AddDate(0, 0, -1)
	var n int
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		n, err = r.Bonuses.ResetStaleStreaks(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, domain.ErrInternal("sweep streaks", err)
	}
	if n > 0 {
		s.logger.Info("expired streaks reset", "count", n, "cutoff", cutoff.Format(time.DateOnly))
	}
	return n, nil
}

// GrantResult is the outcome of a one-off bonus grant.
type GrantResult struct {
	UserID         uuid.UUID        `json:"user_id"`
	Kind           domain.BonusKind `json:"kind"`
	Amount         decimal.Decimal  `json:"amount"`
	TransactionID  string           `json:"transaction_id,omitempty"`
	AlreadyGranted bool             `json:"already_granted"`
}

// GiveWelcomeBonus credits the flat welcome bonus, once per user.
func (s *BonusService) GiveWelcomeBonus(ctx context.Context, userID uuid.UUID) (*GrantResult, error) {
	return s.grant(ctx, bonusGrant{
		userID:      userID,
		kind:        domain.BonusWelcome,
		key:         "welcome",
		amount:      domain.WelcomeBonusAmount,
		description: "Welcome Bonus",
		meta:        domain.Metadata{},
	})
}

// ReferralResult carries both legs of a referral grant.
type ReferralResult struct {
	Referrer *GrantResult `json:"referrer"`
	Referred *GrantResult `json:"referred"`
}

// GiveReferralBonus credits the referrer and the referred user in two
// independent units of work. If the second leg fails the first stays
// credited and a PARTIAL_CREDIT error is returned; calling again credits only
// the missing leg.
func (s *BonusService) GiveReferralBonus(ctx context.Context, referrerID, referredID uuid.UUID) (*ReferralResult, error) {
	if referrerID == uuid.Nil || referredID == uuid.Nil {
		return nil, domain.ErrValidation("referrer and referred user ids are required")
	}
	if referrerID == referredID {
		return nil, domain.ErrValidation("a user cannot refer themselves")
	}

	key := "referral:" + referredID.String()
	referrer, err := s.grant(ctx, bonusGrant{
		userID:      referrerID,
		kind:        domain.BonusReferrer,
		key:         key,
		amount:      domain.ReferrerBonusAmount,
		description: "Referral Bonus",
		meta:        domain.Metadata{"referredUserId": referredID.String()},
	})
	if err != nil {
		return nil, err
	}

	referred, err := s.grant(ctx, bonusGrant{
		userID:      referredID,
		kind:        domain.BonusReferred,
		key:         key,
		amount:      domain.ReferredBonusAmount,
		description: "Referred Bonus",
		meta:        domain.Metadata{"referrerUserId": referrerID.String()},
	})
	if err != nil {
		s.logger.Error("referral partially credited",
			"referrer_id", referrerID, "referred_id", referredID, "error", err)
		return &ReferralResult{Referrer: referrer},
			domain.ErrPartialCredit("referrer credited but referred user was not", err)
	}
	return &ReferralResult{Referrer: referrer, Referred: referred}, nil
}

// GiveDepositBonus credits min(5% of depositAmount, 500), once per sourceRef.
func (s *BonusService) GiveDepositBonus(ctx context.Context, userID uuid.UUID, depositAmount decimal.Decimal, sourceRef string) (*GrantResult, error) {
	if err := domain.ValidatePositiveAmount(depositAmount); err != nil {
		return nil, err
	}
	if sourceRef == "" {
		return nil, domain.ErrValidation("deposit reference is required")
	}
	bonus := domain.DepositBonus(depositAmount)
	if !bonus.IsPositive() {
		return nil, domain.ErrValidation("deposit too small for a bonus")
	}
	return s.grant(ctx, bonusGrant{
		userID:      userID,
		kind:        domain.BonusDeposit,
		key:         sourceRef,
		amount:      bonus,
		description: "Deposit Bonus",
		meta: domain.Metadata{
			"depositAmount":   depositAmount.StringFixed(2),
			"bonusPercent":    domain.DepositBonusRate.Shift(2).String(),
			"calculatedBonus": bonus.StringFixed(2),
			"depositRef":      sourceRef,
		},
	})
}

// CanWithdraw reports whether amount is inside the user's withdrawal range
// and the wagering requirement is met. A refusal is a result, not an error.
func (s *BonusService) CanWithdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.WithdrawalEligibility, error) {
	user, err := s.store.Repos().Users.GetProfile(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get user profile", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	w, err := s.store.Repos().Wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get wallet", err)
	}
	elig := policy.EvaluateWithdrawal(s.limits, user, user.Wagered(w), amount)
	return &elig, nil
}

type bonusGrant struct {
	userID      uuid.UUID
	kind        domain.BonusKind
	key         string
	amount      decimal.Decimal
	description string
	meta        domain.Metadata
}

// grant credits one keyed bonus in its own unit of work. A key that was
// already used rolls the credit back and reports AlreadyGranted.
func (s *BonusService) grant(ctx context.Context, g bonusGrant) (*GrantResult, error) {
	if g.userID == uuid.Nil {
		return nil, domain.ErrValidation("user id is required")
	}

	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		posting, err = s.rec.ApplyDelta(ctx, r, ledger.Entry{
			UserID:      g.userID,
			Type:        domain.TxBonus,
			Amount:      g.amount,
			Description: g.description,
			IDPrefix:    g.kind.TxPrefix(),
			Metadata:    g.meta.Merge(domain.Metadata{"bonusKind": string(g.kind)}),
		})
		if err != nil {
			return err
		}

		inserted, err := r.Bonuses.RecordGrant(ctx, &domain.BonusGrant{
			UserID:        g.userID,
			Kind:          g.kind,
			GrantKey:      g.key,
			Amount:        posting.Transaction.Amount,
			TransactionID: posting.Transaction.ID,
			CreatedAt:     posting.Transaction.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("record grant: %w", err)
		}
		if !inserted {
			return errAlreadyGranted
		}
		return r.Outbox.Insert(ctx, domain.NewBonusGrantedEvent(g.userID, g.kind, posting.Transaction.Amount, posting.Transaction.ID))
	})
	if errors.Is(err, errAlreadyGranted) {
		return &GrantResult{UserID: g.userID, Kind: g.kind, Amount: decimal.Zero, AlreadyGranted: true}, nil
	}
	if err != nil {
		return nil, wrapErr("grant "+string(g.kind)+" bonus", err)
	}

	s.observers.Notify(ctx, posting)
	s.logger.Info("bonus granted",
		"user_id", g.userID,
		"kind", g.kind,
		"amount", posting.Transaction.Amount.StringFixed(2),
		"transaction_id", posting.Transaction.ID,
	)
	return &GrantResult{
		UserID:        g.userID,
		Kind:          g.kind,
		Amount:        posting.Transaction.Amount,
		TransactionID: posting.Transaction.ID,
	}, nil
}

// wrapErr passes domain errors through and hides everything else behind INTERNAL_ERROR.
func wrapErr(op string, err error) error {
	if domain.AsAppError(err) != nil {
		return err
	}
	return domain.ErrInternal(op, err)
}
