package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/infra"
)

type bonusRepo struct {
	db DBTX
}

// NewBonusRepository returns a pgx-backed BonusRepository bound to db.
func NewBonusRepository(db DBTX) BonusRepository {
	return &bonusRepo{db: db}
}

func (r *bonusRepo) GetStreak(ctx context.Context, userID uuid.UUID) (*domain.BonusStreak, error) {
	var s domain.BonusStreak
	var lastClaim pgtype.Date
	var total pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT user_id, last_claim_date, current_streak, total_bonuses_claimed, total_bonus_amount, updated_at
		FROM bonus_streaks WHERE user_id = $1`, userID).
		Scan(&s.UserID, &lastClaim, &s.CurrentStreak, &s.TotalBonusesClaimed, &total, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan bonus streak: %w", err)
	}
	if lastClaim.Valid {
		d := time.Date(lastClaim.Time.Year(), lastClaim.Time.Month(), lastClaim.Time.Day(), 0, 0, 0, 0, time.UTC)
		s.LastClaimDate = &d
	}
	if s.TotalBonusAmount, err = infra.NumericToDecimal(total); err != nil {
		return nil, fmt.Errorf("convert total_bonus_amount: %w", err)
	}
	return &s, nil
}

func (r *bonusRepo) SaveStreak(ctx context.Context, s *domain.BonusStreak) error {
	var lastClaim pgtype.Date
	if s.LastClaimDate != nil {
		lastClaim = pgtype.Date{Time: *s.LastClaimDate, Valid: true}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO bonus_streaks (user_id, last_claim_date, current_streak, total_bonuses_claimed, total_bonus_amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
		  last_claim_date = EXCLUDED.last_claim_date,
		  current_streak = EXCLUDED.current_streak,
		  total_bonuses_claimed = EXCLUDED.total_bonuses_claimed,
		  total_bonus_amount = EXCLUDED.total_bonus_amount,
		  updated_at = EXCLUDED.updated_at`,
		s.UserID, lastClaim, s.CurrentStreak, s.TotalBonusesClaimed,
		infra.DecimalToNumeric(s.TotalBonusAmount), s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert bonus streak: %w", err)
	}
	return nil
}

func (r *bonusRepo) ResetStaleStreaks(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE bonus_streaks SET current_streak = 0, updated_at = now()
		WHERE current_streak > 0 AND last_claim_date < $1`,
		pgtype.Date{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("reset stale streaks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *bonusRepo) RecordGrant(ctx context.Context, g *domain.BonusGrant) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO bonus_grants (user_id, kind, grant_key, amount, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, kind, grant_key) DO NOTHING`,
		g.UserID, string(g.Kind), g.GrantKey, infra.DecimalToNumeric(g.Amount), g.TransactionID, g.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert bonus grant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
