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

type userDirectory struct {
	db DBTX
}

// NewUserDirectory returns a pgx-backed UserDirectory bound to db.
func NewUserDirectory(db DBTX) UserDirectory {
	return &userDirectory{db: db}
}

// GetProfile returns a user profile with its payout numbers, or nil if not found.
func (r *userDirectory) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	p := &domain.UserProfile{}
	var minW, maxW, wagered pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT id, currency, min_withdrawal_amount, max_withdrawal_amount, total_wagered, referred_by, created_at
		FROM users WHERE id = $1`, userID).
		Scan(&p.ID, &p.Currency, &minW, &maxW, &wagered, &p.ReferredBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if p.MinWithdrawalAmount, err = infra.NumericToDecimal(minW); err != nil {
		return nil, err
	}
	if p.MaxWithdrawalAmount, err = infra.NumericToDecimal(maxW); err != nil {
		return nil, err
	}
	if p.TotalWagered, err = infra.NumericToDecimal(wagered); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT method, number, verified, verified_at
		FROM user_payment_numbers WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment numbers: %w", err)
	}
	defer rows.Close()

	p.PaymentNumbers = make(map[domain.PaymentMethod]domain.VerifiedNumber)
	for rows.Next() {
		var method string
		var n domain.VerifiedNumber
		var verifiedAt *time.Time
		if err := rows.Scan(&method, &n.Number, &n.Verified, &verifiedAt); err != nil {
			return nil, fmt.Errorf("scan payment number: %w", err)
		}
		n.VerifiedAt = verifiedAt
		p.PaymentNumbers[domain.PaymentMethod(method)] = n
	}
	return p, rows.Err()
}
