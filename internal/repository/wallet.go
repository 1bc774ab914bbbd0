package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/infra"
)

const walletColumns = `id, user_id, balance, locked_balance, total_deposited, total_withdrawn,
	total_won, total_lost, total_wagered, currency, created_at, updated_at`

type walletRepo struct {
	db DBTX
}

// NewWalletRepository returns a pgx-backed WalletRepository bound to db.
func NewWalletRepository(db DBTX) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

func (r *walletRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

func (r *walletRepo) LockForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

func (r *walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallets (id, user_id, balance, locked_balance, total_deposited, total_withdrawn,
		                     total_won, total_lost, total_wagered, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO NOTHING`,
		w.ID, w.UserID,
		infra.DecimalToNumeric(w.Balance),
		infra.DecimalToNumeric(w.LockedBalance),
		infra.DecimalToNumeric(w.TotalDeposited),
		infra.DecimalToNumeric(w.TotalWithdrawn),
		infra.DecimalToNumeric(w.TotalWon),
		infra.DecimalToNumeric(w.TotalLost),
		infra.DecimalToNumeric(w.TotalWagered),
		w.Currency, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (r *walletRepo) Save(ctx context.Context, w *domain.Wallet) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallets SET
		  balance = $2, locked_balance = $3, total_deposited = $4, total_withdrawn = $5,
		  total_won = $6, total_lost = $7, total_wagered = $8, updated_at = $9
		WHERE id = $1`,
		w.ID,
		infra.DecimalToNumeric(w.Balance),
		infra.DecimalToNumeric(w.LockedBalance),
		infra.DecimalToNumeric(w.TotalDeposited),
		infra.DecimalToNumeric(w.TotalWithdrawn),
		infra.DecimalToNumeric(w.TotalWon),
		infra.DecimalToNumeric(w.TotalLost),
		infra.DecimalToNumeric(w.TotalWagered),
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("wallet", w.ID.String())
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var bal, locked, dep, wdr, won, lost, wagered pgtype.Numeric
	err := row.Scan(&w.ID, &w.UserID, &bal, &locked, &dep, &wdr, &won, &lost, &wagered,
		&w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	targets := []struct {
		name string
		src  pgtype.Numeric
		dst  *decimalField
	}{
		{"balance", bal, (*decimalField)(&w.Balance)},
		{"locked_balance", locked, (*decimalField)(&w.LockedBalance)},
		{"total_deposited", dep, (*decimalField)(&w.TotalDeposited)},
		{"total_withdrawn", wdr, (*decimalField)(&w.TotalWithdrawn)},
		{"total_won", won, (*decimalField)(&w.TotalWon)},
		{"total_lost", lost, (*decimalField)(&w.TotalLost)},
		{"total_wagered", wagered, (*decimalField)(&w.TotalWagered)},
	}
	for _, t := range targets {
		if err := t.dst.set(t.src); err != nil {
			return nil, fmt.Errorf("convert %s: %w", t.name, err)
		}
	}
	return &w, nil
}
