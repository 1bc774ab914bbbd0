package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/infra"
)

const transactionColumns = `id, wallet_id, user_id, type, status, amount, balance_before, balance_after,
	payment_method, provider_ref, metadata, description, created_at, updated_at`

type transactionRepo struct {
	db DBTX
}

// NewTransactionRepository returns a pgx-backed TransactionRepository bound to db.
func NewTransactionRepository(db DBTX) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Append(ctx context.Context, tx *domain.Transaction) error {
	meta := tx.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallet_transactions
		  (id, wallet_id, user_id, type, status, amount, balance_before, balance_after,
		   payment_method, provider_ref, metadata, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tx.ID, tx.WalletID, tx.UserID,
		string(tx.Type), string(tx.Status),
		infra.DecimalToNumeric(tx.Amount),
		infra.DecimalToNumeric(tx.BalanceBefore),
		infra.DecimalToNumeric(tx.BalanceAfter),
		methodArg(tx.PaymentMethod), tx.ProviderRef,
		meta, tx.Description, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict(fmt.Sprintf("transaction %s already exists", tx.ID))
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) Find(ctx context.Context, filter domain.TransactionFilter) (*domain.Transaction, error) {
	filter.Limit = 1
	txs, err := r.List(ctx, filter)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

// List builds its WHERE clause from the set filter fields.
func (r *transactionRepo) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where := []string{"TRUE"}
	args := []any{}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.ID != "" {
		add("id = $%d", filter.ID)
	}
	if filter.WalletID != nil {
		add("wallet_id = $%d", *filter.WalletID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ProviderRef != "" {
		add("provider_ref = $%d", filter.ProviderRef)
	}
	args = append(args, limitOrDefault(filter.Limit), max(filter.Offset, 0))

	query := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (r *transactionRepo) Finalize(ctx context.Context, id string, fin Finalization) (*domain.Transaction, error) {
	meta := fin.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	row := r.db.QueryRow(ctx, `
		UPDATE wallet_transactions SET
		  status = $2, balance_before = $3, balance_after = $4,
		  metadata = metadata || $5::jsonb, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns,
		id, string(fin.Status),
		infra.DecimalToNumeric(fin.BalanceBefore),
		infra.DecimalToNumeric(fin.BalanceAfter),
		meta,
	)
	tx, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		return tx, nil
	}

	existing, err := r.Find(ctx, domain.TransactionFilter{ID: id})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrNotFound("transaction", id)
	}
	return nil, domain.ErrConflict(fmt.Sprintf("transaction %s is already %s", id, existing.Status))
}

func (r *transactionRepo) Annotate(ctx context.Context, id string, meta domain.Metadata) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallet_transactions SET metadata = metadata || $2::jsonb, updated_at = now()
		WHERE id = $1`, id, meta)
	if err != nil {
		return fmt.Errorf("annotate transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("transaction", id)
	}
	return nil
}

func methodArg(m *domain.PaymentMethod) *string {
	if m == nil {
		return nil
	}
	s := string(*m)
	return &s
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, before, after pgtype.Numeric
	var method *string
	err := row.Scan(
		&tx.ID, &tx.WalletID, &tx.UserID, &tx.Type, &tx.Status,
		&amount, &before, &after,
		&method, &tx.ProviderRef, &tx.Metadata, &tx.Description, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if method != nil {
		m := domain.PaymentMethod(*method)
		tx.PaymentMethod = &m
	}

	var convErr error
	if tx.Amount, convErr = infra.NumericToDecimal(amount); convErr != nil {
		return nil, fmt.Errorf("convert amount: %w", convErr)
	}
	if tx.BalanceBefore, convErr = infra.NumericToDecimal(before); convErr != nil {
		return nil, fmt.Errorf("convert balance_before: %w", convErr)
	}
	if tx.BalanceAfter, convErr = infra.NumericToDecimal(after); convErr != nil {
		return nil, fmt.Errorf("convert balance_after: %w", convErr)
	}
	return &tx, nil
}
