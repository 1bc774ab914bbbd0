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

const requestColumns = `id, user_id, type, method, amount, currency, sender_number, receiver_number,
	external_tx_id, proof_ref, status, admin_notes, user_note, destination_account,
	transaction_id, provider_ref, dispatched_at, created_at, updated_at`

type paymentRequestRepo struct {
	db DBTX
}

// NewPaymentRequestRepository returns a pgx-backed PaymentRequestRepository bound to db.
func NewPaymentRequestRepository(db DBTX) PaymentRequestRepository {
	return &paymentRequestRepo{db: db}
}

func (r *paymentRequestRepo) Create(ctx context.Context, req *domain.PaymentRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_requests
		  (id, user_id, type, method, amount, currency, sender_number, receiver_number,
		   external_tx_id, proof_ref, status, admin_notes, user_note, destination_account,
		   transaction_id, provider_ref, dispatched_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		req.ID, req.UserID, string(req.Type), string(req.Method),
		infra.DecimalToNumeric(req.Amount), req.Currency,
		req.SenderNumber, req.ReceiverNumber, req.ExternalTxID, req.ProofRef,
		string(req.Status), req.AdminNotes, req.UserNote, req.DestinationAccount,
		req.TransactionID, req.ProviderRef, req.DispatchedAt, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPendingDuplicate
		}
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

func (r *paymentRequestRepo) Get(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`, id)
	return scanPaymentRequest(row)
}

func (r *paymentRequestRepo) LockForUpdate(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = $1 FOR UPDATE`, id)
	return scanPaymentRequest(row)
}

func (r *paymentRequestRepo) Update(ctx context.Context, req *domain.PaymentRequest) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_requests SET
		  status = $2, admin_notes = $3, provider_ref = $4, receiver_number = $5,
		  dispatched_at = $6, updated_at = $7
		WHERE id = $1`,
		req.ID, string(req.Status), req.AdminNotes, req.ProviderRef, req.ReceiverNumber,
		req.DispatchedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("payment request", req.ID)
	}
	return nil
}

func (r *paymentRequestRepo) FindPendingByExternalTxID(ctx context.Context, externalTxID string, method domain.PaymentMethod) (*domain.PaymentRequest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM payment_requests
		WHERE external_tx_id = $1 AND method = $2 AND status = 'pending'`,
		externalTxID, string(method))
	return scanPaymentRequest(row)
}

func (r *paymentRequestRepo) ListByStatus(ctx context.Context, status domain.RequestStatus, limit int) ([]domain.PaymentRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM payment_requests
		WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		string(status), limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query payment requests: %w", err)
	}
	defer rows.Close()
	return collectPaymentRequests(rows)
}

func (r *paymentRequestRepo) ListByStatusAfter(ctx context.Context, status domain.RequestStatus, afterID string, limit int) ([]domain.PaymentRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM payment_requests
		WHERE status = $1 AND id COLLATE "C" > $2
		ORDER BY id COLLATE "C" ASC LIMIT $3`,
		string(status), afterID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query payment requests page: %w", err)
	}
	defer rows.Close()
	return collectPaymentRequests(rows)
}

func (r *paymentRequestRepo) CountByUser(ctx context.Context, userID uuid.UUID, status domain.RequestStatus) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_requests WHERE user_id = $1 AND status = $2`,
		userID, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user payment requests: %w", err)
	}
	return n, nil
}

func (r *paymentRequestRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM payment_requests
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query user payment requests: %w", err)
	}
	defer rows.Close()
	return collectPaymentRequests(rows)
}

func collectPaymentRequests(rows pgx.Rows) ([]domain.PaymentRequest, error) {
	var out []domain.PaymentRequest
	for rows.Next() {
		req, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanPaymentRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var req domain.PaymentRequest
	var amount pgtype.Numeric
	err := row.Scan(
		&req.ID, &req.UserID, &req.Type, &req.Method, &amount, &req.Currency,
		&req.SenderNumber, &req.ReceiverNumber, &req.ExternalTxID, &req.ProofRef,
		&req.Status, &req.AdminNotes, &req.UserNote, &req.DestinationAccount,
		&req.TransactionID, &req.ProviderRef, &req.DispatchedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment request: %w", err)
	}
	if req.Amount, err = infra.NumericToDecimal(amount); err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	return &req, nil
}
