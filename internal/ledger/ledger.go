package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/repository"
)

// Recorder is the only writer of wallet balances. Every method must run inside
// a unit of work (repository.Store.InTx) and receives that unit's Repos.
//
// Core operations:
//  1. LockWallet: pessimistic wallet lock, creating the wallet on first use
//  2. ApplyDelta: balance change + completed ledger entry + outbox event
//  3. OpenPending / ApplyPending / FailPending: the two-step entry lifecycle
//  4. LockFunds / UnlockFunds / SettleLocked: the withdrawal hold
type Recorder struct {
	currency string
	now      func() time.Time
}

// NewRecorder creates a recorder that opens wallets in currency.
func NewRecorder(currency string) *Recorder {
	return &Recorder{currency: currency, now: time.Now}
}

// WithClock replaces the time source.
func (rec *Recorder) WithClock(now func() time.Time) *Recorder {
	rec.now = now
	return rec
}

// Entry describes one ledger movement. Amount is signed.
type Entry struct {
	UserID      uuid.UUID
	Type        domain.TransactionType
	Amount      decimal.Decimal
	Method      *domain.PaymentMethod
	ProviderRef *string
	Metadata    domain.Metadata
	Description string

	// IDPrefix overrides the type's default id prefix.
	IDPrefix string
}

// Posting is the committed-to-be result of a Recorder call.
type Posting struct {
	Transaction *domain.Transaction
	Wallet      *domain.Wallet
}

// LockWallet acquires the wallet lock for userID, creating an empty wallet on first use.
func (rec *Recorder) LockWallet(ctx context.Context, r repository.Repos, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := r.Wallets.LockForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if w != nil {
		return w, nil
	}

	if err := r.Wallets.Create(ctx, domain.NewWallet(userID, rec.currency, rec.now())); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	w, err = r.Wallets.LockForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound("wallet", userID.String())
	}
	return w, nil
}

// ApplyDelta applies a signed amount to the available balance and records it as
// a completed entry. A result below zero fails with InsufficientFunds and
// leaves the wallet untouched.
func (rec *Recorder) ApplyDelta(ctx context.Context, r repository.Repos, e Entry) (*Posting, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	w, err := rec.LockWallet(ctx, r, e.UserID)
	if err != nil {
		return nil, err
	}

	amount := domain.Money(e.Amount)
	if w.Balance.Add(amount).IsNegative() {
		return nil, domain.ErrInsufficientFunds()
	}

	now := rec.now()
	updated := domain.BalanceUpdate{Balance: amount}.Plus(domain.CounterUpdate(e.Type, amount)).Apply(*w, now)
	if err := r.Wallets.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}

	tx := rec.newTransaction(e, &updated, domain.TxStatusCompleted, now)
	tx.BalanceBefore = w.Balance
	tx.BalanceAfter = updated.Balance
	if err := rec.append(ctx, r, tx); err != nil {
		return nil, err
	}
	return &Posting{Transaction: tx, Wallet: &updated}, nil
}

// OpenPending records a pending entry without touching balances. The snapshot
// is a placeholder with balance_after equal to balance_before.
func (rec *Recorder) OpenPending(ctx context.Context, r repository.Repos, e Entry) (*Posting, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	w, err := rec.LockWallet(ctx, r, e.UserID)
	if err != nil {
		return nil, err
	}

	tx := rec.newTransaction(e, w, domain.TxStatusPending, rec.now())
	tx.BalanceBefore = w.Balance
	tx.BalanceAfter = w.Balance
	if err := rec.append(ctx, r, tx); err != nil {
		return nil, err
	}
	return &Posting{Transaction: tx, Wallet: w}, nil
}

// ApplyPending applies a pending entry's amount to the available balance and
// completes it. Used when a deposit is confirmed.
func (rec *Recorder) ApplyPending(ctx context.Context, r repository.Repos, userID uuid.UUID, txID string, meta domain.Metadata) (*Posting, error) {
	w, err := rec.LockWallet(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	pending, err := rec.pendingEntry(ctx, r, w, txID)
	if err != nil {
		return nil, err
	}

	if w.Balance.Add(pending.Amount).IsNegative() {
		return nil, domain.ErrInsufficientFunds()
	}

	now := rec.now()
	updated := domain.BalanceUpdate{Balance: pending.Amount}.
		Plus(domain.CounterUpdate(pending.Type, pending.Amount)).
		Apply(*w, now)
	if err := r.Wallets.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}

	tx, err := r.Transactions.Finalize(ctx, txID, repository.Finalization{
		Status:        domain.TxStatusCompleted,
		BalanceBefore: w.Balance,
		BalanceAfter:  updated.Balance,
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	if err := r.Outbox.Insert(ctx, domain.NewTransactionFinalizedEvent(tx)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return &Posting{Transaction: tx, Wallet: &updated}, nil
}

// FailPending moves a pending entry to failed or cancelled. Balances are not
// touched; callers unwind any hold separately.
func (rec *Recorder) FailPending(ctx context.Context, r repository.Repos, txID string, status domain.TransactionStatus, meta domain.Metadata) (*domain.Transaction, error) {
	if status != domain.TxStatusFailed && status != domain.TxStatusCancelled {
		return nil, domain.ErrValidation(fmt.Sprintf("cannot fail a transaction into status %s", status))
	}
	current, err := r.Transactions.Find(ctx, domain.TransactionFilter{ID: txID})
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if current == nil {
		return nil, domain.ErrNotFound("transaction", txID)
	}

	tx, err := r.Transactions.Finalize(ctx, txID, repository.Finalization{
		Status:        status,
		BalanceBefore: current.BalanceBefore,
		BalanceAfter:  current.BalanceAfter,
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	if err := r.Outbox.Insert(ctx, domain.NewTransactionFinalizedEvent(tx)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return tx, nil
}

// LockFunds moves amount from balance to locked balance.
func (rec *Recorder) LockFunds(ctx context.Context, r repository.Repos, userID uuid.UUID, amount decimal.Decimal, reference string) (*domain.Wallet, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	w, err := rec.LockWallet(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	if w.Balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds()
	}
	return rec.moveFunds(ctx, r, w, amount, true, reference)
}

// UnlockFunds returns amount from locked balance to balance.
func (rec *Recorder) UnlockFunds(ctx context.Context, r repository.Repos, userID uuid.UUID, amount decimal.Decimal, reference string) (*domain.Wallet, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	w, err := rec.LockWallet(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	if w.LockedBalance.LessThan(amount) {
		return nil, domain.ErrConflict(fmt.Sprintf("locked balance %s is below %s", w.LockedBalance, amount))
	}
	return rec.moveFunds(ctx, r, w, amount, false, reference)
}

func (rec *Recorder) moveFunds(ctx context.Context, r repository.Repos, w *domain.Wallet, amount decimal.Decimal, lock bool, reference string) (*domain.Wallet, error) {
	delta := domain.BalanceUpdate{Balance: amount.Neg(), LockedBalance: amount}
	if !lock {
		delta = domain.BalanceUpdate{Balance: amount, LockedBalance: amount.Neg()}
	}
	updated := delta.Apply(*w, rec.now())
	if err := r.Wallets.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}
	if err := r.Outbox.Insert(ctx, domain.NewFundsMovedEvent(&updated, lock, amount, reference)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return &updated, nil
}

// SettleLocked pays out a held withdrawal: the pending entry's amount leaves
// the locked balance and the entry completes with balance_after equal to the
// current available balance.
func (rec *Recorder) SettleLocked(ctx context.Context, r repository.Repos, userID uuid.UUID, txID string, meta domain.Metadata) (*Posting, error) {
	w, err := rec.LockWallet(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	pending, err := rec.pendingEntry(ctx, r, w, txID)
	if err != nil {
		return nil, err
	}
	if !pending.Amount.IsNegative() {
		return nil, domain.ErrConflict(fmt.Sprintf("transaction %s is not a debit", txID))
	}

	held := pending.Amount.Abs()
	if w.LockedBalance.LessThan(held) {
		return nil, domain.ErrConflict(fmt.Sprintf("locked balance %s is below %s", w.LockedBalance, held))
	}

	updated := domain.BalanceUpdate{LockedBalance: held.Neg()}.
		Plus(domain.CounterUpdate(pending.Type, pending.Amount)).
		Apply(*w, rec.now())
	if err := r.Wallets.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}

	after := updated.Balance
	tx, err := r.Transactions.Finalize(ctx, txID, repository.Finalization{
		Status:        domain.TxStatusCompleted,
		BalanceBefore: after.Sub(pending.Amount),
		BalanceAfter:  after,
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	if err := r.Outbox.Insert(ctx, domain.NewTransactionFinalizedEvent(tx)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return &Posting{Transaction: tx, Wallet: &updated}, nil
}

func (rec *Recorder) pendingEntry(ctx context.Context, r repository.Repos, w *domain.Wallet, txID string) (*domain.Transaction, error) {
	tx, err := r.Transactions.Find(ctx, domain.TransactionFilter{ID: txID, WalletID: &w.ID})
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if tx == nil {
		return nil, domain.ErrNotFound("transaction", txID)
	}
	if tx.Status != domain.TxStatusPending {
		return nil, domain.ErrConflict(fmt.Sprintf("transaction %s is already %s", txID, tx.Status))
	}
	return tx, nil
}

func (rec *Recorder) newTransaction(e Entry, w *domain.Wallet, status domain.TransactionStatus, now time.Time) *domain.Transaction {
	prefix := e.IDPrefix
	if prefix == "" {
		prefix = e.Type.IDPrefix()
	}
	meta := e.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	return &domain.Transaction{
		ID:            NewTransactionID(prefix, now),
		WalletID:      w.ID,
		UserID:        w.UserID,
		Type:          e.Type,
		Status:        status,
		Amount:        domain.Money(e.Amount),
		PaymentMethod: e.Method,
		ProviderRef:   e.ProviderRef,
		Metadata:      meta,
		Description:   e.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (rec *Recorder) append(ctx context.Context, r repository.Repos, tx *domain.Transaction) error {
	if err := r.Transactions.Append(ctx, tx); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	if err := r.Outbox.Insert(ctx, domain.NewTransactionPostedEvent(tx)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func validateEntry(e Entry) error {
	if !e.Type.Valid() {
		return domain.ErrValidation(fmt.Sprintf("unknown transaction type %q", e.Type))
	}
	if e.UserID == uuid.Nil {
		return domain.ErrValidation("user id is required")
	}
	if e.Amount.IsZero() {
		return domain.ErrValidation("amount must be non-zero")
	}
	return domain.ValidatePositiveAmount(e.Amount.Abs())
}
