package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/repository"
)

// AuditResult holds the outcome of checking one wallet against its ledger.
type AuditResult struct {
	UserID           uuid.UUID
	TransactionCount int
	Wallet           domain.Wallet
	Invariants       []InvariantCheck
	AllPassed        bool
}

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the checks that did not pass.
func (r *AuditResult) Failed() []InvariantCheck {
	var out []InvariantCheck
	for _, c := range r.Invariants {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// auditPageSize is how many ledger rows AuditWallet reads per query.
var auditPageSize = repository.MaxListLimit

// Audit validates a wallet against every ledger entry it owns.
//
// Invariants:
//  1. balance_non_negative: balance and locked balance >= 0
//  2. completed_arithmetic: balance_after = balance_before + amount on completed rows
//  3. conservation: sum of completed amounts = balance + locked balance
//  4. terminal_rows_unapplied: failed and cancelled rows never moved the balance
//  5. locked_matches_pending: locked balance = sum of pending withdrawal amounts
func Audit(w domain.Wallet, txs []domain.Transaction) *AuditResult {
	var a auditor
	a.add(txs)
	return a.result(w)
}

// auditor folds ledger rows page by page so a wallet's history never has to
// fit in one query.
type auditor struct {
	count              int
	unbalanced, moved  []string
	completed          decimal.Decimal
	pendingWithdrawals decimal.Decimal
}

func (a *auditor) add(txs []domain.Transaction) {
	a.count += len(txs)
	for i := range txs {
		tx := &txs[i]
		switch tx.Status {
		case domain.TxStatusCompleted:
			a.completed = a.completed.Add(tx.Amount)
			if !tx.Balanced() {
				a.unbalanced = append(a.unbalanced, tx.ID)
			}
		case domain.TxStatusFailed, domain.TxStatusCancelled:
			if !tx.BalanceBefore.Equal(tx.BalanceAfter) {
				a.moved = append(a.moved, tx.ID)
			}
		case domain.TxStatusPending:
			if tx.Type == domain.TxWithdrawal {
				a.pendingWithdrawals = a.pendingWithdrawals.Add(tx.Amount.Abs())
			}
		}
	}
}

func (a *auditor) result(w domain.Wallet) *AuditResult {
	checks := []InvariantCheck{
		{
			Name:   "balance_non_negative",
			Passed: !w.Balance.IsNegative() && !w.LockedBalance.IsNegative(),
			Detail: fmt.Sprintf("balance=%s locked=%s", w.Balance, w.LockedBalance),
		},
		{
			Name:   "completed_arithmetic",
			Passed: len(a.unbalanced) == 0,
			Detail: fmt.Sprintf("unbalanced=%v", a.unbalanced),
		},
		{
			Name:   "conservation",
			Passed: a.completed.Equal(w.Funds()),
			Detail: fmt.Sprintf("ledger=%s wallet=%s", a.completed, w.Funds()),
		},
		{
			Name:   "terminal_rows_unapplied",
			Passed: len(a.moved) == 0,
			Detail: fmt.Sprintf("moved=%v", a.moved),
		},
		{
			Name:   "locked_matches_pending",
			Passed: a.pendingWithdrawals.Equal(w.LockedBalance),
			Detail: fmt.Sprintf("pending=%s locked=%s", a.pendingWithdrawals, w.LockedBalance),
		},
	}

	allPassed := true
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
		}
	}
	return &AuditResult{
		UserID:           w.UserID,
		TransactionCount: a.count,
		Wallet:           w,
		Invariants:       checks,
		AllPassed:        allPassed,
	}
}

// AuditWallet loads a user's wallet and its whole ledger under the wallet lock
// and audits them. Rows are read in pages; the lock keeps new rows out while
// paging.
func AuditWallet(ctx context.Context, store repository.Store, userID uuid.UUID) (*AuditResult, error) {
	var result *AuditResult
	err := store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		w, err := r.Wallets.LockForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if w == nil {
			return domain.ErrNotFound("wallet", userID.String())
		}
		var a auditor
		for offset := 0; ; offset += auditPageSize {
			page, err := r.Transactions.List(ctx, domain.TransactionFilter{
				WalletID: &w.ID,
				Limit:    auditPageSize,
				Offset:   offset,
			})
			if err != nil {
				return err
			}
			a.add(page)
			if len(page) < auditPageSize {
				break
			}
		}
		result = a.result(*w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit wallet: %w", err)
	}
	return result, nil
}
