package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attaboy/walletcore/internal/domain"
)

func newWallet(t *testing.T, s *MemoryStore, balance int64) *domain.Wallet {
	t.Helper()
	w := domain.NewWallet(uuid.New(), "BDT", time.Now())
	w.Balance = decimal.NewFromInt(balance)
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, r Repos) error {
		return r.Wallets.Create(ctx, w)
	}))
	return w
}

func TestMemoryStore_CommitsOnSuccess(t *testing.T) {
	s := NewMemoryStore()
	w := newWallet(t, s, 100)

	got, err := s.Repos().Wallets.FindByUserID(context.Background(), w.UserID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	byID, err := s.Repos().Wallets.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.UserID, byID.UserID)
}

func TestMemoryStore_DiscardsOnError(t *testing.T) {
	s := NewMemoryStore()
	w := newWallet(t, s, 100)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, r Repos) error {
		locked, err := r.Wallets.LockForUpdate(ctx, w.UserID)
		require.NoError(t, err)
		locked.Balance = decimal.NewFromInt(1)
		require.NoError(t, r.Wallets.Save(ctx, locked))
		require.NoError(t, r.Transactions.Append(ctx, &domain.Transaction{ID: "TX_1", WalletID: w.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := s.Repos().Wallets.FindByUserID(context.Background(), w.UserID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
	tx, _ := s.Repos().Transactions.Find(context.Background(), domain.TransactionFilter{ID: "TX_1"})
	assert.Nil(t, tx)
}

func TestMemoryStore_MissingRowsReturnNil(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	w, err := s.Repos().Wallets.FindByUserID(ctx, uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, w)

	req, err := s.Repos().Requests.Get(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, req)

	p, err := s.Repos().Users.GetProfile(ctx, uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryTransactions_FinalizeOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	repo := s.Repos().Transactions

	require.NoError(t, repo.Append(ctx, &domain.Transaction{
		ID: "DEP_1", Status: domain.TxStatusPending, Amount: decimal.NewFromInt(50),
		Metadata: domain.Metadata{"paymentRequestId": "r1"},
	}))

	tx, err := repo.Finalize(ctx, "DEP_1", Finalization{
		Status:        domain.TxStatusCompleted,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.NewFromInt(50),
		Metadata:      domain.Metadata{"approvedBy": "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	assert.Equal(t, "r1", tx.Metadata["paymentRequestId"])
	assert.Equal(t, "admin", tx.Metadata["approvedBy"])

	_, err = repo.Finalize(ctx, "DEP_1", Finalization{Status: domain.TxStatusFailed})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeConflict))

	// metadata stays writable after the terminal status
	require.NoError(t, repo.Annotate(ctx, "DEP_1", domain.Metadata{"note": "late"}))
	tx, _ = repo.Find(ctx, domain.TransactionFilter{ID: "DEP_1"})
	assert.Equal(t, "late", tx.Metadata["note"])
	assert.True(t, tx.BalanceAfter.Equal(decimal.NewFromInt(50)))

	_, err = repo.Finalize(ctx, "missing", Finalization{Status: domain.TxStatusFailed})
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
}

func TestMemoryTransactions_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	walletID := uuid.New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Repos().Transactions.Append(ctx, &domain.Transaction{ID: id, WalletID: walletID, Type: domain.TxBet}))
	}
	require.NoError(t, s.Repos().Transactions.Append(ctx, &domain.Transaction{ID: "other", WalletID: uuid.New()}))

	txs, err := s.Repos().Transactions.List(ctx, domain.TransactionFilter{WalletID: &walletID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "c", txs[0].ID)
	assert.Equal(t, "b", txs[1].ID)

	rest, err := s.Repos().Transactions.List(ctx, domain.TransactionFilter{WalletID: &walletID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].ID)
}

func TestMemoryRequests_PendingUniqueness(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	repo := s.Repos().Requests

	first := &domain.PaymentRequest{ID: "r1", ExternalTxID: "TX12345678", Method: domain.MethodBkash, Status: domain.RequestPending}
	require.NoError(t, repo.Create(ctx, first))

	dup := &domain.PaymentRequest{ID: "r2", ExternalTxID: "TX12345678", Method: domain.MethodBkash, Status: domain.RequestPending}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrPendingDuplicate)

	// same id on another method is fine
	other := &domain.PaymentRequest{ID: "r3", ExternalTxID: "TX12345678", Method: domain.MethodNagad, Status: domain.RequestPending}
	require.NoError(t, repo.Create(ctx, other))

	first.Status = domain.RequestRejected
	require.NoError(t, repo.Update(ctx, first))
	require.NoError(t, repo.Create(ctx, dup))

	found, err := repo.FindPendingByExternalTxID(ctx, "TX12345678", domain.MethodBkash)
	require.NoError(t, err)
	assert.Equal(t, "r2", found.ID)

	pending, err := repo.ListByStatus(ctx, domain.RequestPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "r3", pending[0].ID)
}

func TestMemoryRequests_PagingAndCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	repo := s.Repos().Requests
	userID := uuid.New()

	for _, id := range []string{"01C", "01A", "01D", "01B"} {
		require.NoError(t, repo.Create(ctx, &domain.PaymentRequest{
			ID: id, UserID: userID, ExternalTxID: "TX" + id, Method: domain.MethodBkash, Status: domain.RequestProcessing,
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.PaymentRequest{
		ID: "01E", UserID: userID, ExternalTxID: "TX01E", Method: domain.MethodBkash, Status: domain.RequestPending,
	}))

	var seen []string
	after := ""
	for {
		page, err := repo.ListByStatusAfter(ctx, domain.RequestProcessing, after, 3)
		require.NoError(t, err)
		for _, r := range page {
			seen = append(seen, r.ID)
		}
		if len(page) < 3 {
			break
		}
		after = page[len(page)-1].ID
	}
	assert.Equal(t, []string{"01A", "01B", "01C", "01D"}, seen)

	n, err := repo.CountByUser(ctx, userID, domain.RequestProcessing)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = repo.CountByUser(ctx, uuid.New(), domain.RequestProcessing)
	require.NoError(t, err)
	assert.Zero(t, n)

	claimed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req, err := repo.Get(ctx, "01A")
	require.NoError(t, err)
	req.DispatchedAt = &claimed
	require.NoError(t, repo.Update(ctx, req))
	got, err := repo.Get(ctx, "01A")
	require.NoError(t, err)
	require.NotNil(t, got.DispatchedAt)
	assert.True(t, got.PayoutClaimed())
}

func TestMemoryBonuses(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	repo := s.Repos().Bonuses
	userID := uuid.New()

	g := &domain.BonusGrant{UserID: userID, Kind: domain.BonusWelcome, GrantKey: "welcome"}
	inserted, err := repo.RecordGrant(ctx, g)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.RecordGrant(ctx, g)
	require.NoError(t, err)
	assert.False(t, inserted)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveStreak(ctx, &domain.BonusStreak{UserID: userID, LastClaimDate: &old, CurrentStreak: 3}))
	other := uuid.New()
	require.NoError(t, repo.SaveStreak(ctx, &domain.BonusStreak{UserID: other, LastClaimDate: &recent, CurrentStreak: 2}))

	n, err := repo.ResetStaleStreaks(ctx, time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, _ := repo.GetStreak(ctx, userID)
	assert.Equal(t, 0, st.CurrentStreak)
	st, _ = repo.GetStreak(ctx, other)
	assert.Equal(t, 2, st.CurrentStreak)
}

func TestMemoryOutbox(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, r Repos) error {
		for range 3 {
			if err := r.Outbox.Insert(ctx, domain.OutboxDraft{EventID: uuid.New()}); err != nil {
				return err
			}
		}
		return nil
	}))

	recs, err := s.Outbox().FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(1), recs[0].SeqID)

	require.NoError(t, s.Outbox().MarkPublished(ctx, []int64{1, 2}))
	recs, _ = s.Outbox().FetchUnpublished(ctx, 10)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].SeqID)
}

func TestMemoryStore_SerialisesUnitsOfWork(t *testing.T) {
	s := NewMemoryStore()
	w := newWallet(t, s, 0)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(context.Background(), func(ctx context.Context, r Repos) error {
				locked, err := r.Wallets.LockForUpdate(ctx, w.UserID)
				if err != nil {
					return err
				}
				locked.Balance = locked.Balance.Add(decimal.NewFromInt(1))
				return r.Wallets.Save(ctx, locked)
			})
		}()
	}
	wg.Wait()

	got, _ := s.Repos().Wallets.FindByUserID(context.Background(), w.UserID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(50)))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, func(context.Context, Repos) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
