package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/guard"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/projection"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/repository"
	"github.com/attaboy/walletcore/internal/service"
)

type scriptedPayouts struct {
	mu     sync.Mutex
	status provider.PayoutStatus
}

func (c *scriptedPayouts) InitiateDeposit(context.Context, decimal.Decimal, string) (*provider.Checkout, error) {
	return &provider.Checkout{ProviderRef: "chk"}, nil
}

func (c *scriptedPayouts) VerifyDeposit(context.Context, string) (bool, error) { return false, nil }

func (c *scriptedPayouts) InitiateWithdrawal(_ context.Context, _ decimal.Decimal, _, reference string) (string, error) {
	return "po_" + reference, nil
}

func (c *scriptedPayouts) WithdrawalStatus(context.Context, string) (provider.PayoutStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *scriptedPayouts) set(s provider.PayoutStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// --- Sweeper Tests ---

func TestSweeper_ReconcileSettlesAndAudits(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	cache := projection.NewInMemoryStore()
	payouts := &scriptedPayouts{status: provider.PayoutPending}

	breaker := guard.NewCircuitBreaker(5, time.Minute)
	gw := provider.NewGateway(provider.NewRateSource("http://127.0.0.1:1", cache, breaker, logger), breaker, logger).
		Register(domain.MethodBkash, payouts)

	svcs, err := NewServices(ServiceDeps{
		Store:    store,
		Cache:    cache,
		Gateway:  gw,
		Logger:   logger,
		Currency: "BDT",
		Location: time.UTC,
		Requests: service.PaymentRequestConfig{
			Limits:  policy.DefaultLimits(),
			Routing: policy.DefaultMethodRoutingPolicy(),
		},
	})
	require.NoError(t, err)

	userID := uuid.New()
	store.PutUser(domain.UserProfile{
		ID:                  userID,
		MinWithdrawalAmount: decimal.NewFromInt(100),
		MaxWithdrawalAmount: decimal.NewFromInt(50000),
		TotalWagered:        decimal.NewFromInt(800),
		PaymentNumbers: map[domain.PaymentMethod]domain.VerifiedNumber{
			domain.MethodBkash: {Number: "01712345678", Verified: true},
		},
		Currency: "BDT",
	})
	_, err = svcs.Games.RecordWin(ctx, service.GameRound{UserID: userID, GameID: "crash", Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	req, err := svcs.Requests.Create(ctx, domain.CreatePaymentRequestParams{
		UserID:       userID,
		Type:         domain.RequestWithdrawal,
		Method:       domain.MethodBkash,
		Amount:       decimal.NewFromInt(400),
		ExternalTxID: "WDR-00000001",
		SenderNumber: "01712345678",
	})
	require.NoError(t, err)
	approved, err := svcs.Requests.Approve(ctx, req.ID, "ops", "")
	require.NoError(t, err)
	require.NotNil(t, approved.ProviderRef)

	sweeper := NewSweeper(svcs, time.Minute, time.Hour, logger)

	assert.Equal(t, 0, sweeper.Reconcile(ctx))
	got, err := svcs.Requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestProcessing, got.Status, "a pending payout is left alone")

	payouts.set(provider.PayoutCompleted)
	assert.Equal(t, 0, sweeper.Reconcile(ctx))
	got, err = svcs.Requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCompleted, got.Status)

	bal, err := svcs.Wallets.Balance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(bal.Balance), "got %s", bal.Balance)
	assert.True(t, bal.LockedBalance.IsZero())
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcs, err := NewServices(ServiceDeps{
		Store:    repository.NewMemoryStore(),
		Logger:   logger,
		Currency: "BDT",
		Requests: service.PaymentRequestConfig{Limits: policy.DefaultLimits()},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(svcs, time.Millisecond, time.Millisecond, logger).Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
