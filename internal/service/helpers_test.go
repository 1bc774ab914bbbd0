package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/repository"
)

const (
	testSecret    = "settlement-test-secret"
	bkashNumber   = "01712345678"
	agentNumber   = "01900000000"
	dhakaOffset   = 6 * 60 * 60
	testCurrency  = "BDT"
	depositExtID  = "TRX12345678"
	withdrawExtID = "WDR-00000001"
)

var dhaka = time.FixedZone("BDT", dhakaOffset)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store    *repository.MemoryStore
	clock    *testClock
	rec      *ledger.Recorder
	bonuses  *BonusService
	requests *PaymentRequestService
	games    *GamePlayService
	wallets  *WalletService
	postings []domain.Transaction
	mu       sync.Mutex
}

type envOption func(*PaymentRequestConfig)

func withDepositBonus() envOption {
	return func(c *PaymentRequestConfig) { c.DepositBonusEnabled = true }
}

func withRateLimit(n int) envOption {
	return func(c *PaymentRequestConfig) { c.RequestRateLimit = n }
}

func newTestEnv(t *testing.T, gateway *provider.Gateway, opts ...envOption) *testEnv {
	t.Helper()
	mem := repository.NewMemoryStore()
	return newTestEnvWithStore(t, mem, mem, gateway, opts...)
}

// newTestEnvWithStore runs services on store while assertions read mem directly.
func newTestEnvWithStore(t *testing.T, mem *repository.MemoryStore, store repository.Store, gateway *provider.Gateway, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store: mem,
		clock: newTestClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
	}
	logger := discardLogger()
	observer := ledger.ObserverFunc(func(_ context.Context, tx domain.Transaction, _ domain.Wallet) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.postings = append(env.postings, tx)
	})

	env.rec = ledger.NewRecorder(testCurrency).WithClock(env.clock.Now)
	env.bonuses = NewBonusService(store, env.rec, policy.DefaultLimits(), dhaka, logger).
		WithClock(env.clock.Now).
		WithObservers(observer)

	cfg := PaymentRequestConfig{
		Limits:           policy.DefaultLimits(),
		Routing:          policy.DefaultMethodRoutingPolicy(),
		AgentNumbers:     map[domain.PaymentMethod]string{domain.MethodBkash: agentNumber},
		SettlementSecret: testSecret,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := NewPaymentRequestService(store, env.rec, gateway, env.bonuses, cfg, logger)
	require.NoError(t, err)
	env.requests = svc.WithClock(env.clock.Now).WithObservers(observer)
	env.games = NewGamePlayService(store, env.rec, logger).WithObservers(observer)
	env.wallets = NewWalletService(store, nil, policy.DefaultLimits(), testCurrency, logger)
	return env
}

// putUser seeds a profile that may withdraw between 100 and 50000 to bkashNumber.
func (e *testEnv) putUser(wagered string) uuid.UUID {
	id := uuid.New()
	e.store.PutUser(domain.UserProfile{
		ID:                  id,
		MinWithdrawalAmount: decimal.NewFromInt(100),
		MaxWithdrawalAmount: decimal.NewFromInt(50000),
		TotalWagered:        dec(wagered),
		PaymentNumbers: map[domain.PaymentMethod]domain.VerifiedNumber{
			domain.MethodBkash: {Number: bkashNumber, Verified: true},
		},
		Currency:  testCurrency,
		CreatedAt: e.clock.Now(),
	})
	return id
}

func (e *testEnv) fund(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	require.NoError(t, e.store.InTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		_, err := e.rec.ApplyDelta(ctx, r, ledger.Entry{UserID: userID, Type: domain.TxDeposit, Amount: dec(amount)})
		return err
	}))
}

func (e *testEnv) wallet(t *testing.T, userID uuid.UUID) *domain.Wallet {
	t.Helper()
	w, err := e.store.Repos().Wallets.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func (e *testEnv) transaction(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	tx, err := e.store.Repos().Transactions.Find(context.Background(), domain.TransactionFilter{ID: id})
	require.NoError(t, err)
	require.NotNil(t, tx)
	return tx
}

func (e *testEnv) requireAudit(t *testing.T, userID uuid.UUID) {
	t.Helper()
	res, err := ledger.AuditWallet(context.Background(), e.store, userID)
	require.NoError(t, err)
	require.True(t, res.AllPassed, "failed invariants: %+v", res.Failed())
}

func (e *testEnv) postingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.postings)
}

func withdrawal(userID uuid.UUID, amount, extID string) domain.CreatePaymentRequestParams {
	return domain.CreatePaymentRequestParams{
		UserID:       userID,
		Type:         domain.RequestWithdrawal,
		Method:       domain.MethodBkash,
		Amount:       dec(amount),
		ExternalTxID: extID,
		SenderNumber: bkashNumber,
	}
}

func deposit(userID uuid.UUID, amount, extID string) domain.CreatePaymentRequestParams {
	return domain.CreatePaymentRequestParams{
		UserID:       userID,
		Type:         domain.RequestDeposit,
		Method:       domain.MethodBkash,
		Amount:       dec(amount),
		ExternalTxID: extID,
		SenderNumber: "+8801812345678",
	}
}

func requireMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// flakyStore fails the nth unit of work before it starts.
type flakyStore struct {
	*repository.MemoryStore
	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return f.MemoryStore.InTx(ctx, fn)
}

// fakeChannel is a scripted payout channel.
type fakeChannel struct {
	mu          sync.Mutex
	initiateErr error
	status      provider.PayoutStatus
	statusByRef map[string]provider.PayoutStatus
	initiated   []string
	references  []string

	entered chan string
	release chan struct{}
}

func (c *fakeChannel) InitiateDeposit(_ context.Context, amount decimal.Decimal, reference string) (*provider.Checkout, error) {
	return &provider.Checkout{ProviderRef: "chk_" + reference, PayURL: "https://pay.example/" + reference}, nil
}

func (c *fakeChannel) VerifyDeposit(context.Context, string) (bool, error) { return true, nil }

func (c *fakeChannel) InitiateWithdrawal(_ context.Context, _ decimal.Decimal, account, reference string) (string, error) {
	c.mu.Lock()
	c.references = append(c.references, reference)
	entered, release := c.entered, c.release
	c.mu.Unlock()
	if entered != nil {
		entered <- reference
		<-release
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initiateErr != nil {
		return "", c.initiateErr
	}
	c.initiated = append(c.initiated, account)
	return "payout_" + reference, nil
}

func (c *fakeChannel) WithdrawalStatus(_ context.Context, ref string) (provider.PayoutStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.statusByRef[ref]; ok {
		return s, nil
	}
	return c.status, nil
}

func (c *fakeChannel) setInitiateErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initiateErr = err
}

func (c *fakeChannel) setStatus(s provider.PayoutStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

func (c *fakeChannel) setStatusFor(ref string, s provider.PayoutStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusByRef == nil {
		c.statusByRef = make(map[string]provider.PayoutStatus)
	}
	c.statusByRef[ref] = s
}

// hold parks every InitiateWithdrawal call until release is called. Each
// parked call first sends its reference on entered.
func (c *fakeChannel) hold() (entered <-chan string, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entered = make(chan string, 8)
	c.release = make(chan struct{})
	var once sync.Once
	rel := c.release
	return c.entered, func() { once.Do(func() { close(rel) }) }
}

// attempts returns the reference of every InitiateWithdrawal call, failed ones included.
func (c *fakeChannel) attempts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.references...)
}
