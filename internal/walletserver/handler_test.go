package walletserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/repository"
	"github.com/attaboy/walletcore/internal/service"
)

const callbackSecret = "game-callback-secret"

type callbackEnv struct {
	srv    *httptest.Server
	signer *provider.SettlementVerifier
	store  *repository.MemoryStore
}

func newCallbackEnv(t *testing.T) *callbackEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	rec := ledger.NewRecorder("BDT")
	games := service.NewGamePlayService(store, rec, logger)
	wallets := service.NewWalletService(store, nil, policy.DefaultLimits(), "BDT", logger)

	srv := httptest.NewServer(NewServer(games, wallets, callbackSecret, logger).Routes())
	t.Cleanup(srv.Close)
	return &callbackEnv{srv: srv, signer: provider.NewSettlementVerifier(callbackSecret), store: store}
}

func (e *callbackEnv) call(t *testing.T, path string, cb Callback, sign bool) (int, Response) {
	t.Helper()
	body, err := json.Marshal(cb)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if sign {
		req.Header.Set(SignatureHeader, e.signer.Sign(body, time.Now()))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// --- Callback Tests ---

func TestCallbacks_RoundTrip(t *testing.T) {
	env := newCallbackEnv(t)
	userID := uuid.New()

	status, out := env.call(t, "/balance", Callback{UserID: userID}, true)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.00", out.Balance)

	status, out = env.call(t, "/bet", Callback{CallbackID: "cb-1", UserID: userID, GameID: "crash", Amount: mustDec("10")}, true)
	assert.Equal(t, http.StatusBadRequest, status, "empty wallet")
	assert.Equal(t, "INSUFFICIENT_FUNDS", out.Code)
	assert.Equal(t, status, out.Status)

	status, out = env.call(t, "/win", Callback{CallbackID: "cb-2", UserID: userID, GameID: "crash", RoundID: "r1", Amount: mustDec("100")}, true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "100.00", out.Balance)
	assert.NotEmpty(t, out.TransactionID)

	status, bet := env.call(t, "/bet", Callback{CallbackID: "cb-3", UserID: userID, GameID: "crash", RoundID: "r2", Amount: mustDec("40")}, true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "60.00", bet.Balance)

	status, out = env.call(t, "/refund", Callback{CallbackID: "cb-4", UserID: userID, GameID: "crash", BetTransactionID: bet.TransactionID, Amount: mustDec("40")}, true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "100.00", out.Balance)

	t.Run("replayed callback returns balance without posting", func(t *testing.T) {
		status, out := env.call(t, "/bet", Callback{CallbackID: "cb-3", UserID: userID, GameID: "crash", Amount: mustDec("40")}, true)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, out.Duplicate)
		assert.Equal(t, "100.00", out.Balance)
	})

	t.Run("failed callback can be retried", func(t *testing.T) {
		status, _ := env.call(t, "/bet", Callback{CallbackID: "cb-5", UserID: userID, GameID: "crash", Amount: mustDec("500")}, true)
		assert.Equal(t, http.StatusBadRequest, status)
		status, out := env.call(t, "/bet", Callback{CallbackID: "cb-5", UserID: userID, GameID: "crash", Amount: mustDec("50")}, true)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, out.Duplicate)
		assert.Equal(t, "50.00", out.Balance)
	})

	res, err := ledger.AuditWallet(t.Context(), env.store, userID)
	require.NoError(t, err)
	assert.True(t, res.AllPassed)
}

func TestCallbacks_Rejections(t *testing.T) {
	env := newCallbackEnv(t)
	userID := uuid.New()

	tests := []struct {
		name   string
		path   string
		cb     Callback
		sign   bool
		status int
	}{
		{"unsigned", "/win", Callback{UserID: userID, GameID: "crash", Amount: mustDec("1")}, false, http.StatusUnauthorized},
		{"missing user", "/win", Callback{GameID: "crash", Amount: mustDec("1")}, true, http.StatusBadRequest},
		{"missing game", "/win", Callback{UserID: userID, Amount: mustDec("1")}, true, http.StatusBadRequest},
		{"refund without bet", "/refund", Callback{UserID: userID, GameID: "crash", Amount: mustDec("1")}, true, http.StatusBadRequest},
		{"refund of unknown bet", "/refund", Callback{UserID: userID, GameID: "crash", BetTransactionID: "BET_1_x", Amount: mustDec("1")}, true, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := env.call(t, tt.path, tt.cb, tt.sign)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, out.Error)
		})
	}
}

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
