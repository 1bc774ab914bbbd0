package app

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

	"github.com/attaboy/walletcore/internal/auth"
	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/guard"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/projection"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/repository"
	"github.com/attaboy/walletcore/internal/service"
)

const webhookSecret = "router-test-secret"

type apiEnv struct {
	server *httptest.Server
	store  *repository.MemoryStore
	jwt    *auth.JWTManager
	userID uuid.UUID
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	cache := projection.NewInMemoryStore()

	breaker := guard.NewCircuitBreaker(5, time.Minute)
	gw := provider.NewGateway(provider.NewRateSource("http://127.0.0.1:1", cache, breaker, logger), breaker, logger).
		Register(domain.MethodBkash, provider.NewAgentDesk("01900000000"))

	svcs, err := NewServices(ServiceDeps{
		Store:    store,
		Cache:    cache,
		Gateway:  gw,
		Logger:   logger,
		Currency: "BDT",
		Location: time.UTC,
		Requests: service.PaymentRequestConfig{
			Limits:           policy.DefaultLimits(),
			Routing:          policy.DefaultMethodRoutingPolicy(),
			AgentNumbers:     map[domain.PaymentMethod]string{domain.MethodBkash: "01900000000"},
			SettlementSecret: webhookSecret,
		},
	})
	require.NoError(t, err)

	jwtMgr := auth.NewJWTManager("router-test-jwt-secret", time.Hour, time.Hour)
	srv := httptest.NewServer(NewRouter(RouterDeps{Services: svcs, JWTMgr: jwtMgr, Logger: logger}))
	t.Cleanup(srv.Close)

	userID := uuid.New()
	store.PutUser(domain.UserProfile{
		ID:                  userID,
		MinWithdrawalAmount: decimal.NewFromInt(100),
		MaxWithdrawalAmount: decimal.NewFromInt(50000),
		TotalWagered:        decimal.NewFromInt(1000),
		PaymentNumbers: map[domain.PaymentMethod]domain.VerifiedNumber{
			domain.MethodBkash: {Number: "01712345678", Verified: true},
		},
		Currency: "BDT",
	})
	return &apiEnv{server: srv, store: store, jwt: jwtMgr, userID: userID}
}

func (e *apiEnv) token(t *testing.T, realm auth.Realm, role string) string {
	t.Helper()
	subject := e.userID
	if realm == auth.RealmAdmin {
		subject = uuid.New()
	}
	tok, err := e.jwt.GenerateToken(realm, subject, "ops@walletcore.test", role)
	require.NoError(t, err)
	return tok
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// --- Router Tests ---

func TestRouter_DepositReviewFlow(t *testing.T) {
	env := newAPIEnv(t)
	player := env.token(t, auth.RealmPlayer, "")
	viewer := env.token(t, auth.RealmAdmin, auth.RoleViewer)
	admin := env.token(t, auth.RealmAdmin, auth.RoleAdmin)

	status, created := env.do(t, http.MethodPost, "/payment-requests", player, map[string]any{
		"type":           "deposit",
		"method":         "bkash",
		"amount":         "500",
		"external_tx_id": "TRX12345678",
		"sender_number":  "01812345678",
	})
	require.Equal(t, http.StatusCreated, status, created)
	assert.Equal(t, "pending", created["status"])
	id := created["id"].(string)

	status, pending := env.do(t, http.MethodGet, "/admin/payment-requests/pending", viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, pending["requests"], 1)

	status, _ = env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/approve", viewer, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, approved := env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/approve", admin, map[string]string{"note": "matched statement"})
	require.Equal(t, http.StatusOK, status, approved)
	assert.Equal(t, "completed", approved["status"])

	status, again := env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/approve", admin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, domain.CodeNotPending, again["code"])

	status, wallet := env.do(t, http.MethodGet, "/wallet", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "500", wallet["balance"])

	status, audit := env.do(t, http.MethodGet, "/admin/wallets/"+env.userID.String()+"/audit", viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, audit["all_passed"])
}

func TestRouter_PlayerEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	player := env.token(t, auth.RealmPlayer, "")

	status, claim := env.do(t, http.MethodPost, "/bonus/daily", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "10", claim["amount"])

	status, streak := env.do(t, http.MethodGet, "/bonus/streak", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, streak["current_streak"])

	status, elig := env.do(t, http.MethodGet, "/withdrawals/eligibility?amount=500", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, elig["allowed"])

	status, stats := env.do(t, http.MethodGet, "/stats/me", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, stats["can_withdraw"])

	status, txs := env.do(t, http.MethodGet, "/wallet/transactions?type=bonus", player, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, txs["transactions"], 1)

	status, _ = env.do(t, http.MethodGet, "/wallet/transactions?limit=zero", player, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_Rejections(t *testing.T) {
	env := newAPIEnv(t)
	player := env.token(t, auth.RealmPlayer, "")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
		code   string
	}{
		{"no token", http.MethodGet, "/wallet", "", nil, http.StatusUnauthorized, domain.CodeUnauthorized},
		{"player token on admin route", http.MethodGet, "/admin/payment-requests/pending", player, nil, http.StatusUnauthorized, domain.CodeUnauthorized},
		{"unknown method", http.MethodPost, "/payment-requests", player, map[string]any{
			"type": "deposit", "method": "paypal", "amount": "500", "external_tx_id": "TRX1", "sender_number": "01812345678",
		}, http.StatusBadRequest, domain.CodeValidation},
		{"three decimals", http.MethodPost, "/payment-requests", player, map[string]any{
			"type": "deposit", "method": "bkash", "amount": "10.001", "external_tx_id": "TRX1", "sender_number": "01812345678",
		}, http.StatusBadRequest, domain.CodeValidation},
		{"missing fields", http.MethodPost, "/payment-requests", player, map[string]any{"type": "deposit"}, http.StatusBadRequest, domain.CodeValidation},
		{"someone else's request", http.MethodGet, "/payment-requests/01JNOTMINE", player, nil, http.StatusNotFound, domain.CodeNotFound},
		{"unknown rate", http.MethodGet, "/rates/doge", player, nil, http.StatusNotFound, domain.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, status, body)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestRouter_SettlementWebhookRequiresSignature(t *testing.T) {
	env := newAPIEnv(t)
	payload := []byte(`{"id":"evt_1","request_id":"01JUNKNOWN","status":"completed"}`)

	post := func(sig string) int {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhooks/settlement", bytes.NewReader(payload))
		require.NoError(t, err)
		if sig != "" {
			req.Header.Set(provider.SettlementHeader, sig)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("t=1,v1=deadbeef"))

	signed := provider.NewSettlementVerifier(webhookSecret).Sign(payload, time.Now())
	assert.Equal(t, http.StatusNotFound, post(signed), "verified event for an unknown request")
}

func TestRouter_Health(t *testing.T) {
	env := newAPIEnv(t)
	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestRouter_ManualPayoutSettleAndFail(t *testing.T) {
	env := newAPIEnv(t)
	player := env.token(t, auth.RealmPlayer, "")
	viewer := env.token(t, auth.RealmAdmin, auth.RoleViewer)
	cashier := env.token(t, auth.RealmAdmin, auth.RoleCashier)

	submit := func(body map[string]any) string {
		t.Helper()
		status, created := env.do(t, http.MethodPost, "/payment-requests", player, body)
		require.Equal(t, http.StatusCreated, status, created)
		id := created["id"].(string)
		status, approved := env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/approve", cashier, nil)
		require.Equal(t, http.StatusOK, status, approved)
		return id
	}
	withdraw := func(extID string) string {
		t.Helper()
		id := submit(map[string]any{
			"type": "withdrawal", "method": "bkash", "amount": "300",
			"external_tx_id": extID, "sender_number": "01712345678",
		})
		status, req := env.do(t, http.MethodGet, "/admin/payment-requests/"+id, viewer, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "processing", req["status"])
		require.Equal(t, "bkash:desk_payout_"+id, req["provider_ref"])
		return id
	}
	wallet := func() map[string]any {
		t.Helper()
		status, w := env.do(t, http.MethodGet, "/wallet", player, nil)
		require.Equal(t, http.StatusOK, status)
		return w
	}

	submit(map[string]any{
		"type": "deposit", "method": "bkash", "amount": "1000",
		"external_tx_id": "DEP00000001", "sender_number": "01812345678",
	})

	t.Run("settle", func(t *testing.T) {
		id := withdraw("WDR00000001")
		assert.Equal(t, "300", wallet()["locked_balance"])

		status, _ := env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/settle", viewer, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status, settled := env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/settle", cashier, nil)
		require.Equal(t, http.StatusOK, status, settled)
		assert.Equal(t, "completed", settled["status"])
		notes := settled["admin_notes"].(map[string]any)
		assert.Equal(t, "ops@walletcore.test", notes["processedBy"])

		w := wallet()
		assert.Equal(t, "700", w["balance"])
		assert.Equal(t, "0", w["locked_balance"])

		status, _ = env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/settle", cashier, nil)
		assert.Equal(t, http.StatusOK, status, "settling twice is a no-op")
		status, _ = env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/fail", cashier, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("fail", func(t *testing.T) {
		id := withdraw("WDR00000002")
		assert.Equal(t, "400", wallet()["balance"])

		status, failed := env.do(t, http.MethodPost, "/admin/payment-requests/"+id+"/fail", cashier, map[string]string{"reason": "agent out of float"})
		require.Equal(t, http.StatusOK, status, failed)
		assert.Equal(t, "rejected", failed["status"])
		assert.Equal(t, "agent out of float", failed["admin_notes"].(map[string]any)["rejectionReason"])

		w := wallet()
		assert.Equal(t, "700", w["balance"])
		assert.Equal(t, "0", w["locked_balance"])
	})

	status, audit := env.do(t, http.MethodGet, "/admin/wallets/"+env.userID.String()+"/audit", viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, audit["all_passed"])
}
