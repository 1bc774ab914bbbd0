package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour, 8*time.Hour)
}

// --- Token Tests ---

func TestGenerateAndValidatePlayerToken(t *testing.T) {
	mgr := newTestJWTManager()
	playerID := uuid.New()

	token, err := mgr.GenerateToken(RealmPlayer, playerID, "test@test.com", "")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmPlayer)
	require.NoError(t, err)
	assert.Equal(t, playerID.String(), claims.Subject)
	assert.Equal(t, RealmPlayer, claims.Realm)
	assert.Equal(t, "test@test.com", claims.Email)

	id, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, playerID, id)
}

func TestGenerateAndValidateAdminToken(t *testing.T) {
	mgr := newTestJWTManager()
	adminID := uuid.New()

	token, err := mgr.GenerateToken(RealmAdmin, adminID, "admin@test.com", RoleSuperAdmin)
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmAdmin)
	require.NoError(t, err)
	assert.Equal(t, RealmAdmin, claims.Realm)
	assert.Equal(t, RoleSuperAdmin, claims.Role)
}

func TestUnknownRealmRejected(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(Realm("affiliate"), uuid.New(), "", "")
	assert.Error(t, err)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmPlayer, uuid.New(), "", "")
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmAdmin)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm admin")
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 24*time.Hour, 8*time.Hour)
	mgr2 := NewJWTManager("secret-2", 24*time.Hour, 8*time.Hour)

	token, err := mgr1.GenerateToken(RealmPlayer, uuid.New(), "", "")
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mgr := newTestJWTManager().WithClock(func() time.Time { return now })

	token, err := mgr.GenerateToken(RealmPlayer, uuid.New(), "", "")
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	d, err := ParseExpiry("JWT_PLAYER_EXPIRY", "24h")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = ParseExpiry("JWT_PLAYER_EXPIRY", "soon")
	assert.Error(t, err)
	_, err = ParseExpiry("JWT_ADMIN_EXPIRY", "-1h")
	assert.Error(t, err)
}

// --- Middleware Tests ---

func TestAuthenticateMiddleware(t *testing.T) {
	mgr := newTestJWTManager()
	playerID := uuid.New()
	playerToken, err := mgr.GenerateToken(RealmPlayer, playerID, "p@test.com", "")
	require.NoError(t, err)
	viewerToken, err := mgr.GenerateToken(RealmAdmin, uuid.New(), "viewer@test.com", RoleViewer)
	require.NoError(t, err)
	adminToken, err := mgr.GenerateToken(RealmAdmin, uuid.New(), "ops@test.com", RoleAdmin)
	require.NoError(t, err)
	cashierToken, err := mgr.GenerateToken(RealmAdmin, uuid.New(), "till@test.com", RoleCashier)
	require.NoError(t, err)

	var seen uuid.UUID
	var actor string
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		actor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	player := AuthenticatePlayer(mgr)(ok)
	reviewer := AuthenticateAdmin(mgr)(RequireRole(ReviewRoles()...)(ok))
	granter := AuthenticateAdmin(mgr)(RequireRole(GrantRoles()...)(ok))

	serve := func(h http.Handler, header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		want    int
	}{
		{"player ok", player, "Bearer " + playerToken, http.StatusNoContent},
		{"missing header", player, "", http.StatusUnauthorized},
		{"wrong scheme", player, "Basic " + playerToken, http.StatusUnauthorized},
		{"admin token on player route", player, "Bearer " + adminToken, http.StatusUnauthorized},
		{"viewer cannot review", reviewer, "Bearer " + viewerToken, http.StatusForbidden},
		{"cashier can review", reviewer, "Bearer " + cashierToken, http.StatusNoContent},
		{"admin can review", reviewer, "Bearer " + adminToken, http.StatusNoContent},
		{"cashier cannot grant", granter, "Bearer " + cashierToken, http.StatusForbidden},
		{"admin can grant", granter, "Bearer " + adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(tt.handler, tt.header))
		})
	}

	serve(player, "Bearer "+playerToken)
	assert.Equal(t, playerID, seen)
	assert.Equal(t, "p@test.com", actor)
}
