package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guardedHandler(g *Guard, p Policy) http.Handler {
	return g.Require(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PrincipalFrom(r.Context()))
	}))
}

type guardResult struct {
	status    int
	principal Principal
	errMsg    string
}

func callGuard(t *testing.T, h http.Handler, token string) guardResult {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := guardResult{status: rec.Code}
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.principal))
		return res
	}

	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	res.errMsg = env.Error
	return res
}

func TestGuard_Policies(t *testing.T) {
	ti := NewTokenIssuer(testSecret, "kbportal", time.Hour)
	g := NewGuard(ti)

	userTok, err := ti.Issue(Identity{ID: "u-1", DisplayName: "bob"})
	require.NoError(t, err)
	adminTok, err := ti.Issue(Identity{ID: "a-1", DisplayName: "root", Admin: true})
	require.NoError(t, err)

	old := NewTokenIssuer(testSecret, "kbportal", time.Hour)
	old.now = fixedClock(time.Now().Add(-2 * time.Hour))
	expiredTok, err := old.Issue(Identity{ID: "u-1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		policy     Policy
		token      string
		wantStatus int
		wantID     string
		wantErr    string
	}{
		{"optional without token is guest", PolicyOptional, "", 200, GuestID, ""},
		{"optional with garbage is guest", PolicyOptional, "garbage", 200, GuestID, ""},
		{"optional with expired is guest", PolicyOptional, expiredTok, 200, GuestID, ""},
		{"optional with valid token", PolicyOptional, userTok, 200, "u-1", ""},
		{"mandatory without token", PolicyMandatory, "", 401, "", "authentication required"},
		{"mandatory with expired token", PolicyMandatory, expiredTok, 401, "", "token expired"},
		{"mandatory with garbage", PolicyMandatory, "garbage", 401, "", "invalid token"},
		{"mandatory with valid token", PolicyMandatory, userTok, 200, "u-1", ""},
		{"admin with non-admin token", PolicyAdmin, userTok, 403, "", "admin privileges required"},
		{"admin without token", PolicyAdmin, "", 401, "", "authentication required"},
		{"admin with admin token", PolicyAdmin, adminTok, 200, "a-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callGuard(t, guardedHandler(g, tt.policy), tt.token)
			require.Equal(t, tt.wantStatus, res.status)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantID, res.principal.ID)
				assert.Equal(t, tt.wantID != GuestID, res.principal.Authenticated)
				return
			}
			assert.Equal(t, tt.wantErr, res.errMsg)
		})
	}
}

func TestGuard_LowercaseBearerScheme(t *testing.T) {
	ti := NewTokenIssuer(testSecret, "kbportal", time.Hour)
	tok, err := ti.Issue(Identity{ID: "u-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+tok)

	pr, _, err := NewGuard(ti).Resolve(req, PolicyMandatory)
	require.NoError(t, err)
	assert.Equal(t, "u-1", pr.ID)
}

func TestPrincipalFrom_DefaultsToGuest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, Guest, PrincipalFrom(req.Context()))

	ctx := WithPrincipal(req.Context(), Principal{ID: "x", Authenticated: true})
	assert.Equal(t, "x", PrincipalFrom(ctx).ID)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":          PolicyMandatory,
		"mandatory": PolicyMandatory,
		" Admin ":   PolicyAdmin,
		"optional":  PolicyOptional,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("root")
	assert.Error(t, err)
}
