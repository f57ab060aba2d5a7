package gateway_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestLoginHappyPath(t *testing.T) {
	e := setupGateway(t)
	token := e.mintToken(t, "user_e2e_alice01")

	res := e.post(t, "/v1/session", map[string]any{
		"action":  "authenticate",
		"idToken": token,
	})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["success"])
	require.NotEmpty(t, res.body["csrfToken"])

	user := res.body["user"].(map[string]any)
	require.Equal(t, "user_e2e_alice01", user["userId"])
	require.Equal(t, "free", user["tier"])
	require.Equal(t, float64(5), user["maxUsage"])

	var sessionCookie *http.Cookie
	for _, c := range res.cookies {
		if c.Name == service.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.True(t, sessionCookie.HttpOnly)

	// the issued cookie is accepted for a follow-up verification
	res = e.post(t, "/v1/session", map[string]any{"action": "verify"}, func(r *http.Request) {
		r.AddCookie(sessionCookie)
	})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, "user_e2e_alice01", res.body["user"].(map[string]any)["userId"])
}

func TestReplayedCredentialRejected(t *testing.T) {
	e := setupGateway(t)
	token := e.mintToken(t, "user_e2e_alice01")

	res := e.post(t, "/v1/session", map[string]any{"action": "authenticate", "idToken": token})
	require.Equal(t, http.StatusOK, res.status)

	res = e.post(t, "/v1/session", map[string]any{"action": "authenticate", "idToken": token})
	require.Equal(t, http.StatusUnauthorized, res.status)
	require.Equal(t, "Authentication failed", res.body["error"])
	require.Equal(t, true, res.body["failSafe"])
	require.Nil(t, res.body["code"])
}

func TestExpiredCredential(t *testing.T) {
	e := setupGateway(t)
	token := e.mintToken(t, "user_e2e_alice01", func(c *jwtx.Claims) {
		c.IssuedAt = jwt.NewNumericDate(time.Now().UTC().Add(-2 * time.Hour))
		c.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(-time.Hour))
	})

	res := e.post(t, "/v1/session", map[string]any{"action": "authenticate", "idToken": token})
	require.Equal(t, http.StatusUnauthorized, res.status)
	require.Equal(t, "TOKEN_EXPIRED", res.body["code"])
}

func TestUnverifiedEmail(t *testing.T) {
	e := setupGateway(t)
	token := e.mintToken(t, "user_e2e_basil01", func(c *jwtx.Claims) {
		c.EmailVerified = false
	})

	res := e.post(t, "/v1/session", map[string]any{"action": "authenticate", "idToken": token})
	require.Equal(t, http.StatusForbidden, res.status)
	require.Equal(t, "Email verification required", res.body["error"])
	require.Equal(t, "EMAIL_VERIFICATION_REQUIRED", res.body["code"])
	require.Equal(t, false, res.body["emailVerified"])
}
