package idp_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopscribe/shopscribe/internal/gateway/idp"
	"github.com/shopscribe/shopscribe/pkg/jwtx"
	"github.com/shopscribe/shopscribe/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "https://id.example.test/project-1"
	testAud    = "project-1"
	testKid    = "kid-1"
)

type fakeRevocations struct {
	mu       sync.Mutex
	horizons map[string]time.Time
}

func (f *fakeRevocations) TokensRevokedAfter(_ context.Context, subjectID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.horizons[subjectID], nil
}

func newAdapterUnderTest(t *testing.T, rev idp.RevocationSource) (*idp.JWKSAdapter, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{
			Keys: []jwtx.JWK{jwtx.NewRSAJWK(testKid, &priv.PublicKey)},
		})
	}))
	t.Cleanup(srv.Close)

	a := idp.NewJWKSAdapter(idp.JWKSAdapterConfig{
		JWKSURL:     srv.URL,
		Issuer:      testIssuer,
		Audience:    testAud,
		Revocations: rev,
	}, slogx.NewTestLogger())
	require.NoError(t, a.RefreshKeys(context.Background()))
	require.True(t, a.Ready())
	return a, priv
}

func sign(t *testing.T, priv *rsa.PrivateKey, claims jwtx.Claims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKid
	raw, err := tok.SignedString(priv)
	require.NoError(t, err)
	return raw
}

func TestJWKSAdapterVerifyToken(t *testing.T) {
	rev := &fakeRevocations{horizons: make(map[string]time.Time)}
	a, priv := newAdapterUnderTest(t, rev)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("valid token yields the identity", func(t *testing.T) {
		raw := sign(t, priv, jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, now,
		))

		id, err := a.VerifyToken(ctx, raw, true)
		require.NoError(t, err)
		require.Equal(t, "user_0123456789", id.SubjectID)
		require.True(t, id.EmailVerified)
		require.WithinDuration(t, now, id.IssuedAt, 2*time.Second)
		require.WithinDuration(t, now.Add(time.Hour), id.ExpiresAt, 2*time.Second)
	})

	t.Run("expired token", func(t *testing.T) {
		raw := sign(t, priv, jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, now.Add(-2*time.Hour),
		))

		_, err := a.VerifyToken(ctx, raw, true)
		require.ErrorIs(t, err, idp.ErrTokenExpired)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := a.VerifyToken(ctx, "not.a.jwt", false)
		require.ErrorIs(t, err, idp.ErrTokenMalformed)
	})

	t.Run("revoked subject", func(t *testing.T) {
		rev.mu.Lock()
		rev.horizons["user_0123456789"] = now.Add(time.Minute)
		rev.mu.Unlock()

		raw := sign(t, priv, jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, now,
		))

		_, err := a.VerifyToken(ctx, raw, true)
		require.ErrorIs(t, err, idp.ErrTokenRevoked)

		// revocation check disabled
		_, err = a.VerifyToken(ctx, raw, false)
		require.NoError(t, err)
	})
}
