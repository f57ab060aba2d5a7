package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopscribe/shopscribe/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "https://id.example.test/project-1"
	testAud    = "project-1"
	testKid    = "kid-1"
)

func newTestKeypair(t *testing.T) (*rsa.PrivateKey, *jwtx.KeySet) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(jwtx.NewRSAJWK(testKid, &priv.PublicKey)))
	return priv, keys
}

func signClaims(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwtx.Claims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestRS256Verifier(t *testing.T) {
	t.Parallel()

	priv, keys := newTestKeypair(t)
	v := jwtx.NewVerifierRS256(keys, testIssuer, []string{testAud})

	t.Run("verifies a well-formed token", func(t *testing.T) {
		claims := jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, time.Now().UTC(),
		)
		raw := signClaims(t, priv, testKid, claims)

		got, err := v.Verify(raw)
		require.NoError(t, err)
		require.Equal(t, "user_0123456789", got.Subject)
		require.True(t, got.EmailVerified)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		claims := jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, time.Now().UTC().Add(-2*time.Hour),
		)
		raw := signClaims(t, priv, testKid, claims)

		_, err := v.Verify(raw)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("rejects wrong audience", func(t *testing.T) {
		claims := jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{"other-project"}, time.Hour, time.Now().UTC(),
		)
		raw := signClaims(t, priv, testKid, claims)

		_, err := v.Verify(raw)
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})

	t.Run("rejects wrong issuer", func(t *testing.T) {
		claims := jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			"https://attacker.test", []string{testAud}, time.Hour, time.Now().UTC(),
		)
		raw := signClaims(t, priv, testKid, claims)

		_, err := v.Verify(raw)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("rejects unknown kid", func(t *testing.T) {
		claims := jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, time.Now().UTC(),
		)
		raw := signClaims(t, priv, "kid-unknown", claims)

		_, err := v.Verify(raw)
		require.Error(t, err)
	})

	t.Run("rejects token signed by a different key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		claims := jwtx.NewIdentityClaims(
			"user_0123456789", "a@example.test", true,
			testIssuer, []string{testAud}, time.Hour, time.Now().UTC(),
		)
		raw := signClaims(t, other, testKid, claims)

		_, err = v.Verify(raw)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		require.Error(t, err)
	})
}
