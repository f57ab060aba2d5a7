package gateway_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	httpapi "github.com/shopscribe/shopscribe/internal/gateway/http"
	"github.com/shopscribe/shopscribe/internal/gateway/idp"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/internal/gateway/store/drivers/sqlite"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
	"github.com/shopscribe/shopscribe/pkg/httpx"
	"github.com/shopscribe/shopscribe/pkg/jwtx"
	"github.com/shopscribe/shopscribe/pkg/slogx"
	"github.com/stretchr/testify/require"
)

/*
 * Common helpers for gateway end-to-end tests. The whole stack runs
 * in-process: a fake identity provider serving a real JWKS document, the
 * sqlite store, the full service graph and the HTTP router behind an
 * httptest server. Tests talk to it over a real TCP socket with RS256
 * signed credentials.
 */

const (
	e2eIssuer   = "https://id.example.test/shopscribe"
	e2eAudience = "shopscribe-prod"
	e2eOrigin   = "https://app.shopscribe.test"
	e2eKid      = "e2e-key-1"
)

var e2eMasterSecret = []byte("e2e-master-secret-0123456789abcdef")

type env struct {
	baseURL string
	store   store.Store
	signKey *rsa.PrivateKey
	seq     int
}

func setupGateway(t *testing.T) *env {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{
			Keys: []jwtx.JWK{jwtx.NewRSAJWK(e2eKid, &priv.PublicKey)},
		})
	}))
	t.Cleanup(jwks.Close)

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slogx.NewTestLogger()
	provider := idp.NewJWKSAdapter(idp.JWKSAdapterConfig{
		JWKSURL:  jwks.URL,
		Issuer:   e2eIssuer,
		Audience: e2eAudience,
	}, logger)
	require.NoError(t, provider.RefreshKeys(context.Background()))

	audit := service.NewAuditService(st, logger)
	locks := service.NewLockService(st, audit, "e2e-node")
	risk := service.NewRiskService(st, audit)
	replay := service.NewReplayGuard(st, locks, risk, audit, "e2e-node", service.DefaultReplayWindow)

	signer, err := cryptox.NewSigner(e2eMasterSecret, "session")
	require.NoError(t, err)

	router := httpapi.NewRouter("e2e", st, provider, httpx.CORSConfig{
		AllowedOrigins: []string{e2eOrigin},
	}, logger)
	router.AuthzService = service.NewAuthzService(st, audit)
	router.VerifierService = service.NewVerifierService(provider, replay, audit, e2eAudience)
	router.SessionService = service.NewSessionService(signer, st, replay, audit, "shopscribe.test")
	router.UserService = service.NewUserService(st, audit)
	router.AuditService = audit

	catalog := service.NewStaticCatalog()
	catalog.Add(service.Product{Barcode: "5000112637922", Name: "Cola Zero", Brand: "Coca-Cola"})
	router.ProductService = service.NewProductService(catalog, service.TemplateGenerator{}, router.AuthzService)
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &env{baseURL: srv.URL, store: st, signKey: priv}
}

// mintToken signs a provider credential for subject. Each call gets a fresh
// jti so credentials of the same subject never share a fingerprint.
func (e *env) mintToken(t *testing.T, subject string, mutate ...func(*jwtx.Claims)) string {
	t.Helper()

	e.seq++
	claims := jwtx.NewIdentityClaims(
		subject, subject+"@example.test", true,
		e2eIssuer, []string{e2eAudience}, time.Hour, time.Now().UTC(),
	)
	claims.ID = fmt.Sprintf("jti-%s-%d", subject, e.seq)
	for _, fn := range mutate {
		fn(&claims)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = e2eKid
	raw, err := tok.SignedString(e.signKey)
	require.NoError(t, err)
	return raw
}

type response struct {
	status  int
	header  http.Header
	body    map[string]any
	cookies []*http.Cookie
}

// post sends a JSON request with the allow-listed origin.
func (e *env) post(t *testing.T, path string, payload any, decorate ...func(*http.Request)) response {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.baseURL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Origin", e2eOrigin)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range decorate {
		fn(req)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &body), "body: %s", data)
	}
	return response{status: res.StatusCode, header: res.Header, body: body, cookies: res.Cookies()}
}

func asBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}
