package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/idp"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/internal/gateway/store/drivers/sqlite"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
	"github.com/shopscribe/shopscribe/pkg/httpx"
	"github.com/shopscribe/shopscribe/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testOrigin   = "https://app.shopscribe.test"
	testAudience = "project-1"
)

var testMasterSecret = []byte("0123456789abcdef0123456789abcdef")

// gateway is a fully wired router over an in-memory store and a static
// identity provider, so handler tests exercise the real pipeline.
type gateway struct {
	router  *Router
	store   store.Store
	adapter *idp.StaticAdapter
	catalog *service.StaticCatalog
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slogx.NewTestLogger()
	audit := service.NewAuditService(st, logger)
	locks := service.NewLockService(st, audit, "node-test")
	risk := service.NewRiskService(st, audit)
	replay := service.NewReplayGuard(st, locks, risk, audit, "node-test", service.DefaultReplayWindow)

	adapter := idp.NewStaticAdapter()
	signer, err := cryptox.NewSigner(testMasterSecret, "session")
	require.NoError(t, err)

	r := NewRouter("test", st, nil, httpx.CORSConfig{
		AllowedOrigins: []string{testOrigin},
	}, logger)
	r.AuthzService = service.NewAuthzService(st, audit)
	r.VerifierService = service.NewVerifierService(adapter, replay, audit, testAudience)
	r.SessionService = service.NewSessionService(signer, st, replay, audit, "shopscribe.test")
	r.UserService = service.NewUserService(st, audit)
	r.AuditService = audit

	catalog := service.NewStaticCatalog()
	catalog.Add(service.Product{Barcode: "4006381333931", Name: "Oat Crunch", Brand: "Acme", Category: "cereal"})
	r.ProductService = service.NewProductService(catalog, service.TemplateGenerator{}, r.AuthzService)

	r.ApplyRoutes()
	return &gateway{router: r, store: st, adapter: adapter, catalog: catalog}
}

// registerToken gives the static provider a one-off credential for subject.
// Each call mints a distinct credential id so fingerprints never collide.
func (g *gateway) registerToken(t *testing.T, token, subject string, mutate ...func(*domain.Identity)) {
	t.Helper()

	now := time.Now().UTC()
	id := domain.Identity{
		SubjectID:     subject,
		CredentialID:  "cred-" + token,
		Email:         subject + "@example.test",
		EmailVerified: true,
		Audience:      []string{testAudience},
		AuthTime:      now,
		IssuedAt:      now,
		ExpiresAt:     now.Add(time.Hour),
	}
	for _, fn := range mutate {
		fn(&id)
	}
	g.adapter.Register(token, id)
}

// post sends a JSON body to path with the allow-listed origin set.
func (g *gateway) post(t *testing.T, path string, body any, decorate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range decorate {
		fn(req)
	}

	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	return rec
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// seedAdmin creates an ADMIN record directly in the store.
func (g *gateway) seedAdmin(t *testing.T, subject string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, g.store.Users().CreateUser(context.Background(), domain.UserRecord{
		SubjectID:     subject,
		Email:         subject + "@example.test",
		Role:          domain.RoleAdmin,
		Tier:          domain.TierProfessional,
		MaxUsage:      1000,
		BillingPeriod: domain.BillingPeriodOf(now),
		Status:        "active",
		CreatedAt:     now,
		LastActiveAt:  now,
		CreatedBy:     "test",
	}))
}
