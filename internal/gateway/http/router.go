package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/idp"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/pkg/httpx"
	"github.com/shopscribe/shopscribe/pkg/slogx"

	_ "github.com/shopscribe/shopscribe/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	respond      *faults.Responder
	cors         httpx.CORSConfig
	limit        httpx.RateLimitConfig

	store    store.Store
	provider *idp.JWKSAdapter

	VerifierService *service.VerifierService
	SessionService  *service.SessionService
	AuthzService    *service.AuthzService
	UserService     *service.UserService
	AuditService    *service.AuditService
	ProductService  *service.ProductService
}

func NewRouter(
	buildVersion string,
	st store.Store,
	provider *idp.JWKSAdapter,
	cors httpx.CORSConfig,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		respond:      &faults.Responder{Log: logger},
		cors:         cors,
		limit:        httpx.DefaultLimit,
		store:        st,
		provider:     provider,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.SecurityHeaders(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerUsers()
	r.registerProducts()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			ShopScribe Gateway API
//	@version		0.1.0
//	@description	Authentication and access-control gateway for the ShopScribe product-description service.
//	@description
//	@description				Bearer credentials are verified against the identity provider's JWKS endpoint and are
//	@description				one-time use: a replayed credential is rejected within the replay window on every replica.
//	@description				Browser traffic uses the session cookie issued by the session broker instead.
//
//	@contact.name				ShopScribe Team
//	@contact.url				https://github.com/shopscribe/shopscribe
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Identity provider credential. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	h := &SessionHandler{
		Verifier: r.VerifierService,
		Sessions: r.SessionService,
		Authz:    r.AuthzService,
		Respond:  r.respond,
	}

	// The broker is reached before any credential exists, so it is limited
	// by IP rather than by client key.
	r.Mux.Handle("POST /v1/session",
		httpx.Chain(h,
			httpx.CORS(r.cors),
			httpx.AllowMethods(http.MethodPost, http.MethodOptions),
			httpx.RateLimitByIP(r.limit, r.store.RateLimits()),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{
		Authz:   r.AuthzService,
		Users:   r.UserService,
		Audit:   r.AuditService,
		Respond: r.respond,
	}

	r.Mux.Handle("POST /v1/users", r.secured(h))
}

func (r *Router) registerProducts() {
	h := &ProductsHandler{
		Authz:    r.AuthzService,
		Products: r.ProductService,
		Respond:  r.respond,
	}

	r.Mux.Handle("POST /v1/products", r.secured(h))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.provider))
}

// secured wraps an authenticated endpoint with the full per-request
// pipeline: origin check, method allow-list, rate limit, then credential
// verification. The rate limit runs before the authenticator so an abusive
// client burns its budget without costing a provider round trip.
func (r *Router) secured(h http.Handler) http.Handler {
	authn := &Authenticator{
		Verifier: r.VerifierService,
		Sessions: r.SessionService,
		Respond:  r.respond,
	}

	return httpx.Chain(h,
		httpx.CORS(r.cors),
		httpx.AllowMethods(http.MethodPost, http.MethodOptions),
		httpx.RateLimitByIP(r.limit, r.store.RateLimits()),
		authn.Middleware(),
	)
}
