package idp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/pkg/jwtx"
)

// JWKSAdapterConfig configures the JWKS-backed adapter.
type JWKSAdapterConfig struct {
	// JWKSURL is the provider's published key endpoint.
	JWKSURL string

	// Issuer and Audience the provider stamps on issued tokens. Audience is
	// the project identifier.
	Issuer   string
	Audience string

	// RefreshInterval between key fetches. Zero means 6h.
	RefreshInterval time.Duration

	// Revocations is optional; nil disables the upstream revocation check.
	Revocations RevocationSource
}

// JWKSAdapter verifies RS256 provider tokens against the provider's published
// key set, refreshed in the background.
type JWKSAdapter struct {
	cfg      JWKSAdapterConfig
	keys     *jwtx.KeySet
	verifier *jwtx.RS256Verifier
	client   *http.Client
	log      *slog.Logger
	breaker  *faults.CircuitBreaker

	stop chan struct{}
	done chan struct{}
}

func NewJWKSAdapter(cfg JWKSAdapterConfig, log *slog.Logger) *JWKSAdapter {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}

	keys := jwtx.NewKeySet()
	return &JWKSAdapter{
		cfg:      cfg,
		keys:     keys,
		verifier: jwtx.NewVerifierRS256(keys, cfg.Issuer, []string{cfg.Audience}),
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		breaker:  faults.NewCircuitBreaker(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RefreshKeys fetches the key set now. Network failures retry with backoff
// and trip a breaker so a flapping provider endpoint is not hammered.
func (a *JWKSAdapter) RefreshKeys(ctx context.Context) error {
	return faults.Retry(ctx, a.breaker, "jwks_fetch", func(ctx context.Context) error {
		if err := a.keys.FetchJWKS(ctx, a.client, a.cfg.JWKSURL); err != nil {
			return faults.Wrap(faults.KindUnavailable, err, "refresh provider keys")
		}
		return nil
	})
}

// Start loads keys once and refreshes them periodically until Stop.
func (a *JWKSAdapter) Start(ctx context.Context) error {
	if err := a.RefreshKeys(ctx); err != nil {
		return err
	}

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := a.RefreshKeys(ctx); err != nil {
					a.log.Warn("provider key refresh failed", "error", err)
				}
				cancel()
			}
		}
	}()
	return nil
}

func (a *JWKSAdapter) Stop() {
	close(a.stop)
	<-a.done
}

// Ready reports whether at least one verification key is loaded.
func (a *JWKSAdapter) Ready() bool { return a.keys.IsReady() }

// VerifyToken validates signature, issuer, audience and expiry, then applies
// the upstream revocation check when asked.
func (a *JWKSAdapter) VerifyToken(ctx context.Context, token string, checkRevoked bool) (domain.Identity, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrExpired):
			return domain.Identity{}, ErrTokenExpired
		case errors.Is(err, jwtx.ErrMalformed):
			return domain.Identity{}, ErrTokenMalformed
		default:
			return domain.Identity{}, errors.Join(ErrTokenInvalid, err)
		}
	}

	id := identityFromClaims(claims)

	if checkRevoked && a.cfg.Revocations != nil {
		horizon, err := a.cfg.Revocations.TokensRevokedAfter(ctx, id.SubjectID)
		if err != nil {
			return domain.Identity{}, err
		}
		if !horizon.IsZero() && id.IssuedAt.Before(horizon) {
			return domain.Identity{}, ErrTokenRevoked
		}
	}

	return id, nil
}

func identityFromClaims(c jwtx.Claims) domain.Identity {
	id := domain.Identity{
		SubjectID:     c.Subject,
		CredentialID:  c.ID,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Audience:      c.Audience,
		SignInMethod:  c.SignInMethod,
		CustomClaims:  c.Custom,
	}
	if c.AuthTime > 0 {
		id.AuthTime = time.Unix(c.AuthTime, 0).UTC()
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return id
}
