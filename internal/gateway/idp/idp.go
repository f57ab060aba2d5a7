// Package idp adapts the external identity provider. The gateway never mints
// primary credentials; it only verifies tokens the provider issued and asks
// whether they have been revoked upstream.
package idp

import (
	"context"
	"errors"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

var (
	ErrTokenMalformed = errors.New("idp: malformed token")
	ErrTokenInvalid   = errors.New("idp: invalid token")
	ErrTokenExpired   = errors.New("idp: token expired")
	ErrTokenRevoked   = errors.New("idp: token revoked")
)

// Adapter verifies a primary credential. When checkRevoked is set the adapter
// also consults its revocation source; a revoked credential fails with
// ErrTokenRevoked regardless of signature validity.
type Adapter interface {
	VerifyToken(ctx context.Context, token string, checkRevoked bool) (domain.Identity, error)
}

// RevocationSource reports the provider-side revocation horizon for a
// subject. Credentials issued before that instant are revoked. A zero time
// means nothing is revoked.
type RevocationSource interface {
	TokensRevokedAfter(ctx context.Context, subjectID string) (time.Time, error)
}
