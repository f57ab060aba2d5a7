package idp

import (
	"context"
	"sync"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

// StaticAdapter is an in-memory Adapter for tests and local development.
// Tokens are registered up front; revocation is a per-subject horizon.
type StaticAdapter struct {
	mu      sync.RWMutex
	tokens  map[string]domain.Identity
	revoked map[string]time.Time
	err     error
}

func NewStaticAdapter() *StaticAdapter {
	return &StaticAdapter{
		tokens:  make(map[string]domain.Identity),
		revoked: make(map[string]time.Time),
	}
}

// Register associates a literal token string with an identity.
func (a *StaticAdapter) Register(token string, id domain.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = id
}

// RevokeSubject marks every credential of the subject issued before horizon
// as revoked.
func (a *StaticAdapter) RevokeSubject(subjectID string, horizon time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[subjectID] = horizon
}

// Fail makes every subsequent VerifyToken return err. Pass nil to clear.
func (a *StaticAdapter) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *StaticAdapter) VerifyToken(ctx context.Context, token string, checkRevoked bool) (domain.Identity, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.err != nil {
		return domain.Identity{}, a.err
	}

	id, ok := a.tokens[token]
	if !ok {
		return domain.Identity{}, ErrTokenMalformed
	}
	if time.Now().After(id.ExpiresAt) {
		return domain.Identity{}, ErrTokenExpired
	}
	if checkRevoked {
		if horizon, ok := a.revoked[id.SubjectID]; ok && id.IssuedAt.Before(horizon) {
			return domain.Identity{}, ErrTokenRevoked
		}
	}
	return id, nil
}
