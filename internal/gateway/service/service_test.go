package service

import (
	"testing"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/internal/gateway/store/drivers/sqlite"
	"github.com/shopscribe/shopscribe/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func testAudit(st store.Store) *AuditService {
	return NewAuditService(st, slogx.NewTestLogger())
}

func testIdentity(subject string) domain.Identity {
	now := time.Now().UTC()
	return domain.Identity{
		SubjectID:     subject,
		Email:         subject + "@example.test",
		EmailVerified: true,
		AuthTime:      now,
		IssuedAt:      now,
		ExpiresAt:     now.Add(time.Hour),
		Audience:      []string{"project-1"},
	}
}
