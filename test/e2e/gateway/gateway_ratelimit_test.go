package gateway_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitTripsAtThirtyOne(t *testing.T) {
	e := setupGateway(t)

	// The window counter keys on wall-clock minutes. Wait out the tail of
	// the current minute so the whole burst lands in a single window.
	now := time.Now().UTC()
	windowEnd := now.Truncate(time.Minute).Add(time.Minute)
	if remaining := windowEnd.Sub(now); remaining < 10*time.Second {
		time.Sleep(remaining)
	}

	var last response
	for i := 0; i < 31; i++ {
		last = e.post(t, "/v1/session", map[string]any{"action": "verify"})
	}

	require.Equal(t, http.StatusTooManyRequests, last.status)

	retryAfter, err := strconv.Atoi(last.header.Get("Retry-After"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, retryAfter, 1)
	require.LessOrEqual(t, retryAfter, 60)
}
