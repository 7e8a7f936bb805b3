package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAdmitsUpToMax(t *testing.T) {
	t.Parallel()

	l := NewLimiter(time.Minute, 3)
	defer l.Stop()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d := l.Take("alice", now)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d := l.Take("alice", now.Add(time.Second))
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Equal(t, now.Add(time.Minute), d.ResetAt)
}

func TestLimiterWindowReset(t *testing.T) {
	t.Parallel()

	l := NewLimiter(time.Minute, 1)
	defer l.Stop()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Take("alice", now).Allowed)
	assert.False(t, l.Take("alice", now.Add(30*time.Second)).Allowed)
	// A fresh window starts with a full quota, no carry-over.
	assert.True(t, l.Take("alice", now.Add(time.Minute)).Allowed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := NewLimiter(time.Minute, 1)
	defer l.Stop()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Take("alice", now).Allowed)
	assert.True(t, l.Take("bob", now).Allowed)
	assert.False(t, l.Take("alice", now).Allowed)
}

func TestLimiterMiddleware(t *testing.T) {
	t.Parallel()

	l := NewLimiter(time.Minute, 2)
	defer l.Stop()
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		req.RemoteAddr = "10.0.0.1:4444"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	do()
	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
