package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func authedHandler(t *testing.T, keys map[string]string) (http.Handler, *string) {
	t.Helper()
	var seenOwner string
	h := APIKeyAuth(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenOwner = GetOwnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seenOwner
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	keys := map[string]string{"alice": "secret-key"}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantOwner  string
	}{
		{"bearer format", "Bearer secret-key", http.StatusOK, "alice"},
		{"bare key", "secret-key", http.StatusOK, "alice"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, ""},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, seenOwner := authedHandler(t, keys)
			req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOwner, *seenOwner)
		})
	}
}

func TestAPIKeyAuthSkipsHealth(t *testing.T) {
	t.Parallel()

	h, _ := authedHandler(t, map[string]string{"alice": "secret-key"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
