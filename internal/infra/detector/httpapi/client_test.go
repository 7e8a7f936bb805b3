package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze", r.URL.Path)

		var req struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "contract C {}", req.Code)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vulnerabilities":[
			{"name":"Reentrancy","severity":"critical","category":"Security","lineNumber":42},
			{"name":"Gas Hint","severity":"info","category":"Optimization"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	findings, err := c.Detect(context.Background(), "contract C {}")
	require.NoError(t, err)

	require.Len(t, findings, 2)
	assert.Equal(t, "Reentrancy", findings[0].Name)
	assert.Equal(t, "critical", findings[0].Severity)
	assert.Equal(t, 42, findings[0].LineNumber)
	assert.Equal(t, "Gas Hint", findings[1].Name)
}

func TestDetectNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Detect(context.Background(), "contract C {}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestDetectUnreachable(t *testing.T) {
	t.Parallel()

	c := New("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := c.Detect(context.Background(), "contract C {}")
	assert.Error(t, err)
}
