package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solsentinel/solsentinel/internal/application/analysis"
	app "github.com/solsentinel/solsentinel/internal/application/scans"
	"github.com/solsentinel/solsentinel/internal/application/tasks"
	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
	"github.com/solsentinel/solsentinel/internal/infra/db/memory"
	"github.com/solsentinel/solsentinel/internal/middleware"
)

const (
	testOwner = "tester"
	testKey   = "test-api-key"
)

type staticAnalyzer struct {
	result analysis.Result
}

func (a staticAnalyzer) Analyze(ctx context.Context, source string) (analysis.Result, error) {
	return a.result, nil
}

type staticExplorer struct{}

func (staticExplorer) Snapshot(ctx context.Context, address string, network domain.Network) (*domain.BlockchainSnapshot, error) {
	return &domain.BlockchainSnapshot{Balance: "0.5 ETH"}, nil
}

func (staticExplorer) ContractSource(ctx context.Context, address string, network domain.Network) (string, error) {
	return "contract C {}", nil
}

type testEnv struct {
	handler http.Handler
	service *app.Service
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	service := &app.Service{
		Repo:     memory.NewScanRepository(),
		Errors:   memory.NewScanErrorRepository(),
		Analyzer: staticAnalyzer{result: analysis.Result{Score: 100, Findings: []domain.Vulnerability{}}},
		Explorer: staticExplorer{},
		Tasks:    tasks.NewRunner(zap.NewNop()),
		Clock:    app.SystemClock{},
		Log:      zap.NewNop(),
	}
	if opts.APIKeys == nil {
		opts.APIKeys = map[string]string{testOwner: testKey}
	}
	return &testEnv{
		handler: New(service, zap.NewNop(), opts),
		service: service,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.service.Tasks.Drain(ctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestAnalyzeCodeAccepted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	body := bytes.NewBufferString(`{"code":"contract C {}"}`)
	rec := env.do(t, http.MethodPost, "/api/analyze/code", body, "application/json")

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp["scanId"])

	env.drain(t)
	rec = env.do(t, http.MethodGet, "/api/analyze/results/"+resp["scanId"], nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var scan domain.Scan
	decodeBody(t, rec, &scan)
	assert.Equal(t, domain.StatusCompleted, scan.Status)
}

func TestAnalyzeCodeEmptyBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodPost, "/api/analyze/code", bytes.NewBufferString(`{"code":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeCodeInvalidJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodPost, "/api/analyze/code", bytes.NewBufferString(`{nope`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeFileUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Token.sol")
	require.NoError(t, err)
	_, err = fw.Write([]byte("contract Token {}"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/api/analyze/file", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAnalyzeFileRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "payload.exe")
	require.NoError(t, err)
	_, err = fw.Write([]byte("MZ"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/api/analyze/file", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeContract(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	address := "0x" + strings.Repeat("ab", 20)
	body := bytes.NewBufferString(`{"contractAddress":"` + address + `","network":"ethereum"}`)
	rec := env.do(t, http.MethodPost, "/api/analyze/contract", body, "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp["scanId"])
}

func TestAnalyzeContractInvalidNetwork(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	address := "0x" + strings.Repeat("ab", 20)
	body := bytes.NewBufferString(`{"contractAddress":"` + address + `","network":"solana"}`)
	rec := env.do(t, http.MethodPost, "/api/analyze/contract", body, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResultsNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/api/analyze/results/nonexistent", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockchainEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	address := "0x" + strings.Repeat("ab", 20)

	rec := env.do(t, http.MethodGet, "/api/analyze/blockchain/"+address+"?network=polygon", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.BlockchainSnapshot
	decodeBody(t, rec, &snap)
	assert.Equal(t, "0.5 ETH", snap.Balance)

	rec = env.do(t, http.MethodGet, "/api/analyze/blockchain/"+address+"?network=dogecoin", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodPost, "/api/analyze/code", bytes.NewBufferString(`{"code":"contract C {}"}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted map[string]string
	decodeBody(t, rec, &accepted)
	env.drain(t)

	rec = env.do(t, http.MethodGet, "/api/history?page=1&limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Scans      []domain.HistoryEntry `json:"scans"`
		Pagination domain.Pagination     `json:"pagination"`
	}
	decodeBody(t, rec, &page)
	require.Len(t, page.Scans, 1)
	assert.Equal(t, int64(1), page.Pagination.Total)

	rec = env.do(t, http.MethodGet, "/api/history/stats", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/history/"+accepted["scanId"]+"/download", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = env.do(t, http.MethodDelete, "/api/history/"+accepted["scanId"], nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/history/"+accepted["scanId"], nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnauthorizedWithoutKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewLimiter(time.Minute, 2)
	defer limiter.Stop()
	env := newTestEnv(t, Options{Limiter: limiter})

	rec := env.do(t, http.MethodGet, "/api/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	env.do(t, http.MethodGet, "/api/history", nil, "")
	rec = env.do(t, http.MethodGet, "/api/history", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitCountsUnauthenticatedRequests(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewLimiter(time.Minute, 2)
	defer limiter.Stop()
	env := newTestEnv(t, Options{Limiter: limiter})

	doAnon := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	// Rejected-by-auth requests are still admitted and counted, and their
	// responses carry the limit headers.
	rec := doAnon()
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	doAnon()
	rec = doAnon()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
