package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/app"
	"github.com/ternarybob/trutina/internal/common"
)

func newTestServer(t *testing.T, mutate func(*common.Config)) (*Server, *common.Config) {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application), cfg
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func multipartUpload(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadAndListDatasets(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body, contentType := multipartUpload(t, "sample.csv", "a,b\n1,2\n3,4\n")
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var uploaded struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Rows int    `json:"rows"`
		Cols int    `json:"cols"`
	}
	decodeBody(t, rec, &uploaded)
	assert.Equal(t, 2, uploaded.Rows)
	assert.Equal(t, 2, uploaded.Cols)
	assert.Equal(t, "sample", uploaded.Name)
	require.NotZero(t, uploaded.ID)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Datasets []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"datasets"`
	}
	decodeBody(t, rec, &listed)
	found := false
	for _, d := range listed.Datasets {
		if d.ID == uploaded.ID {
			found = true
			assert.Equal(t, "sample", d.Name)
		}
	}
	assert.True(t, found, "uploaded dataset appears in the list")
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body, contentType := multipartUpload(t, "payload.exe", "MZ")
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForbiddenSQLIsRefused(t *testing.T) {
	s, _ := newTestServer(t, nil)

	payload := strings.NewReader(`{"sql": "DROP TABLE datasets"}`)
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/admin/text2sql/execute", payload))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var body struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Detail, "DROP")
}

func TestSelectOneSucceeds(t *testing.T) {
	s, _ := newTestServer(t, nil)

	payload := strings.NewReader(`{"sql": "SELECT 1"}`)
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/admin/text2sql/execute", payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		RowCount int `json:"row_count"`
	}
	decodeBody(t, rec, &result)
	assert.Equal(t, 1, result.RowCount)
}

func TestAPIKeyGate(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Security.APIKey = "secret"
	})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/datasets", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "Invalid or missing API key", body.Detail)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/datasets", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, do(t, s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/datasets", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, do(t, s, req).Code)

	// public paths stay open
	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)
}

func TestRateLimitReturnsRetryAfter(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Server.RateLimit = 3
	})

	for i := 0; i < 3; i++ {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/datasets", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d is inside the limit", i+1)
	}
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/datasets", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// non-admin paths are unlimited
	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)
}

func TestCorrelationIDEcho(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := do(t, s, req)
	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"), "missing header gets a generated id")
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Permissions-Policy"), "camera=()")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
		cfg.Security.APIKey = "secret"
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/datasets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := do(t, s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, "preflight passes the auth gate")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/admin/datasets", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = do(t, s, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogsTraversalIsRefused(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/logs?file=../etc/passwd", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/logs?file=..%2F..%2Fetc%2Fpasswd", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportFormats(t *testing.T) {
	s, cfg := newTestServer(t, nil)

	dir := filepath.Join(cfg.PreprocessingOutputDir(), "fraud_detection")
	require.NoError(t, os.MkdirAll(dir, 0755))
	summary := `{"use_case_key":"fraud_detection","data_quality_score":91.5}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), []byte(summary), 0644))

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/admin/export/markdown/fraud_detection", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "91.5")

	rec = do(t, s, httptest.NewRequest(http.MethodPost, "/api/admin/export/pptx/fraud_detection", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "office formats are refused")
}

func TestUnknownAPIRouteReturnsJSON404(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSlidingWindowRecovers(t *testing.T) {
	sw := newSlidingWindow(2, time.Minute)

	base := time.Now()
	allowed, _ := sw.allow("10.0.0.1", base)
	require.True(t, allowed)
	allowed, _ = sw.allow("10.0.0.1", base.Add(time.Second))
	require.True(t, allowed)
	allowed, retryAfter := sw.allow("10.0.0.1", base.Add(2*time.Second))
	require.False(t, allowed)
	assert.Greater(t, retryAfter, 0)

	// a different client is unaffected
	allowed, _ = sw.allow("10.0.0.2", base.Add(2*time.Second))
	assert.True(t, allowed)

	// after the window slides past the first request, capacity returns
	allowed, _ = sw.allow("10.0.0.1", base.Add(61*time.Second))
	assert.True(t, allowed)
}

func TestVectorDBAndChunkingInfo(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/jobs/vectordb", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/admin/jobs/chunking", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentence")
}

func TestScoringModelNameValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	payload := fmt.Sprintf(`{"model": %q, "features": {"x": 1}}`, "../secrets.gob")
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/admin/scoring/score", strings.NewReader(payload)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
