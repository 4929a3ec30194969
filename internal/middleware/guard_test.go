package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const testToken = "test-secret-token-123"

func newGuardedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/protected", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func doGet(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/protected", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ============================================================
// MetricsAuthMiddleware
// ============================================================

func TestMetricsAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no token configured",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer",
			token:      testToken,
			headers:    map[string]string{"Authorization": "Bearer " + testToken},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			token:      testToken,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Bearer token required",
		},
		{
			name:       "basic scheme",
			token:      testToken,
			headers:    map[string]string{"Authorization": "Basic " + testToken},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Bearer token required",
		},
		{
			name:       "wrong token",
			token:      testToken,
			headers:    map[string]string{"Authorization": "Bearer nope"},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGet(newGuardedRouter(MetricsAuthMiddleware(tt.token)), tt.headers)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Bearer realm="Metrics"`, w.Header().Get("WWW-Authenticate"))
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

// ============================================================
// DebugKeyMiddleware
// ============================================================

func TestDebugKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		provided   string
		wantStatus int
		wantBody   string
	}{
		{name: "disabled", wantStatus: http.StatusOK},
		{name: "matching key", key: "k1", provided: "k1", wantStatus: http.StatusOK},
		{name: "missing key", key: "k1", wantStatus: http.StatusUnauthorized, wantBody: "Debug key required"},
		{name: "wrong key", key: "k1", provided: "k2", wantStatus: http.StatusUnauthorized, wantBody: "Invalid debug key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.provided != "" {
				headers[DebugKeyHeader] = tt.provided
			}
			w := doGet(newGuardedRouter(DebugKeyMiddleware(tt.key)), headers)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
				assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			}
		})
	}
}

// ============================================================
// RequestIDMiddleware
// ============================================================

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/protected", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusNoContent)
	})

	w := doGet(r, map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = doGet(r, nil)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}
