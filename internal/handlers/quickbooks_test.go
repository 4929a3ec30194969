package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-authgate/qbgate/internal/auth"
	"github.com/go-authgate/qbgate/internal/client"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/middleware"
	"github.com/go-authgate/qbgate/internal/models"
	"github.com/go-authgate/qbgate/internal/quickbooks"
	"github.com/go-authgate/qbgate/internal/services"
	"github.com/go-authgate/qbgate/internal/state"
	"github.com/go-authgate/qbgate/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebugKey = "debug-secret"

type stubProvider struct {
	mu           sync.Mutex
	refreshCalls int
	revoked      string
	refreshErr   error
}

func (p *stubProvider) GetAuthURL(st string) string {
	return "https://appcenter.intuit.com/connect/oauth2?state=" + url.QueryEscape(st)
}

func (p *stubProvider) ExchangeCode(_ context.Context, _ string) (*models.TokenResponse, error) {
	return &models.TokenResponse{
		AccessToken:           "access-from-code",
		RefreshToken:          "refresh-from-code",
		ExpiresIn:             3600,
		RefreshTokenExpiresIn: 8726400,
	}, nil
}

func (p *stubProvider) RefreshToken(_ context.Context, _ string) (*models.TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return &models.TokenResponse{
		AccessToken:           "access-refreshed",
		RefreshToken:          "refresh-refreshed",
		ExpiresIn:             3600,
		RefreshTokenExpiresIn: 86400,
	}, nil
}

func (p *stubProvider) Revoke(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = token
	return nil
}

type handlerEnv struct {
	router   *gin.Engine
	store    *store.MemoryStore
	provider *stubProvider
	clock    *clockwork.FakeClock
	qbCalls  atomic.Int32
}

func (e *handlerEnv) seedValid(t *testing.T) {
	t.Helper()
	now := e.clock.Now().UnixMilli()
	require.NoError(t, e.store.Set(context.Background(), &models.TokenRecord{
		AccessToken:        "stored-access",
		RefreshToken:       "stored-refresh",
		ExpiresTime:        now + 60_000,
		RefreshExpiresTime: now + 600_000,
		RealmID:            "9130",
	}, false))
}

func (e *handlerEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func newHandlerEnv(t *testing.T, qbStatus int) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &handlerEnv{
		store:    store.NewMemoryStore(),
		provider: &stubProvider{},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}

	qbServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.qbCalls.Add(1)
		if qbStatus != http.StatusOK {
			w.WriteHeader(qbStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"QueryResponse":{"Customer":[{"Id":"7","DisplayName":"Grace"}]}}`))
	}))
	t.Cleanup(qbServer.Close)

	rc, err := client.CreateRetryClient(time.Second, 0, time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	qb := quickbooks.NewClient(rc, qbServer.URL, "75", metrics.NewNoopMetrics())

	tokens := services.NewTokenService(
		env.store,
		state.NewMemoryStore(state.DefaultTTL, env.clock),
		env.provider,
		env.clock,
		nil, nil, nil,
		services.TokenServiceOptions{StateRequired: true},
	)
	customers := services.NewCustomerService(tokens, qb, env.clock, 0, nil, nil)
	h := NewQuickBooksHandler(tokens, customers, nil)

	r := gin.New()
	debug := middleware.DebugKeyMiddleware(testDebugKey)
	qbGroup := r.Group("/qb")
	qbGroup.GET("/auth_request", h.AuthRequest)
	qbGroup.GET("/auth_token", h.AuthToken)
	qbGroup.GET("/refresh_token", debug, h.RefreshToken)
	qbGroup.POST("/validateToken", debug, h.ValidateToken)
	qbGroup.GET("/token_status", h.TokenStatus)
	qbGroup.GET("/get_updates", h.GetUpdates)
	qbGroup.GET("/customer_by_email", h.CustomerByEmail)
	qbGroup.POST("/revoke", debug, h.Revoke)
	r.GET("/health", HealthHandler(map[string]store.HealthChecker{"store": env.store}))
	env.router = r
	return env
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ============================================================
// Authorization flow
// ============================================================

func TestAuthRequest_ReturnsURL(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/auth_request", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	body := decode(t, w)
	assert.Contains(t, body["authUrl"], "https://appcenter.intuit.com/connect/oauth2?state=")
}

func TestAuthRequest_Redirect(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/auth_request?redirect=true", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://appcenter.intuit.com/"))
}

func TestAuthToken_FullFlow(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/auth_request", nil))
	require.Equal(t, http.StatusOK, w.Code)
	authURL, err := url.Parse(decode(t, w)["authUrl"].(string))
	require.NoError(t, err)
	st := authURL.Query().Get("state")
	require.NotEmpty(t, st)

	callback := "/qb/auth_token?code=abc&realmId=9130&state=" + url.QueryEscape(st)
	w = env.do(httptest.NewRequest(http.MethodGet, callback, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "New Token Issued")
	assert.Contains(t, w.Body.String(), "window.close()")
	assert.Contains(t, w.Body.String(), "9130")
	assert.NotContains(t, w.Body.String(), "access-from-code")

	rec, err := env.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-from-code", rec.AccessToken)
	assert.Equal(t, "9130", rec.RealmID)

	// The same state cannot be used twice.
	w = env.do(httptest.NewRequest(http.MethodGet, callback, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization Failed")
}

func TestAuthToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantKind   string
	}{
		{
			name:       "consent denied",
			query:      "error=access_denied&error_description=user+said+no",
			wantStatus: http.StatusBadRequest,
			wantKind:   services.KindAccessDenied,
		},
		{
			name:       "missing code",
			query:      "state=x",
			wantStatus: http.StatusBadRequest,
			wantKind:   services.KindInvalidCallback,
		},
		{
			name:       "unknown state",
			query:      "code=abc&state=never-issued",
			wantStatus: http.StatusBadRequest,
			wantKind:   services.KindInvalidCallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t, http.StatusOK)

			w := env.do(httptest.NewRequest(http.MethodGet, "/qb/auth_token?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantKind)
			_, err := env.store.Get(context.Background())
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

// ============================================================
// Token endpoints
// ============================================================

func TestRefreshToken_RequiresDebugKey(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.seedValid(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/refresh_token", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, env.provider.refreshCalls)
}

func TestRefreshToken_UsesHeaderToken(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/qb/refresh_token", nil)
	req.Header.Set(middleware.DebugKeyHeader, testDebugKey)
	req.Header.Set(HeaderRefreshToken, "operator-supplied")
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.provider.refreshCalls)
	body := decode(t, w)
	assert.Equal(t, "access-refreshed", body["access_token"])
}

func TestRefreshToken_NoTokenCarriesAuthURL(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/qb/refresh_token", nil)
	req.Header.Set(middleware.DebugKeyHeader, testDebugKey)
	w := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, services.KindNoToken, body["error"])
	assert.NotEmpty(t, body["authUrl"])
}

func TestValidateToken(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	now := env.clock.Now().UnixMilli()

	tests := []struct {
		name       string
		body       string
		seed       bool
		wantStatus int
		wantAccess bool
		wantMsg    string
	}{
		{
			name:       "posted valid token",
			body:       `{"token":{"access_token":"a","refresh_token":"r","expires_time":` + itoa(now+1000) + `,"refresh_expires_time":` + itoa(now+2000) + `}}`,
			wantStatus: http.StatusOK,
			wantAccess: true,
			wantMsg:    "Access token is valid",
		},
		{
			name:       "posted expired token",
			body:       `{"token":{"access_token":"a","expires_time":1}}`,
			wantStatus: http.StatusOK,
			wantMsg:    "Both access and refresh tokens are expired",
		},
		{
			name:       "empty body uses stored record",
			seed:       true,
			wantStatus: http.StatusOK,
			wantAccess: true,
			wantMsg:    "Access token is valid",
		},
		{
			name:       "invalid json",
			body:       `{"token":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.seed {
				env.seedValid(t)
			}
			req := httptest.NewRequest(http.MethodPost, "/qb/validateToken", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(middleware.DebugKeyHeader, testDebugKey)
			w := env.do(req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decode(t, w)
			assert.Equal(t, tt.wantAccess, body["validAccessToken"])
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestTokenStatus_HidesTokenValues(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.seedValid(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/token_status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "stored-access")
	assert.NotContains(t, w.Body.String(), "stored-refresh")
	body := decode(t, w)
	assert.Equal(t, true, body["present"])
	assert.Equal(t, "9130", body["realmId"])
}

func TestRevoke(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.seedValid(t)

	req := httptest.NewRequest(http.MethodPost, "/qb/revoke", nil)
	req.Header.Set(middleware.DebugKeyHeader, testDebugKey)
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["revoked"])
	assert.Equal(t, "stored-refresh", env.provider.revoked)
}

// ============================================================
// Customer endpoints
// ============================================================

func TestGetUpdates(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.seedValid(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/get_updates", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2023-12-02", body["since"])
	assert.Len(t, body["customers"], 1)
}

func TestGetUpdates_ExpiredTokensRequireReauth(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	require.NoError(t, env.store.Set(context.Background(), &models.TokenRecord{
		AccessToken:        "old",
		RefreshToken:       "old",
		ExpiresTime:        1,
		RefreshExpiresTime: 2,
	}, false))

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/get_updates", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, services.KindReauthRequired, body["error"])
	assert.Contains(t, body["authUrl"], "https://appcenter.intuit.com/")
	assert.Zero(t, env.provider.refreshCalls)
	assert.Zero(t, env.qbCalls.Load())
}

func TestGetUpdates_RefreshRejected(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.provider.refreshErr = &auth.ProviderError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"}
	now := env.clock.Now().UnixMilli()
	require.NoError(t, env.store.Set(context.Background(), &models.TokenRecord{
		AccessToken:        "old",
		RefreshToken:       "still-good",
		ExpiresTime:        now - 1,
		RefreshExpiresTime: now + 60_000,
	}, false))

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/get_updates", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, decode(t, w)["authUrl"])
	assert.Equal(t, 1, env.provider.refreshCalls)
}

func TestGetUpdates_UpstreamFailure(t *testing.T) {
	env := newHandlerEnv(t, http.StatusBadRequest)
	env.seedValid(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/get_updates", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, services.KindUpstream, decode(t, w)["error"])
}

func TestCustomerByEmail(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.seedValid(t)

	req := httptest.NewRequest(http.MethodGet, "/qb/customer_by_email", nil)
	req.Header.Set(HeaderEmail, "grace@example.com")
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["customers"], 1)
}

func TestCustomerByEmail_MissingEmail(t *testing.T) {
	env := newHandlerEnv(t, http.StatusOK)
	env.seedValid(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/qb/customer_by_email", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, services.KindInvalidRequest, decode(t, w)["error"])
	assert.Zero(t, env.qbCalls.Load())
}

// ============================================================
// Health and error rendering
// ============================================================

type brokenStore struct{}

func (brokenStore) Health(context.Context) error { return errors.New("down") }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ok", HealthHandler(map[string]store.HealthChecker{"store": store.NewMemoryStore()}))
	r.GET("/down", HealthHandler(map[string]store.HealthChecker{"store": brokenStore{}}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "disconnected", body["store"])
}

func TestRespondError_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondError(c, &services.RefreshFailedError{
		Step:  services.StepPersist,
		Cause: errors.New("pq: connection refused to 10.0.0.4"),
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.4")
	assert.Equal(t, services.KindRefreshFailed, decode(t, w)["error"])
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
