package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/ratelimit"
	"github.com/html-librarian/mig-catalog/internal/security"
	"github.com/html-librarian/mig-catalog/internal/token"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, successResponse(nil, "ok"))
}

func testSecurityManager() *security.Manager {
	return security.NewManager(config.SecurityConfig{
		MaxFailedAttempts: 10,
		AttemptWindow:     time.Hour,
		LockoutDuration:   15 * time.Minute,
	}, zap.NewNop(), nil)
}

func testTokenService(t *testing.T) *token.Service {
	t.Helper()
	svc, err := token.NewService(config.AuthConfig{
		SecretKey:         strings.Repeat("a", 64),
		RotationSecretKey: strings.Repeat("b", 64),
		Issuer:            "mig-catalog-api",
		Audience:          "mig-catalog-users",
		AccessTokenTTL:    30 * time.Minute,
		MaxTokenAge:       time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestSecurityHeaders(t *testing.T) {
	router := chi.NewRouter()
	router.Use(SecurityHeaders)
	router.Get("/", okHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Permissions-Policy"))
}

func TestCorrelationIDGenerated(t *testing.T) {
	router := chi.NewRouter()
	router.Use(CorrelationID)
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, CorrelationIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rec.Header().Get("X-Correlation-ID")
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated correlation id should be a uuid")
}

func TestCorrelationIDEchoed(t *testing.T) {
	router := chi.NewRouter()
	router.Use(CorrelationID)
	router.Get("/", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", rec.Header().Get("X-Correlation-ID"))
}

func TestRecoveryHidesPanicDetails(t *testing.T) {
	router := chi.NewRouter()
	router.Use(CorrelationID)
	router.Use(Recovery(zap.NewNop()))
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		panic("database password is hunter2")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "hunter2")
	assert.Contains(t, body, "internal server error")
	assert.Contains(t, body, "correlation_id")
}

func TestProcessTimeHeader(t *testing.T) {
	router := chi.NewRouter()
	router.Use(ProcessTime)
	router.Get("/", okHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
}

func TestMaskHeader(t *testing.T) {
	assert.Equal(t, "", maskHeader(""))
	assert.Equal(t, "Bearer ***", maskHeader("Bearer eyJhbGciOi.secret.value"))
	assert.Equal(t, "***", maskHeader("raw-credential"))
}

func newThrottledRouter(t *testing.T, securityMgr *security.Manager) chi.Router {
	t.Helper()

	limiter := ratelimit.NewLimiter(config.RateLimitConfig{
		Enabled:       true,
		DefaultMax:    100,
		DefaultWindow: time.Minute,
		Rules: []config.RateLimitRule{
			{Prefix: "/api/v1/auth/login", MaxRequests: 5, Window: time.Minute},
		},
		StoreTimeout:   time.Second,
		StoreCooldown:  30 * time.Second,
		SweepInterval:  time.Minute,
		EntryRetention: time.Hour,
	}, nil, zap.NewNop())

	router := chi.NewRouter()
	router.Use(Throttle(limiter, securityMgr, nil))
	router.Post("/api/v1/auth/login", okHandler)
	return router
}

func TestThrottleRejectsOverLimit(t *testing.T) {
	securityMgr := testSecurityManager()
	router := newThrottledRouter(t, securityMgr)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		router.ServeHTTP(rec, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too many requests")

	// The violation itself counts toward the lockout threshold.
	assert.Equal(t, 1, securityMgr.FailureCount("10.0.0.1"))
}

func TestThrottleLockedOutSourceGetsSameResponse(t *testing.T) {
	securityMgr := testSecurityManager()
	for i := 0; i < 10; i++ {
		securityMgr.RecordFailure("10.0.0.9", "/api/v1/auth/login")
	}

	router := newThrottledRouter(t, securityMgr)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.9:12345"
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too many requests")
}

func TestRequireAuthMissingToken(t *testing.T) {
	router := chi.NewRouter()
	router.Use(RequireAuth(testTokenService(t), testSecurityManager()))
	router.Get("/", okHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestRequireAuthInvalidTokenCountsAsFailure(t *testing.T) {
	securityMgr := testSecurityManager()

	router := chi.NewRouter()
	router.Use(RequireAuth(testTokenService(t), securityMgr))
	router.Get("/", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:12345"
	req.Header.Set("Authorization", "Bearer not-a-real-token")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, securityMgr.FailureCount("10.0.0.5"))
}

func TestRequireAuthValidToken(t *testing.T) {
	tokens := testTokenService(t)
	userID := uuid.New()

	signed, err := tokens.Issue(userID.String(), 0)
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(RequireAuth(tokens, testSecurityManager()))
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserIDFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, userID, got)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, ok = bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer some-token")
	got, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "some-token", got)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.RemoteAddr = "192.0.2.7"
	assert.Equal(t, "192.0.2.7", clientIP(req))
}
