package middlewares

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"spotsort-be/apperr"
	"spotsort-be/metrics"
	"spotsort-be/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResolver map[string]models.Identity

func (s stubResolver) Resolve(_ context.Context, bearer string) (models.Identity, error) {
	id, ok := s[bearer]
	if !ok {
		return models.Identity{}, apperr.Unauthorized("invalid authorization token")
	}
	return id, nil
}

// memCounter is a single-process stand-in for the redis INCR/EXPIRE/TTL trio.
type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	ttl    map[string]time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, ttl: map[string]time.Duration{}}
}

func (m *memCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memCounter) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = d
	return redis.NewBoolResult(true, nil)
}

func (m *memCounter) TTL(_ context.Context, key string) *redis.DurationCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return redis.NewDurationResult(m.ttl[key], nil)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAuthMiddleware(t *testing.T) {
	authority := models.Identity{UserID: "u-1", Role: models.RoleAuthority, Zone: "East"}
	r := gin.New()
	r.GET("/work",
		AuthMiddleware(stubResolver{"good": authority}),
		RequireRoles(models.RoleAuthority, models.RoleAdmin),
		func(c *gin.Context) { c.String(http.StatusOK, CurrentIdentity(c).Zone) })
	r.GET("/admin",
		AuthMiddleware(stubResolver{"good": authority}),
		RequireRoles(models.RoleAdmin),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"missing header", "/work", "", http.StatusUnauthorized, "No authorization token provided"},
		{"bad token", "/work", "Bearer nope", http.StatusUnauthorized, "invalid authorization token"},
		{"bearer token", "/work", "Bearer good", http.StatusOK, "East"},
		{"bare token", "/work", "good", http.StatusOK, "East"},
		{"wrong role", "/admin", "Bearer good", http.StatusForbidden, "not allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestCurrentIdentityDefaultsToAnonymous(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.True(t, CurrentIdentity(c).IsAnonymous())
}

func TestRateLimiter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	counter := newMemCounter()

	r := gin.New()
	r.POST("/otp",
		RateLimiter(counter, RateLimit{Group: "otp", Limit: 2, Window: time.Minute}, m, quietLogger()),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/otp", nil)
		req.RemoteAddr = ip + ":4000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)

	rec := send("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, send("10.0.0.2").Code)
	assert.Equal(t, time.Minute, counter.ttl["ratelimit:otp:10.0.0.1"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("otp")))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	counter := newMemCounter()
	counter.err = errors.New("connection refused")

	r := gin.New()
	r.POST("/otp",
		RateLimiter(counter, RateLimit{Group: "otp", Limit: 1}, nil, quietLogger()),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for range 3 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/otp", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(quietLogger()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}
