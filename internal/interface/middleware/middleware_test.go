package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "%s|%s", c.GetString("real_ip"), c.GetString("request_id"))
	})
	return r
}

func do(r http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "203.0.113.9:4321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestIDMiddleware())

	w := do(r, "/", nil)
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "|"+id, w.Body.String())

	incoming := uuid.NewString()
	w = do(r, "/", map[string]string{RequestIDHeader: incoming})
	assert.Equal(t, incoming, w.Header().Get(RequestIDHeader))

	w = do(r, "/", map[string]string{RequestIDHeader: "<script>"})
	assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trust   bool
		headers map[string]string
		want    string
	}{
		{"no headers", true, nil, "203.0.113.9"},
		{"x-real-ip", true, map[string]string{"X-Real-IP": "198.51.100.1"}, "198.51.100.1"},
		{"forwarded left-most", true, map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
		{"cloudflare", true, map[string]string{"CF-Connecting-IP": "198.51.100.3"}, "198.51.100.3"},
		{"garbage falls back", true, map[string]string{"X-Real-IP": "nope"}, "203.0.113.9"},
		{"untrusted ignores headers", false, map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newEngine(RealIP(tt.trust)), "/", tt.headers)
			assert.Equal(t, tt.want+"|", w.Body.String())
		})
	}
}

func TestAllowFuncs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := func(target, ip string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		c.Set("real_ip", ip)
		return c
	}

	assert.True(t, AllowPrivateIP()(ctx("/", "10.1.2.3")))
	assert.True(t, AllowPrivateIP()(ctx("/", "127.0.0.1")))
	assert.False(t, AllowPrivateIP()(ctx("/", "203.0.113.9")))

	assert.True(t, AllowWithoutQuery("sendmail")(ctx("/?talktome", "203.0.113.9")))
	assert.False(t, AllowWithoutQuery("sendmail")(ctx("/?sendmail=a@b.c", "203.0.113.9")))

	allow := AnyAllow(AllowWithoutQuery("sendmail"), nil, AllowPrivateIP())
	assert.True(t, allow(ctx("/?sendmail=a@b.c", "192.168.1.5")))
	assert.False(t, allow(ctx("/?sendmail=a@b.c", "203.0.113.9")))
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	r := newEngine(RateLimit(nil, 1, time.Minute, KeyByIP(), nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, "/?sendmail=a@b.c", nil).Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	r := newEngine(RealIP(false), RateLimit(rdb, 1, time.Minute, KeyByIP(), nil))

	for i := 0; i < 3; i++ {
		w := do(r, "/?sendmail=a@b.c", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 4, remaining(5, 1))
	assert.Equal(t, 0, remaining(5, 5))
	assert.Equal(t, 0, remaining(5, 9))
}

func TestAccessLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := newEngine(RequestIDMiddleware(), AccessLog(logger))

	do(r, "/?talktome", nil)

	require.Len(t, hook.AllEntries(), 1)
	e := hook.LastEntry()
	assert.Equal(t, "request handled", e.Message)
	assert.Equal(t, "http", e.Data["component"])
	assert.Equal(t, http.StatusOK, e.Data["status"])
	assert.Equal(t, "/", e.Data["path"])
	assert.NotEmpty(t, e.Data["request_id"])
}
