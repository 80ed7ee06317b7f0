package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/runboard/runboard/internal/config"
	"github.com/runboard/runboard/internal/ctxkeys"
	"github.com/runboard/runboard/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Window{Limit: 2, Period: time.Minute})
	handler := RateLimit(limiter)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	send := func(remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
		req.RemoteAddr = remoteAddr
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:1234", "").Code)
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:5678", "").Code)

	rec := send("10.0.0.1:9999", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:9999", "203.0.113.7, 10.0.0.1").Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	assert.Equal(t, "192.0.2.10", getClientIP(req))

	req.Header.Set("X-Real-IP", " 198.51.100.2 ")
	assert.Equal(t, "198.51.100.2", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.2")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}

func TestRequestLogging(t *testing.T) {
	var seen string
	handler := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxkeys.RequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestConfigIsSanitized(t *testing.T) {
	cfg := &config.Config{AppName: "Runs", StravaClientSecret: "secret", S3SecretKey: "key"}

	var got *config.Config
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ctxkeys.Config(r.Context())
	}), Config(cfg))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Equal(t, "Runs", got.AppName)
	assert.Empty(t, got.StravaClientSecret)
	assert.Empty(t, got.S3SecretKey)
}
