package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiterBurstThenDeny(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	key := "10.0.0.1"

	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("request %d should be allowed within burst", i)
		}
	}

	if limiter.Allow(key) {
		t.Error("request after burst should be denied")
	}

	// 60/min replenishes one token per second.
	time.Sleep(1100 * time.Millisecond)

	if !limiter.Allow(key) {
		t.Error("request after replenishment should be allowed")
	}
}

func TestLimiterIsolatesKeys(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("auth:session-a")
	}

	if limiter.Allow("auth:session-a") {
		t.Error("exhausted session should be limited")
	}
	if !limiter.Allow("auth:session-b") {
		t.Error("other session should still have tokens")
	}
}

func TestLimiterReplenishRate(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	key := "10.0.0.2"

	if !limiter.Allow(key) {
		t.Error("first request should be allowed")
	}
	if limiter.Allow(key) {
		t.Error("second immediate request should be denied")
	}

	time.Sleep(110 * time.Millisecond)

	if !limiter.Allow(key) {
		t.Error("request after replenish window should be allowed")
	}
}

func TestMiddlewareKeysByToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("Bearer session-one"); code != http.StatusOK {
		t.Fatalf("first request for session-one: got %d", code)
	}
	if code := do("Bearer session-one"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for session-one should be limited, got %d", code)
	}
	// A different token is a different bucket.
	if code := do("Bearer session-two"); code != http.StatusOK {
		t.Fatalf("first request for session-two: got %d", code)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("expected 60 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("expected burst size 10, got %d", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}
