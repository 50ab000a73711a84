package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func TestKeyByIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/vouchers/HS-1", nil)
	c.Request.RemoteAddr = "1.2.3.4:5678"

	if key := KeyByIP(c); key != "1.2.3.4" {
		t.Fatalf("key want 1.2.3.4 got %s", key)
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestRateLimitMiddlewareFailsOpenWhenRedisDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(RateLimitMiddleware(client, RateLimitRule{Prefix: "rl:voucher", WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/api/v1/vouchers/:code", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vouchers/HS-1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass while redis is down, got %d", i, w.Code)
		}
	}
}

func TestRateLimitRuleHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/vouchers/HS-1", nil)
	c.Request.RemoteAddr = "10.0.0.9:4000"

	rule := RateLimitRule{Prefix: "lipa:rate:voucher_lookup", WindowSeconds: 60}
	if key := rule.key(c, nil); key != "lipa:rate:voucher_lookup:10.0.0.9" {
		t.Fatalf("unexpected key: %s", key)
	}
	if key := (RateLimitRule{}).key(c, func(*gin.Context) string { return " tenant-7 " }); key != "tenant-7" {
		t.Fatalf("custom key not used: %s", key)
	}

	waits := []struct {
		rule RateLimitRule
		ttl  int64
		want int
	}{
		{rule, 42, 42},
		{rule, -2, 60},
		{RateLimitRule{}, 0, 1},
	}
	for _, tc := range waits {
		if got := tc.rule.retryAfter(tc.ttl); got != tc.want {
			t.Fatalf("retryAfter(%d) want %d got %d", tc.ttl, tc.want, got)
		}
	}

	if msg := (RateLimitRule{}).message(); msg != "too many requests" {
		t.Fatalf("unexpected default message: %s", msg)
	}
}
