package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/ratelimit"
	"github.com/gin-gonic/gin"
)

func limitedRouter(rps, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitPerIP(ratelimit.NewPerKey(rps, burst, 100, time.Hour)))
	r.GET("/", func(c *gin.Context) { c.String(200, "ok") })
	return r
}

func hit(r *gin.Engine, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = addr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerIP_Basic(t *testing.T) {
	r := limitedRouter(1, 1)

	if w := hit(r, "1.2.3.4:12345"); w.Code != 200 {
		t.Fatalf("want 200, got %d", w.Code)
	}
	// второй подряд получает 429
	w := hit(r, "1.2.3.4:12345")
	if w.Code != 429 {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if body := w.Body.String(); body == "" || body[0] != '{' {
		t.Fatalf("want JSON error body, got %q", body)
	}
}

func TestRateLimitPerIP_DifferentHosts(t *testing.T) {
	r := limitedRouter(1, 1)

	if w := hit(r, "10.0.0.1:1"); w.Code != 200 {
		t.Fatalf("host A: want 200, got %d", w.Code)
	}
	if w := hit(r, "10.0.0.2:1"); w.Code != 200 {
		t.Fatalf("host B: want 200, got %d", w.Code)
	}
}

func TestRateLimitPerIP_PortIgnored(t *testing.T) {
	r := limitedRouter(1, 1)

	if w := hit(r, "10.0.0.3:1000"); w.Code != 200 {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if w := hit(r, "10.0.0.3:2000"); w.Code != 429 {
		t.Fatalf("same IP on another port must share the quota, got %d", w.Code)
	}
}
