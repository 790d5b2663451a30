package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PATCH("/token", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPatch, "/token", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	r := newLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.0.1:1002"))

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2:1000"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }
	r := newLimitedRouter(rl)

	hit(r, "10.0.0.1:1")
	hit(r, "10.0.0.2:1")

	now = now.Add(time.Hour)
	hit(r, "10.0.0.2:1")

	assert.Equal(t, 1, rl.Cleanup(10*time.Minute))
	assert.Len(t, rl.limiters, 1)
}
