package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRateLimiter(rps, burst).Handler())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func doRequest(r *gin.Engine, ip string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	r := newLimitedRouter(1, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "10.0.0.1"))
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	r := newLimitedRouter(1, 1)

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "10.0.0.1"))

	// A different client still has its full budget.
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.2"))
}
