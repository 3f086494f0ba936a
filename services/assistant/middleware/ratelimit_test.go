// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// Tests for the per-client rate limiter

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/veridocs/dataroom-qa/pkg/extensions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimitedRouter(limiter *RateLimiter, withAuth bool) *gin.Engine {
	router := gin.New()
	if withAuth {
		router.Use(ViewerAuthMiddleware(&extensions.NopAuthProvider{}))
	}
	router.Use(RateLimitMiddleware(limiter))
	router.POST("/ask", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(60, 3), false)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/ask", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i)
	}
}

func TestRateLimit_RejectsBeyondBurst(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(1, 2), false)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/ask", nil)
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestRateLimit_SetsRetryAfterHeader(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(1, 1), false)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/ask", nil))

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/ask", nil))

	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	assert.True(t, limiter.Allow("viewer-a"))
	assert.False(t, limiter.Allow("viewer-a"))
	assert.True(t, limiter.Allow("viewer-b"), "a throttled client must not affect others")
}

func TestRateLimit_DefaultsOnBadConfig(t *testing.T) {
	limiter := NewRateLimiter(-1, 0)
	assert.True(t, limiter.Allow("viewer-a"))
}

func TestRateLimit_KeysByViewerWhenAuthenticated(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	router := newLimitedRouter(limiter, true)

	// NopAuthProvider authenticates everyone as local-user, so two requests
	// from different IPs share one bucket.
	first := httptest.NewRequest(http.MethodPost, "/ask", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, first)

	second := httptest.NewRequest(http.MethodPost, "/ask", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, second)

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}
