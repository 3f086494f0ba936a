// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Default limiter settings. A question every few seconds with a small burst
// covers real usage; sustained hammering gets 429s.
const (
	defaultQuestionsPerMinute = 20
	defaultBurst              = 5

	// staleClientAge is how long an idle client's limiter survives before
	// eviction.
	staleClientAge = 10 * time.Minute
)

// clientLimiter pairs a token bucket with its last-seen time for eviction.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client key.
//
// # Description
//
// One token bucket per client, keyed by authenticated viewer ID when
// available and remote IP otherwise. Idle buckets are evicted lazily on
// lookup, so the map stays bounded by the set of recently active clients.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lastScan time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests with the
// given burst per client. Non-positive inputs fall back to the defaults.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = defaultQuestionsPerMinute
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether the client may proceed now.
func (r *RateLimiter) Allow(clientKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.evictStale(now)

	cl, ok := r.clients[clientKey]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientKey] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

// evictStale drops idle clients. Scans at most once per minute; callers hold
// the lock.
func (r *RateLimiter) evictStale(now time.Time) {
	if now.Sub(r.lastScan) < time.Minute {
		return
	}
	r.lastScan = now
	for key, cl := range r.clients {
		if now.Sub(cl.lastSeen) > staleClientAge {
			delete(r.clients, key)
		}
	}
}

// RateLimitMiddleware creates a Gin middleware that throttles per client.
//
// # Description
//
// The client key is the authenticated viewer ID when the auth middleware ran
// first, falling back to the remote IP. Throttled requests get 429 with a
// Retry-After hint and never reach the pipeline, so an abusive viewer cannot
// monopolize retrieval or generation capacity.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if info := GetAuthInfo(c); info != nil && info.UserID != "" {
			key = info.UserID
		}

		if !limiter.Allow(key) {
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, slow down",
			})
			return
		}
		c.Next()
	}
}
