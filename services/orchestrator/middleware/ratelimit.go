// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client. Zero disables
	// limiting.
	RequestsPerSecond float64

	// Burst is the bucket size. Default: 10
	Burst int

	// IdleTTL drops limiters unused for this long. Default: 10m
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{cfg: cfg, clients: make(map[string]*clientLimiter), now: time.Now}
}

// Allow reports whether key may make a request now. On refusal it returns
// how long to wait.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	if r.cfg.RequestsPerSecond <= 0 {
		return true, 0
	}
	now := r.now()

	r.mu.Lock()
	cl, ok := r.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)}
		r.clients[key] = cl
	}
	cl.lastSeen = now
	r.mu.Unlock()

	res := cl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops limiters idle for longer than IdleTTL.
func (r *RateLimiter) Sweep() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, cl := range r.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(r.clients, k)
			n++
		}
	}
	return n
}

// Middleware returns the Gin middleware. Clients are keyed by the
// authenticated subject, or by IP when there is none.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if info := GetAuthInfo(c); info != nil && info.Subject != "" {
			key = "sub:" + info.Subject
		}

		ok, wait := r.Allow(key)
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
