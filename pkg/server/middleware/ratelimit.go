// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerSecond is the number of requests allowed per second
	RequestsPerSecond float64

	// Burst is the maximum burst size
	Burst int

	// PerIP enables per-IP rate limiting (default: false = global rate limit)
	PerIP bool
}

// DefaultRateLimitConfig returns a conservative limit for an admin API.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

type rateLimiter struct {
	config  *RateLimitConfig
	global  *rate.Limiter
	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newRateLimiter(config *RateLimitConfig) *rateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	rl := &rateLimiter{
		config:  config,
		clients: make(map[string]*rate.Limiter),
	}
	if !config.PerIP {
		rl.global = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return rl
}

func (rl *rateLimiter) limiter(clientIP string) *rate.Limiter {
	if !rl.config.PerIP {
		return rl.global
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.clients[clientIP]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.clients[clientIP] = l
	}
	return l
}

// RateLimitMiddleware rejects requests over the configured rate with 429.
func RateLimitMiddleware(config *RateLimitConfig, logger adapters.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	rl := newRateLimiter(config)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if rl.limiter(clientIP).Allow() {
			c.Next()
			return
		}

		logger.Warn(c.Request.Context(), "Rate limit exceeded",
			adapters.Field{Key: "client_ip", Value: clientIP},
			adapters.Field{Key: "path", Value: c.Request.URL.Path},
			adapters.Field{Key: "request_id", Value: GetRequestIDFromGinContext(c)},
		)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%.0f", rl.config.RequestsPerSecond))
		c.Header("X-RateLimit-Burst", fmt.Sprintf("%d", rl.config.Burst))
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   http.StatusText(http.StatusTooManyRequests),
			"code":    http.StatusTooManyRequests,
			"message": "too many requests, please try again later",
		})
	}
}
