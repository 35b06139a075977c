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
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestIDFromContext(c.Request.Context()))
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})
	return r
}

func do(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newRouter(RequestIDMiddleware())

	t.Run("generates id", func(t *testing.T) {
		w := do(r, "/ok", nil)
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagates caller id", func(t *testing.T) {
		w := do(r, "/ok", map[string]string{RequestIDHeader: "abc-123"})
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", w.Body.String())
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		w := do(r, "/ok", map[string]string{RequestIDHeader: strings.Repeat("x", 500)})
		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})
}

func TestRateLimitMiddleware_Global(t *testing.T) {
	r := newRouter(RateLimitMiddleware(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}, nil))

	assert.Equal(t, http.StatusOK, do(r, "/ok", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, "/ok", nil).Code)

	w := do(r, "/ok", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Burst"))
}

func TestRateLimitMiddleware_PerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, PerIP: true}, nil))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1:1001"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2:1000"))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := adapters.NewLogger(&buf, "json", adapters.DebugLevel)
	r := newRouter(RequestIDMiddleware(), LoggingMiddleware(logger))

	do(r, "/ok", map[string]string{RequestIDHeader: "req-1"})
	out := buf.String()
	assert.Contains(t, out, `"path":"/ok"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"level":"INFO"`)

	buf.Reset()
	do(r, "/fail", nil)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"status":500`)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	r := newRouter(SecurityHeadersMiddleware())
	w := do(r, "/ok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
