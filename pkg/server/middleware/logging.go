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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
)

// LoggingMiddleware logs each request through the logging adapter. Server
// errors log at error level and client errors at warn.
func LoggingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []adapters.Field{
			{Key: "method", Value: c.Request.Method},
			{Key: "path", Value: c.Request.URL.Path},
			{Key: "status", Value: status},
			{Key: "latency", Value: time.Since(start).String()},
			{Key: "client_ip", Value: c.ClientIP()},
		}
		if id := GetRequestIDFromGinContext(c); id != "" {
			fields = append(fields, adapters.Field{Key: "request_id", Value: id})
		}
		if len(c.Errors) > 0 {
			fields = append(fields, adapters.Field{Key: "error", Value: c.Errors.String()})
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.Error(ctx, "HTTP request completed", fields...)
		case status >= 400:
			logger.Warn(ctx, "HTTP request completed", fields...)
		default:
			logger.Info(ctx, "HTTP request completed", fields...)
		}
	}
}
