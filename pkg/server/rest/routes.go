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

package rest

import "github.com/gin-gonic/gin"

// SetupRoutes configures all routes for the admin API
func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		backups := v1.Group("/backups")
		{
			backups.GET("", handler.ListBackups)
			backups.POST("/prune", handler.PruneBackups)
		}

		v1.POST("/restore", handler.Restore)
		v1.DELETE("/restore", handler.RemoveRestore)
		v1.GET("/status", handler.Status)
	}
}
