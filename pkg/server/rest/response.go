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

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-snapvault/pkg/backup"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Container string `json:"container,omitempty"`
}

// BackupsResponse lists backup descriptors
type BackupsResponse struct {
	Backups []backup.Descriptor `json:"backups"`
	Count   int                 `json:"count"`
}

// PruneResponse reports the result of a retention run
type PruneResponse struct {
	Deleted uint32 `json:"deleted"`
}

// RestoreResponse reports where the restored state was written
type RestoreResponse struct {
	Path string `json:"path"`
}

// StatusResponse reports vault metrics
type StatusResponse struct {
	Container string                 `json:"container,omitempty"`
	Metrics   backup.MetricsSnapshot `json:"metrics"`
}

// RespondWithError sends a standard error response
func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// RespondWithBackupError maps a vault error to a status code and sends it.
func RespondWithBackupError(c *gin.Context, err error) {
	code := statusFor(err)
	_ = c.Error(err)
	c.JSON(code, ErrorResponse{
		Error:     http.StatusText(code),
		Code:      code,
		Message:   err.Error(),
		Retryable: backup.IsRetryable(err),
	})
}
