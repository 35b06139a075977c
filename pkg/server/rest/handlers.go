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
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/backup"
	"github.com/jeremyhahn/go-snapvault/pkg/version"
)

// Vault is the subset of the backup vault served over HTTP.
type Vault interface {
	RestoreLatestBackupToTempLocation(ctx context.Context) (string, error)
	RemoveRestoreDirectory(path string) error
	DeleteBackups(ctx context.Context) (uint32, error)
	ListBackupDescriptors(ctx context.Context, sorted bool) ([]backup.Descriptor, error)
	Metrics() backup.MetricsSnapshot
}

// Handler serves the admin endpoints for one vault
type Handler struct {
	vault     Vault
	container string
	logger    adapters.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(vault Vault, container string, logger adapters.Logger) *Handler {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return &Handler{
		vault:     vault,
		container: container,
		logger:    logger,
	}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   version.Get(),
		Container: h.container,
	})
}

// ListBackups returns descriptors for the vault's key range. With
// sorted=true they are ordered by descending sequence number.
func (h *Handler) ListBackups(c *gin.Context) {
	sorted := false
	if raw := c.Query("sorted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			RespondWithError(c, http.StatusBadRequest, "sorted must be a boolean")
			return
		}
		sorted = v
	}

	descs, err := h.vault.ListBackupDescriptors(c.Request.Context(), sorted)
	if err != nil {
		RespondWithBackupError(c, err)
		return
	}
	if descs == nil {
		descs = []backup.Descriptor{}
	}
	c.JSON(http.StatusOK, BackupsResponse{Backups: descs, Count: len(descs)})
}

// PruneBackups applies the retention policy.
func (h *Handler) PruneBackups(c *gin.Context) {
	deleted, err := h.vault.DeleteBackups(c.Request.Context())
	if err != nil {
		RespondWithBackupError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "Pruned backups via API", adapters.Field{Key: "deleted", Value: deleted})
	c.JSON(http.StatusOK, PruneResponse{Deleted: deleted})
}

// Restore collects the newest chain into a local directory on the server.
func (h *Handler) Restore(c *gin.Context) {
	path, err := h.vault.RestoreLatestBackupToTempLocation(c.Request.Context())
	if err != nil {
		RespondWithBackupError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "Restored backup via API", adapters.Field{Key: "path", Value: path})
	c.JSON(http.StatusOK, RestoreResponse{Path: path})
}

// RemoveRestore deletes a directory produced by Restore. The directory is
// named by the path query parameter, exactly as Restore returned it.
func (h *Handler) RemoveRestore(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		RespondWithError(c, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.vault.RemoveRestoreDirectory(path); err != nil {
		RespondWithBackupError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "Removed restore directory via API", adapters.Field{Key: "path", Value: path})
	c.Status(http.StatusNoContent)
}

// Status returns vault metrics.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Container: h.container,
		Metrics:   h.vault.Metrics(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backup.ErrNoBackupAvailable),
		errors.Is(err, backup.ErrRestoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrNotRestoreDirectory):
		return http.StatusBadRequest
	case errors.Is(err, backup.ErrIncompleteChain):
		return http.StatusConflict
	case errors.Is(err, backup.ErrInterrupted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case backup.IsRetryable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
