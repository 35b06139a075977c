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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/backup"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
	"github.com/jeremyhahn/go-snapvault/pkg/factory"
	"github.com/jeremyhahn/go-snapvault/pkg/scheduler"
	"github.com/jeremyhahn/go-snapvault/pkg/server/rest"
	"github.com/jeremyhahn/go-snapvault/pkg/watcher"
)

// shutdownTimeout bounds graceful shutdown of the agent's API server.
const shutdownTimeout = 30 * time.Second

// CommandContext holds the context for executing commands.
type CommandContext struct {
	Config  *Config
	Storage common.Storage
	Logger  adapters.Logger

	// vault is nil when backup-mode is none.
	vault *backup.Vault
}

// NewCommandContext validates cfg and connects to the configured store.
// Logs are written to logOutput.
func NewCommandContext(cfg *Config, logOutput io.Writer) (*CommandContext, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	level, err := adapters.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := adapters.NewLogger(logOutput, cfg.LogFormat, level)

	storage, err := factory.NewStorage(cfg.Backend, cfg.StorageSettings())
	if err != nil {
		return nil, err
	}
	if ls, ok := storage.(interface{ SetLogger(adapters.Logger) }); ok {
		ls.SetLogger(logger)
	}

	cc := &CommandContext{
		Config:  cfg,
		Storage: storage,
		Logger:  logger,
	}

	mode, err := scheduler.ParseMode(cfg.BackupMode)
	if err != nil {
		return nil, err
	}
	if mode == scheduler.ModeNone {
		return cc, nil
	}

	cc.vault, err = backup.New(backup.Config{
		Store:               storage,
		Container:           cfg.Container(),
		KeyRange:            cfg.KeyRange(),
		TempDirectory:       cfg.LocalTempDirectory,
		MaxBackupsToKeep:    cfg.MaxBackupsToKeep,
		DownloadConcurrency: cfg.DownloadConcurrency,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	return cc, nil
}

// Vault returns the backup vault, or ErrBackupsDisabled.
func (c *CommandContext) Vault() (*backup.Vault, error) {
	if c.vault == nil {
		return nil, ErrBackupsDisabled
	}
	return c.vault, nil
}

// ArchiveCommand archives dir as a backup of the given kind. The directory
// is removed after a successful upload.
func (c *CommandContext) ArchiveCommand(ctx context.Context, dir, kind string) error {
	v, err := c.Vault()
	if err != nil {
		return err
	}
	k, err := backup.ParseKind(kind)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return v.ArchiveBackup(ctx, dir, k)
}

// RestoreCommand collects the newest backup chain and returns the
// directory holding it. When out is set the result is moved there; out
// must not exist.
func (c *CommandContext) RestoreCommand(ctx context.Context, out string) (string, error) {
	v, err := c.Vault()
	if err != nil {
		return "", err
	}
	if out != "" {
		if _, err := os.Lstat(out); err == nil {
			return "", fmt.Errorf("%w: %s", ErrOutputExists, out)
		}
	}

	dir, err := v.RestoreLatestBackupToTempLocation(ctx)
	if err != nil {
		return "", err
	}
	if out == "" {
		return dir, nil
	}
	if err := os.Rename(dir, out); err != nil {
		return dir, fmt.Errorf("move restored state to %s (left at %s): %w", out, dir, err)
	}
	return out, nil
}

// PruneCommand applies the retention policy.
func (c *CommandContext) PruneCommand(ctx context.Context) (uint32, error) {
	v, err := c.Vault()
	if err != nil {
		return 0, err
	}
	return v.DeleteBackups(ctx)
}

// ListCommand lists backups for the configured key range.
func (c *CommandContext) ListCommand(ctx context.Context, sorted bool) ([]backup.Descriptor, error) {
	v, err := c.Vault()
	if err != nil {
		return nil, err
	}
	return v.ListBackupDescriptors(ctx, sorted)
}

// AgentCommand watches the snapshot inbox and serves the admin API on
// Config.Listen until ctx is cancelled. An empty Listen disables the API.
func (c *CommandContext) AgentCommand(ctx context.Context) error {
	v, err := c.Vault()
	if err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{
		Inbox:    c.Config.InboxDirectory(),
		Archiver: v,
		Logger:   c.Logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	// The watcher logs every result; drain so the buffer never fills.
	go func() {
		for range w.Results() {
		}
	}()

	if c.Config.Listen == "" {
		<-ctx.Done()
		return nil
	}

	cfg := rest.DefaultServerConfig()
	cfg.Addr = c.Config.Listen
	cfg.Container = c.Config.Container()
	cfg.EnableRateLimit = true
	cfg.Logger = c.Logger
	srv, err := rest.NewServer(v, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
