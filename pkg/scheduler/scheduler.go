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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/backup"
)

const (
	// DefaultBackupThreshold is the number of events between backups.
	DefaultBackupThreshold = 15
	// DefaultPollInterval is how long Run waits when no backup is due.
	DefaultPollInterval = time.Second
)

// Mode selects whether backups are taken at all.
type Mode int

const (
	// ModeStore archives backups to the vault.
	ModeStore Mode = iota
	// ModeNone disables backup and restore.
	ModeNone
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	return "store"
}

// ParseMode parses "store" or "none". An empty string means store.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "store":
		return ModeStore, nil
	case "none":
		return ModeNone, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Vault is the backup capability the scheduler drives.
type Vault interface {
	ArchiveBackup(ctx context.Context, localDir string, kind backup.Kind) error
	RestoreLatestBackupToTempLocation(ctx context.Context) (string, error)
}

// ArchiveFunc archives a snapshot directory produced by the host.
type ArchiveFunc func(ctx context.Context, dir string) error

// Snapshotter is implemented by the host. Snapshot produces a snapshot of
// the requested kind on local disk and passes its directory to archive.
type Snapshotter interface {
	Snapshot(ctx context.Context, kind backup.Kind, archive ArchiveFunc) error
}

// SnapshotterFunc adapts a function to Snapshotter.
type SnapshotterFunc func(ctx context.Context, kind backup.Kind, archive ArchiveFunc) error

// Snapshot calls f.
func (f SnapshotterFunc) Snapshot(ctx context.Context, kind backup.Kind, archive ArchiveFunc) error {
	return f(ctx, kind, archive)
}

// Restorer is implemented by the host. Restore replaces the host's state
// with the contents of dir.
type Restorer interface {
	Restore(ctx context.Context, dir string) error
}

// RestorerFunc adapts a function to Restorer.
type RestorerFunc func(ctx context.Context, dir string) error

// Restore calls f.
func (f RestorerFunc) Restore(ctx context.Context, dir string) error {
	return f(ctx, dir)
}

// Config configures a Scheduler.
type Config struct {
	Vault       Vault
	Snapshotter Snapshotter
	Restorer    Restorer
	Mode        Mode
	// BackupThreshold is the number of events that triggers a backup.
	BackupThreshold uint64
	// BackupFrequency, when positive, triggers the pending backup once this
	// much time has passed since the last request and at least one event
	// has been recorded.
	BackupFrequency time.Duration
	PollInterval    time.Duration
	Logger          adapters.Logger
}

// State is the scheduler's view of what to back up next.
type State struct {
	PendingKind           backup.Kind `json:"pending_kind"`
	EventsSinceLastBackup uint64      `json:"events_since_last_backup"`
	BackupThreshold       uint64      `json:"backup_threshold"`
}

// Scheduler counts mutation events and requests full or incremental
// snapshots from the host when enough have accumulated.
type Scheduler struct {
	vault       Vault
	snapshotter Snapshotter
	restorer    Restorer
	mode        Mode
	frequency   time.Duration
	poll        time.Duration
	logger      adapters.Logger
	now         func() time.Time

	events atomic.Uint64

	mu          sync.Mutex
	state       State
	lastRequest time.Time
}

// New creates a Scheduler in the awaiting-full state.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Mode != ModeStore && cfg.Mode != ModeNone {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(cfg.Mode))
	}
	if cfg.Mode == ModeStore {
		switch {
		case cfg.Vault == nil:
			return nil, ErrVaultNotSet
		case cfg.Snapshotter == nil:
			return nil, ErrSnapshotterNotSet
		case cfg.Restorer == nil:
			return nil, ErrRestorerNotSet
		}
	}
	if cfg.BackupThreshold == 0 {
		cfg.BackupThreshold = DefaultBackupThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}

	return &Scheduler{
		vault:       cfg.Vault,
		snapshotter: cfg.Snapshotter,
		restorer:    cfg.Restorer,
		mode:        cfg.Mode,
		frequency:   cfg.BackupFrequency,
		poll:        cfg.PollInterval,
		logger:      cfg.Logger,
		now:         time.Now,
		state: State{
			PendingKind:     backup.KindFull,
			BackupThreshold: cfg.BackupThreshold,
		},
		lastRequest: time.Now(),
	}, nil
}

// OnEvent records one mutation of the host's state. It never blocks.
func (s *Scheduler) OnEvent() {
	s.events.Add(1)
}

// State returns a copy of the current state. Events recorded but not yet
// evaluated are not included.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate consumes recorded events one at a time and requests a snapshot
// when the threshold is reached. Events left over after a request stay
// recorded for the next call. It reports whether a snapshot was requested.
// Only a failed full backup is returned as an error.
func (s *Scheduler) Evaluate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.events.Swap(0)
	if s.mode == ModeNone {
		return false, nil
	}

	for pending > 0 {
		pending--
		s.state.EventsSinceLastBackup++
		if s.state.EventsSinceLastBackup >= s.state.BackupThreshold {
			s.events.Add(pending)
			return true, s.requestBackup(ctx, "threshold")
		}
	}

	if s.frequency > 0 && s.state.EventsSinceLastBackup > 0 && s.now().Sub(s.lastRequest) >= s.frequency {
		return true, s.requestBackup(ctx, "frequency")
	}
	return false, nil
}

// requestBackup asks the host for a snapshot of the pending kind. Callers hold s.mu.
func (s *Scheduler) requestBackup(ctx context.Context, trigger string) error {
	kind := s.state.PendingKind
	s.state.EventsSinceLastBackup = 0
	s.lastRequest = s.now()

	s.logger.Info(ctx, "backup initiated",
		adapters.Field{Key: "kind", Value: kind.String()},
		adapters.Field{Key: "trigger", Value: trigger})

	err := s.snapshot(ctx, kind)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", backup.ErrInterrupted, ctx.Err())
		}
		if kind == backup.KindFull {
			s.logger.Error(ctx, "full backup failed", adapters.ErrorField(err))
			return fmt.Errorf("%w: %w", ErrFullBackupFailed, err)
		}
		if errors.Is(err, backup.ErrNoFullBackup) {
			// The chain is gone; only a full backup can start a new one.
			s.state.PendingKind = backup.KindFull
			s.logger.Warn(ctx, "no full backup found, next backup will be full", adapters.ErrorField(err))
			return nil
		}
		s.logger.Warn(ctx, "incremental backup failed",
			adapters.ErrorField(err),
			adapters.Field{Key: "retryable", Value: backup.IsRetryable(err)})
		return nil
	}

	s.logger.Info(ctx, "backup completed", adapters.Field{Key: "kind", Value: kind.String()})
	if kind == backup.KindFull {
		s.state.PendingKind = backup.KindIncremental
	}
	return nil
}

// snapshot asks the host for a snapshot and archives it through the vault.
// A panic while taking an incremental is returned as ErrSnapshotPanic; a
// panic during a full backup is not recovered.
func (s *Scheduler) snapshot(ctx context.Context, kind backup.Kind) (err error) {
	if kind == backup.KindIncremental {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrSnapshotPanic, r)
			}
		}()
	}
	return s.snapshotter.Snapshot(ctx, kind, func(ctx context.Context, dir string) error {
		return s.vault.ArchiveBackup(ctx, dir, kind)
	})
}

// OnDataLoss restores the newest backup chain into the host. On success the
// scheduler starts over: the next backup is full and earlier events are
// discarded. It reports false without error when backups are disabled.
func (s *Scheduler) OnDataLoss(ctx context.Context) (bool, error) {
	if s.mode == ModeNone {
		s.logger.Info(ctx, "data loss reported but backups are disabled")
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Warn(ctx, "data loss reported, restoring latest backup")

	dir, err := s.vault.RestoreLatestBackupToTempLocation(ctx)
	if err != nil {
		return false, fmt.Errorf("collect restore set: %w", err)
	}

	restoreErr := s.restorer.Restore(ctx, dir)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn(ctx, "failed to remove restore directory",
			adapters.Field{Key: "path", Value: dir}, adapters.ErrorField(err))
	}
	if restoreErr != nil {
		return false, fmt.Errorf("restore state: %w", restoreErr)
	}

	s.state.PendingKind = backup.KindFull
	s.state.EventsSinceLastBackup = 0
	s.events.Store(0)
	s.lastRequest = s.now()

	s.logger.Info(ctx, "restore completed")
	return true, nil
}

// Run evaluates until ctx is cancelled or a full backup fails. It waits
// PollInterval between evaluations that requested nothing.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		requested, err := s.Evaluate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if requested {
			continue
		}

		timer.Reset(s.poll)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
