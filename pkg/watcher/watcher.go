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

// Package watcher archives snapshot directories dropped into an inbox by an
// out-of-process producer.
//
// A producer writes a snapshot to inbox/<name>/ and then creates the marker
// file inbox/<name>.full or inbox/<name>.incremental. The watcher archives
// the directory with the marker's kind and removes the marker. When the
// archive fails the directory is kept and the marker is renamed to
// <marker>.failed so an operator can retry by renaming it back.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/backup"
)

// FailedSuffix is appended to markers whose archive failed.
const FailedSuffix = ".failed"

// Archiver archives a local snapshot directory.
type Archiver interface {
	ArchiveBackup(ctx context.Context, localDir string, kind backup.Kind) error
}

// Result describes one processed marker.
type Result struct {
	Name      string      `json:"name"`
	Kind      backup.Kind `json:"kind"`
	Dir       string      `json:"dir"`
	Err       error       `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

// Config contains configuration options for Watcher.
type Config struct {
	Inbox    string
	Archiver Archiver
	Logger   adapters.Logger
	// ResultBuffer sizes the Results channel. Default: 100.
	ResultBuffer int
}

// Watcher watches an inbox directory for snapshot markers.
type Watcher struct {
	inbox    string
	archiver Archiver
	logger   adapters.Logger
	fsw      *fsnotify.Watcher
	results  chan Result

	mu      sync.Mutex
	started bool
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher. The inbox directory is created if missing.
func New(cfg Config) (*Watcher, error) {
	if cfg.Inbox == "" {
		return nil, ErrInboxNotSet
	}
	if cfg.Archiver == nil {
		return nil, ErrArchiverNotSet
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 100
	}

	inbox := filepath.Clean(cfg.Inbox)
	if err := os.MkdirAll(inbox, 0o750); err != nil {
		return nil, &WatcherError{Op: "create", Path: inbox, Err: err}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		inbox:    inbox,
		archiver: cfg.Archiver,
		logger:   cfg.Logger.WithFields(adapters.Field{Key: "inbox", Value: inbox}),
		fsw:      fsw,
		results:  make(chan Result, cfg.ResultBuffer),
	}, nil
}

// Inbox returns the watched directory.
func (w *Watcher) Inbox() string {
	return w.inbox
}

// Results returns processed markers. The channel is closed by Stop. Results
// are dropped when nobody reads them and the buffer is full.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Start begins watching the inbox. Markers already present are processed
// before Start returns.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	switch {
	case w.stopped:
		w.mu.Unlock()
		return &WatcherError{Op: "start", Path: w.inbox, Err: ErrWatcherStopped}
	case w.started:
		w.mu.Unlock()
		return &WatcherError{Op: "start", Path: w.inbox, Err: ErrWatcherStarted}
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	if err := w.fsw.Add(w.inbox); err != nil {
		return &WatcherError{Op: "watch", Path: w.inbox, Err: err}
	}
	w.logger.Info(ctx, "Started watching inbox")

	// Watch first so markers created during the scan are not missed.
	w.scan(ctx)

	w.wg.Add(1)
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for an in-progress archive to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := w.fsw.Close(); err != nil {
		w.logger.Error(context.Background(), "Error closing fsnotify watcher", adapters.ErrorField(err))
	}
	w.wg.Wait()
	close(w.results)

	w.logger.Info(context.Background(), "Inbox watcher stopped")
	return nil
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		w.logger.Warn(ctx, "Failed to scan inbox", adapters.ErrorField(err))
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, filepath.Join(w.inbox, name))
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.handle(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; rescan to pick up any missed markers.
				w.logger.Warn(ctx, "Filesystem event overflow, rescanning inbox")
				w.scan(ctx)
				continue
			}
			w.logger.Error(ctx, "Filesystem watcher error", adapters.ErrorField(err))

		case <-ctx.Done():
			return
		}
	}
}

// markerKind reports the kind named by a marker path.
func markerKind(path string) (backup.Kind, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return 0, false
	}
	ext := filepath.Ext(base)
	if ext == "" {
		return 0, false
	}
	kind, err := backup.ParseKind(ext[1:])
	if err != nil {
		return 0, false
	}
	return kind, true
}

func (w *Watcher) handle(ctx context.Context, marker string) {
	kind, ok := markerKind(marker)
	if !ok {
		return
	}

	// Create and Write events for the same marker both arrive here; the
	// second finds the marker already consumed.
	if _, err := os.Lstat(marker); err != nil {
		return
	}

	name := strings.TrimSuffix(filepath.Base(marker), filepath.Ext(marker))
	dir := filepath.Join(w.inbox, name)
	result := Result{Name: name, Kind: kind, Dir: dir}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		result.Err = &WatcherError{Op: "archive", Path: dir, Err: ErrSnapshotDirMissing}
	} else {
		w.logger.Info(ctx, "Archiving snapshot",
			adapters.Field{Key: "name", Value: name},
			adapters.Field{Key: "kind", Value: kind.String()})
		result.Err = w.archiver.ArchiveBackup(ctx, dir, kind)
		if errors.Is(result.Err, backup.ErrArchivePersisted) {
			// The archive is stored; archiving the directory again would
			// duplicate it under a new sequence number.
			w.logger.Warn(ctx, "Snapshot archived but cleanup was interrupted",
				adapters.Field{Key: "name", Value: name}, adapters.ErrorField(result.Err))
			if err := os.RemoveAll(dir); err != nil {
				w.logger.Warn(ctx, "Failed to remove snapshot directory",
					adapters.Field{Key: "path", Value: dir}, adapters.ErrorField(err))
			}
			result.Err = nil
		}
	}
	result.Timestamp = time.Now()

	switch {
	case result.Err == nil:
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			w.logger.Warn(ctx, "Failed to remove marker",
				adapters.Field{Key: "path", Value: marker}, adapters.ErrorField(err))
		}
		w.logger.Info(ctx, "Snapshot archived", adapters.Field{Key: "name", Value: name})
	case ctx.Err() != nil:
		// Leave the marker in place; the next start picks it up again.
		w.logger.Warn(ctx, "Snapshot archive interrupted",
			adapters.Field{Key: "name", Value: name}, adapters.ErrorField(result.Err))
	default:
		if err := os.Rename(marker, marker+FailedSuffix); err != nil {
			w.logger.Warn(ctx, "Failed to mark snapshot as failed",
				adapters.Field{Key: "path", Value: marker}, adapters.ErrorField(err))
		}
		w.logger.Error(ctx, "Snapshot archive failed",
			adapters.Field{Key: "name", Value: name},
			adapters.Field{Key: "kind", Value: kind.String()},
			adapters.ErrorField(result.Err))
	}

	select {
	case w.results <- result:
	default:
		w.logger.Warn(ctx, "Result channel full, dropping result",
			adapters.Field{Key: "name", Value: name})
	}
}
