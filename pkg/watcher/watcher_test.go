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

package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-snapvault/pkg/backup"
	"github.com/jeremyhahn/go-snapvault/pkg/memory"
)

type call struct {
	dir  string
	kind backup.Kind
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeArchiver) ArchiveBackup(_ context.Context, dir string, kind backup.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{dir: dir, kind: kind})
	return f.err
}

func (f *fakeArchiver) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func dropSnapshot(t *testing.T, inbox, name, kind string) {
	t.Helper()
	dir := filepath.Join(inbox, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), []byte(name), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, name+"."+kind), nil, 0o644))
}

func nextResult(t *testing.T, w *Watcher) Result {
	t.Helper()
	select {
	case r := <-w.Results():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func startWatcher(t *testing.T, inbox string, a Archiver) *Watcher {
	t.Helper()
	w, err := New(Config{Inbox: inbox, Archiver: a})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Archiver: &fakeArchiver{}})
	assert.ErrorIs(t, err, ErrInboxNotSet)

	_, err = New(Config{Inbox: t.TempDir()})
	assert.ErrorIs(t, err, ErrArchiverNotSet)

	inbox := filepath.Join(t.TempDir(), "nested", "inbox")
	w, err := New(Config{Inbox: inbox, Archiver: &fakeArchiver{}})
	require.NoError(t, err)
	defer w.Stop()
	assert.DirExists(t, inbox)
	assert.Equal(t, inbox, w.Inbox())
}

func TestMarkerKind(t *testing.T) {
	tests := []struct {
		path string
		kind backup.Kind
		ok   bool
	}{
		{"/in/snap.full", backup.KindFull, true},
		{"/in/snap.incremental", backup.KindIncremental, true},
		{"/in/snap.full.failed", 0, false},
		{"/in/snap", 0, false},
		{"/in/.full", 0, false},
		{"/in/snap.tmp", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			kind, ok := markerKind(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.kind, kind)
			}
		})
	}
}

func TestWatcher_ArchivesMarkedDirectory(t *testing.T) {
	inbox := t.TempDir()
	a := &fakeArchiver{}
	w := startWatcher(t, inbox, a)

	dropSnapshot(t, inbox, "snap1", "incremental")

	r := nextResult(t, w)
	require.NoError(t, r.Err)
	assert.Equal(t, "snap1", r.Name)
	assert.Equal(t, backup.KindIncremental, r.Kind)
	assert.Equal(t, []call{{dir: filepath.Join(inbox, "snap1"), kind: backup.KindIncremental}}, a.recorded())
	assert.NoFileExists(t, filepath.Join(inbox, "snap1.incremental"))
}

func TestWatcher_ProcessesExistingMarkersOnStart(t *testing.T) {
	inbox := t.TempDir()
	dropSnapshot(t, inbox, "a", "full")
	dropSnapshot(t, inbox, "b", "incremental")
	a := &fakeArchiver{}

	w := startWatcher(t, inbox, a)

	assert.Equal(t, []call{
		{dir: filepath.Join(inbox, "a"), kind: backup.KindFull},
		{dir: filepath.Join(inbox, "b"), kind: backup.KindIncremental},
	}, a.recorded())
	assert.Equal(t, "a", nextResult(t, w).Name)
	assert.Equal(t, "b", nextResult(t, w).Name)
}

func TestWatcher_FailedArchiveRenamesMarker(t *testing.T) {
	inbox := t.TempDir()
	a := &fakeArchiver{err: errors.New("upload failed")}
	w := startWatcher(t, inbox, a)

	dropSnapshot(t, inbox, "snap", "full")

	r := nextResult(t, w)
	require.Error(t, r.Err)
	assert.FileExists(t, filepath.Join(inbox, "snap.full"+FailedSuffix))
	assert.NoFileExists(t, filepath.Join(inbox, "snap.full"))
	assert.DirExists(t, filepath.Join(inbox, "snap"))
}

func TestWatcher_StoredArchiveConsumesMarker(t *testing.T) {
	inbox := t.TempDir()
	a := &fakeArchiver{err: fmt.Errorf("%w: %w", backup.ErrArchivePersisted, backup.ErrInterrupted)}
	w := startWatcher(t, inbox, a)

	dropSnapshot(t, inbox, "snap", "incremental")

	r := nextResult(t, w)
	require.NoError(t, r.Err)
	assert.Len(t, a.recorded(), 1)
	assert.NoFileExists(t, filepath.Join(inbox, "snap.incremental"))
	assert.NoFileExists(t, filepath.Join(inbox, "snap.incremental"+FailedSuffix))
	assert.NoDirExists(t, filepath.Join(inbox, "snap"))
}

func TestWatcher_MissingDirectory(t *testing.T) {
	inbox := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "ghost.full"), nil, 0o644))
	a := &fakeArchiver{}
	w := startWatcher(t, inbox, a)

	r := nextResult(t, w)
	assert.ErrorIs(t, r.Err, ErrSnapshotDirMissing)
	assert.Empty(t, a.recorded())
	assert.FileExists(t, filepath.Join(inbox, "ghost.full"+FailedSuffix))
}

func TestWatcher_StartStop(t *testing.T) {
	w, err := New(Config{Inbox: t.TempDir(), Archiver: &fakeArchiver{}})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrWatcherStarted)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.ErrorIs(t, w.Start(context.Background()), ErrWatcherStopped)

	_, open := <-w.Results()
	assert.False(t, open)
}

func TestWatcher_WithVault(t *testing.T) {
	store := memory.New()
	vault, err := backup.New(backup.Config{
		Store:         store,
		Container:     "partition",
		KeyRange:      backup.KeyRange{Min: 0, Max: 10},
		TempDirectory: t.TempDir(),
	})
	require.NoError(t, err)

	inbox := t.TempDir()
	w := startWatcher(t, inbox, vault)

	dropSnapshot(t, inbox, "first", "full")
	require.NoError(t, nextResult(t, w).Err)
	dropSnapshot(t, inbox, "second", "incremental")
	require.NoError(t, nextResult(t, w).Err)

	descs, err := vault.ListBackupDescriptors(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, backup.KindIncremental, descs[0].Kind)
	assert.Equal(t, backup.KindFull, descs[1].Kind)
	assert.NoDirExists(t, filepath.Join(inbox, "first"))
	assert.NoDirExists(t, filepath.Join(inbox, "second"))
}
