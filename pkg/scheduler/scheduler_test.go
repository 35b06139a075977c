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

var errBoom = errors.New("boom")

type fakeVault struct {
	mu         sync.Mutex
	archived   []backup.Kind
	archiveErr map[backup.Kind]error
	restoreDir string
	restoreErr error
}

func (f *fakeVault) ArchiveBackup(_ context.Context, _ string, kind backup.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.archiveErr[kind]; err != nil {
		return err
	}
	f.archived = append(f.archived, kind)
	return nil
}

func (f *fakeVault) RestoreLatestBackupToTempLocation(context.Context) (string, error) {
	return f.restoreDir, f.restoreErr
}

func (f *fakeVault) kinds() []backup.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backup.Kind(nil), f.archived...)
}

func dirSnapshotter(t *testing.T) Snapshotter {
	return SnapshotterFunc(func(ctx context.Context, kind backup.Kind, archive ArchiveFunc) error {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "state"), []byte(kind.String()), 0o644))
		return archive(ctx, dir)
	})
}

func nopRestorer() Restorer {
	return RestorerFunc(func(context.Context, string) error { return nil })
}

func newTestScheduler(t *testing.T, v Vault, threshold uint64) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Vault:           v,
		Snapshotter:     dirSnapshotter(t),
		Restorer:        nopRestorer(),
		BackupThreshold: threshold,
	})
	require.NoError(t, err)
	return s
}

func events(s *Scheduler, n int) {
	for i := 0; i < n; i++ {
		s.OnEvent()
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStore, m)

	m, err = ParseMode("None")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, m)
	assert.Equal(t, "none", m.String())

	_, err = ParseMode("tape")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrVaultNotSet)

	_, err = New(Config{Vault: &fakeVault{}})
	assert.ErrorIs(t, err, ErrSnapshotterNotSet)

	_, err = New(Config{Vault: &fakeVault{}, Snapshotter: dirSnapshotter(t)})
	assert.ErrorIs(t, err, ErrRestorerNotSet)

	s, err := New(Config{Mode: ModeNone})
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultBackupThreshold), s.State().BackupThreshold)
	assert.Equal(t, backup.KindFull, s.State().PendingKind)
}

func TestEvaluate_BelowThreshold(t *testing.T) {
	v := &fakeVault{}
	s := newTestScheduler(t, v, 15)

	events(s, 14)
	requested, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.False(t, requested)
	assert.Empty(t, v.kinds())
	assert.Equal(t, uint64(14), s.State().EventsSinceLastBackup)
}

func TestEvaluate_FullThenIncremental(t *testing.T) {
	v := &fakeVault{}
	s := newTestScheduler(t, v, 15)
	ctx := context.Background()

	events(s, 15)
	requested, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, requested)
	assert.Equal(t, []backup.Kind{backup.KindFull}, v.kinds())

	state := s.State()
	assert.Equal(t, backup.KindIncremental, state.PendingKind)
	assert.Zero(t, state.EventsSinceLastBackup)

	events(s, 15)
	_, err = s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []backup.Kind{backup.KindFull, backup.KindIncremental}, v.kinds())
}

func TestEvaluate_LeftoverEventsCarryOver(t *testing.T) {
	v := &fakeVault{}
	s := newTestScheduler(t, v, 3)
	ctx := context.Background()

	events(s, 7)
	requested, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, requested)

	requested, err = s.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, requested)

	requested, err = s.Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, requested)
	assert.Equal(t, uint64(1), s.State().EventsSinceLastBackup)
	assert.Equal(t, []backup.Kind{backup.KindFull, backup.KindIncremental}, v.kinds())
}

func TestEvaluate_FailedIncrementalKeepsKind(t *testing.T) {
	v := &fakeVault{archiveErr: map[backup.Kind]error{}}
	s := newTestScheduler(t, v, 1)
	ctx := context.Background()

	s.OnEvent()
	_, err := s.Evaluate(ctx)
	require.NoError(t, err)

	v.archiveErr[backup.KindIncremental] = backup.ErrUploadFailed
	s.OnEvent()
	requested, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, requested)
	assert.Equal(t, backup.KindIncremental, s.State().PendingKind)
}

func TestEvaluate_MissingFullSwitchesToFull(t *testing.T) {
	v := &fakeVault{archiveErr: map[backup.Kind]error{}}
	s := newTestScheduler(t, v, 1)
	ctx := context.Background()

	s.OnEvent()
	_, err := s.Evaluate(ctx)
	require.NoError(t, err)

	v.archiveErr[backup.KindIncremental] = backup.ErrNoFullBackup
	s.OnEvent()
	_, err = s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, backup.KindFull, s.State().PendingKind)
}

func TestEvaluate_IncrementalPanicIsLogged(t *testing.T) {
	v := &fakeVault{}
	s, err := New(Config{
		Vault: v,
		Snapshotter: SnapshotterFunc(func(ctx context.Context, kind backup.Kind, archive ArchiveFunc) error {
			if kind == backup.KindIncremental {
				panic("snapshot store unavailable")
			}
			return archive(ctx, t.TempDir())
		}),
		Restorer:        nopRestorer(),
		BackupThreshold: 1,
	})
	require.NoError(t, err)
	ctx := context.Background()

	s.OnEvent()
	_, err = s.Evaluate(ctx)
	require.NoError(t, err)

	s.OnEvent()
	var requested bool
	require.NotPanics(t, func() { requested, err = s.Evaluate(ctx) })
	require.NoError(t, err)
	assert.True(t, requested)
	assert.Equal(t, backup.KindIncremental, s.State().PendingKind)
	assert.Equal(t, []backup.Kind{backup.KindFull}, v.kinds())
}

func TestEvaluate_FullPanicPropagates(t *testing.T) {
	s, err := New(Config{
		Vault: &fakeVault{},
		Snapshotter: SnapshotterFunc(func(context.Context, backup.Kind, ArchiveFunc) error {
			panic("snapshot store unavailable")
		}),
		Restorer:        nopRestorer(),
		BackupThreshold: 1,
	})
	require.NoError(t, err)

	s.OnEvent()
	assert.Panics(t, func() { _, _ = s.Evaluate(context.Background()) })
}

func TestEvaluate_FailedFullIsFatal(t *testing.T) {
	v := &fakeVault{archiveErr: map[backup.Kind]error{backup.KindFull: errBoom}}
	s := newTestScheduler(t, v, 1)

	s.OnEvent()
	_, err := s.Evaluate(context.Background())
	assert.ErrorIs(t, err, ErrFullBackupFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, backup.KindFull, s.State().PendingKind)
}

func TestEvaluate_FrequencyTrigger(t *testing.T) {
	v := &fakeVault{}
	s, err := New(Config{
		Vault:           v,
		Snapshotter:     dirSnapshotter(t),
		Restorer:        nopRestorer(),
		BackupThreshold: 100,
		BackupFrequency: time.Minute,
	})
	require.NoError(t, err)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	requested, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, requested)

	now = now.Add(2 * time.Minute)
	requested, err = s.Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, requested, "no events recorded")

	s.OnEvent()
	requested, err = s.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, requested)
	assert.Equal(t, []backup.Kind{backup.KindFull}, v.kinds())
}

func TestEvaluate_ModeNoneDiscardsEvents(t *testing.T) {
	s, err := New(Config{Mode: ModeNone, BackupThreshold: 1})
	require.NoError(t, err)

	events(s, 5)
	requested, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.False(t, requested)
	assert.Zero(t, s.State().EventsSinceLastBackup)

	restored, err := s.OnDataLoss(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestOnDataLoss_ResetsState(t *testing.T) {
	restoreDir := t.TempDir()
	v := &fakeVault{restoreDir: restoreDir}
	var got string
	s, err := New(Config{
		Vault:       v,
		Snapshotter: dirSnapshotter(t),
		Restorer: RestorerFunc(func(_ context.Context, dir string) error {
			got = dir
			return nil
		}),
		BackupThreshold: 2,
	})
	require.NoError(t, err)
	ctx := context.Background()

	events(s, 2)
	_, err = s.Evaluate(ctx)
	require.NoError(t, err)
	events(s, 1)
	_, err = s.Evaluate(ctx)
	require.NoError(t, err)
	events(s, 5)

	restored, err := s.OnDataLoss(ctx)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, restoreDir, got)
	assert.NoDirExists(t, restoreDir)

	state := s.State()
	assert.Equal(t, backup.KindFull, state.PendingKind)
	assert.Zero(t, state.EventsSinceLastBackup)

	requested, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, requested, "events before the restore are discarded")
}

func TestOnDataLoss_Failures(t *testing.T) {
	v := &fakeVault{restoreErr: backup.ErrNoBackupAvailable}
	s := newTestScheduler(t, v, 1)

	restored, err := s.OnDataLoss(context.Background())
	assert.False(t, restored)
	assert.ErrorIs(t, err, backup.ErrNoBackupAvailable)

	dir := t.TempDir()
	v = &fakeVault{restoreDir: dir}
	s, err = New(Config{
		Vault:       v,
		Snapshotter: dirSnapshotter(t),
		Restorer:    RestorerFunc(func(context.Context, string) error { return errBoom }),
	})
	require.NoError(t, err)
	restored, err = s.OnDataLoss(context.Background())
	assert.False(t, restored)
	assert.ErrorIs(t, err, errBoom)
	assert.NoDirExists(t, dir)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, &fakeVault{}, 15)
	s.poll = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	events(s, 3)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, uint64(3), s.State().EventsSinceLastBackup)
}

func TestRun_StopsOnFailedFull(t *testing.T) {
	v := &fakeVault{archiveErr: map[backup.Kind]error{backup.KindFull: errBoom}}
	s := newTestScheduler(t, v, 1)
	s.poll = time.Millisecond
	s.OnEvent()

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrFullBackupFailed)
}

func TestScheduler_WithVault(t *testing.T) {
	temp := t.TempDir()
	vault, err := backup.New(backup.Config{
		Store:            memory.New(),
		Container:        "partition",
		KeyRange:         backup.KeyRange{Min: 0, Max: 100},
		TempDirectory:    temp,
		MaxBackupsToKeep: 1,
	})
	require.NoError(t, err)

	var restored map[string]string
	s, err := New(Config{
		Vault:       vault,
		Snapshotter: dirSnapshotter(t),
		Restorer: RestorerFunc(func(_ context.Context, dir string) error {
			data, err := os.ReadFile(filepath.Join(dir, "state"))
			if err != nil {
				return err
			}
			restored = map[string]string{"state": string(data)}
			return nil
		}),
		BackupThreshold: 2,
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		events(s, 2)
		requested, err := s.Evaluate(ctx)
		require.NoError(t, err)
		require.True(t, requested)
	}

	descs, err := vault.ListBackupDescriptors(ctx, true)
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Equal(t, backup.KindFull, descs[2].Kind)

	ok, err := s.OnDataLoss(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "incremental", restored["state"])
}
