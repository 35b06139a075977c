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

package backup

import (
	"sync/atomic"
	"time"
)

// Metrics tracks archive, prune and restore activity.
// All fields use atomic operations for thread-safe updates.
type Metrics struct {
	// Counters
	archivesCreated  atomic.Int64
	archivesDeleted  atomic.Int64
	bytesUploaded    atomic.Int64
	bytesDownloaded  atomic.Int64
	restoresComplete atomic.Int64
	totalErrors      atomic.Int64

	// Timing
	lastBackupTime     atomic.Int64 // Unix timestamp in nanoseconds
	lastBackupKind     atomic.Int32
	lastRestoreTime    atomic.Int64
	totalBackupTime    atomic.Int64 // Total duration in nanoseconds
	totalRestoreTime   atomic.Int64
	lastSequenceNumber atomic.Int64 // -1 until the first backup
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.lastSequenceNumber.Store(-1)
	return m
}

// RecordBackup records a completed archive upload.
func (m *Metrics) RecordBackup(desc Descriptor, size int64, duration time.Duration) {
	m.archivesCreated.Add(1)
	m.bytesUploaded.Add(size)
	m.lastBackupTime.Store(time.Now().UnixNano())
	m.lastBackupKind.Store(int32(desc.Kind))
	m.lastSequenceNumber.Store(int64(desc.SequenceNumber))
	m.totalBackupTime.Add(duration.Nanoseconds())
}

// RecordRestore records a completed restore.
func (m *Metrics) RecordRestore(size int64, duration time.Duration) {
	m.restoresComplete.Add(1)
	m.bytesDownloaded.Add(size)
	m.lastRestoreTime.Store(time.Now().UnixNano())
	m.totalRestoreTime.Add(duration.Nanoseconds())
}

// IncrementArchivesDeleted increments the deleted archives counter.
func (m *Metrics) IncrementArchivesDeleted(count int64) {
	m.archivesDeleted.Add(count)
}

// IncrementErrors increments the error counter.
func (m *Metrics) IncrementErrors(count int64) {
	m.totalErrors.Add(count)
}

func loadTime(v *atomic.Int64) time.Time {
	nanos := v.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func average(total, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(total / count)
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	created := m.archivesCreated.Load()
	restores := m.restoresComplete.Load()

	snap := MetricsSnapshot{
		ArchivesCreated:       created,
		ArchivesDeleted:       m.archivesDeleted.Load(),
		BytesUploaded:         m.bytesUploaded.Load(),
		BytesDownloaded:       m.bytesDownloaded.Load(),
		RestoresCompleted:     restores,
		TotalErrors:           m.totalErrors.Load(),
		LastBackupTime:        loadTime(&m.lastBackupTime),
		LastRestoreTime:       loadTime(&m.lastRestoreTime),
		AverageBackupDuration: average(m.totalBackupTime.Load(), created),
		AverageRestoreTime:    average(m.totalRestoreTime.Load(), restores),
	}
	if seq := m.lastSequenceNumber.Load(); seq >= 0 {
		kind := Kind(m.lastBackupKind.Load())
		s := uint64(seq)
		snap.LastBackupKind = &kind
		snap.LastSequenceNumber = &s
	}
	return snap
}

// MetricsSnapshot represents a point-in-time snapshot of vault metrics.
type MetricsSnapshot struct {
	ArchivesCreated       int64         `json:"archives_created"`
	ArchivesDeleted       int64         `json:"archives_deleted"`
	BytesUploaded         int64         `json:"bytes_uploaded"`
	BytesDownloaded       int64         `json:"bytes_downloaded"`
	RestoresCompleted     int64         `json:"restores_completed"`
	TotalErrors           int64         `json:"total_errors"`
	LastBackupTime        time.Time     `json:"last_backup_time"`
	LastBackupKind        *Kind         `json:"last_backup_kind,omitempty"`
	LastSequenceNumber    *uint64       `json:"last_sequence_number,omitempty"`
	LastRestoreTime       time.Time     `json:"last_restore_time"`
	AverageBackupDuration time.Duration `json:"average_backup_duration"`
	AverageRestoreTime    time.Duration `json:"average_restore_time"`
}
