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

package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

const tempPrefix = ".tmp-"

// Local is a storage backend that stores objects as files on the local disk.
// Each container is a directory beneath the configured endpoint.
type Local struct {
	path   string
	logger adapters.Logger
}

// New creates a new Local storage backend.
func New() common.Storage {
	return &Local{logger: adapters.NewNoOpLogger()}
}

// Configure sets up the backend with the necessary settings.
// Settings:
//   - endpoint: The root directory for local storage (required)
//   - container: Subdirectory holding this container's objects (required)
func (l *Local) Configure(settings map[string]string) error {
	root := settings[common.SettingEndpoint]
	if root == "" {
		return common.ErrPathNotSet
	}
	container := settings[common.SettingContainer]
	if container == "" {
		return common.ErrContainerNotSet
	}
	if err := common.ValidateKey(container); err != nil {
		return err
	}

	l.path = filepath.Join(root, container)
	return os.MkdirAll(l.path, 0750)
}

// SetLogger sets the logger used for backend diagnostics.
func (l *Local) SetLogger(logger adapters.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// GetPath returns the directory that holds the container's objects.
func (l *Local) GetPath() string {
	return l.path
}

func (l *Local) ready() error {
	if l.path == "" {
		return common.ErrNotConfigured
	}
	return nil
}

// Put stores an object. The data is written to a temporary file first and
// then hard-linked into place so an existing key is never replaced.
func (l *Local) Put(ctx context.Context, key string, data io.Reader) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path := filepath.Join(l.path, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	size, err := io.Copy(tmp, data)
	if err != nil {
		_ = tmp.Close()
		l.logger.Error(ctx, "failed to write object", adapters.Field{Key: "key", Value: key}, adapters.ErrorField(err))
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
		}
		return err
	}

	l.logger.Debug(ctx, "object stored",
		adapters.Field{Key: "key", Value: key},
		adapters.Field{Key: "size", Value: formatBytes(size)})
	return nil
}

// Get retrieves an object from the backend.
func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path := filepath.Join(l.path, filepath.FromSlash(key))
	file, err := os.Open(path) // #nosec G304 -- Path validated by ValidateKey() to prevent directory traversal
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return file, nil
}

// Delete removes an object from the backend. Deleting a missing key succeeds.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path := filepath.Join(l.path, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.logger.Debug(ctx, "object deleted", adapters.Field{Key: "key", Value: key})
	return nil
}

// List returns the objects whose keys start with prefix, sorted by key.
func (l *Local) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	objects := []*common.ObjectInfo{}
	err := filepath.WalkDir(l.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		relPath, err := filepath.Rel(l.path, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Removed between the directory read and the stat.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		objects = append(objects, &common.ObjectInfo{
			Key: key,
			Metadata: &common.Metadata{
				Size:         info.Size(),
				LastModified: info.ModTime(),
				ETag:         fmt.Sprintf("%d-%d", info.ModTime().Unix(), info.Size()),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// formatBytes formats a byte count as a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
