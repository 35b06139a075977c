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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
	"github.com/jeremyhahn/go-snapvault/pkg/memory"
)

var testRange = KeyRange{Min: -9223372036854775808, Max: 9223372036854775807}

// faultyStore wraps a store and injects failures per operation.
type faultyStore struct {
	common.Storage

	mu        sync.Mutex
	listErr   error
	putErr    error
	getErr    map[string]error
	deleteErr map[string]error
	deleted   []string
	onPut     func()
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Storage:   memory.New(),
		getErr:    map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (s *faultyStore) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Storage.List(ctx, prefix)
}

func (s *faultyStore) Put(ctx context.Context, key string, r io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	if err := s.Storage.Put(ctx, key, r); err != nil {
		return err
	}
	if s.onPut != nil {
		s.onPut()
	}
	return nil
}

func (s *faultyStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	err := s.getErr[key]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Storage.Get(ctx, key)
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	s.mu.Unlock()
	return s.Storage.Delete(ctx, key)
}

// writeTree creates files (relative slash path -> content) under a new
// directory inside root. Entries ending in "/" are directories.
func writeTree(t *testing.T, root string, files map[string]string) string {
	t.Helper()
	dir, err := os.MkdirTemp(root, "snapshot-")
	require.NoError(t, err)
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(path, 0750))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	}
	return dir
}

// readTree returns every file and directory under dir keyed by relative
// slash path. Directories map to "/".
func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if info.IsDir() {
			out[name+"/"] = "/"
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[name] = string(b)
		return nil
	})
	require.NoError(t, err)
	return out
}

// putArchive stores an archive of files under desc's key.
func putArchive(t *testing.T, store common.Storage, desc Descriptor, files map[string]string) {
	t.Helper()
	tmp := t.TempDir()
	dir := writeTree(t, tmp, files)
	archive := filepath.Join(tmp, "a.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	require.NoError(t, compressDir(context.Background(), dir, f))
	require.NoError(t, f.Close())

	f, err = os.Open(archive)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.Put(context.Background(), desc.Key(), f))
}

func desc(seq uint64, kind Kind) Descriptor {
	return Descriptor{ID: fmt.Sprintf("id%03d", seq), Kind: kind, SequenceNumber: seq, KeyRange: testRange}
}

func keys(descs []Descriptor) []uint64 {
	out := make([]uint64, len(descs))
	for i, d := range descs {
		out[i] = d.SequenceNumber
	}
	return out
}

var errBoom = errors.New("boom")

func nopLogger() adapters.Logger { return adapters.NewNoOpLogger() }
