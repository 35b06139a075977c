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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// compressDir writes srcDir as a zip archive to w. Entry names are relative
// and slash separated. Directories get their own entries so empty ones
// survive a round trip.
func compressDir(ctx context.Context, srcDir string, w io.Writer) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			header.Name = name + "/"
			header.Method = zip.Store
			_, err = zw.CreateHeader(header)
			return err
		case info.Mode().IsRegular():
			return addFile(zw, path, name, info)
		default:
			return fmt.Errorf("unsupported file type %s for %s", info.Mode().Type(), name)
		}
	})
	if walkErr != nil {
		_ = zw.Close()
		return walkErr
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(path) // #nosec G304 -- path comes from walking the snapshot directory
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	_, err = io.Copy(dst, src)
	return err
}

// extractArchive unpacks the zip archive at archivePath into destDir.
// Existing files are overwritten. Entries that would land outside destDir
// fail with ErrExtractionFailed.
func extractArchive(ctx context.Context, archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrExtractionFailed, filepath.Base(archivePath), err)
	}
	defer func() { _ = zr.Close() }()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	for _, f := range zr.File {
		if err := interrupted(ctx); err != nil {
			return err
		}

		target, err := safeJoin(root, f.Name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode().Perm()|0700); err != nil {
				return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExtractionFailed, f.Name, err)
		}
	}
	return nil
}

// safeJoin resolves an archive entry name beneath root.
func safeJoin(root, name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("illegal entry name %q", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the restore directory", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0640
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) // #nosec G304 -- target checked by safeJoin
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil { // #nosec G110 -- archives are produced by this package
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	// OpenFile keeps the old mode of an overwritten file.
	return os.Chmod(target, perm)
}
