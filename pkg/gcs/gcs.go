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

//go:build gcpstorage

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeremyhahn/go-snapvault/pkg/common"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Small internal interfaces to enable unit tests without real GCS.
type gcsObject interface {
	NewWriterIfAbsent(ctx context.Context) io.WriteCloser
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Delete(ctx context.Context) error
}

type gcsBucket interface {
	Object(name string) gcsObject
	Objects(ctx context.Context, query *storage.Query) gcsIterator
}

type gcsIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

type gcsClient interface {
	Bucket(name string) gcsBucket
}

type clientWrapper struct{ *storage.Client }
type bucketWrapper struct{ *storage.BucketHandle }
type objectWrapper struct{ *storage.ObjectHandle }
type iteratorWrapper struct{ *storage.ObjectIterator }

func (c clientWrapper) Bucket(name string) gcsBucket { return bucketWrapper{c.Client.Bucket(name)} }
func (b bucketWrapper) Object(name string) gcsObject {
	return objectWrapper{b.BucketHandle.Object(name)}
}
func (b bucketWrapper) Objects(ctx context.Context, query *storage.Query) gcsIterator {
	return iteratorWrapper{b.BucketHandle.Objects(ctx, query)}
}
func (i iteratorWrapper) Next() (*storage.ObjectAttrs, error) {
	return i.ObjectIterator.Next()
}

// Function variables to enable unit testing without real network I/O.
var (
	gcsNewWriterFn = func(o *storage.ObjectHandle, ctx context.Context) io.WriteCloser {
		return o.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	}
	gcsNewReaderFn = func(o *storage.ObjectHandle, ctx context.Context) (io.ReadCloser, error) { return o.NewReader(ctx) }
	gcsDeleteFn    = func(o *storage.ObjectHandle, ctx context.Context) error { return o.Delete(ctx) }
)

func (o objectWrapper) NewWriterIfAbsent(ctx context.Context) io.WriteCloser {
	return gcsNewWriterFn(o.ObjectHandle, ctx)
}
func (o objectWrapper) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return gcsNewReaderFn(o.ObjectHandle, ctx)
}
func (o objectWrapper) Delete(ctx context.Context) error { return gcsDeleteFn(o.ObjectHandle, ctx) }

// GCS is a storage backend that stores archives in Google Cloud Storage.
type GCS struct {
	client gcsClient
	bucket string
}

var gcsNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
	return storage.NewClient(ctx, opts...)
}

// New creates a new GCS storage backend.
func New() common.Storage {
	return &GCS{}
}

// Configure sets up the backend with the necessary settings.
// Settings:
//   - container: Bucket name (required)
//   - credential: Path to a service account credentials file (optional)
//   - endpoint: API endpoint override, e.g. a local emulator (optional)
func (g *GCS) Configure(settings map[string]string) error {
	g.bucket = settings[common.SettingContainer]
	if g.bucket == "" {
		return common.ErrContainerNotSet
	}
	if g.client != nil {
		return nil
	}

	var opts []option.ClientOption
	if file := settings[common.SettingCredential]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if endpoint := settings[common.SettingEndpoint]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := gcsNewClient(context.Background(), opts...)
	if err != nil {
		return err
	}
	g.client = clientWrapper{client}
	return nil
}

// Put stores an object. The write only succeeds when the object does not exist.
func (g *GCS) Put(ctx context.Context, key string, data io.Reader) error {
	if g.client == nil {
		return common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriterIfAbsent(ctx)
	if _, err := io.Copy(w, data); err != nil {
		// Cancelling the context aborts the upload.
		cancel()
		_ = w.Close()
		return err
	}
	return mapError(w.Close(), key)
}

// Get retrieves an object from the bucket.
func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, mapError(err, key)
	}
	return rc, nil
}

// Delete removes an object. A missing object is not an error.
func (g *GCS) Delete(ctx context.Context, key string) error {
	if g.client == nil {
		return common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	err := mapError(g.client.Bucket(g.bucket).Object(key).Delete(ctx), key)
	if errors.Is(err, common.ErrKeyNotFound) {
		return nil
	}
	return err
}

// List returns every object whose key starts with prefix.
func (g *GCS) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}

	objects := make([]*common.ObjectInfo, 0, 100)
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	for {
		attrs, err := it.Next()
		if err == iterator.Done { //nolint:err113 // iterator.Done is the standard sentinel error for GCS iterators
			break
		}
		if err != nil {
			return nil, err
		}

		objects = append(objects, &common.ObjectInfo{
			Key: attrs.Name,
			Metadata: &common.Metadata{
				Size:         attrs.Size,
				LastModified: attrs.Updated,
				ETag:         attrs.Etag,
			},
		})
	}

	return objects, nil
}

// mapError translates GCS errors into the common sentinels.
func mapError(err error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
	}
	return err
}
