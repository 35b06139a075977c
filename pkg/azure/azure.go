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

//go:build azureblob

package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/go-snapvault/pkg/common"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-storage-blob-go/azblob"
)

const storageScope = "https://storage.azure.com/.default"

// Small internal interfaces for testability without network.
type BlobAPI interface {
	UploadIfAbsent(ctx context.Context, r io.Reader) error
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Delete(ctx context.Context) error
}

type ContainerAPI interface {
	Create(ctx context.Context) error
	NewBlockBlob(name string) BlobAPI
	ListBlobsFlat(ctx context.Context, prefix string) ([]*common.ObjectInfo, error)
}

type containerWrapper struct{ azblob.ContainerURL }
type blobWrapper struct{ azblob.BlockBlobURL }

// Function variables to enable unit testing without real network I/O.
var (
	azureCreateFn = func(ctx context.Context, c azblob.ContainerURL) error {
		_, err := c.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone)
		return err
	}
	azureUploadFn = func(ctx context.Context, r io.Reader, b azblob.BlockBlobURL) error {
		_, err := azblob.UploadStreamToBlockBlob(ctx, r, b, azblob.UploadStreamToBlockBlobOptions{
			AccessConditions: azblob.BlobAccessConditions{
				ModifiedAccessConditions: azblob.ModifiedAccessConditions{IfNoneMatch: azblob.ETagAny},
			},
		})
		return err
	}
	azureDownloadFn = func(ctx context.Context, b azblob.BlockBlobURL) (io.ReadCloser, error) {
		resp, err := b.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			return nil, err
		}
		return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3}), nil
	}
	azureDeleteFn = func(ctx context.Context, b azblob.BlockBlobURL) error {
		_, err := b.Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
		return err
	}
	azureListFn = func(ctx context.Context, c azblob.ContainerURL, prefix string) ([]*common.ObjectInfo, error) {
		objects := make([]*common.ObjectInfo, 0, 100)
		marker := azblob.Marker{}

		for marker.NotDone() {
			listBlob, err := c.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
				Prefix: prefix,
			})
			if err != nil {
				return nil, err
			}

			for _, blob := range listBlob.Segment.BlobItems {
				metadata := &common.Metadata{
					LastModified: blob.Properties.LastModified,
					ETag:         string(blob.Properties.Etag),
				}
				if blob.Properties.ContentLength != nil {
					metadata.Size = *blob.Properties.ContentLength
				}
				objects = append(objects, &common.ObjectInfo{Key: blob.Name, Metadata: metadata})
			}

			marker = listBlob.NextMarker
		}

		return objects, nil
	}
	newDefaultCredentialFn = func() (tokenSource, error) {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, err
		}
		return cred, nil
	}
)

// tokenSource is the part of an Azure identity credential used to mint
// storage bearer tokens.
type tokenSource interface {
	GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error)
}

func (c containerWrapper) Create(ctx context.Context) error {
	if err := azureCreateFn(ctx, c.ContainerURL); err != nil && !isContainerExists(err) {
		return err
	}
	return nil
}

func (c containerWrapper) NewBlockBlob(name string) BlobAPI {
	return blobWrapper{c.ContainerURL.NewBlockBlobURL(name)}
}

func (c containerWrapper) ListBlobsFlat(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	return azureListFn(ctx, c.ContainerURL, prefix)
}

func (b blobWrapper) UploadIfAbsent(ctx context.Context, r io.Reader) error {
	return azureUploadFn(ctx, r, b.BlockBlobURL)
}
func (b blobWrapper) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return azureDownloadFn(ctx, b.BlockBlobURL)
}
func (b blobWrapper) Delete(ctx context.Context) error {
	return azureDeleteFn(ctx, b.BlockBlobURL)
}

// Azure is a storage backend that stores archives in Azure Blob Storage.
type Azure struct {
	container ContainerAPI
	// For testing purposes, allow injecting a pre-configured ContainerAPI
	TestContainer ContainerAPI
}

// New creates a new Azure storage backend.
func New() common.Storage {
	return &Azure{}
}

// Configure sets up the backend with the necessary settings.
// Settings:
//   - endpoint: Blob service URL, e.g. https://<account>.blob.core.windows.net (required)
//   - container: Blob container name (required)
//   - credential: "accountName:accountKey" for shared key auth. When empty the
//     default Azure identity chain (environment, managed identity, CLI) is used.
//
// The container is created when it does not exist yet.
func (a *Azure) Configure(settings map[string]string) error {
	if a.TestContainer != nil {
		a.container = a.TestContainer
		return a.container.Create(context.Background())
	}

	endpoint := strings.TrimSuffix(settings[common.SettingEndpoint], "/")
	if endpoint == "" {
		return common.ErrPathNotSet
	}
	containerName := settings[common.SettingContainer]
	if containerName == "" {
		return common.ErrContainerNotSet
	}

	credential, err := newCredential(settings[common.SettingCredential])
	if err != nil {
		return err
	}

	u, err := url.Parse(fmt.Sprintf("%s/%s", endpoint, containerName))
	if err != nil {
		return err
	}

	p := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	a.container = containerWrapper{azblob.NewContainerURL(*u, p)}

	return a.container.Create(context.Background())
}

func newCredential(raw string) (azblob.Credential, error) {
	if raw != "" {
		name, key, err := common.SplitCredential(raw)
		if err != nil {
			return nil, err
		}
		return azblob.NewSharedKeyCredential(name, key)
	}

	source, err := newDefaultCredentialFn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCredentialInvalid, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	token, err := source.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{storageScope}})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCredentialInvalid, err)
	}

	return azblob.NewTokenCredential(token.Token, func(credential azblob.TokenCredential) time.Duration {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		refreshed, err := source.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{storageScope}})
		if err != nil {
			// Retry shortly; the current token stays in place until then.
			return time.Minute
		}
		credential.SetToken(refreshed.Token)
		return refreshAfter(refreshed.ExpiresOn)
	}), nil
}

// refreshAfter schedules the next refresh five minutes before expiry.
func refreshAfter(expiresOn time.Time) time.Duration {
	d := time.Until(expiresOn) - 5*time.Minute
	if d < time.Minute {
		return time.Minute
	}
	return d
}

// Put stores an object. Existing blobs are never overwritten.
func (a *Azure) Put(ctx context.Context, key string, data io.Reader) error {
	if a.container == nil {
		return common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	blob := a.container.NewBlockBlob(key)
	return mapError(blob.UploadIfAbsent(ctx, data), key)
}

// Get retrieves an object from the backend.
func (a *Azure) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if a.container == nil {
		return nil, common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	blob := a.container.NewBlockBlob(key)
	rc, err := blob.NewReader(ctx)
	if err != nil {
		return nil, mapError(err, key)
	}
	return rc, nil
}

// Delete removes an object from the backend. A missing blob is not an error.
func (a *Azure) Delete(ctx context.Context, key string) error {
	if a.container == nil {
		return common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	blob := a.container.NewBlockBlob(key)
	err := mapError(blob.Delete(ctx), key)
	if errors.Is(err, common.ErrKeyNotFound) {
		return nil
	}
	return err
}

// List returns the objects whose keys start with the given prefix.
func (a *Azure) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if a.container == nil {
		return nil, common.ErrNotConfigured
	}
	return a.container.ListBlobsFlat(ctx, prefix)
}

// mapError translates Azure storage errors into the common sentinels.
func mapError(err error, key string) error {
	if err == nil {
		return nil
	}
	var stgErr azblob.StorageError
	if !errors.As(err, &stgErr) {
		return err
	}

	switch stgErr.ServiceCode() {
	case azblob.ServiceCodeBlobNotFound:
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	case azblob.ServiceCodeBlobAlreadyExists, azblob.ServiceCodeConditionNotMet:
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
	}

	if resp := stgErr.Response(); resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		case http.StatusConflict, http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
		}
	}
	return err
}

// isContainerExists reports whether err is the benign "already exists" reply
// to a container create.
func isContainerExists(err error) bool {
	var stgErr azblob.StorageError
	return errors.As(err, &stgErr) && stgErr.ServiceCode() == azblob.ServiceCodeContainerAlreadyExists
}
