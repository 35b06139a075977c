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

//go:build awss3

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeremyhahn/go-snapvault/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the subset of the S3 client used by the backend.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3 is a storage backend that stores archives in an S3 bucket or any
// S3-compatible service.
type S3 struct {
	svc    s3API
	bucket string
}

// New creates a new S3 storage backend.
func New() common.Storage {
	return &S3{}
}

// Configure sets up the backend with the necessary settings.
// Settings:
//   - container: Bucket name (required)
//   - region: AWS region (optional, falls back to the default chain)
//   - credential: "accessKeyID:secretAccessKey" (optional, falls back to the default chain)
//   - endpoint: Custom endpoint such as MinIO; enables path-style addressing
func (s *S3) Configure(settings map[string]string) error {
	s.bucket = settings[common.SettingContainer]
	if s.bucket == "" {
		return common.ErrContainerNotSet
	}

	ctx := context.TODO()
	var opts []func(*config.LoadOptions) error

	if region := settings[common.SettingRegion]; region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	if raw := settings[common.SettingCredential]; raw != "" {
		accessKey, secretKey, err := common.SplitCredential(raw)
		if err != nil {
			return err
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	endpoint := settings[common.SettingEndpoint]
	s.svc = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return nil
}

// Put stores an object. The write is conditional on the key being absent.
func (s *S3) Put(ctx context.Context, key string, data io.Reader) error {
	if s.svc == nil {
		return common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	// The SDK needs a seekable body to sign the payload.
	body, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	_, err := s.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		IfNoneMatch: aws.String("*"),
	})
	return mapError(err, key)
}

// Get retrieves an object from the bucket.
func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.svc == nil {
		return nil, common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}

	out, err := s.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, key)
	}
	return out.Body, nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *S3) Delete(ctx context.Context, key string) error {
	if s.svc == nil {
		return common.ErrNotConfigured
	}
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	_, err := s.svc.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return mapError(err, key)
}

// List returns every object whose key starts with prefix.
func (s *S3) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if s.svc == nil {
		return nil, common.ErrNotConfigured
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	objects := make([]*common.ObjectInfo, 0, 100)
	paginator := s3.NewListObjectsV2Paginator(s.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			metadata := &common.Metadata{
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			}
			if obj.LastModified != nil {
				metadata.LastModified = *obj.LastModified
			}
			objects = append(objects, &common.ObjectInfo{Key: aws.ToString(obj.Key), Metadata: metadata})
		}
	}
	return objects, nil
}

// mapError translates S3 API errors into the common sentinels.
func mapError(err error, key string) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
	}
	return err
}
