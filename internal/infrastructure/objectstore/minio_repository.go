// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package objectstore stores uploaded file bytes in a Minio compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
	"github.com/tuituidan/image-host/pkg/logging"
)

// MinioRepository implements contracts.ObjectStorage using minio-go
type MinioRepository struct {
	client        *minio.Client
	bucket        string
	region        string
	publicURL     string
	presignExpiry time.Duration
	logger        *slog.Logger
}

// NewMinioClient creates a path-style client for the configured endpoint
func NewMinioClient(cfg config.StorageConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return client, nil
}

// NewMinioRepository creates a new object storage repository
func NewMinioRepository(client *minio.Client, cfg config.StorageConfig, logger *slog.Logger) *MinioRepository {
	return &MinioRepository{
		client:        client,
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		publicURL:     strings.TrimRight(cfg.PublicURL, "/"),
		presignExpiry: cfg.PresignExpiry,
		logger: logging.WithFields(logging.WithComponent(logger, constants.ComponentObjectStore),
			map[string]any{"bucket": cfg.Bucket}),
	}
}

// PutObject uploads size bytes from r under key
func (r *MinioRepository) PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	logger := logging.FromContext(ctx, r.logger)
	logger.Debug("Putting object", "object_key", key, "size", size)

	info, err := r.client.PutObject(ctx, r.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		logger.Error("Failed to put object", "object_key", key, "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrPutObject, err)
	}

	logger.Debug("Object stored", "object_key", key, "etag", info.ETag)
	return nil
}

// RemoveObject deletes the object; S3 treats a missing key as success
func (r *MinioRepository) RemoveObject(ctx context.Context, key string) error {
	if err := r.client.RemoveObject(ctx, r.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		logging.FromContext(ctx, r.logger).Error("Failed to remove object", "object_key", key, "error", err.Error())
		return fmt.Errorf("%s: %w", constants.ErrRemoveObject, err)
	}
	return nil
}

// ObjectExists stats key; a missing key is reported as false without error
func (r *MinioRepository) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	logging.FromContext(ctx, r.logger).Error("Failed to stat object", "object_key", key, "error", err.Error())
	return false, fmt.Errorf("%s: %w", constants.ErrStatObject, err)
}

// ObjectURL returns the public URL of key when a public base is configured,
// otherwise a presigned GET URL.
func (r *MinioRepository) ObjectURL(ctx context.Context, key string) (string, error) {
	if r.publicURL != "" {
		return r.publicURL + "/" + strings.TrimLeft(key, "/"), nil
	}

	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%s: %w", constants.ErrObjectURL, err)
	}
	return u.String(), nil
}

// EnsureBucket creates the bucket when it does not exist
func (r *MinioRepository) EnsureBucket(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrEnsureBucket, err)
	}
	if exists {
		return nil
	}

	r.logger.Info("Creating bucket")
	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
		return fmt.Errorf("%s: %w", constants.ErrEnsureBucket, err)
	}
	return nil
}

// HealthCheck checks the bucket is reachable
func (r *MinioRepository) HealthCheck(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("%s: %w", constants.ErrHealthCheck, err)
	}
	if !exists {
		return fmt.Errorf("%s: bucket %s does not exist", constants.ErrHealthCheck, r.bucket)
	}
	return nil
}
