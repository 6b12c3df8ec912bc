// Package s3 ships downloaded media to MinIO-compatible object storage
// for offsite retention.
package s3

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config holds S3/MinIO connection parameters.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archiver uploads stored media files into a single archive bucket,
// keyed by <group_id>/<file_name>.
type Archiver struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

func NewArchiver(cfg *Config, logger zerolog.Logger) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "s3_archiver").Logger(),
	}, nil
}

// EnsureBucket creates the archive bucket if it does not exist.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	a.logger.Info().Str("bucket", a.bucket).Msg("created archive bucket")
	return nil
}

// Archive uploads the local file under objectName. The content type is
// derived from the file extension.
func (a *Archiver) Archive(ctx context.Context, localPath, objectName string) error {
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := a.client.FPutObject(ctx, a.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	a.logger.Debug().
		Str("object", objectName).
		Int64("size", info.Size).
		Msg("media archived")
	return nil
}

// Remove deletes an archived object, used when purged media should
// leave object storage too.
func (a *Archiver) Remove(ctx context.Context, objectName string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", objectName, err)
	}
	a.logger.Debug().Str("object", objectName).Msg("archived media removed")
	return nil
}
