package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/finz/backend/internal/domain/baseline"
	appconfig "github.com/finz/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// S3SnapshotArchive writes a JSON snapshot of each accepted baseline to an
// S3 bucket. Snapshots are write-once evidence for later disputes; the
// serving path never reads them back.
type S3SnapshotArchive struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	logger    *zap.Logger
}

// NewS3SnapshotArchive creates an archive from the storage configuration
func NewS3SnapshotArchive(ctx context.Context, cfg appconfig.StorageConfig, logger *zap.Logger) (*S3SnapshotArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return &S3SnapshotArchive{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
		logger:    logger,
	}, nil
}

// ArchiveBaseline uploads a JSON snapshot of the baseline. The key embeds
// the project and baseline IDs so re-archiving the same baseline
// overwrites its own snapshot and nothing else.
func (a *S3SnapshotArchive) ArchiveBaseline(ctx context.Context, b *baseline.Baseline) error {
	payload, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baseline snapshot: %w", err)
	}

	key := a.snapshotKey(b)
	contentType := "application/json"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(payload),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload baseline snapshot: %w", err)
	}

	a.logger.Info("baseline snapshot archived",
		zap.String("baseline_id", b.ID.String()),
		zap.String("key", key),
	)
	return nil
}

func (a *S3SnapshotArchive) snapshotKey(b *baseline.Baseline) string {
	key := fmt.Sprintf("%s/%s.json", b.ProjectID, b.ID)
	if a.keyPrefix != "" {
		key = a.keyPrefix + "/" + key
	}
	return key
}
