package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"PortfolioPulse/internal/model"
)

// S3Config locates an S3-compatible bucket.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool
	Prefix          string
}

// S3Archiver writes each report as a JSON object to an S3-compatible
// bucket. It is write-only.
type S3Archiver struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Archiver connects to the bucket, creating it when missing.
func NewS3Archiver(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created report bucket", zap.String("bucket", cfg.Bucket))
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "reports"
	}
	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: prefix, logger: logger}, nil
}

// ObjectKey is <prefix>/<job>/<YYYY-MM-DD>/<run_id>.json, dated by the run
// start in UTC.
func ObjectKey(prefix string, report *model.RunReport) string {
	job := report.Job
	if job == "" {
		job = "adhoc"
	}
	return path.Join(prefix, job, report.Timestamp.UTC().Format(model.DateLayout), report.RunID+".json")
}

func (a *S3Archiver) RecordRun(ctx context.Context, report *model.RunReport) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	key := ObjectKey(a.prefix, report)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Debug("report archived", zap.String("bucket", a.bucket), zap.String("key", key))
	return nil
}

func (a *S3Archiver) Close() error { return nil }
