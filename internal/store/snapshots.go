package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3API is the subset of the S3 client the snapshot store needs, narrowed
// for test mocking.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SnapshotStore pairs a bun-tracked metadata row per snapshot with its blob
// in S3, and implements the vmhub fire-and-forget dispatcher's
// SnapshotStore interface.
type SnapshotStore struct {
	db     *DB
	client S3API
	bucket string
	prefix string
}

// NewS3SnapshotStore creates a SnapshotStore configured from AWS defaults and
// the given parameters. An empty endpoint uses the standard AWS S3 endpoint;
// a non-empty endpoint targets MinIO or another S3-compatible service. When
// accessKeyID and secretAccessKey are both non-empty, static credentials are
// used instead of the default credential chain.
func NewS3SnapshotStore(db *DB, bucket, region, endpoint, prefix, accessKeyID, secretAccessKey string) (*SnapshotStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	return NewS3SnapshotStoreWithClient(db, client, bucket, prefix), nil
}

// NewS3SnapshotStoreWithClient creates a SnapshotStore with an injected S3
// client, for testing.
func NewS3SnapshotStoreWithClient(db *DB, client S3API, bucket, prefix string) *SnapshotStore {
	return &SnapshotStore{db: db, client: client, bucket: bucket, prefix: prefix}
}

// Save marshals the snapshot payload, uploads it to S3, and records a
// metadata row pointing at the blob.
func (s *SnapshotStore) Save(ctx context.Context, orgID, sessionID string, snapshot map[string]any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	now := time.Now()
	key := fmt.Sprintf("%s%s/%d/%02d/%s.json", s.prefix, sessionID, now.Year(), now.Month(), uuid.New().String())

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("store: upload snapshot: %w", err)
	}

	row := SessionSnapshotRow{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		SessionID: sessionID,
		BlobKey:   key,
	}
	if _, err := s.db.bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("store: insert snapshot row: %w", err)
	}

	return nil
}

// PruneOldest keeps only the keep most recent snapshots for sessionID,
// deleting older blobs from S3 and their metadata rows.
func (s *SnapshotStore) PruneOldest(ctx context.Context, sessionID string, keep int) error {
	var rows []SessionSnapshotRow
	err := s.db.bun.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("store: list snapshots: %w", err)
	}

	if keep < 0 {
		keep = 0
	}
	if len(rows) <= keep {
		return nil
	}

	for _, row := range rows[keep:] {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(row.BlobKey),
		}); err != nil {
			return fmt.Errorf("store: delete snapshot blob: %w", err)
		}
		if _, err := s.db.bun.NewDelete().Model((*SessionSnapshotRow)(nil)).Where("id = ?", row.ID).Exec(ctx); err != nil {
			return fmt.Errorf("store: delete snapshot row: %w", err)
		}
	}

	return nil
}
