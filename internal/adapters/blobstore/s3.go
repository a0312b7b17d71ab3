// Package blobstore stores exported workflow definitions (serialized YAML)
// in S3, as an alternative to returning them inline over HTTP.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chatflow/workflow-core/internal/platform/config"
)

// S3Store persists exported workflow YAML documents under
// cfg.Prefix/<workflow-id>.yaml.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: loading aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// PutWorkflow stores the serialized workflow document and returns its key.
func (s *S3Store) PutWorkflow(ctx context.Context, workflowID string, document []byte) (string, error) {
	key := s.objectKey(workflowID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(document),
		ContentType: aws.String("application/x-yaml"),
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: uploading %s: %w", key, err)
	}
	return key, nil
}

// GetWorkflow fetches a previously exported workflow document.
func (s *S3Store) GetWorkflow(ctx context.Context, workflowID string) ([]byte, error) {
	key := s.objectKey(workflowID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: reading %s: %w", key, err)
	}
	return data, nil
}

// DeleteWorkflow removes a previously exported workflow document.
func (s *S3Store) DeleteWorkflow(ctx context.Context, workflowID string) error {
	key := s.objectKey(workflowID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("blobstore: deleting %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) objectKey(workflowID string) string {
	return fmt.Sprintf("%s%s.yaml", s.prefix, workflowID)
}
