package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// BucketWriter writes objects into a fixed bucket.
type BucketWriter struct {
	client *storage.Client
	bucket string
}

// NewBucketWriter wraps a storage client with a target bucket.
func NewBucketWriter(client *storage.Client, bucket string) (*BucketWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage writer: bucket is required")
	}
	return &BucketWriter{client: client, bucket: bucket}, nil
}

// Write stores the payload under the object path, replacing any prior content.
func (w *BucketWriter) Write(ctx context.Context, objectPath string, contentType string, data []byte) error {
	if w == nil || w.client == nil {
		return errors.New("storage writer: not initialised")
	}
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return errors.New("storage writer: object path is required")
	}

	writer := w.client.Bucket(w.bucket).Object(objectPath).NewWriter(ctx)
	writer.ContentType = strings.TrimSpace(contentType)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage writer: write %s: %w", objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage writer: close %s: %w", objectPath, err)
	}
	return nil
}

// Bucket reports the configured bucket name.
func (w *BucketWriter) Bucket() string {
	if w == nil {
		return ""
	}
	return w.bucket
}
