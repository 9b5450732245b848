package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of object storage used to archive build artifacts.
type ObjectStorage interface {
	// PutObject uploads sizeBytes read from reader under bucket/objectKey.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error
}
