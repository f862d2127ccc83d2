package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object fully into memory
	Download(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under a prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// URI returns a stable identifier for an object, used as the record's
	// image source
	URI(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
