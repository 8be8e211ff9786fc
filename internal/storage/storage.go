// Package storage holds manifest folders on a local filesystem or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
	ETag     string
	Metadata map[string]string
}

// Storage is a flat key space. Keys use forward slashes; a manifest folder is
// a key prefix.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
	// Get fails with an error satisfying errors.Is(err, errors.NotFound) when
	// the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix and returns how many
	// were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Key joins a folder and a file name into an object key.
func Key(folder, name string) string {
	return path.Join(strings.TrimSuffix(folder, "/"), name)
}
