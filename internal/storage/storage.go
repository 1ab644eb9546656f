// Package storage archives trial balance snapshots in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tbledger/apiserver/config"
)

const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// ObjectStorage defines the object operations shared by every backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Bucket() string
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "":
		return nil, fmt.Errorf("storage backend is not configured")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
