package port

import (
	"context"
	"io"
)

// ArtifactStore is the content store for source videos, frame snapshots
// and protected outputs. URLs returned by the *URL methods are what the
// client receives as frameUri / protectedVideoUri.
type ArtifactStore interface {
	SaveSource(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	FetchSource(ctx context.Context, key, destPath string) error
	SaveSnapshot(ctx context.Context, key, path string) error
	SaveProtected(ctx context.Context, key, path string) error
	SnapshotURL(ctx context.Context, key string) (string, error)
	ProtectedURL(ctx context.Context, key string) (string, error)
	DeleteSource(ctx context.Context, key string) error
	DeleteSnapshot(ctx context.Context, key string) error
	DeleteProtected(ctx context.Context, key string) error
}
