package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JarudeC/privacylens/internal/domain/errs"
)

// Storage is the artifact store: source uploads, frame snapshots and
// protected outputs live in separate buckets. Transient failures are
// retried with exponential backoff; responses like NoSuchKey or
// AccessDenied fail fast since retrying cannot change them.
type Storage struct {
	client          *miniogo.Client
	sourceBucket    string
	snapshotBucket  string
	protectedBucket string
	urlExpiry       time.Duration
	maxAttempts     int
	baseDelay       time.Duration
}

type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	SourceBucket    string
	SnapshotBucket  string
	ProtectedBucket string
	URLExpiry       time.Duration
	MaxAttempts     int
	RetryBaseDelay  time.Duration
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}

	return &Storage{
		client:          client,
		sourceBucket:    cfg.SourceBucket,
		snapshotBucket:  cfg.SnapshotBucket,
		protectedBucket: cfg.ProtectedBucket,
		urlExpiry:       cfg.URLExpiry,
		maxAttempts:     cfg.MaxAttempts,
		baseDelay:       cfg.RetryBaseDelay,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.sourceBucket, s.snapshotBucket, s.protectedBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// Server responses that no amount of retrying will change.
var permanentCodes = map[string]bool{
	"NoSuchKey":               true,
	"NoSuchBucket":            true,
	"AccessDenied":            true,
	"InvalidAccessKeyId":      true,
	"SignatureDoesNotMatch":   true,
	"EntityTooLarge":          true,
	"MethodNotAllowed":        true,
	"XMinioInvalidObjectName": true,
}

func isPermanent(err error) bool {
	return permanentCodes[miniogo.ToErrorResponse(err).Code]
}

// retry runs op up to maxAttempts times with exponential backoff,
// bailing out immediately on errors the server will keep returning.
func (s *Storage) retry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.baseDelay << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if isPermanent(err) {
			return errs.Wrap(errs.CodeStorageFailure, err, "%s failed", what)
		}
	}
	return errs.Wrap(errs.CodeStorageFailure, err, "%s failed after %d attempts", what, s.maxAttempts)
}

func (s *Storage) SaveSource(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.retry(ctx, "save source", func() error {
		_, err := s.client.PutObject(ctx, s.sourceBucket, key, r, size, miniogo.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	})
}

func (s *Storage) FetchSource(ctx context.Context, key, destPath string) error {
	return s.retry(ctx, "fetch source", func() error {
		return s.client.FGetObject(ctx, s.sourceBucket, key, destPath, miniogo.GetObjectOptions{})
	})
}

func (s *Storage) SaveSnapshot(ctx context.Context, key, path string) error {
	return s.retry(ctx, "save snapshot", func() error {
		_, err := s.client.FPutObject(ctx, s.snapshotBucket, key, path, miniogo.PutObjectOptions{
			ContentType: "image/jpeg",
		})
		return err
	})
}

func (s *Storage) SaveProtected(ctx context.Context, key, path string) error {
	return s.retry(ctx, "save protected", func() error {
		_, err := s.client.FPutObject(ctx, s.protectedBucket, key, path, miniogo.PutObjectOptions{
			ContentType: "video/mp4",
		})
		return err
	})
}

func (s *Storage) SnapshotURL(ctx context.Context, key string) (string, error) {
	return s.presign(ctx, s.snapshotBucket, key)
}

func (s *Storage) ProtectedURL(ctx context.Context, key string) (string, error) {
	return s.presign(ctx, s.protectedBucket, key)
}

func (s *Storage) presign(ctx context.Context, bucket, key string) (string, error) {
	var u *url.URL
	err := s.retry(ctx, "presign url", func() error {
		var err error
		u, err = s.client.PresignedGetObject(ctx, bucket, key, s.urlExpiry, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *Storage) DeleteSource(ctx context.Context, key string) error {
	return s.remove(ctx, s.sourceBucket, key)
}

func (s *Storage) DeleteSnapshot(ctx context.Context, key string) error {
	return s.remove(ctx, s.snapshotBucket, key)
}

func (s *Storage) DeleteProtected(ctx context.Context, key string) error {
	return s.remove(ctx, s.protectedBucket, key)
}

func (s *Storage) remove(ctx context.Context, bucket, key string) error {
	return s.retry(ctx, "remove object", func() error {
		return s.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{})
	})
}
