package minio

import (
	"context"
	"errors"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarudeC/privacylens/internal/domain/errs"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(StorageConfig{
		Endpoint:        "localhost:9000",
		AccessKey:       "minioadmin",
		SecretKey:       "minioadmin",
		SourceBucket:    "videos",
		SnapshotBucket:  "frames",
		ProtectedBucket: "processed",
		MaxAttempts:     3,
		RetryBaseDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	return s
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	s := testStorage(t)

	calls := 0
	err := s.retry(context.Background(), "save source", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttemptsOnTransientError(t *testing.T) {
	s := testStorage(t)

	calls := 0
	err := s.retry(context.Background(), "save source", func() error {
		calls++
		return errors.New("connection reset by peer")
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeStorageFailure))
	assert.Equal(t, 3, calls)
}

func TestRetryFailsFastOnPermanentError(t *testing.T) {
	s := testStorage(t)

	calls := 0
	err := s.retry(context.Background(), "fetch source", func() error {
		calls++
		return miniogo.ErrorResponse{
			Code:       "NoSuchKey",
			Message:    "The specified key does not exist.",
			StatusCode: 404,
		}
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeStorageFailure))
	assert.Equal(t, 1, calls)
}

func TestRetryFailsFastOnAccessDenied(t *testing.T) {
	s := testStorage(t)

	calls := 0
	err := s.retry(context.Background(), "save protected", func() error {
		calls++
		return miniogo.ErrorResponse{
			Code:       "AccessDenied",
			Message:    "Access Denied.",
			StatusCode: 403,
		}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
