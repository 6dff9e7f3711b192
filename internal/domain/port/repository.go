package port

import (
	"context"
	"time"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.VideoJob) error
	Update(ctx context.Context, job *entity.VideoJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VideoJob, error)

	// SaveRedaction records a rendered artifact for an approved-set hash so
	// identical protect requests return the cached result.
	SaveRedaction(ctx context.Context, videoID uuid.UUID, requestHash, processedKey string) error
	FindRedaction(ctx context.Context, videoID uuid.UUID, requestHash string) (string, bool, error)
	ListRedactionKeys(ctx context.Context, videoID uuid.UUID) ([]string, error)

	// ListExpired returns jobs older than the retention cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*entity.VideoJob, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
