package port

import (
	"context"

	"github.com/JarudeC/privacylens/internal/domain/entity"
)

// EventPublisher emits job lifecycle events for operational consumers.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev entity.JobEvent) error
}

// FailureNotifier alerts operators about permanently failed jobs.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, jobID, stage, errMsg string) error
}
