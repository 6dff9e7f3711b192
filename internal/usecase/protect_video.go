package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/domain/port"
	"github.com/JarudeC/privacylens/internal/infra/metrics"
	"github.com/JarudeC/privacylens/internal/infra/workerpool"
	"github.com/JarudeC/privacylens/internal/redaction"
)

type ProtectVideoUseCase struct {
	repo      port.JobRepository
	store     port.ArtifactStore
	sampler   port.FrameSampler
	planner   *redaction.Planner
	renderer  *redaction.Renderer
	publisher port.EventPublisher
	notifier  port.FailureNotifier
	pool      *workerpool.Pool
	logger    *zap.Logger

	tempDir string
	group   singleflight.Group
	leases  sync.Map
}

func NewProtectVideoUseCase(
	repo port.JobRepository,
	store port.ArtifactStore,
	sampler port.FrameSampler,
	planner *redaction.Planner,
	renderer *redaction.Renderer,
	publisher port.EventPublisher,
	notifier port.FailureNotifier,
	pool *workerpool.Pool,
	logger *zap.Logger,
	tempDir string,
) *ProtectVideoUseCase {
	return &ProtectVideoUseCase{
		repo:      repo,
		store:     store,
		sampler:   sampler,
		planner:   planner,
		renderer:  renderer,
		publisher: publisher,
		notifier:  notifier,
		pool:      pool,
		logger:    logger,
		tempDir:   tempDir,
	}
}

// Execute renders the protected artifact for the approved subset of
// catalog frames and returns its download URL. The operation is
// idempotent per approved set: an identical request for the same video
// reuses the already rendered artifact, and concurrent identical
// requests share a single render. At most one render is in flight per
// video; requests with other approved sets for the same video wait
// their turn.
func (uc *ProtectVideoUseCase) Execute(ctx context.Context, videoID uuid.UUID, approvedIDs []string) (string, error) {
	ctx, span := otel.Tracer("privacylens").Start(ctx, "protect_video")
	defer span.End()
	span.SetAttributes(
		attribute.String("video_id", videoID.String()),
		attribute.Int("approved_frames", len(approvedIDs)),
	)

	job, err := uc.repo.FindByID(ctx, videoID)
	if err != nil {
		return "", err
	}
	switch job.Phase {
	case entity.JobPhaseReceived:
		return "", errs.New(errs.CodeInvalidRequest,
			"video %s has not completed analysis", videoID)
	case entity.JobPhaseFailed:
		return "", errs.New(errs.CodeInvalidRequest,
			"video %s failed earlier processing: %s", videoID, job.ErrorMessage)
	}

	hash := redaction.RequestHash(approvedIDs)
	log := uc.logger.With(
		zap.String("video_id", videoID.String()),
		zap.String("request_hash", hash[:12]),
	)

	// Render outlives a client disconnect; the next identical request
	// then hits the cache instead of re-rendering.
	work := context.WithoutCancel(ctx)

	key := videoID.String() + ":" + hash
	uri, err, _ := uc.group.Do(key, func() (any, error) {
		// Serialize per video so two different approved sets never decode
		// the same source concurrently. The lock covers the cache check
		// too: a waiter whose set was just rendered hits the cache.
		mu := uc.lease(videoID)
		mu.Lock()
		defer mu.Unlock()
		return uc.protect(work, job, approvedIDs, hash, log)
	})
	if err != nil {
		return "", err
	}
	return uri.(string), nil
}

func (uc *ProtectVideoUseCase) lease(id uuid.UUID) *sync.Mutex {
	v, _ := uc.leases.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (uc *ProtectVideoUseCase) protect(ctx context.Context, job *entity.VideoJob, approvedIDs []string, hash string, log *zap.Logger) (string, error) {
	if processedKey, ok, err := uc.repo.FindRedaction(ctx, job.ID, hash); err != nil {
		return "", err
	} else if ok {
		metrics.RedactionCacheHits.Inc()
		log.Info("protect request served from cache",
			zap.String("processed_key", processedKey))
		return uc.store.ProtectedURL(ctx, processedKey)
	}

	plan, err := uc.planner.Build(job, approvedIDs)
	if err != nil {
		return "", err
	}

	// Decode and re-encode compete with analysis for the same bounded
	// pool, so concurrent protect requests cannot oversubscribe the host.
	var (
		uri       string
		renderErr error
	)
	if err := uc.pool.Execute(ctx, func() {
		uri, renderErr = uc.render(ctx, job, plan, hash, log)
	}); err != nil {
		return "", err
	}
	if renderErr != nil {
		uc.failProtect(ctx, job, renderErr, log)
		return "", renderErr
	}
	return uri, nil
}

func (uc *ProtectVideoUseCase) render(ctx context.Context, job *entity.VideoJob, plan redaction.Plan, hash string, log *zap.Logger) (string, error) {
	workDir := filepath.Join(uc.tempDir, job.ID.String()+"-protect")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "source"+filepath.Ext(job.SourceKey))
	if err := uc.store.FetchSource(ctx, job.SourceKey, srcPath); err != nil {
		return "", err
	}

	meta, err := uc.sampler.Probe(ctx, srcPath)
	if err != nil {
		return "", err
	}

	dstPath := filepath.Join(workDir, "protected.mp4")
	renderStart := time.Now()
	if err := uc.renderer.Render(ctx, srcPath, dstPath, meta.FPS, plan); err != nil {
		return "", fmt.Errorf("render protected video: %w", err)
	}
	metrics.StageDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())

	processedKey := fmt.Sprintf("%s/%s.mp4", job.ID, hash[:16])
	if err := uc.store.SaveProtected(ctx, processedKey, dstPath); err != nil {
		return "", err
	}
	if err := uc.repo.SaveRedaction(ctx, job.ID, hash, processedKey); err != nil {
		return "", err
	}

	// Only the first successful render advances the phase; later renders
	// for different approved sets leave the terminal state alone.
	if job.MarkProtected(processedKey) {
		if err := uc.repo.Update(ctx, job); err != nil {
			return "", err
		}
		uc.publishEvent(ctx, job, log)
	}

	metrics.JobsTotal.WithLabelValues("protection", "success").Inc()
	log.Info("protected video rendered",
		zap.String("processed_key", processedKey),
		zap.Int("windows", len(plan.Windows)),
		zap.Duration("elapsed", time.Since(renderStart)),
	)
	return uc.store.ProtectedURL(ctx, processedKey)
}

// failProtect reports a render failure without moving the job to FAILED:
// the analysis catalog is still valid and the client may retry with the
// same or a different approved set.
func (uc *ProtectVideoUseCase) failProtect(ctx context.Context, job *entity.VideoJob, cause error, log *zap.Logger) {
	metrics.JobsTotal.WithLabelValues("protection", "failure").Inc()
	log.Error("protection failed", zap.Error(cause))
	if err := uc.notifier.NotifyFailure(ctx, job.ID.String(), "protection", cause.Error()); err != nil {
		log.Warn("failure notification not sent", zap.Error(err))
	}
}

func (uc *ProtectVideoUseCase) publishEvent(ctx context.Context, job *entity.VideoJob, log *zap.Logger) {
	ev := entity.JobEvent{
		VideoID:      job.ID,
		Phase:        job.Phase,
		ProcessedKey: job.ProcessedKey,
	}
	if err := uc.publisher.PublishJobEvent(ctx, ev); err != nil {
		log.Warn("failed to publish job event", zap.Error(err))
	}
}
