// Package usecase orchestrates the two pipeline operations exposed to
// clients: upload-and-analyze and protect.
package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JarudeC/privacylens/internal/analysis"
	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/domain/port"
	"github.com/JarudeC/privacylens/internal/infra/metrics"
	"github.com/JarudeC/privacylens/internal/infra/workerpool"
)

const snapshotQuality = 85

// AnalyzeResult is what the upload endpoint needs to answer: the stored
// job plus a presigned snapshot URL per catalog frame.
type AnalyzeResult struct {
	Job       *entity.VideoJob
	FrameURLs map[string]string
	Elapsed   time.Duration
}

type AnalyzeVideoUseCase struct {
	repo       port.JobRepository
	store      port.ArtifactStore
	sampler    port.FrameSampler
	detector   port.Detector
	aggregator *analysis.Aggregator
	publisher  port.EventPublisher
	notifier   port.FailureNotifier
	pool       *workerpool.Pool
	logger     *zap.Logger

	tempDir             string
	detectorConcurrency int
	failureCeiling      float64
}

func NewAnalyzeVideoUseCase(
	repo port.JobRepository,
	store port.ArtifactStore,
	sampler port.FrameSampler,
	detector port.Detector,
	aggregator *analysis.Aggregator,
	publisher port.EventPublisher,
	notifier port.FailureNotifier,
	pool *workerpool.Pool,
	logger *zap.Logger,
	tempDir string,
	detectorConcurrency int,
	failureCeiling float64,
) *AnalyzeVideoUseCase {
	return &AnalyzeVideoUseCase{
		repo:                repo,
		store:               store,
		sampler:             sampler,
		detector:            detector,
		aggregator:          aggregator,
		publisher:           publisher,
		notifier:            notifier,
		pool:                pool,
		logger:              logger,
		tempDir:             tempDir,
		detectorConcurrency: detectorConcurrency,
		failureCeiling:      failureCeiling,
	}
}

// Execute stores the upload, runs the full analysis pipeline and returns
// the PII catalog. The call is synchronous: the response carries every
// frame the client may later approve for redaction.
func (uc *AnalyzeVideoUseCase) Execute(ctx context.Context, upload io.Reader, size int64, contentType, filename string) (*AnalyzeResult, error) {
	ctx, span := otel.Tracer("privacylens").Start(ctx, "analyze_video")
	defer span.End()

	start := time.Now()

	job := entity.NewVideoJob("", size)
	job.SourceKey = fmt.Sprintf("%s%s", job.ID, sourceExt(filename))
	span.SetAttributes(attribute.String("video_id", job.ID.String()))

	log := uc.logger.With(zap.String("video_id", job.ID.String()))
	log.Info("upload received",
		zap.Int64("size_bytes", size),
		zap.String("content_type", contentType),
	)

	if err := uc.store.SaveSource(ctx, job.SourceKey, upload, size, contentType); err != nil {
		return nil, err
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	// The pipeline keeps running on a detached context even if the client
	// disconnects mid-analysis, so the stored job stays consistent.
	work := context.WithoutCancel(ctx)

	metrics.InFlightJobs.Inc()
	defer metrics.InFlightJobs.Dec()

	var (
		result *AnalyzeResult
		runErr error
	)
	if err := uc.pool.Execute(ctx, func() {
		result, runErr = uc.analyze(work, job, log)
	}); err != nil {
		// The job row already exists; mark it failed so a later protect
		// request gets an accurate error instead of a stale RECEIVED phase.
		uc.fail(work, job, "analysis", err, log)
		return nil, err
	}
	if runErr != nil {
		uc.fail(work, job, "analysis", runErr, log)
		return nil, runErr
	}

	result.Elapsed = time.Since(start)
	metrics.JobsTotal.WithLabelValues("analysis", "success").Inc()
	log.Info("analysis complete",
		zap.Int("frames_sampled", job.TotalFramesSampled),
		zap.Int("frames_failed", job.FramesFailed),
		zap.Int("flagged_frames", len(job.Catalog)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (uc *AnalyzeVideoUseCase) analyze(ctx context.Context, job *entity.VideoJob, log *zap.Logger) (*AnalyzeResult, error) {
	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "source"+filepath.Ext(job.SourceKey))
	if err := uc.store.FetchSource(ctx, job.SourceKey, srcPath); err != nil {
		return nil, err
	}

	probeStart := time.Now()
	meta, err := uc.sampler.Probe(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("probe").Observe(time.Since(probeStart).Seconds())

	job.DurationMs = meta.DurationMs
	job.Width = meta.Width
	job.Height = meta.Height
	job.SampleIntervalMs = uc.sampler.IntervalMs()

	sampleStart := time.Now()
	frames, err := uc.sampler.Sample(ctx, srcPath, filepath.Join(workDir, "frames"))
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("sample").Observe(time.Since(sampleStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(frames)))

	detectStart := time.Now()
	frameDetections, failed, err := uc.detectAll(ctx, frames, log)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(detectStart).Seconds())

	catalog := uc.aggregator.Aggregate(job.ID.String(), frameDetections)
	for _, frame := range catalog {
		for _, det := range frame.Detections {
			metrics.DetectionsTotal.WithLabelValues(string(det.Type)).Inc()
		}
	}

	pathByTimestamp := make(map[int64]string, len(frames))
	for _, f := range frames {
		pathByTimestamp[f.TimestampMs] = f.Path
	}
	frameURLs, err := uc.publishSnapshots(ctx, job, catalog, pathByTimestamp, workDir)
	if err != nil {
		return nil, err
	}

	// Every sampled frame was sent to the detector, so the analyzed count
	// is the full sample; per-frame failures are reported separately.
	job.MarkAnalyzed(catalog, len(frames), len(frames), failed)
	if err := uc.repo.Update(ctx, job); err != nil {
		return nil, err
	}

	uc.publish(ctx, job, log)
	return &AnalyzeResult{Job: job, FrameURLs: frameURLs}, nil
}

// detectAll fans the sampled frames out to the inference service with
// bounded concurrency. Individual frame failures are absorbed and
// counted; the job only aborts when more than the configured fraction of
// frames fail, which indicates the detector itself is down.
func (uc *AnalyzeVideoUseCase) detectAll(ctx context.Context, frames []port.SampledFrame, log *zap.Logger) ([]analysis.FrameDetections, int, error) {
	results := make([]analysis.FrameDetections, len(frames))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.detectorConcurrency)
	for i, frame := range frames {
		g.Go(func() error {
			dets, err := uc.detector.Detect(gctx, frame.Path)
			if err != nil {
				metrics.DetectorFailuresTotal.Inc()
				log.Warn("frame detection failed",
					zap.Int("frame_index", frame.Index),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				dets = nil
			}
			results[i] = analysis.FrameDetections{Frame: frame, Detections: dets}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if len(frames) > 0 && float64(failed)/float64(len(frames)) > uc.failureCeiling {
		return nil, failed, errs.New(errs.CodeDetectorUnavailable,
			"%d of %d frames failed inference", failed, len(frames))
	}
	return results, failed, nil
}

// publishSnapshots re-encodes each flagged frame as a JPEG review
// snapshot, uploads it and records its storage key on the catalog entry.
func (uc *AnalyzeVideoUseCase) publishSnapshots(ctx context.Context, job *entity.VideoJob, catalog []entity.PIIFrame, pathByTimestamp map[int64]string, workDir string) (map[string]string, error) {
	urls := make(map[string]string, len(catalog))
	for i := range catalog {
		frame := &catalog[i]
		srcPath, ok := pathByTimestamp[frame.TimestampMs]
		if !ok {
			continue
		}

		img, err := imaging.Open(srcPath)
		if err != nil {
			return nil, fmt.Errorf("open snapshot source: %w", err)
		}
		jpgPath := filepath.Join(workDir, fmt.Sprintf("snapshot_%d.jpg", i))
		if err := imaging.Save(img, jpgPath, imaging.JPEGQuality(snapshotQuality)); err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}

		key := fmt.Sprintf("%s/%s.jpg", job.ID, frame.ID)
		if err := uc.store.SaveSnapshot(ctx, key, jpgPath); err != nil {
			return nil, err
		}
		frame.SnapshotKey = key

		url, err := uc.store.SnapshotURL(ctx, key)
		if err != nil {
			return nil, err
		}
		urls[frame.ID] = url
	}
	return urls, nil
}

func (uc *AnalyzeVideoUseCase) publish(ctx context.Context, job *entity.VideoJob, log *zap.Logger) {
	ev := entity.JobEvent{
		VideoID:             job.ID,
		Phase:               job.Phase,
		TotalFramesAnalyzed: job.TotalFramesAnalyzed,
		FramesFailed:        job.FramesFailed,
		FlaggedFrames:       len(job.Catalog),
		ProcessedKey:        job.ProcessedKey,
		ErrorMessage:        job.ErrorMessage,
	}
	if err := uc.publisher.PublishJobEvent(ctx, ev); err != nil {
		log.Warn("failed to publish job event", zap.Error(err))
	}
}

func (uc *AnalyzeVideoUseCase) fail(ctx context.Context, job *entity.VideoJob, stage string, cause error, log *zap.Logger) {
	metrics.JobsTotal.WithLabelValues(stage, "failure").Inc()
	log.Error("pipeline failed", zap.String("stage", stage), zap.Error(cause))

	if !job.MarkFailed(cause.Error()) {
		return
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to persist failure", zap.Error(err))
	}
	uc.publish(ctx, job, log)
	if err := uc.notifier.NotifyFailure(ctx, job.ID.String(), stage, cause.Error()); err != nil {
		log.Warn("failure notification not sent", zap.Error(err))
	}
}

func sourceExt(filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	return ".mp4"
}
