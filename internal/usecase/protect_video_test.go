package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/infra/workerpool"
	"github.com/JarudeC/privacylens/internal/redaction"
)

type protectFixture struct {
	uc       *ProtectVideoUseCase
	repo     *memRepo
	store    *memStore
	pipeline *countingPipeline
	job      *entity.VideoJob
}

func newProtectFixture(t *testing.T) *protectFixture {
	t.Helper()

	repo := newMemRepo()
	store := newMemStore()
	pipeline := &countingPipeline{frameCount: 5}
	sampler := &stubSampler{
		meta:       port30fps(),
		intervalMs: 1000,
	}

	job := entity.NewVideoJob("", 64)
	job.SourceKey = job.ID.String() + ".mp4"
	job.SampleIntervalMs = 1000
	job.DurationMs = 10000
	job.MarkAnalyzed([]entity.PIIFrame{{
		ID:          job.ID.String() + "_frame_4",
		TimestampMs: 4000,
		Detections: []entity.Detection{{
			Type:       entity.DetectionCreditCard,
			Confidence: 0.93,
			Box:        entity.BoundingBox{X: 0.4, Y: 0.4, W: 0.1, H: 0.1},
			Severity:   entity.SeverityHigh,
		}},
	}}, 10, 10, 0)
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, store.SaveSource(context.Background(), job.SourceKey, bytesReader("fake video"), 10, "video/mp4"))

	pool := workerpool.New(2, 4)
	t.Cleanup(pool.Shutdown)

	uc := NewProtectVideoUseCase(
		repo, store, sampler,
		redaction.NewPlanner(0.5),
		redaction.NewRenderer(pipeline, 0.02, 30),
		&recordingPublisher{}, &recordingNotifier{},
		pool, zap.NewNop(), t.TempDir(),
	)
	return &protectFixture{uc: uc, repo: repo, store: store, pipeline: pipeline, job: job}
}

func TestProtectRendersApprovedFrames(t *testing.T) {
	f := newProtectFixture(t)

	uri, err := f.uc.Execute(context.Background(), f.job.ID, []string{f.job.Catalog[0].ID})
	require.NoError(t, err)
	assert.Contains(t, uri, "https://store/protected/")

	assert.Equal(t, int32(1), f.pipeline.renderCalls.Load())
	assert.Equal(t, int32(0), f.pipeline.copyCalls.Load())
	assert.Equal(t, entity.JobPhaseProtected, f.job.Phase)
	assert.Len(t, f.store.protected, 1)
}

func TestProtectEmptyApprovedSetCopiesSource(t *testing.T) {
	f := newProtectFixture(t)

	uri, err := f.uc.Execute(context.Background(), f.job.ID, nil)
	require.NoError(t, err)
	assert.Contains(t, uri, "https://store/protected/")

	// Nothing approved means a byte-for-byte copy, never a re-encode.
	assert.Equal(t, int32(1), f.pipeline.copyCalls.Load())
	assert.Equal(t, int32(0), f.pipeline.renderCalls.Load())
}

func TestProtectIdempotentForSameApprovedSet(t *testing.T) {
	f := newProtectFixture(t)
	ids := []string{f.job.Catalog[0].ID}

	first, err := f.uc.Execute(context.Background(), f.job.ID, ids)
	require.NoError(t, err)

	// Same set in a different order with duplicates hits the cache.
	second, err := f.uc.Execute(context.Background(), f.job.ID, append([]string{ids[0]}, ids...))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.pipeline.renderCalls.Load())
}

func TestProtectConcurrentIdenticalRequestsShareOneRender(t *testing.T) {
	f := newProtectFixture(t)
	ids := []string{f.job.Catalog[0].ID}

	var wg sync.WaitGroup
	uris := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			uri, err := f.uc.Execute(context.Background(), f.job.ID, ids)
			assert.NoError(t, err)
			uris[slot] = uri
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.pipeline.renderCalls.Load())
	for _, uri := range uris {
		assert.Equal(t, uris[0], uri)
	}
}

func TestProtectDifferentApprovedSetsRenderSeparately(t *testing.T) {
	f := newProtectFixture(t)

	_, err := f.uc.Execute(context.Background(), f.job.ID, []string{f.job.Catalog[0].ID})
	require.NoError(t, err)
	_, err = f.uc.Execute(context.Background(), f.job.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.pipeline.renderCalls.Load())
	assert.Equal(t, int32(1), f.pipeline.copyCalls.Load())
}

func TestProtectSerializesDifferentSetsPerVideo(t *testing.T) {
	f := newProtectFixture(t)
	f.pipeline.gate = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.uc.Execute(context.Background(), f.job.ID, []string{f.job.Catalog[0].ID})
		assert.NoError(t, err)
	}()

	// Let the first request reach the encoder, where the gate holds it.
	require.Eventually(t, func() bool {
		return f.pipeline.renderCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.uc.Execute(context.Background(), f.job.ID, nil)
		assert.NoError(t, err)
	}()

	// A different approved set for the same video must wait its turn, so
	// its copy cannot have started while the first render is in flight.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), f.pipeline.copyCalls.Load())

	close(f.pipeline.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.pipeline.renderCalls.Load())
	assert.Equal(t, int32(1), f.pipeline.copyCalls.Load())
}

func TestProtectRejectsUnknownFrame(t *testing.T) {
	f := newProtectFixture(t)

	_, err := f.uc.Execute(context.Background(), f.job.ID, []string{"someone_elses_frame_1"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeUnknownFrameReference))
	assert.Equal(t, int32(0), f.pipeline.renderCalls.Load())
	assert.Equal(t, entity.JobPhaseAnalyzed, f.job.Phase)
}

func TestProtectRejectsUnknownVideo(t *testing.T) {
	f := newProtectFixture(t)

	_, err := f.uc.Execute(context.Background(), uuid.New(), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeJobNotFound))
}

func TestProtectRejectsUnanalyzedJob(t *testing.T) {
	f := newProtectFixture(t)

	pending := entity.NewVideoJob("pending.mp4", 1)
	require.NoError(t, f.repo.Create(context.Background(), pending))

	_, err := f.uc.Execute(context.Background(), pending.ID, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))
}

func TestProtectRejectsFailedJob(t *testing.T) {
	f := newProtectFixture(t)

	failed := entity.NewVideoJob("failed.mp4", 1)
	failed.MarkFailed("corrupt container")
	require.NoError(t, f.repo.Create(context.Background(), failed))

	_, err := f.uc.Execute(context.Background(), failed.ID, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))
}
