package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/domain/port"
	"github.com/JarudeC/privacylens/internal/redaction"
)

func port30fps() port.VideoMeta {
	return port.VideoMeta{DurationMs: 10000, Width: 640, Height: 480, FPS: 30, Codec: "h264"}
}

func bytesReader(s string) io.Reader { return strings.NewReader(s) }

// memRepo is an in-memory JobRepository for pipeline tests.
type memRepo struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*entity.VideoJob
	redactions map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		jobs:       make(map[uuid.UUID]*entity.VideoJob),
		redactions: make(map[string]string),
	}
}

func (r *memRepo) Create(_ context.Context, job *entity.VideoJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *entity.VideoJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.VideoJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errs.New(errs.CodeJobNotFound, "video %s not found", id)
	}
	return job, nil
}

func (r *memRepo) SaveRedaction(_ context.Context, videoID uuid.UUID, requestHash, processedKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := videoID.String() + ":" + requestHash
	if _, exists := r.redactions[key]; !exists {
		r.redactions[key] = processedKey
	}
	return nil
}

func (r *memRepo) FindRedaction(_ context.Context, videoID uuid.UUID, requestHash string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.redactions[videoID.String()+":"+requestHash]
	return key, ok, nil
}

func (r *memRepo) ListRedactionKeys(_ context.Context, videoID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	prefix := videoID.String() + ":"
	for k, v := range r.redactions {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, v)
		}
	}
	return keys, nil
}

func (r *memRepo) ListExpired(_ context.Context, cutoff time.Time) ([]*entity.VideoJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.VideoJob
	for _, job := range r.jobs {
		if job.CreatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

func (r *memRepo) all() []*entity.VideoJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.VideoJob
	for _, job := range r.jobs {
		out = append(out, job)
	}
	return out
}

// memStore records artifact writes and serves a canned source video.
type memStore struct {
	mu        sync.Mutex
	sources   map[string][]byte
	snapshots map[string]bool
	protected map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		sources:   make(map[string][]byte),
		snapshots: make(map[string]bool),
		protected: make(map[string]bool),
	}
}

func (s *memStore) SaveSource(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[key] = data
	return nil
}

func (s *memStore) FetchSource(_ context.Context, key, destPath string) error {
	s.mu.Lock()
	data, ok := s.sources[key]
	s.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeStorageFailure, "source %s missing", key)
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (s *memStore) SaveSnapshot(_ context.Context, key, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = true
	return nil
}

func (s *memStore) SaveProtected(_ context.Context, key, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected[key] = true
	return nil
}

func (s *memStore) SnapshotURL(_ context.Context, key string) (string, error) {
	return "https://store/frames/" + key, nil
}

func (s *memStore) ProtectedURL(_ context.Context, key string) (string, error) {
	return "https://store/protected/" + key, nil
}

func (s *memStore) DeleteSource(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, key)
	return nil
}

func (s *memStore) DeleteSnapshot(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}

func (s *memStore) DeleteProtected(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.protected, key)
	return nil
}

// stubSampler fabricates frames without touching ffmpeg.
type stubSampler struct {
	meta       port.VideoMeta
	probeErr   error
	frameCount int
	intervalMs int64
}

func (s *stubSampler) Probe(context.Context, string) (port.VideoMeta, error) {
	if s.probeErr != nil {
		return port.VideoMeta{}, s.probeErr
	}
	return s.meta, nil
}

func (s *stubSampler) Sample(_ context.Context, _, outDir string) ([]port.SampledFrame, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	frames := make([]port.SampledFrame, s.frameCount)
	for i := range frames {
		img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
		for p := range img.Pix {
			img.Pix[p] = 255
		}
		path := fmt.Sprintf("%s/frame_%05d.png", outDir, i+1)
		if err := imaging.Save(img, path); err != nil {
			return nil, err
		}
		frames[i] = port.SampledFrame{Index: i, TimestampMs: int64(i) * s.intervalMs, Path: path}
	}
	return frames, nil
}

func (s *stubSampler) IntervalMs() int64 { return s.intervalMs }

// stubDetector answers from a per-frame-index table. Indexes listed in
// failIndexes simulate single-frame inference failures.
type stubDetector struct {
	byIndex     map[int][]port.RawDetection
	failIndexes map[int]bool
	errAll      error
	calls       atomic.Int32
}

func (d *stubDetector) Detect(_ context.Context, framePath string) ([]port.RawDetection, error) {
	d.calls.Add(1)
	if d.errAll != nil {
		return nil, d.errAll
	}
	var index int
	fmt.Sscanf(filepath.Base(framePath), "frame_%05d.png", &index)
	if d.failIndexes[index-1] {
		return nil, errors.New("inference timeout")
	}
	return d.byIndex[index-1], nil
}

func (d *stubDetector) Healthy(context.Context) error { return nil }

// recordingPublisher captures emitted lifecycle events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.JobEvent
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, ev entity.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	stages []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, _, stage, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stages = append(n.stages, stage)
	return nil
}

// countingPipeline implements redaction.VideoPipeline with an in-memory
// frame stream so renders count instead of spawning codecs. A non-nil
// gate blocks every render at encoder open until the channel is closed.
type countingPipeline struct {
	frameCount  int
	gate        chan struct{}
	copyCalls   atomic.Int32
	renderCalls atomic.Int32
}

type countingReader struct {
	remaining int
}

func (r *countingReader) Next() (image.Image, error) {
	if r.remaining <= 0 {
		return nil, io.EOF
	}
	r.remaining--
	return image.NewNRGBA(image.Rect(0, 0, 16, 16)), nil
}

func (r *countingReader) Close() error { return nil }

type countingWriter struct {
	dst string
}

func (w *countingWriter) Write(image.Image) error { return nil }

func (w *countingWriter) Close() error {
	return os.WriteFile(w.dst, []byte("rendered"), 0o644)
}

func (p *countingPipeline) OpenDecoder(context.Context, string) (redaction.FrameReader, error) {
	return &countingReader{remaining: p.frameCount}, nil
}

func (p *countingPipeline) OpenEncoder(_ context.Context, dst string, _ float64, _ string) (redaction.FrameWriter, error) {
	p.renderCalls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	return &countingWriter{dst: dst}, nil
}

func (p *countingPipeline) Copy(_ context.Context, _, dst string) error {
	p.copyCalls.Add(1)
	return os.WriteFile(dst, []byte("copied"), 0o644)
}
