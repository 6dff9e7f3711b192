package port

import "context"

// VideoMeta is the container-level metadata probed before sampling.
type VideoMeta struct {
	DurationMs int64
	Width      int
	Height     int
	FPS        float64
	Codec      string
}

// SampledFrame is one frame produced by the sampler. Timestamps are
// strictly increasing within a job.
type SampledFrame struct {
	Index       int
	TimestampMs int64
	Path        string
}

type FrameSampler interface {
	// Probe validates the container and returns stream metadata.
	Probe(ctx context.Context, videoPath string) (VideoMeta, error)
	// Sample decodes the video and writes one frame image per sampling
	// interval into outDir, returning them in timestamp order.
	Sample(ctx context.Context, videoPath, outDir string) ([]SampledFrame, error)
	// IntervalMs is the sampling interval implied by the configured cadence.
	IntervalMs() int64
}
