// Package ffmpeg wraps the ffmpeg/ffprobe binaries behind the sampling
// and codec ports. The decoder is a black box: bytes in, frames out.
package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/domain/port"
)

type Sampler struct {
	ffmpegBin  string
	ffprobeBin string
	sampleFPS  float64
	logger     *zap.Logger
}

func NewSampler(ffmpegBin, ffprobeBin string, sampleFPS float64, logger *zap.Logger) *Sampler {
	if sampleFPS <= 0 {
		sampleFPS = 1
	}
	return &Sampler{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		sampleFPS:  sampleFPS,
		logger:     logger,
	}
}

// IntervalMs is the time between consecutive sampled frames.
func (s *Sampler) IntervalMs() int64 {
	return int64(math.Round(1000 / s.sampleFPS))
}

// Sample extracts one frame per sampling interval into outDir and returns
// them with exact timestamps in ascending order. A trailing partial frame
// at EOF is truncated by the decoder, not surfaced as an error.
func (s *Sampler) Sample(ctx context.Context, videoPath, outDir string) ([]port.SampledFrame, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	pattern := filepath.Join(outDir, "frame_%05d.png")
	cmd := exec.CommandContext(ctx, s.ffmpegBin,
		"-v", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", s.sampleFPS),
		"-y",
		pattern,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errs.Wrap(errs.CodeCorruptContainer, err,
			"ffmpeg sampling failed: %s", string(output))
	}

	paths, err := filepath.Glob(filepath.Join(outDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob sampled frames: %w", err)
	}
	if len(paths) == 0 {
		return nil, errs.New(errs.CodeCorruptContainer, "decoder produced no frames")
	}
	sort.Strings(paths)

	interval := s.IntervalMs()
	frames := make([]port.SampledFrame, len(paths))
	for i, p := range paths {
		frames[i] = port.SampledFrame{
			Index:       i,
			TimestampMs: int64(i) * interval,
			Path:        p,
		}
	}

	s.logger.Debug("frames sampled",
		zap.Int("count", len(frames)),
		zap.Int64("interval_ms", interval),
	)
	return frames, nil
}
