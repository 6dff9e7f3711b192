package ffmpeg

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/domain/port"
)

// codecs the renderer can decode and re-encode.
var supportedCodecs = map[string]bool{
	"h264":  true,
	"hevc":  true,
	"vp8":   true,
	"vp9":   true,
	"av1":   true,
	"mpeg4": true,
	"mjpeg": true,
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// Probe runs ffprobe on the container and validates it for sampling. A
// container ffprobe cannot open is fatal for the job: no partial catalog
// is possible.
func (s *Sampler) Probe(ctx context.Context, videoPath string) (port.VideoMeta, error) {
	cmd := exec.CommandContext(ctx, s.ffprobeBin,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return port.VideoMeta{}, errs.Wrap(errs.CodeCorruptContainer, err,
			"ffprobe could not open container")
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return port.VideoMeta{}, errs.Wrap(errs.CodeCorruptContainer, err,
			"ffprobe output unreadable")
	}

	var video *probeStream
	for i := range result.Streams {
		if result.Streams[i].CodecType == "video" {
			video = &result.Streams[i]
			break
		}
	}
	if video == nil {
		return port.VideoMeta{}, errs.New(errs.CodeCorruptContainer, "no video stream in container")
	}
	if !supportedCodecs[video.CodecName] {
		return port.VideoMeta{}, errs.New(errs.CodeUnsupportedCodec,
			"video codec %q is not supported", video.CodecName)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil || durationSec <= 0 {
		return port.VideoMeta{}, errs.New(errs.CodeCorruptContainer, "container reports no duration")
	}

	fps := parseFrameRate(video.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(video.RFrameRate)
	}
	if fps <= 0 {
		fps = 30
	}

	return port.VideoMeta{
		DurationMs: int64(math.Round(durationSec * 1000)),
		Width:      video.Width,
		Height:     video.Height,
		FPS:        fps,
		Codec:      video.CodecName,
	}, nil
}

// parseFrameRate handles ffprobe's fractional rates, e.g. "30000/1001".
func parseFrameRate(raw string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
