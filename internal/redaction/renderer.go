package redaction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"

	"github.com/JarudeC/privacylens/internal/domain/entity"
)

// FrameReader yields decoded frames in presentation order. Next returns
// io.EOF when the stream ends.
type FrameReader interface {
	Next() (image.Image, error)
	Close() error
}

// FrameWriter consumes frames for re-encoding.
type FrameWriter interface {
	Write(img image.Image) error
	Close() error
}

// VideoPipeline abstracts the codec boundary: bytes in, frame sequence
// out, and back again.
type VideoPipeline interface {
	OpenDecoder(ctx context.Context, path string) (FrameReader, error)
	OpenEncoder(ctx context.Context, path string, fps float64, audioSource string) (FrameWriter, error)
	Copy(ctx context.Context, src, dst string) error
}

// Renderer re-decodes the original at full frame rate and blurs approved
// regions inside their temporal windows. Every pixel outside an active
// region, and every frame outside any window, passes through untouched.
type Renderer struct {
	pipeline VideoPipeline
	padding  float64
	sigma    float64
}

// NewRenderer builds a renderer. padding widens each box by that fraction
// of the frame dimension to absorb detector localization error; sigma is
// the Gaussian blur strength.
func NewRenderer(pipeline VideoPipeline, padding, sigma float64) *Renderer {
	return &Renderer{pipeline: pipeline, padding: padding, sigma: sigma}
}

// Render writes the protected video to dst. An empty plan copies the
// source through unchanged, the legitimate "no protection needed" case.
func (r *Renderer) Render(ctx context.Context, src, dst string, fps float64, plan Plan) error {
	if plan.Empty() {
		return r.pipeline.Copy(ctx, src, dst)
	}
	if fps <= 0 {
		return fmt.Errorf("render: non-positive frame rate %v", fps)
	}

	dec, err := r.pipeline.OpenDecoder(ctx, src)
	if err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	defer dec.Close()

	enc, err := r.pipeline.OpenEncoder(ctx, dst, fps, src)
	if err != nil {
		return fmt.Errorf("open encoder: %w", err)
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			enc.Close()
			return err
		}

		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			enc.Close()
			return fmt.Errorf("decode frame %d: %w", i, err)
		}

		tMs := int64(math.Round(float64(i) * 1000 / fps))
		if boxes := plan.BoxesAt(tMs); len(boxes) > 0 {
			frame = r.RedactFrame(frame, boxes)
		}

		if err := enc.Write(frame); err != nil {
			enc.Close()
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}

// RedactFrame blurs each padded region of the frame and leaves all other
// pixels byte-identical.
func (r *Renderer) RedactFrame(frame image.Image, boxes []entity.BoundingBox) *image.NRGBA {
	out := imaging.Clone(frame)
	w := out.Bounds().Dx()
	h := out.Bounds().Dy()

	for _, box := range boxes {
		rect := box.Pad(r.padding).PixelRect(w, h)
		if rect.Empty() {
			continue
		}
		region := imaging.Crop(out, rect)
		blurred := imaging.Blur(region, r.sigma)
		out = imaging.Paste(out, blurred, rect.Min)
	}
	return out
}
