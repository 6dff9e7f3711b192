package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"

	"github.com/JarudeC/privacylens/internal/redaction"
)

// Pipeline streams full-rate frames through a pair of ffmpeg processes:
// one decoding the source to a PNG image pipe, one re-encoding processed
// frames while copying the original audio track.
type Pipeline struct {
	ffmpegBin string
}

func NewPipeline(ffmpegBin string) *Pipeline {
	return &Pipeline{ffmpegBin: ffmpegBin}
}

func (p *Pipeline) OpenDecoder(ctx context.Context, path string) (redaction.FrameReader, error) {
	cmd := exec.CommandContext(ctx, p.ffmpegBin,
		"-v", "error",
		"-i", path,
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start decoder: %w", err)
	}

	return &frameReader{
		cmd:    cmd,
		r:      bufio.NewReaderSize(stdout, 1<<20),
		stderr: &stderr,
	}, nil
}

type frameReader struct {
	cmd    *exec.Cmd
	r      *bufio.Reader
	stderr *bytes.Buffer
	done   bool
}

func (fr *frameReader) Next() (image.Image, error) {
	if fr.done {
		return nil, io.EOF
	}
	img, err := png.Decode(fr.r)
	if err != nil {
		fr.done = true
		// A truncated trailing frame is treated as end of stream.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if werr := fr.cmd.Wait(); werr != nil {
				return nil, fmt.Errorf("decoder exited: %w: %s", werr, fr.stderr.String())
			}
			return nil, io.EOF
		}
		_ = fr.cmd.Process.Kill()
		_ = fr.cmd.Wait()
		return nil, fmt.Errorf("decode png frame: %w", err)
	}
	return img, nil
}

func (fr *frameReader) Close() error {
	if !fr.done {
		fr.done = true
		_ = fr.cmd.Process.Kill()
		_ = fr.cmd.Wait()
	}
	return nil
}

// OpenEncoder starts an encoder writing to path at the given frame rate.
// audioSource, when non-empty, has its audio track copied through so the
// protected output keeps the original sound.
func (p *Pipeline) OpenEncoder(ctx context.Context, path string, fps float64, audioSource string) (redaction.FrameWriter, error) {
	args := []string{
		"-v", "error",
		"-y",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-framerate", fmt.Sprintf("%g", fps),
		"-i", "pipe:0",
	}
	if audioSource != "" {
		args = append(args,
			"-i", audioSource,
			"-map", "0:v:0",
			"-map", "1:a:0?",
			"-c:a", "copy",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%g", fps),
		path,
	)

	cmd := exec.CommandContext(ctx, p.ffmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	return &frameWriter{cmd: cmd, w: stdin, stderr: &stderr}, nil
}

type frameWriter struct {
	cmd    *exec.Cmd
	w      io.WriteCloser
	stderr *bytes.Buffer
	closed bool
}

func (fw *frameWriter) Write(img image.Image) error {
	if err := png.Encode(fw.w, img); err != nil {
		return fmt.Errorf("encode png frame: %w", err)
	}
	return nil
}

func (fw *frameWriter) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true
	_ = fw.w.Close()
	if err := fw.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited: %w: %s", err, fw.stderr.String())
	}
	return nil
}

// Copy duplicates the source artifact byte for byte; used for the empty
// approval set so the output is identical to the original.
func (p *Pipeline) Copy(_ context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy video: %w", err)
	}
	return out.Close()
}
