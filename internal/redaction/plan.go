// Package redaction plans and renders region-local blurring for the
// client-approved subset of catalog frames.
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
)

// Window is one continuous redaction interval with the regions to blur
// while it is active. Intervals are half-open [StartMs, EndMs) so that
// windows from consecutive sampled frames tile the timeline without
// double coverage.
type Window struct {
	StartMs int64
	EndMs   int64
	Boxes   []entity.BoundingBox
}

func (w Window) contains(tMs int64) bool {
	return tMs >= w.StartMs && tMs < w.EndMs
}

type Plan struct {
	Windows []Window
}

func (p Plan) Empty() bool { return len(p.Windows) == 0 }

// BoxesAt returns every region active at the given output timestamp.
func (p Plan) BoxesAt(tMs int64) []entity.BoundingBox {
	var boxes []entity.BoundingBox
	for _, w := range p.Windows {
		if w.contains(tMs) {
			boxes = append(boxes, w.Boxes...)
		}
	}
	return boxes
}

// track is an object followed across consecutive approved frames.
type track struct {
	detType entity.DetectionType
	box     entity.BoundingBox
	lastTs  int64
	startMs int64
	endMs   int64
}

type Planner struct {
	// IoUThreshold links same-type detections in adjacent approved frames
	// into one continuous interval.
	IoUThreshold float64
}

func NewPlanner(iouThreshold float64) *Planner {
	return &Planner{IoUThreshold: iouThreshold}
}

// Build validates the approved ids against the job's stored catalog and
// produces the redaction plan. Any id not issued by this job's analysis
// fails the whole request; an empty approved set yields an empty plan.
//
// Each approved frame at timestamp T covers [T-w, T+w) with w = half the
// sampling interval, since the physical object persists between samples.
// Same-type detections in adjacent approved frames whose boxes overlap
// above the IoU threshold merge into a single interval covering the
// union of their boxes.
func (p *Planner) Build(job *entity.VideoJob, approvedIDs []string) (Plan, error) {
	frames := make([]entity.PIIFrame, 0, len(approvedIDs))
	seen := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		frame, ok := job.CatalogFrame(id)
		if !ok {
			return Plan{}, errs.New(errs.CodeUnknownFrameReference,
				"frame %q was not produced by analysis of video %s", id, job.ID)
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return Plan{}, nil
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].TimestampMs < frames[j].TimestampMs
	})

	half := job.SampleIntervalMs / 2
	if half <= 0 {
		half = 500
	}

	var tracks []*track
	for _, frame := range frames {
		start := max64(0, frame.TimestampMs-half)
		end := frame.TimestampMs + half
		if job.DurationMs > 0 && end > job.DurationMs {
			end = job.DurationMs
		}

		for _, det := range frame.Detections {
			if t := p.linkable(tracks, start, frame.TimestampMs, det); t != nil {
				t.box = t.box.Union(det.Box)
				t.lastTs = frame.TimestampMs
				t.endMs = end
				continue
			}
			tracks = append(tracks, &track{
				detType: det.Type,
				box:     det.Box,
				lastTs:  frame.TimestampMs,
				startMs: start,
				endMs:   end,
			})
		}
	}

	windows := make([]Window, 0, len(tracks))
	for _, t := range tracks {
		windows = append(windows, Window{
			StartMs: t.startMs,
			EndMs:   t.endMs,
			Boxes:   []entity.BoundingBox{t.box},
		})
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].StartMs < windows[j].StartMs
	})
	return Plan{Windows: windows}, nil
}

// linkable finds an open track this detection continues: same type,
// overlapping box, and the previous window still touching the new one.
func (p *Planner) linkable(tracks []*track, startMs, tsMs int64, det entity.Detection) *track {
	for _, t := range tracks {
		if t.detType != det.Type || t.lastTs >= tsMs || t.endMs < startMs {
			continue
		}
		if t.box.IoU(det.Box) > p.IoUThreshold {
			return t
		}
	}
	return nil
}

// RequestHash is the idempotence key for a protect request: the order-
// and duplicate-insensitive digest of the approved frame ids.
func RequestHash(approvedIDs []string) string {
	ids := make([]string, 0, len(approvedIDs))
	seen := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
