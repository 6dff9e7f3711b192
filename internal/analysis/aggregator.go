// Package analysis turns raw per-frame detector output into the
// reviewable PIIFrame catalog.
package analysis

import (
	"fmt"
	"sort"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/port"
)

// FrameDetections pairs one sampled frame with the raw detections the
// detector reported for it.
type FrameDetections struct {
	Frame      port.SampledFrame
	Detections []port.RawDetection
}

type Aggregator struct {
	ConfidenceFloor float64
	IoUThreshold    float64
	Severity        SeverityPolicy
}

func NewAggregator(floor, iou float64, policy SeverityPolicy) *Aggregator {
	return &Aggregator{ConfidenceFloor: floor, IoUThreshold: iou, Severity: policy}
}

// Aggregate builds the catalog: drops sub-floor and malformed detections,
// resolves same-frame same-type overlaps in favor of the higher
// confidence, assigns severity, and emits one PIIFrame per sampled frame
// that still carries detections, in ascending timestamp order. Frames are
// deliberately not deduplicated across time: the reviewer sees every
// sampled occurrence of an object as separate evidence.
func (a *Aggregator) Aggregate(videoID string, frames []FrameDetections) []entity.PIIFrame {
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame.TimestampMs < frames[j].Frame.TimestampMs
	})

	var catalog []entity.PIIFrame
	for _, fd := range frames {
		kept := a.filterFrame(fd.Detections)
		if len(kept) == 0 {
			continue
		}

		detections := make([]entity.Detection, 0, len(kept))
		for _, raw := range kept {
			detections = append(detections, entity.Detection{
				Type:        raw.Type,
				Confidence:  raw.Confidence,
				Box:         raw.Box,
				Severity:    a.Severity.Severity(raw.Type, raw.Confidence),
				Description: describe(raw, fd.Frame.TimestampMs),
			})
		}

		catalog = append(catalog, entity.PIIFrame{
			ID:          fmt.Sprintf("%s_frame_%d", videoID, fd.Frame.Index),
			TimestampMs: fd.Frame.TimestampMs,
			Detections:  detections,
		})
	}
	return catalog
}

// filterFrame applies the confidence floor and the same-frame tie-break:
// two detections of the same type overlapping above the IoU threshold
// keep only the higher-confidence one.
func (a *Aggregator) filterFrame(raw []port.RawDetection) []port.RawDetection {
	candidates := make([]port.RawDetection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < a.ConfidenceFloor || d.Confidence > 1 {
			continue
		}
		if !d.Box.Valid() {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	var kept []port.RawDetection
	for _, c := range candidates {
		suppressed := false
		for _, k := range kept {
			if k.Type == c.Type && k.Box.IoU(c.Box) > a.IoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

func describe(d port.RawDetection, timestampMs int64) string {
	return fmt.Sprintf("%s detected at %.1fs (confidence %.2f)",
		typeLabel(d.Type), float64(timestampMs)/1000, d.Confidence)
}

func typeLabel(t entity.DetectionType) string {
	switch t {
	case entity.DetectionCreditCard:
		return "Credit card"
	case entity.DetectionIDCard:
		return "ID document"
	case entity.DetectionAddress:
		return "Address"
	case entity.DetectionCarPlate:
		return "License plate"
	}
	return string(t)
}
