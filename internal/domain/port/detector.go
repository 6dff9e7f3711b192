package port

import (
	"context"

	"github.com/JarudeC/privacylens/internal/domain/entity"
)

// RawDetection is a single untyped model output for one frame: label,
// confidence and a normalized bounding box. Severity and description are
// assigned later by the aggregator.
type RawDetection struct {
	Type       entity.DetectionType
	Confidence float64
	Box        entity.BoundingBox
}

// Detector is the black-box inference service: one frame image in, zero
// or more detections out.
type Detector interface {
	Detect(ctx context.Context, framePath string) ([]RawDetection, error)
	Healthy(ctx context.Context) error
}
