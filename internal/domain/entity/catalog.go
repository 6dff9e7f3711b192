package entity

import (
	"image"
	"math"
)

type DetectionType string

const (
	DetectionCreditCard DetectionType = "credit_card"
	DetectionIDCard     DetectionType = "id_card"
	DetectionAddress    DetectionType = "address"
	DetectionCarPlate   DetectionType = "car_plate"
)

// HighRisk reports whether this type maps to high severity at a lower
// confidence threshold than standard types.
func (t DetectionType) HighRisk() bool {
	return t == DetectionCreditCard || t == DetectionIDCard
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for comparisons: low < medium < high.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	}
	return -1
}

// BoundingBox is an axis-aligned region in normalized [0,1] coordinates
// relative to the frame, origin top-left.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (b BoundingBox) Area() float64 {
	return b.W * b.H
}

// IoU is the intersection-over-union with o.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	ix := math.Max(b.X, o.X)
	iy := math.Max(b.Y, o.Y)
	ix2 := math.Min(b.X+b.W, o.X+o.W)
	iy2 := math.Min(b.Y+b.H, o.Y+o.H)
	if ix2 <= ix || iy2 <= iy {
		return 0
	}
	inter := (ix2 - ix) * (iy2 - iy)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Union returns the smallest box covering both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	x := math.Min(b.X, o.X)
	y := math.Min(b.Y, o.Y)
	x2 := math.Max(b.X+b.W, o.X+o.W)
	y2 := math.Max(b.Y+b.H, o.Y+o.H)
	return BoundingBox{X: x, Y: y, W: x2 - x, H: y2 - y}
}

// Pad grows the box by margin on every side, clamped to [0,1].
func (b BoundingBox) Pad(margin float64) BoundingBox {
	x := math.Max(0, b.X-margin)
	y := math.Max(0, b.Y-margin)
	x2 := math.Min(1, b.X+b.W+margin)
	y2 := math.Min(1, b.Y+b.H+margin)
	return BoundingBox{X: x, Y: y, W: x2 - x, H: y2 - y}
}

// PixelRect converts the normalized box into pixel coordinates for a
// frame of the given dimensions.
func (b BoundingBox) PixelRect(width, height int) image.Rectangle {
	x1 := int(math.Round(b.X * float64(width)))
	y1 := int(math.Round(b.Y * float64(height)))
	x2 := int(math.Round((b.X + b.W) * float64(width)))
	y2 := int(math.Round((b.Y + b.H) * float64(height)))
	return image.Rect(x1, y1, x2, y2).Intersect(image.Rect(0, 0, width, height))
}

// Valid reports whether the box lies within the normalized frame and has
// positive area.
func (b BoundingBox) Valid() bool {
	return b.W > 0 && b.H > 0 &&
		b.X >= 0 && b.Y >= 0 && b.X+b.W <= 1 && b.Y+b.H <= 1
}

// Detection is one flagged region within a frame.
type Detection struct {
	Type        DetectionType `json:"type"`
	Confidence  float64       `json:"confidence"`
	Box         BoundingBox   `json:"box"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
}

// PIIFrame is a sampled frame surfaced to the reviewer because it carries
// at least one surviving detection. Immutable once emitted in the
// analysis response; its ID is the only handle a protect request may use
// to reference the region.
type PIIFrame struct {
	ID          string      `json:"id"`
	TimestampMs int64       `json:"timestampMs"`
	SnapshotKey string      `json:"snapshotKey"`
	Detections  []Detection `json:"detections"`
}
