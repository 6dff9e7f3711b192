package analysis

import "github.com/JarudeC/privacylens/internal/domain/entity"

// SeverityPolicy maps (type, confidence) to a severity. The mapping is
// monotone non-decreasing in confidence for a fixed type; high-risk types
// reach high severity at a lower confidence than standard types.
type SeverityPolicy struct {
	HighRiskHigh   float64
	HighRiskMedium float64
	StandardHigh   float64
	StandardMedium float64
}

func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		HighRiskHigh:   0.75,
		HighRiskMedium: 0.50,
		StandardHigh:   0.90,
		StandardMedium: 0.65,
	}
}

func (p SeverityPolicy) Severity(t entity.DetectionType, confidence float64) entity.Severity {
	high, medium := p.StandardHigh, p.StandardMedium
	if t.HighRisk() {
		high, medium = p.HighRiskHigh, p.HighRiskMedium
	}
	switch {
	case confidence >= high:
		return entity.SeverityHigh
	case confidence >= medium:
		return entity.SeverityMedium
	default:
		return entity.SeverityLow
	}
}
