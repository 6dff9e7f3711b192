package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobPhase string

const (
	JobPhaseReceived  JobPhase = "RECEIVED"
	JobPhaseAnalyzed  JobPhase = "ANALYZED"
	JobPhaseProtected JobPhase = "PROTECTED"
	JobPhaseFailed    JobPhase = "FAILED"
)

// rank orders phases so transitions can only move forward.
func (p JobPhase) rank() int {
	switch p {
	case JobPhaseReceived:
		return 0
	case JobPhaseAnalyzed:
		return 1
	case JobPhaseProtected, JobPhaseFailed:
		return 2
	}
	return -1
}

// VideoJob is the per-video pipeline record. It is created on upload and
// mutated only by the analysis pipeline (phase -> ANALYZED) and the
// redaction engine (phase -> PROTECTED or FAILED).
type VideoJob struct {
	ID                  uuid.UUID
	Phase               JobPhase
	SourceKey           string
	ProcessedKey        string
	SourceSize          int64
	DurationMs          int64
	Width               int
	Height              int
	SampleIntervalMs    int64
	TotalFramesSampled  int
	TotalFramesAnalyzed int
	FramesFailed        int
	Catalog             []PIIFrame
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

func NewVideoJob(sourceKey string, sourceSize int64) *VideoJob {
	now := time.Now().UTC()
	return &VideoJob{
		ID:         uuid.New(),
		Phase:      JobPhaseReceived,
		SourceKey:  sourceKey,
		SourceSize: sourceSize,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// advance enforces the monotonic phase machine: no backward transitions,
// terminal phases never change.
func (j *VideoJob) advance(next JobPhase) bool {
	if next.rank() <= j.Phase.rank() {
		return false
	}
	j.Phase = next
	j.UpdatedAt = time.Now().UTC()
	return true
}

func (j *VideoJob) MarkAnalyzed(catalog []PIIFrame, sampled, analyzed, failed int) bool {
	if !j.advance(JobPhaseAnalyzed) {
		return false
	}
	j.Catalog = catalog
	j.TotalFramesSampled = sampled
	j.TotalFramesAnalyzed = analyzed
	j.FramesFailed = failed
	return true
}

func (j *VideoJob) MarkProtected(processedKey string) bool {
	if !j.advance(JobPhaseProtected) {
		return false
	}
	now := time.Now().UTC()
	j.ProcessedKey = processedKey
	j.CompletedAt = &now
	return true
}

func (j *VideoJob) MarkFailed(errMsg string) bool {
	if !j.advance(JobPhaseFailed) {
		return false
	}
	now := time.Now().UTC()
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	return true
}

// CatalogFrame returns the stored catalog frame with the given id, if any.
func (j *VideoJob) CatalogFrame(id string) (PIIFrame, bool) {
	for _, f := range j.Catalog {
		if f.ID == id {
			return f, true
		}
	}
	return PIIFrame{}, false
}
