package entity

import "github.com/google/uuid"

// JobEvent is the lifecycle message published to the events exchange when
// a job reaches ANALYZED, PROTECTED or FAILED. It is an operational
// stream for downstream consumers, not part of the client contract.
type JobEvent struct {
	VideoID             uuid.UUID `json:"video_id"`
	Phase               JobPhase  `json:"phase"`
	TotalFramesAnalyzed int       `json:"total_frames_analyzed,omitempty"`
	FramesFailed        int       `json:"frames_failed,omitempty"`
	FlaggedFrames       int       `json:"flagged_frames,omitempty"`
	ProcessedKey        string    `json:"processed_key,omitempty"`
	ErrorMessage        string    `json:"error_message,omitempty"`
}
