package httpapi

import "github.com/JarudeC/privacylens/internal/domain/entity"

type detectionResponse struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
}

type piiFrameResponse struct {
	ID         string              `json:"id"`
	FrameURI   string              `json:"frameUri"`
	Timestamp  int64               `json:"timestamp"`
	Detections []detectionResponse `json:"detections"`
}

type uploadResponse struct {
	VideoID             string             `json:"videoId"`
	PIIFrames           []piiFrameResponse `json:"piiFrames"`
	TotalFramesAnalyzed int                `json:"totalFramesAnalyzed"`
	ProcessingTime      float64            `json:"processingTime"`
}

type approvedFrame struct {
	ID string `json:"id"`
}

type protectRequest struct {
	VideoID   string          `json:"videoId"`
	PIIFrames []approvedFrame `json:"piiFrames"`
}

type protectResponse struct {
	ProtectedVideoURI string `json:"protectedVideoUri"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toPIIFrameResponses(frames []entity.PIIFrame, frameURLs map[string]string) []piiFrameResponse {
	out := make([]piiFrameResponse, 0, len(frames))
	for _, f := range frames {
		dets := make([]detectionResponse, 0, len(f.Detections))
		for _, d := range f.Detections {
			dets = append(dets, detectionResponse{
				Type:        string(d.Type),
				Confidence:  d.Confidence,
				Description: d.Description,
				Severity:    string(d.Severity),
			})
		}
		out = append(out, piiFrameResponse{
			ID:         f.ID,
			FrameURI:   frameURLs[f.ID],
			Timestamp:  f.TimestampMs,
			Detections: dets,
		})
	}
	return out
}
