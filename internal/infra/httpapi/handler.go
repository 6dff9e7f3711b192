package httpapi

import (
	"context"
	"io"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JarudeC/privacylens/internal/domain/errs"
	"github.com/JarudeC/privacylens/internal/usecase"
)

// Analyzer runs the upload-and-analyze pipeline.
type Analyzer interface {
	Execute(ctx context.Context, upload io.Reader, size int64, contentType, filename string) (*usecase.AnalyzeResult, error)
}

// Protector renders the protected artifact for an approved frame set.
type Protector interface {
	Execute(ctx context.Context, videoID uuid.UUID, approvedIDs []string) (string, error)
}

type VideoHandler struct {
	analyzer  Analyzer
	protector Protector
	logger    *zap.Logger
}

func NewVideoHandler(analyzer Analyzer, protector Protector, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{analyzer: analyzer, protector: protector, logger: logger}
}

// Upload handles POST /api/v1/video/upload. The multipart field name is
// "video"; the response carries the complete PII catalog so the client
// can review and approve frames in one round trip.
func (h *VideoHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		return errs.New(errs.CodeInvalidRequest, "multipart field 'video' is required")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		return errs.New(errs.CodeInvalidRequest,
			"unsupported content type %q, expected video/*", contentType)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errs.Wrap(errs.CodeInvalidRequest, err, "cannot read uploaded file")
	}
	defer file.Close()

	result, err := h.analyzer.Execute(c.UserContext(), file, fileHeader.Size, contentType, fileHeader.Filename)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(uploadResponse{
		VideoID:             result.Job.ID.String(),
		PIIFrames:           toPIIFrameResponses(result.Job.Catalog, result.FrameURLs),
		TotalFramesAnalyzed: result.Job.TotalFramesAnalyzed,
		ProcessingTime:      math.Round(result.Elapsed.Seconds()*100) / 100,
	})
}

// Protect handles POST /api/v1/video/protect. Only frame ids previously
// issued by this video's analysis are accepted; the server never takes
// coordinates from the client.
func (h *VideoHandler) Protect(c *fiber.Ctx) error {
	var req protectRequest
	if err := c.BodyParser(&req); err != nil {
		return errs.Wrap(errs.CodeInvalidRequest, err, "malformed request body")
	}

	videoID, err := uuid.Parse(req.VideoID)
	if err != nil {
		return errs.New(errs.CodeInvalidRequest, "videoId %q is not a valid id", req.VideoID)
	}

	ids := make([]string, 0, len(req.PIIFrames))
	for _, f := range req.PIIFrames {
		if f.ID == "" {
			return errs.New(errs.CodeInvalidRequest, "piiFrames entries must carry an id")
		}
		ids = append(ids, f.ID)
	}

	uri, err := h.protector.Execute(c.UserContext(), videoID, ids)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(protectResponse{ProtectedVideoURI: uri})
}

func (h *VideoHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
}
