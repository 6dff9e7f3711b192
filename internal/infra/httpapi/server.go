package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/JarudeC/privacylens/internal/domain/errs"
)

// NewApp builds the client-facing API. maxUploadSize also caps the
// multipart body, so oversized uploads are rejected before any decoding
// work happens.
func NewApp(handler *VideoHandler, maxUploadSize int64, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "privacylens-api",
		BodyLimit:    int(maxUploadSize),
		ErrorHandler: errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())

	app.Get("/health", handler.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/video/upload", handler.Upload)
	v1.Post("/video/protect", handler.Protect)

	return app
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, ok := errs.CodeOf(err)
		if !ok {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) && fiberErr.Code == fiber.StatusRequestEntityTooLarge {
				code = errs.CodeOversizedUpload
				ok = true
			}
		}
		if !ok {
			logger.Error("unhandled request error",
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
				Code:    "INTERNAL",
				Message: "internal server error",
			})
		}

		status := statusFor(code)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("code", string(code)),
				zap.Error(err),
			)
		} else {
			logger.Warn("request rejected",
				zap.String("path", c.Path()),
				zap.String("code", string(code)),
				zap.Error(err),
			)
		}

		return c.Status(status).JSON(errorResponse{
			Code:    string(code),
			Message: messageOf(err),
		})
	}
}

func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeInvalidRequest:
		return fiber.StatusBadRequest
	case errs.CodeJobNotFound:
		return fiber.StatusNotFound
	case errs.CodeOversizedUpload:
		return fiber.StatusRequestEntityTooLarge
	case errs.CodeUnsupportedCodec:
		return fiber.StatusUnsupportedMediaType
	case errs.CodeCorruptContainer, errs.CodeUnknownFrameReference:
		return fiber.StatusUnprocessableEntity
	case errs.CodeDetectorUnavailable:
		return fiber.StatusServiceUnavailable
	case errs.CodeStorageFailure:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// messageOf returns the taxonomy message without the wrapped cause chain,
// which may carry internal paths or connection strings.
func messageOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "request could not be processed"
}
