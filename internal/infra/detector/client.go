// Package detector talks to the external inference service. The model is
// a black box: one frame image in, labeled boxes out.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/port"
)

type Client struct {
	inferenceURL string
	httpClient   *http.Client
}

func NewClient(inferenceURL string, timeout time.Duration) *Client {
	return &Client{
		inferenceURL: inferenceURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type wireDetection struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Box        struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"box"`
}

// Detect posts one frame image and returns the raw detections. Errors are
// per-frame: the caller decides whether the job survives them.
func (c *Client) Detect(ctx context.Context, framePath string) ([]port.RawDetection, error) {
	file, err := os.Open(framePath)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(framePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.inferenceURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status %d", resp.StatusCode)
	}

	var result struct {
		Detections []wireDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	detections := make([]port.RawDetection, 0, len(result.Detections))
	for _, d := range result.Detections {
		detections = append(detections, port.RawDetection{
			Type:       entity.DetectionType(d.Type),
			Confidence: d.Confidence,
			Box: entity.BoundingBox{
				X: d.Box.X, Y: d.Box.Y, W: d.Box.W, H: d.Box.H,
			},
		})
	}
	return detections, nil
}

// Healthy probes the inference service's health endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.inferenceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
