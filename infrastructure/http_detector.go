package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/visionpipe/video-detection-service/domain"
)

// HTTPDetector talks to the detection sidecar. The model identity and
// confidence threshold are fixed at construction; candidates below the
// threshold are dropped before results leave the adapter, so no
// sub-threshold detection can ever reach the state store.
type HTTPDetector struct {
	endpoint  string
	model     string
	threshold float64
	client    *http.Client
}

func NewHTTPDetector(endpoint, model string, threshold float64) *HTTPDetector {
	return &HTTPDetector{
		endpoint:  endpoint,
		model:     model,
		threshold: threshold,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type detectionResponse struct {
	Detections []struct {
		Class      string    `json:"class"`
		Confidence float64   `json:"confidence"`
		BBox       []float64 `json:"bbox"` // [x, y, width, height] in pixels
	} `json:"detections"`
}

func (d *HTTPDetector) Detect(ctx context.Context, frameJPEG []byte) ([]domain.DetectionCandidate, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if _, err := part.Write(frameJPEG); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if err := w.WriteField("model", d.model); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &buf)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call detector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned %d: %s", resp.StatusCode, body)
	}

	var result detectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}

	candidates := make([]domain.DetectionCandidate, 0, len(result.Detections))
	for _, det := range result.Detections {
		if det.Confidence < d.threshold {
			continue
		}
		if len(det.BBox) != 4 {
			return nil, fmt.Errorf("detector returned malformed bbox for %q", det.Class)
		}
		candidates = append(candidates, domain.DetectionCandidate{
			Label:      det.Class,
			Confidence: det.Confidence,
			Box: domain.BoundingBox{
				X:      det.BBox[0],
				Y:      det.BBox[1],
				Width:  det.BBox[2],
				Height: det.BBox[3],
			},
		})
	}
	return candidates, nil
}
