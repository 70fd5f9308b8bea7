package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxDetectorResponseBytes = 1 << 20

// HTTPDetector posts a PNG to a detection service and reads back
// {"faces":[{"x":..,"y":..,"w":..,"h":..,"score":..}]} in normalised
// coordinates.
type HTTPDetector struct {
	url   string
	token string
	http  *http.Client
}

func NewHTTPDetector(url, token string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDetector{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	body, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detector: request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector: call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Faces []Detection `json:"faces"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDetectorResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("detector: decode: %w", err)
	}
	dets := make([]Detection, 0, len(out.Faces))
	for _, f := range out.Faces {
		f.BoundingBox = f.BoundingBox.Clamp()
		if f.Empty() {
			continue
		}
		dets = append(dets, f)
	}
	return dets, nil
}
