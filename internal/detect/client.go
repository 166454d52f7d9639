// Package detect talks to the remote open-vocabulary detection service and
// turns its answers into depth-enriched detections for the tracker. GPU
// inference runs on a separate host; this package hides the round trip.
package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shelfsight/shelfsight/internal/geom"
	"github.com/shelfsight/shelfsight/internal/httputil"
)

// RawDetection is one detection as returned by the inference service, in
// color-frame pixel coordinates.
type RawDetection struct {
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	BBox       geom.BBox `json:"bbox"`
}

// Config holds the detector client settings.
type Config struct {
	// BaseURL is the inference service root, e.g. "http://gpu-box:8763".
	BaseURL string

	// Confidence is the box threshold passed to the model.
	Confidence float64

	// Timeout bounds one inference round trip, image upload included.
	Timeout time.Duration
}

// DefaultConfig returns production-default detector settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:8763",
		Confidence: 0.3,
		Timeout:    10 * time.Second,
	}
}

// Client is the HTTP client for the inference service.
type Client struct {
	cfg  Config
	http httputil.HTTPClient
}

// NewClient creates a detector client. Pass nil to use a standard HTTP
// client with the configured timeout.
func NewClient(cfg Config, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(cfg.Timeout)
	}
	return &Client{cfg: cfg, http: hc}
}

type detectRequest struct {
	Image        string   `json:"image"` // base64-encoded JPEG
	Classes      []string `json:"classes"`
	BoxThreshold float64  `json:"box_threshold"`
}

type detectResponse struct {
	Detections []RawDetection `json:"detections"`
	Error      string         `json:"error,omitempty"`
}

// Detect sends one JPEG frame for inference against the given class
// vocabulary and returns the detections found.
func (c *Client) Detect(ctx context.Context, jpeg []byte, classes []string) ([]RawDetection, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("detect: no classes to look for")
	}

	payload, err := json.Marshal(detectRequest{
		Image:        base64.StdEncoding.EncodeToString(jpeg),
		Classes:      classes,
		BoxThreshold: c.cfg.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("detect: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/detect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("detect: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: inference request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("detect: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect: inference service returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var dr detectResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("detect: failed to parse response: %w", err)
	}
	if dr.Error != "" {
		return nil, fmt.Errorf("detect: inference service error: %s", dr.Error)
	}
	return dr.Detections, nil
}

// Healthy probes the inference service.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
