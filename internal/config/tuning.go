package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shelfsight/shelfsight/internal/tracker"
)

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/tracker/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
// All fields are optional; durations are strings like "7s" or "500ms".
type TuningConfig struct {
	// Identity tracking params
	Views            *[]int   `json:"views,omitempty"`
	DisappearTimeout *string  `json:"disappear_timeout,omitempty"` // duration string like "7s"
	UpdateInterval   *string  `json:"update_interval,omitempty"`   // duration string like "10s"
	QualityThreshold *float64 `json:"quality_threshold,omitempty"`
	PersonClass      *string  `json:"person_class,omitempty"`

	// Movement params
	MovementThresholdPercent *float64 `json:"movement_threshold_percent,omitempty"`
	FrameWidth               *int     `json:"frame_width,omitempty"`
	FrameHeight              *int     `json:"frame_height,omitempty"`
	ReturnHysteresis         *float64 `json:"return_hysteresis,omitempty"`
	SmoothingAlpha           *float64 `json:"smoothing_alpha,omitempty"`
	Stabilization            *string  `json:"stabilization,omitempty"`
	HoldTimeout              *string  `json:"hold_timeout,omitempty"`
	ReturnCooldown           *string  `json:"return_cooldown,omitempty"`
	PersonMinDwell           *string  `json:"person_min_dwell,omitempty"`

	// Storage params
	PositionSmoothingAlpha *float64 `json:"position_smoothing_alpha,omitempty"`

	// Detector params
	DetectionConfidence *float64 `json:"detection_confidence,omitempty"`
	DetectionTimeout    *string  `json:"detection_timeout,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.QualityThreshold != nil {
		if *c.QualityThreshold < 0 || *c.QualityThreshold > 1 {
			return fmt.Errorf("quality_threshold must be between 0 and 1, got %f", *c.QualityThreshold)
		}
	}

	if c.MovementThresholdPercent != nil {
		if *c.MovementThresholdPercent < 0 || *c.MovementThresholdPercent > 100 {
			return fmt.Errorf("movement_threshold_percent must be between 0 and 100, got %f", *c.MovementThresholdPercent)
		}
	}

	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
		}
	}

	if c.PositionSmoothingAlpha != nil {
		if *c.PositionSmoothingAlpha <= 0 || *c.PositionSmoothingAlpha > 1 {
			return fmt.Errorf("position_smoothing_alpha must be in (0, 1], got %f", *c.PositionSmoothingAlpha)
		}
	}

	if c.DetectionConfidence != nil {
		if *c.DetectionConfidence < 0 || *c.DetectionConfidence > 1 {
			return fmt.Errorf("detection_confidence must be between 0 and 1, got %f", *c.DetectionConfidence)
		}
	}

	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}

	if c.Views != nil && len(*c.Views) == 0 {
		return fmt.Errorf("views must not be empty when set")
	}

	durations := map[string]*string{
		"disappear_timeout": c.DisappearTimeout,
		"update_interval":   c.UpdateInterval,
		"stabilization":     c.Stabilization,
		"hold_timeout":      c.HoldTimeout,
		"return_cooldown":   c.ReturnCooldown,
		"person_min_dwell":  c.PersonMinDwell,
		"detection_timeout": c.DetectionTimeout,
	}
	for name, val := range durations {
		if val == nil || *val == "" {
			continue
		}
		d, err := time.ParseDuration(*val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *val, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	return nil
}

// ApplyTracker overlays the set fields onto a tracker configuration.
// Unset fields leave the existing values untouched.
func (c *TuningConfig) ApplyTracker(cfg *tracker.Config) {
	if c.Views != nil {
		cfg.Views = append([]int(nil), (*c.Views)...)
	}
	applyDuration(&cfg.DisappearTimeout, c.DisappearTimeout)
	applyDuration(&cfg.UpdateInterval, c.UpdateInterval)
	if c.QualityThreshold != nil {
		cfg.QualityThreshold = *c.QualityThreshold
	}
	if c.PersonClass != nil {
		cfg.PersonClass = *c.PersonClass
	}

	m := &cfg.Movement
	if c.MovementThresholdPercent != nil {
		m.ThresholdPercent = *c.MovementThresholdPercent
	}
	if c.FrameWidth != nil {
		m.FrameWidth = *c.FrameWidth
	}
	if c.FrameHeight != nil {
		m.FrameHeight = *c.FrameHeight
	}
	if c.ReturnHysteresis != nil {
		m.ReturnHysteresis = *c.ReturnHysteresis
	}
	if c.SmoothingAlpha != nil {
		m.SmoothingAlpha = *c.SmoothingAlpha
	}
	applyDuration(&m.Stabilization, c.Stabilization)
	applyDuration(&m.HoldTimeout, c.HoldTimeout)
	applyDuration(&m.ReturnCooldown, c.ReturnCooldown)
	applyDuration(&m.PersonMinDwell, c.PersonMinDwell)
}

// GetPositionSmoothingAlpha returns the position_smoothing_alpha value or the default.
func (c *TuningConfig) GetPositionSmoothingAlpha() float64 {
	if c.PositionSmoothingAlpha == nil {
		return 0.25 // default
	}
	return *c.PositionSmoothingAlpha
}

// GetDetectionConfidence returns the detection_confidence value or the default.
func (c *TuningConfig) GetDetectionConfidence() float64 {
	if c.DetectionConfidence == nil {
		return 0.3 // default
	}
	return *c.DetectionConfidence
}

// GetDetectionTimeout parses and returns the DetectionTimeout as a time.Duration.
func (c *TuningConfig) GetDetectionTimeout() time.Duration {
	if c.DetectionTimeout == nil || *c.DetectionTimeout == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.DetectionTimeout)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// applyDuration parses and assigns a duration string, keeping the existing
// value when the field is unset. Validate has already rejected bad strings.
func applyDuration(dst *time.Duration, src *string) {
	if src == nil || *src == "" {
		return
	}
	if d, err := time.ParseDuration(*src); err == nil {
		*dst = d
	}
}
