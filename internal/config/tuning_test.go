package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shelfsight/shelfsight/internal/tracker"
)

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "disappear_timeout": "5s",
  "update_interval": "20s",
  "quality_threshold": 0.2,
  "movement_threshold_percent": 15,
  "frame_width": 1280,
  "frame_height": 720,
  "position_smoothing_alpha": 0.5,
  "detection_confidence": 0.4
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DisappearTimeout == nil || *cfg.DisappearTimeout != "5s" {
		t.Errorf("Expected DisappearTimeout '5s', got %v", cfg.DisappearTimeout)
	}
	if cfg.UpdateInterval == nil || *cfg.UpdateInterval != "20s" {
		t.Errorf("Expected UpdateInterval '20s', got %v", cfg.UpdateInterval)
	}
	if cfg.QualityThreshold == nil || *cfg.QualityThreshold != 0.2 {
		t.Errorf("Expected QualityThreshold 0.2, got %v", cfg.QualityThreshold)
	}
	if cfg.MovementThresholdPercent == nil || *cfg.MovementThresholdPercent != 15 {
		t.Errorf("Expected MovementThresholdPercent 15, got %v", cfg.MovementThresholdPercent)
	}
	if cfg.FrameWidth == nil || *cfg.FrameWidth != 1280 {
		t.Errorf("Expected FrameWidth 1280, got %v", cfg.FrameWidth)
	}
	if cfg.GetPositionSmoothingAlpha() != 0.5 {
		t.Errorf("GetPositionSmoothingAlpha() = %f, want 0.5", cfg.GetPositionSmoothingAlpha())
	}
	if cfg.GetDetectionConfidence() != 0.4 {
		t.Errorf("GetDetectionConfidence() = %f, want 0.4", cfg.GetDetectionConfidence())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "quality_threshold": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "valid full config",
			cfg: &TuningConfig{
				DisappearTimeout:         ptrString("7s"),
				QualityThreshold:         ptrFloat64(0.15),
				MovementThresholdPercent: ptrFloat64(10),
				SmoothingAlpha:           ptrFloat64(0.3),
			},
			wantErr: false,
		},
		{
			name: "quality threshold too high",
			cfg: &TuningConfig{
				QualityThreshold: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "quality threshold negative",
			cfg: &TuningConfig{
				QualityThreshold: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "movement threshold over 100",
			cfg: &TuningConfig{
				MovementThresholdPercent: ptrFloat64(150),
			},
			wantErr: true,
		},
		{
			name: "smoothing alpha zero",
			cfg: &TuningConfig{
				SmoothingAlpha: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "invalid disappear timeout",
			cfg: &TuningConfig{
				DisappearTimeout: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "negative hold timeout",
			cfg: &TuningConfig{
				HoldTimeout: ptrString("-4s"),
			},
			wantErr: true,
		},
		{
			name: "negative frame width",
			cfg: &TuningConfig{
				FrameWidth: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "empty views list",
			cfg: &TuningConfig{
				Views: &[]int{},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyTracker(t *testing.T) {
	cfg := tracker.DefaultConfig()

	views := []int{0, 180}
	tuning := &TuningConfig{
		Views:                    &views,
		DisappearTimeout:         ptrString("5s"),
		QualityThreshold:         ptrFloat64(0.25),
		MovementThresholdPercent: ptrFloat64(20),
		HoldTimeout:              ptrString("6s"),
	}
	tuning.ApplyTracker(&cfg)

	if len(cfg.Views) != 2 || cfg.Views[0] != 0 || cfg.Views[1] != 180 {
		t.Errorf("Views = %v, want [0 180]", cfg.Views)
	}
	if cfg.DisappearTimeout != 5*time.Second {
		t.Errorf("DisappearTimeout = %v, want 5s", cfg.DisappearTimeout)
	}
	if cfg.QualityThreshold != 0.25 {
		t.Errorf("QualityThreshold = %f, want 0.25", cfg.QualityThreshold)
	}
	if cfg.Movement.ThresholdPercent != 20 {
		t.Errorf("Movement.ThresholdPercent = %f, want 20", cfg.Movement.ThresholdPercent)
	}
	if cfg.Movement.HoldTimeout != 6*time.Second {
		t.Errorf("Movement.HoldTimeout = %v, want 6s", cfg.Movement.HoldTimeout)
	}
}

func TestApplyTrackerPartialKeepsDefaults(t *testing.T) {
	cfg := tracker.DefaultConfig()
	defaults := tracker.DefaultConfig()

	tuning := &TuningConfig{
		UpdateInterval: ptrString("30s"),
	}
	tuning.ApplyTracker(&cfg)

	if cfg.UpdateInterval != 30*time.Second {
		t.Errorf("UpdateInterval = %v, want 30s", cfg.UpdateInterval)
	}
	// Everything else keeps its default.
	if cfg.DisappearTimeout != defaults.DisappearTimeout {
		t.Errorf("DisappearTimeout = %v, want default %v", cfg.DisappearTimeout, defaults.DisappearTimeout)
	}
	if cfg.PersonClass != defaults.PersonClass {
		t.Errorf("PersonClass = %q, want default %q", cfg.PersonClass, defaults.PersonClass)
	}
	if cfg.Movement.ThresholdPercent != defaults.Movement.ThresholdPercent {
		t.Errorf("Movement.ThresholdPercent = %f, want default %f", cfg.Movement.ThresholdPercent, defaults.Movement.ThresholdPercent)
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := &TuningConfig{}

	if cfg.GetPositionSmoothingAlpha() != 0.25 {
		t.Errorf("GetPositionSmoothingAlpha() = %f, want 0.25", cfg.GetPositionSmoothingAlpha())
	}
	if cfg.GetDetectionConfidence() != 0.3 {
		t.Errorf("GetDetectionConfidence() = %f, want 0.3", cfg.GetDetectionConfidence())
	}
	if cfg.GetDetectionTimeout() != 10*time.Second {
		t.Errorf("GetDetectionTimeout() = %v, want 10s", cfg.GetDetectionTimeout())
	}
}

func TestGetDetectionTimeoutInvalidFallsBack(t *testing.T) {
	cfg := &TuningConfig{DetectionTimeout: ptrString("invalid")}
	if cfg.GetDetectionTimeout() != 10*time.Second {
		t.Errorf("GetDetectionTimeout() = %v, want default 10s", cfg.GetDetectionTimeout())
	}
}
