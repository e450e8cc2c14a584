package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Gaze pipeline params
	SmoothWindow      *int     `json:"smooth_window,omitempty"`
	MarginFraction    *float64 `json:"margin_fraction,omitempty"`
	UseIrisPolicy     *bool    `json:"use_iris_policy,omitempty"`
	IrisGain          *float64 `json:"iris_gain,omitempty"`
	CursorMoveDivisor *int     `json:"cursor_move_divisor,omitempty"`
	TraceBufferLen    *int     `json:"trace_buffer_len,omitempty"`

	// Blink params
	BlinkMinClosedFrames  *int     `json:"blink_min_closed_frames,omitempty"`
	BlinkBaselineSamples  *int     `json:"blink_baseline_samples,omitempty"`
	BlinkThresholdScale   *float64 `json:"blink_threshold_scale,omitempty"`
	BlinkInitialThreshold *float64 `json:"blink_initial_threshold,omitempty"`

	// Click arbitration params
	ClickCooldown    *string  `json:"click_cooldown,omitempty"` // duration string like "1s"
	SafeTopMarginPx  *float64 `json:"safe_top_margin_px,omitempty"`
	SafeSideMarginPx *float64 `json:"safe_side_margin_px,omitempty"`

	// Calibration params (optional)
	SamplesPerPoint *int `json:"samples_per_point,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/gaze/ sub-tests
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Validate MarginFraction if set
	if c.MarginFraction != nil {
		if *c.MarginFraction < 0 || *c.MarginFraction >= 0.5 {
			return fmt.Errorf("margin_fraction must be in [0, 0.5), got %f", *c.MarginFraction)
		}
	}

	// Validate ClickCooldown can be parsed if set
	if c.ClickCooldown != nil && *c.ClickCooldown != "" {
		if _, err := time.ParseDuration(*c.ClickCooldown); err != nil {
			return fmt.Errorf("invalid click_cooldown '%s': %w", *c.ClickCooldown, err)
		}
	}

	// Validate SmoothWindow if set
	if c.SmoothWindow != nil {
		if *c.SmoothWindow < 1 {
			return fmt.Errorf("smooth_window must be at least 1, got %d", *c.SmoothWindow)
		}
	}

	// Validate BlinkThresholdScale if set
	if c.BlinkThresholdScale != nil {
		if *c.BlinkThresholdScale <= 0 || *c.BlinkThresholdScale >= 1 {
			return fmt.Errorf("blink_threshold_scale must be between 0 and 1, got %f", *c.BlinkThresholdScale)
		}
	}

	// Validate BlinkMinClosedFrames if set
	if c.BlinkMinClosedFrames != nil {
		if *c.BlinkMinClosedFrames < 1 {
			return fmt.Errorf("blink_min_closed_frames must be at least 1, got %d", *c.BlinkMinClosedFrames)
		}
	}

	// Validate SamplesPerPoint if set
	if c.SamplesPerPoint != nil {
		if *c.SamplesPerPoint < 1 {
			return fmt.Errorf("samples_per_point must be at least 1, got %d", *c.SamplesPerPoint)
		}
	}

	return nil
}

// GetClickCooldown parses and returns the ClickCooldown as a time.Duration.
func (c *TuningConfig) GetClickCooldown() time.Duration {
	if c.ClickCooldown == nil || *c.ClickCooldown == "" {
		return 1 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ClickCooldown)
	if err != nil {
		return 1 * time.Second // default on parse error
	}
	return d
}

// GetSmoothWindow returns the smooth_window value or the default.
func (c *TuningConfig) GetSmoothWindow() int {
	if c.SmoothWindow == nil {
		return 5 // default
	}
	return *c.SmoothWindow
}

// GetMarginFraction returns the margin_fraction value or the default.
func (c *TuningConfig) GetMarginFraction() float64 {
	if c.MarginFraction == nil {
		return 0.2 // default
	}
	return *c.MarginFraction
}

// GetUseIrisPolicy returns the use_iris_policy value or the default.
func (c *TuningConfig) GetUseIrisPolicy() bool {
	if c.UseIrisPolicy == nil {
		return false // default: plain linear-margin fallback
	}
	return *c.UseIrisPolicy
}

// GetIrisGain returns the iris_gain value or the default.
func (c *TuningConfig) GetIrisGain() float64 {
	if c.IrisGain == nil {
		return 0.5
	}
	return *c.IrisGain
}

// GetCursorMoveDivisor returns the cursor_move_divisor value or the default.
func (c *TuningConfig) GetCursorMoveDivisor() int {
	if c.CursorMoveDivisor == nil {
		return 2
	}
	return *c.CursorMoveDivisor
}

// GetTraceBufferLen returns the trace_buffer_len value or the default.
func (c *TuningConfig) GetTraceBufferLen() int {
	if c.TraceBufferLen == nil {
		return 600
	}
	return *c.TraceBufferLen
}

// GetBlinkMinClosedFrames returns the blink_min_closed_frames value or the default.
func (c *TuningConfig) GetBlinkMinClosedFrames() int {
	if c.BlinkMinClosedFrames == nil {
		return 3
	}
	return *c.BlinkMinClosedFrames
}

// GetBlinkBaselineSamples returns the blink_baseline_samples value or the default.
func (c *TuningConfig) GetBlinkBaselineSamples() int {
	if c.BlinkBaselineSamples == nil {
		return 30
	}
	return *c.BlinkBaselineSamples
}

// GetBlinkThresholdScale returns the blink_threshold_scale value or the default.
func (c *TuningConfig) GetBlinkThresholdScale() float64 {
	if c.BlinkThresholdScale == nil {
		return 0.6
	}
	return *c.BlinkThresholdScale
}

// GetBlinkInitialThreshold returns the blink_initial_threshold value or the default.
func (c *TuningConfig) GetBlinkInitialThreshold() float64 {
	if c.BlinkInitialThreshold == nil {
		return 0.15
	}
	return *c.BlinkInitialThreshold
}

// GetSafeTopMarginPx returns the safe_top_margin_px value or the default.
func (c *TuningConfig) GetSafeTopMarginPx() float64 {
	if c.SafeTopMarginPx == nil {
		return 50.0
	}
	return *c.SafeTopMarginPx
}

// GetSafeSideMarginPx returns the safe_side_margin_px value or the default.
func (c *TuningConfig) GetSafeSideMarginPx() float64 {
	if c.SafeSideMarginPx == nil {
		return 50.0
	}
	return *c.SafeSideMarginPx
}

// GetSamplesPerPoint returns the samples_per_point value or the default.
func (c *TuningConfig) GetSamplesPerPoint() int {
	if c.SamplesPerPoint == nil {
		return 3
	}
	return *c.SamplesPerPoint
}
