package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Default tuning values, used for any field not present in the config file.
const (
	DefaultCSMultiplier         = 2.0
	DefaultDataMultiplier       = 2.0
	DefaultClassificationWindow = 8
	DefaultAnomalyWindowHours   = 12
	DefaultMinAnomalies         = 3
	DefaultHalfBeamwidthDeg     = 60.0
	DefaultMaxDistanceKm        = 5.0
)

// TuningConfig represents the tunable parameters of the detection pipeline.
// The schema matches the /api/config endpoint and the JSON body accepted by
// POST /api/analysis, so the same JSON can be used for startup
// configuration and per-run overrides. All fields are optional; omitted
// fields fall back to the defaults via the Get* methods, so partial
// configs are safe.
type TuningConfig struct {
	// Classifier params
	CSMultiplier         *float64 `json:"cs_multiplier,omitempty"`
	DataMultiplier       *float64 `json:"data_multiplier,omitempty"`
	ClassificationWindow *int     `json:"classification_window,omitempty"`

	// Sustained-anomaly params
	AnomalyWindowHours *int `json:"anomaly_window,omitempty"`
	MinAnomalies       *int `json:"min_anomalies,omitempty"`

	// Neighbor resolution params
	HalfBeamwidthDeg *float64 `json:"half_beamwidth,omitempty"`
	// DefaultMaxDistanceKm applies to geometry rows loaded without a
	// per-province max distance.
	DefaultMaxDistanceKm *float64 `json:"default_max_distance_km,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size. Fields omitted from the JSON retain their defaults.
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
	if c.CSMultiplier != nil && *c.CSMultiplier <= 0 {
		return fmt.Errorf("cs_multiplier must be positive, got %f", *c.CSMultiplier)
	}
	if c.DataMultiplier != nil && *c.DataMultiplier <= 0 {
		return fmt.Errorf("data_multiplier must be positive, got %f", *c.DataMultiplier)
	}
	if c.ClassificationWindow != nil && *c.ClassificationWindow < 1 {
		return fmt.Errorf("classification_window must be >= 1, got %d", *c.ClassificationWindow)
	}
	if c.AnomalyWindowHours != nil && *c.AnomalyWindowHours < 1 {
		return fmt.Errorf("anomaly_window must be >= 1, got %d", *c.AnomalyWindowHours)
	}
	if c.MinAnomalies != nil && *c.MinAnomalies < 1 {
		return fmt.Errorf("min_anomalies must be >= 1, got %d", *c.MinAnomalies)
	}
	if c.HalfBeamwidthDeg != nil {
		if *c.HalfBeamwidthDeg <= 0 || *c.HalfBeamwidthDeg > 180 {
			return fmt.Errorf("half_beamwidth must be in (0,180], got %f", *c.HalfBeamwidthDeg)
		}
	}
	if c.DefaultMaxDistanceKm != nil && *c.DefaultMaxDistanceKm <= 0 {
		return fmt.Errorf("default_max_distance_km must be positive, got %f", *c.DefaultMaxDistanceKm)
	}
	return nil
}

// GetCSMultiplier returns the cs_multiplier value or the default.
func (c *TuningConfig) GetCSMultiplier() float64 {
	if c.CSMultiplier == nil {
		return DefaultCSMultiplier
	}
	return *c.CSMultiplier
}

// GetDataMultiplier returns the data_multiplier value or the default.
func (c *TuningConfig) GetDataMultiplier() float64 {
	if c.DataMultiplier == nil {
		return DefaultDataMultiplier
	}
	return *c.DataMultiplier
}

// GetClassificationWindow returns the classification_window value or the default.
func (c *TuningConfig) GetClassificationWindow() int {
	if c.ClassificationWindow == nil {
		return DefaultClassificationWindow
	}
	return *c.ClassificationWindow
}

// GetAnomalyWindowHours returns the anomaly_window value or the default.
func (c *TuningConfig) GetAnomalyWindowHours() int {
	if c.AnomalyWindowHours == nil {
		return DefaultAnomalyWindowHours
	}
	return *c.AnomalyWindowHours
}

// GetMinAnomalies returns the min_anomalies value or the default.
func (c *TuningConfig) GetMinAnomalies() int {
	if c.MinAnomalies == nil {
		return DefaultMinAnomalies
	}
	return *c.MinAnomalies
}

// GetHalfBeamwidthDeg returns the half_beamwidth value or the default.
func (c *TuningConfig) GetHalfBeamwidthDeg() float64 {
	if c.HalfBeamwidthDeg == nil {
		return DefaultHalfBeamwidthDeg
	}
	return *c.HalfBeamwidthDeg
}

// GetDefaultMaxDistanceKm returns the default_max_distance_km value or the default.
func (c *TuningConfig) GetDefaultMaxDistanceKm() float64 {
	if c.DefaultMaxDistanceKm == nil {
		return DefaultMaxDistanceKm
	}
	return *c.DefaultMaxDistanceKm
}

// Merge returns a copy of c with any non-nil fields of override applied on
// top. Used for per-run parameter overrides on the analysis endpoint.
func (c *TuningConfig) Merge(override *TuningConfig) *TuningConfig {
	merged := *c
	if override == nil {
		return &merged
	}
	if override.CSMultiplier != nil {
		merged.CSMultiplier = override.CSMultiplier
	}
	if override.DataMultiplier != nil {
		merged.DataMultiplier = override.DataMultiplier
	}
	if override.ClassificationWindow != nil {
		merged.ClassificationWindow = override.ClassificationWindow
	}
	if override.AnomalyWindowHours != nil {
		merged.AnomalyWindowHours = override.AnomalyWindowHours
	}
	if override.MinAnomalies != nil {
		merged.MinAnomalies = override.MinAnomalies
	}
	if override.HalfBeamwidthDeg != nil {
		merged.HalfBeamwidthDeg = override.HalfBeamwidthDeg
	}
	if override.DefaultMaxDistanceKm != nil {
		merged.DefaultMaxDistanceKm = override.DefaultMaxDistanceKm
	}
	return &merged
}
