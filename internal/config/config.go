// Package config holds the detection configuration surface: per-category
// confidence thresholds, ensemble weights, cycle timing, and fallback
// parameters. Configuration is loaded once at startup and may be hot-reloaded
// through a Provider without restarting the pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Thresholds holds the confidence gates for one detection category.
type Thresholds struct {
	MinConfidence  float64 `json:"min_confidence"`  // below this, results are rejected
	HighConfidence float64 `json:"high_confidence"` // at or above this, results are high-confidence
}

// Config is the full detection configuration. All values have documented
// defaults; see Default.
type Config struct {
	Categories        map[string]Thresholds `json:"categories"`
	MinEmitConfidence float64               `json:"min_emit_confidence"` // global floor for event emission

	CycleIntervalMs int     `json:"cycle_interval_ms"` // driver loop period
	CacheTTLMs      int     `json:"cache_ttl_ms"`      // detection cache entry lifetime
	StrategyTimeout int     `json:"strategy_timeout_ms"`
	PotTolerance    float64 `json:"pot_tolerance"` // currency units

	// Similarity threshold for reusing cached results: frames whose mean-hash
	// agreement with the previous frame is at or above this value are
	// considered unchanged.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	FailureThreshold int `json:"failure_threshold"`       // consecutive failures per downgrade
	RecoveryWindowS  int `json:"recovery_window_seconds"` // fallback-to-offline window

	// Per-strategy reliability coefficients used as ensemble vote weights.
	// Strategies absent from the map weigh 0.5.
	StrategyWeights map[string]float64 `json:"strategy_weights"`
	// Fixed tie-break order; earlier entries win ties.
	StrategyPriority []string `json:"strategy_priority"`

	// Surface classification rule table.
	SurfaceHighHints    []string `json:"surface_high_hints"`
	SurfaceMediumHints  []string `json:"surface_medium_hints"`
	SurfaceExcludeHints []string `json:"surface_exclude_hints"`

	// Capture backend selection: "screen" (OS windows) or "browser".
	CaptureBackend string `json:"capture_backend"`
	BrowserURL     string `json:"browser_url,omitempty"`

	// Address for the websocket event broadcast listener; empty disables it.
	BroadcastAddr string `json:"broadcast_addr,omitempty"`

	// OCREnabled gates the tesseract-backed strategies; disable on hosts
	// without a tesseract installation.
	OCREnabled bool `json:"ocr_enabled"`
}

// Category name keys used in the Categories map. These mirror the detection
// categories; config deliberately keys by string so it stays a leaf package.
const (
	KeyCards    = "cards"
	KeyPot      = "pot"
	KeyPlayers  = "players"
	KeyActions  = "actions"
	KeyBlinds   = "blinds"
	KeyDealer   = "dealer"
	KeyTimeouts = "timeouts"
)

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Categories: map[string]Thresholds{
			KeyCards:    {MinConfidence: 0.70, HighConfidence: 0.90},
			KeyPot:      {MinConfidence: 0.65, HighConfidence: 0.85},
			KeyPlayers:  {MinConfidence: 0.60, HighConfidence: 0.85},
			KeyActions:  {MinConfidence: 0.55, HighConfidence: 0.80},
			KeyBlinds:   {MinConfidence: 0.60, HighConfidence: 0.85},
			KeyDealer:   {MinConfidence: 0.60, HighConfidence: 0.85},
			KeyTimeouts: {MinConfidence: 0.50, HighConfidence: 0.75},
		},
		MinEmitConfidence:   0.50,
		CycleIntervalMs:     500,
		CacheTTLMs:          2000,
		StrategyTimeout:     200,
		PotTolerance:        0.01,
		SimilarityThreshold: 0.92,
		FailureThreshold:    3,
		RecoveryWindowS:     60,
		StrategyWeights: map[string]float64{
			"card-ocr":        0.60,
			"card-signature":  0.50,
			"card-pip":        0.40,
			"amount-ocr":      0.60,
			"amount-digits":   0.40,
			"player-ocr":      0.55,
			"seat-occupancy":  0.45,
			"action-color":    0.50,
			"action-ocr":      0.50,
			"blinds-ocr":      0.55,
			"blinds-title":    0.45,
			"button-color":    0.55,
			"button-shape":    0.45,
			"timer-bar":       0.50,
			"timer-ocr":       0.45,
		},
		StrategyPriority: []string{
			"card-ocr", "amount-ocr", "player-ocr", "blinds-ocr", "action-ocr",
			"timer-ocr", "card-signature", "button-color", "action-color",
			"timer-bar", "card-pip", "seat-occupancy", "amount-digits",
			"blinds-title", "button-shape",
		},
		SurfaceHighHints:    []string{"table", "hold'em", "holdem", "omaha", "no limit", "nl "},
		SurfaceMediumHints:  []string{"poker", "lobby"},
		SurfaceExcludeHints: []string{"notes", "settings", "preferences", "update", "installer"},
		CaptureBackend:      "screen",
		OCREnabled:          true,
	}
}

// ShouldEmit reports whether a result at the given confidence clears both the
// category minimum and the global emission floor.
func (c *Config) ShouldEmit(confidence float64, category string) bool {
	min := c.MinEmitConfidence
	if t, ok := c.Categories[category]; ok && t.MinConfidence > min {
		min = t.MinConfidence
	}
	return confidence >= min
}

// IsHighConfidence reports whether the confidence clears the category's
// high-confidence threshold.
func (c *Config) IsHighConfidence(confidence float64, category string) bool {
	t, ok := c.Categories[category]
	if !ok {
		return false
	}
	return confidence >= t.HighConfidence
}

// Weight returns the reliability coefficient for a strategy name.
func (c *Config) Weight(strategy string) float64 {
	if w, ok := c.StrategyWeights[strategy]; ok {
		return w
	}
	return 0.5
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MinEmitConfidence < 0 || c.MinEmitConfidence > 1 {
		return fmt.Errorf("min_emit_confidence must be in [0,1], got %v", c.MinEmitConfidence)
	}
	for name, t := range c.Categories {
		if t.MinConfidence < 0 || t.MinConfidence > 1 {
			return fmt.Errorf("category %s: min_confidence must be in [0,1], got %v", name, t.MinConfidence)
		}
		if t.HighConfidence < t.MinConfidence || t.HighConfidence > 1 {
			return fmt.Errorf("category %s: high_confidence must be in [min_confidence,1], got %v", name, t.HighConfidence)
		}
	}
	if c.CycleIntervalMs < 50 || c.CycleIntervalMs > 60000 {
		return fmt.Errorf("cycle_interval_ms must be between 50 and 60000, got %d", c.CycleIntervalMs)
	}
	if c.CacheTTLMs < 0 {
		return fmt.Errorf("cache_ttl_ms must be non-negative, got %d", c.CacheTTLMs)
	}
	if c.StrategyTimeout < 10 {
		return fmt.Errorf("strategy_timeout_ms must be at least 10, got %d", c.StrategyTimeout)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.SimilarityThreshold)
	}
	if c.FailureThreshold < 1 || c.FailureThreshold > 10 {
		return fmt.Errorf("failure_threshold must be between 1 and 10, got %d", c.FailureThreshold)
	}
	if c.RecoveryWindowS < 1 {
		return fmt.Errorf("recovery_window_seconds must be at least 1, got %d", c.RecoveryWindowS)
	}
	if c.PotTolerance < 0 {
		return fmt.Errorf("pot_tolerance must be non-negative, got %v", c.PotTolerance)
	}
	for s, w := range c.StrategyWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("strategy %s: weight must be in [0,1], got %v", s, w)
		}
	}
	switch c.CaptureBackend {
	case "screen", "browser", "":
	default:
		return fmt.Errorf("capture_backend must be \"screen\" or \"browser\", got %q", c.CaptureBackend)
	}
	if c.CaptureBackend == "browser" && c.BrowserURL == "" {
		return fmt.Errorf("browser_url is required when capture_backend is \"browser\"")
	}
	return nil
}

// DefaultPath returns the user configuration file location.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "tablewatch", "detection.json")
}

// Load reads configuration from path. A missing file yields the defaults
// (and the caller may Save them to seed the file).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start from defaults so absent keys keep their documented values.
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
