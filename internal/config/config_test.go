package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tiroq/tablewatch/testutil"
)

func TestDefaultValidates(t *testing.T) {
	testutil.AssertNoError(t, Default().Validate(), "defaults must be valid")
}

func TestShouldEmit(t *testing.T) {
	cfg := Default()

	cases := []struct {
		category   string
		confidence float64
		want       bool
	}{
		{KeyCards, 0.70, true},
		{KeyCards, 0.69, false},
		{KeyPot, 0.65, true},
		{KeyPot, 0.64, false},
		// Unknown categories fall back to the global floor.
		{"unknown", 0.50, true},
		{"unknown", 0.49, false},
	}
	for _, c := range cases {
		got := cfg.ShouldEmit(c.confidence, c.category)
		if got != c.want {
			t.Errorf("ShouldEmit(%v, %s) = %v, want %v", c.confidence, c.category, got, c.want)
		}
	}
}

func TestGlobalFloorDominatesLowCategoryMin(t *testing.T) {
	cfg := Default()
	cfg.Categories["loose"] = Thresholds{MinConfidence: 0.10, HighConfidence: 0.50}

	testutil.AssertFalse(t, cfg.ShouldEmit(0.30, "loose"), "global floor still applies")
	testutil.AssertTrue(t, cfg.ShouldEmit(0.55, "loose"), "above both gates")
}

func TestIsHighConfidence(t *testing.T) {
	cfg := Default()
	testutil.AssertTrue(t, cfg.IsHighConfidence(0.90, KeyCards), "at threshold")
	testutil.AssertFalse(t, cfg.IsHighConfidence(0.89, KeyCards), "below threshold")
	testutil.AssertFalse(t, cfg.IsHighConfidence(0.99, "unknown"), "unknown category")
}

func TestWeightDefaults(t *testing.T) {
	cfg := Default()
	testutil.AssertEqual(t, 0.60, cfg.Weight("card-ocr"), "configured weight")
	testutil.AssertEqual(t, 0.5, cfg.Weight("never-heard-of-it"), "unknown strategy default")
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"emit floor above one", func(c *Config) { c.MinEmitConfidence = 1.5 }},
		{"negative category min", func(c *Config) { c.Categories[KeyPot] = Thresholds{MinConfidence: -0.1, HighConfidence: 0.5} }},
		{"high below min", func(c *Config) { c.Categories[KeyPot] = Thresholds{MinConfidence: 0.8, HighConfidence: 0.5} }},
		{"interval too short", func(c *Config) { c.CycleIntervalMs = 10 }},
		{"negative ttl", func(c *Config) { c.CacheTTLMs = -1 }},
		{"strategy timeout too short", func(c *Config) { c.StrategyTimeout = 5 }},
		{"similarity above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"zero failure threshold", func(c *Config) { c.FailureThreshold = 0 }},
		{"zero recovery window", func(c *Config) { c.RecoveryWindowS = 0 }},
		{"weight above one", func(c *Config) { c.StrategyWeights["card-ocr"] = 1.2 }},
		{"unknown backend", func(c *Config) { c.CaptureBackend = "projector" }},
		{"browser without url", func(c *Config) { c.CaptureBackend = "browser"; c.BrowserURL = "" }},
	}
	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			cfg := Default()
			m.mutate(cfg)
			testutil.AssertError(t, cfg.Validate(), "expected validation failure")
		})
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	testutil.AssertNoError(t, err, "missing file is not an error")
	testutil.AssertEqual(t, 500, cfg.CycleIntervalMs, "defaults returned")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detection.json")
	err := os.WriteFile(path, []byte(`{"cycle_interval_ms": 250}`), 0644)
	testutil.AssertNoError(t, err, "write partial config")

	cfg, err := Load(path)
	testutil.AssertNoError(t, err, "load")
	testutil.AssertEqual(t, 250, cfg.CycleIntervalMs, "overridden value")
	testutil.AssertEqual(t, 2000, cfg.CacheTTLMs, "absent key keeps default")
	testutil.AssertEqual(t, 0.70, cfg.Categories[KeyCards].MinConfidence, "category defaults intact")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	testutil.AssertNoError(t, os.WriteFile(bad, []byte(`{"cycle_interval_ms": 1}`), 0644), "write")
	_, err := Load(bad)
	testutil.AssertError(t, err, "out-of-range value rejected")

	garbage := filepath.Join(dir, "garbage.json")
	testutil.AssertNoError(t, os.WriteFile(garbage, []byte(`{{{`), 0644), "write")
	_, err = Load(garbage)
	testutil.AssertError(t, err, "malformed JSON rejected")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "detection.json")

	cfg := Default()
	cfg.CycleIntervalMs = 750
	cfg.SurfaceHighHints = append(cfg.SurfaceHighHints, "sit & go")
	testutil.AssertNoError(t, Save(path, cfg), "save creates directories")

	loaded, err := Load(path)
	testutil.AssertNoError(t, err, "load")
	testutil.AssertEqual(t, 750, loaded.CycleIntervalMs, "value survived")
	testutil.AssertEqual(t, len(cfg.SurfaceHighHints), len(loaded.SurfaceHighHints), "hints survived")
}

func TestProviderSwapAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detection.json")
	testutil.AssertNoError(t, Save(path, Default()), "seed file")

	p := NewProvider(Default())
	testutil.AssertEqual(t, 500, p.Get().CycleIntervalMs, "initial")

	next := Default()
	next.CycleIntervalMs = 300
	testutil.AssertNoError(t, Save(path, next), "write updated file")
	testutil.AssertNoError(t, p.Reload(path), "reload")
	testutil.AssertEqual(t, 300, p.Get().CycleIntervalMs, "reloaded value visible")

	// A broken file keeps the previous configuration.
	testutil.AssertNoError(t, os.WriteFile(path, []byte(`{"cycle_interval_ms": 1}`), 0644), "write broken")
	testutil.AssertError(t, p.Reload(path), "reload fails")
	testutil.AssertEqual(t, 300, p.Get().CycleIntervalMs, "previous config retained")
}
